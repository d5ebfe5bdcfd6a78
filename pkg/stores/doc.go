// Package stores persists provisioning run history. It includes a
// SQLite-based store with embedded migrations that records each run's
// summary, step outcomes and execution log.
package stores
