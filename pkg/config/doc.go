// Package config reads the service configuration from the environment.
//
// Load reads an optional .env file, parses the process environment into a
// Config and validates it. Every setting has an environment variable:
//
//	APPWRITE_FUNCTION_API_ENDPOINT   remote API base URL
//	APPWRITE_FUNCTION_PROJECT_ID     remote project
//	APPWRITE_FUNCTION_API_KEY        fallback API key
//	SCHEMAPROV_ENVIRONMENT           reported environment (development)
//	SCHEMAPROV_CATALOG               catalog file, empty for the embedded one
//	SCHEMAPROV_LISTEN                serve address (:8080)
//	SCHEMAPROV_STORE                 SQLite run history, empty to disable
//	SCHEMAPROV_POLICY_PATHS          comma-separated policy files or dirs
//	SCHEMAPROV_POLICY_ENFORCE        refuse runs with blocking violations
//	SCHEMAPROV_SETTLE_DELAY          fixed wait after new attributes (1s)
//	SCHEMAPROV_SETTLE_TIMEOUT        attribute polling budget (30s)
//	SCHEMAPROV_POLL_INTERVAL         attribute polling interval (250ms)
//	SCHEMAPROV_COLLECTION_PACING     pause between collections (500ms)
//	SCHEMAPROV_HTTP_TIMEOUT          remote request timeout (30s)
//	SCHEMAPROV_METRICS               enable /metrics (true)
//	SCHEMAPROV_TRACE_EXPORTER        none, stdout, otlp (gRPC) or otlphttp
//	OTEL_EXPORTER_OTLP_ENDPOINT      collector for the otlp exporter
//	LOG_LEVEL, LOG_FORMAT            logger level and console or json
//
// Command-line flags override the loaded values.
package config
