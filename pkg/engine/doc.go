// Package engine provisions a catalog against a remote schema store.
//
// # Overview
//
// A run walks the catalog in order and asks the remote to create each
// resource:
//
//  1. Database - created once; a failure aborts the run
//  2. Collections - in catalog order; a failure aborts the run
//  3. Attributes - per collection, in order; failures are logged and skipped
//  4. Settle - wait until the collection's attributes are materialized
//  5. Indexes - per collection, in order; failures are logged and skipped
//  6. Seed documents - after every collection; never fail the run
//
// A conflict from the remote means the resource already exists and counts as
// success. Running the same catalog twice is therefore safe: the second run
// logs "already exists" for everything the first run created.
//
// # Outcomes
//
// Every attempted step yields a StepOutcome. Verdict decides success from the
// outcomes alone: a run fails if and only if a database or collection step
// failed, or the run panicked. Failures are wrapped in *StepError, which
// matches one sentinel per kind:
//
//	if errors.Is(result.Error, engine.ErrCollectionCreation) {
//	    // a collection could not be created
//	}
//
// # Waiting
//
// Attribute creation on the remote is asynchronous. When the client
// implements remote.AttributeStatusReader the engine polls until every
// attribute is available or Timing.SettleTimeout passes; otherwise it waits a
// fixed Timing.SettleDelay. All waits go through a Sleeper so tests can run
// without real time passing.
//
// # Concurrency
//
// Run is sequential and takes no locks. Two runs against the same database
// must be serialized by the caller.
package engine
