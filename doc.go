// Package doctxn performs optimistic-concurrency updates of single documents held in a
// revisioned document store (CouchDB and stores that behave like it).
//
// A caller names a document with a Locator and supplies a Mutation. A Transaction fetches
// the document, runs the mutation against it and writes the result back using the revision
// seen at fetch time. When the store rejects the write as a conflict the whole
// fetch-mutate-write cycle is retried with exponential backoff until Options.MaxAttempts
// is reached. Every attempt's mutation is bounded by Options.OperationTimeout.
//
// Concrete stores live in sub packages: couch (CouchDB over HTTP), inmemory, redis,
// cassandra and aws_s3. Change detection is provided by the changes package and
// declarative mutations by the cel package.
package doctxn

// Timeout model
//
// Two timers exist per Transaction and never overlap in the same role:
//  1. The retry timer, armed only while waiting out the backoff delay between attempts.
//  2. The operation timer, armed only while a mutation is outstanding.
//
// When the operation timer fires first the Transaction ends with a TimeoutError and the
// mutation's eventual return is discarded. Timeouts are never retried automatically since
// the mutation may have had side effects. The caller's context bounds the whole
// Transaction; its cancellation ends the Transaction as Cancelled.
//
// Backoff between attempts is BaseDelay * 2^attemptsMade with no jitter. It is uncapped
// unless Options.MaxDelay is set.
