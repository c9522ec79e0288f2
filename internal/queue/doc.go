// Package queue persists QC jobs in SQLite and provides the atomic claim,
// transition, and reclaim operations the batch processor depends on.
//
// Every mutation is a single-row (or single-statement) conditional update:
// Claim flips queued jobs to running in one UPDATE ... RETURNING so no two
// concurrent callers receive the same job, and the guarded mutators reject
// writes against jobs that have moved to an unexpected state (ErrStaleState)
// instead of clobbering a concurrent transition.
package queue
