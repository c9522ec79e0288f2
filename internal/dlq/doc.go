// Package dlq captures jobs that exhausted processing retries and holds the
// retry/backoff state separate from the job row itself, so failure history
// survives requeues.
//
// Retries back off exponentially (base * 2^attempts) up to a configured
// ceiling; entries at their retry budget are abandoned. Purge sweeps only
// closed entries by default, and stats aggregate by status and failure code
// in grouped queries rather than per-entry round trips.
package dlq
