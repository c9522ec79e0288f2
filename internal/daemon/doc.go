// Package daemon runs the long-lived alokickflow process: a cron-scheduled
// queue tick, an in-process trigger drain for immediate batches, stale-job
// reclamation, and the HTTP control API. A lock file enforces a single
// instance per data directory.
package daemon
