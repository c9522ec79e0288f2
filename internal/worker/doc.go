// Package worker implements the batch processor: it claims eligible jobs
// from the queue store, runs technical QC and optional creative QC, reports
// progress milestones, and records failures on both the job row and the
// dead-letter queue. Batches are invoked by external triggers (a cron tick,
// a control call, or the in-process trigger channel) rather than an
// always-on scheduler thread.
package worker
