// Package control exposes the queue control surface consumed by the HTTP
// API and the CLI: batch processing, pause/resume, reprocessing, and queue
// statistics.
package control
