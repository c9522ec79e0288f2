// Package logging configures structured slog output for the daemon and CLI.
//
// It provides a console key=value handler for interactive use, a JSON handler
// for machine consumption, multi-destination output (stdout plus a log file
// under the configured log directory), and standardized field-name constants
// so job ids, org ids, and stages are attributed consistently across
// components.
package logging
