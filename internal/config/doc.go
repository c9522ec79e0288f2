// Package config loads, normalizes, and validates Alokickflow configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the daemon and CLI need and is constructed once at process start; no other
// component reads ambient environment state for provider selection or
// feature toggles.
package config
