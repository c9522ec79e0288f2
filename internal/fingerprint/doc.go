// Package fingerprint mints and verifies content-identity fingerprints for
// completed QC jobs. A fingerprint pairs an opaque id with a strong content
// hash and a derived quick-scan digest; verification paths range from cheap
// triage (quick-scan) to full deep verification against the job store.
package fingerprint
