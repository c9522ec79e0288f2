// Package services holds the shared error taxonomy and context plumbing for
// external provider integrations, plus the per-provider client subpackages.
package services
