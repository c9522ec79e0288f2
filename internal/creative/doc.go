// Package creative runs AI-driven creative quality analysis for QC jobs:
// tone, brand fit, and risk scoring distinct from deterministic technical
// QC. The engine guards organization entitlement, is idempotent per job,
// degrades gracefully when no transcript can be obtained, and records every
// attempt in an append-only audit trail.
package creative
