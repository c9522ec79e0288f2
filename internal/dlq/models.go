package dlq

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a dead-letter entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRetrying  Status = "retrying"
	StatusResolved  Status = "resolved"
	StatusAbandoned Status = "abandoned"
)

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusPending, StatusRetrying, StatusResolved, StatusAbandoned:
		return normalized, true
	}
	return "", false
}

// FailureCode is the triage taxonomy for captured failures.
type FailureCode string

const (
	CodeTimeout           FailureCode = "timeout"
	CodeAuthError         FailureCode = "auth_error"
	CodeParseError        FailureCode = "parse_error"
	CodeDownloadError     FailureCode = "download_error"
	CodeProcessingError   FailureCode = "processing_error"
	CodeExternalAPIError  FailureCode = "external_api_error"
	CodeValidationError   FailureCode = "validation_error"
	CodeResourceExhausted FailureCode = "resource_exhausted"
	CodeUnknown           FailureCode = "unknown"
)

// Retryable reports whether failures with this code may be rescheduled.
// Validation failures are permanent: the input is wrong and will stay wrong
// until an operator resolves the entry.
func (c FailureCode) Retryable() bool {
	return c != CodeValidationError
}

// Entry is a terminal-failure record, decoupled from the job row so failure
// history survives requeues.
type Entry struct {
	ID              int64
	JobID           int64
	OrgID           string
	JobType         string
	Payload         string
	FailureReason   string
	FailureCode     FailureCode
	FailureStack    string
	AttemptCount    int
	MaxRetries      int
	LastAttemptAt   *time.Time
	NextRetryAt     *time.Time
	Status          Status
	ResolvedBy      string
	ResolutionNotes string
	ResolvedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Failure describes a job failure to capture.
type Failure struct {
	JobID        int64
	OrgID        string
	JobType      string
	Payload      string
	Reason       string
	Code         FailureCode
	Stack        string
	AttemptCount int
}

// Stats aggregates entry counts for operational dashboards.
type Stats struct {
	Total    int
	ByStatus map[Status]int
	ByCode   map[FailureCode]int
}

// RetryOutcome reports what a retry did (or, in dry-run mode, would do).
type RetryOutcome struct {
	EntryID      int64
	JobID        int64
	DryRun       bool
	Abandoned    bool
	AttemptCount int
	NextStatus   Status
}
