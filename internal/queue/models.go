package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a QC job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusPaused    Status = "paused"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusPaused,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends the job lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Progress models job progress without nullable coercion: a job that never
// began processing has Started=false, and Percent is meaningful only once
// Started is true. Absence of progress means "not yet started", never a
// default percentage.
type Progress struct {
	Started bool
	Percent float64
}

// ProgressAt returns an in-progress value clamped to the 0-100 range.
func ProgressAt(percent float64) Progress {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Progress{Started: true, Percent: percent}
}

// Job represents a QC job persisted in SQLite.
type Job struct {
	ID                int64
	OrgID             string
	FileName          string
	StoragePath       string
	Status            Status
	Progress          Progress
	CreativeRequested bool
	TechnicalResult   string
	CreativeResult    string
	ErrorMessage      string
	FingerprintID     string
	ContentHash       string
	FingerprintAt     *time.Time
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	LastHeartbeat     *time.Time
	UpdatedAt         time.Time
}

// HasFingerprint reports whether a provenance fingerprint has been generated
// for the job.
func (j Job) HasFingerprint() bool {
	return strings.TrimSpace(j.FingerprintID) != "" && strings.TrimSpace(j.ContentHash) != ""
}

// StatsSummary aggregates queue counts per lifecycle state.
type StatsSummary struct {
	Total     int
	Queued    int
	Paused    int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}
