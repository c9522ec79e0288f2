package daemon

import (
	"time"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
)

// JobView is the wire shape of a queue job.
type JobView struct {
	ID                int64      `json:"id"`
	OrgID             string     `json:"orgId"`
	FileName          string     `json:"fileName"`
	StoragePath       string     `json:"storagePath"`
	Status            string     `json:"status"`
	ProgressStarted   bool       `json:"progressStarted"`
	ProgressPercent   float64    `json:"progressPercent,omitempty"`
	CreativeRequested bool       `json:"creativeRequested"`
	TechnicalResult   string     `json:"technicalResult,omitempty"`
	CreativeResult    string     `json:"creativeResult,omitempty"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
	FingerprintID     string     `json:"fingerprintId,omitempty"`
	ContentHash       string     `json:"contentHash,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func jobView(job *queue.Job) JobView {
	return JobView{
		ID:                job.ID,
		OrgID:             job.OrgID,
		FileName:          job.FileName,
		StoragePath:       job.StoragePath,
		Status:            string(job.Status),
		ProgressStarted:   job.Progress.Started,
		ProgressPercent:   job.Progress.Percent,
		CreativeRequested: job.CreativeRequested,
		TechnicalResult:   job.TechnicalResult,
		CreativeResult:    job.CreativeResult,
		ErrorMessage:      job.ErrorMessage,
		FingerprintID:     job.FingerprintID,
		ContentHash:       job.ContentHash,
		CreatedAt:         job.CreatedAt,
		StartedAt:         job.StartedAt,
		CompletedAt:       job.CompletedAt,
		UpdatedAt:         job.UpdatedAt,
	}
}

func jobViews(jobs []*queue.Job) []JobView {
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobView(job))
	}
	return views
}

// EntryView is the wire shape of a dead-letter entry.
type EntryView struct {
	ID              int64      `json:"id"`
	JobID           int64      `json:"jobId"`
	OrgID           string     `json:"orgId"`
	JobType         string     `json:"jobType"`
	FailureReason   string     `json:"failureReason"`
	FailureCode     string     `json:"failureCode"`
	AttemptCount    int        `json:"attemptCount"`
	MaxRetries      int        `json:"maxRetries"`
	Status          string     `json:"status"`
	LastAttemptAt   *time.Time `json:"lastAttemptAt,omitempty"`
	NextRetryAt     *time.Time `json:"nextRetryAt,omitempty"`
	ResolvedBy      string     `json:"resolvedBy,omitempty"`
	ResolutionNotes string     `json:"resolutionNotes,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func entryView(entry *dlq.Entry) EntryView {
	return EntryView{
		ID:              entry.ID,
		JobID:           entry.JobID,
		OrgID:           entry.OrgID,
		JobType:         entry.JobType,
		FailureReason:   entry.FailureReason,
		FailureCode:     string(entry.FailureCode),
		AttemptCount:    entry.AttemptCount,
		MaxRetries:      entry.MaxRetries,
		Status:          string(entry.Status),
		LastAttemptAt:   entry.LastAttemptAt,
		NextRetryAt:     entry.NextRetryAt,
		ResolvedBy:      entry.ResolvedBy,
		ResolutionNotes: entry.ResolutionNotes,
		ResolvedAt:      entry.ResolvedAt,
		CreatedAt:       entry.CreatedAt,
	}
}

func entryViews(entries []*dlq.Entry) []EntryView {
	views := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, entryView(entry))
	}
	return views
}
