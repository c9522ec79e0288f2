package creative

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditRecord is one immutable row describing a creative-analysis attempt.
type AuditRecord struct {
	ID         int64
	OrgID      string
	JobID      int64
	Action     string
	Status     string
	Provider   string
	Model      string
	DurationMS int64
	Detail     string
	CreatedAt  time.Time
}

// Audit actions.
const (
	ActionAnalyze = "analyze"
	ActionRerun   = "rerun"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS creative_audit (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    org_id TEXT NOT NULL,
    job_id INTEGER NOT NULL,
    action TEXT NOT NULL,
    status TEXT NOT NULL,
    provider TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    detail TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_creative_audit_job ON creative_audit(job_id, id);
`

// AuditStore appends and reads creative-analysis audit records. Rows are
// append-only; there is deliberately no update or delete path.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore prepares the audit table on the shared job database.
func NewAuditStore(db *sql.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("audit store requires a database handle")
	}
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("create creative audit schema: %w", err)
	}
	return &AuditStore{db: db}, nil
}

// Append writes one audit record.
func (a *AuditStore) Append(ctx context.Context, rec AuditRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO creative_audit (org_id, job_id, action, status, provider, model, duration_ms, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrgID, rec.JobID, rec.Action, rec.Status, rec.Provider, rec.Model,
		rec.DurationMS, rec.Detail, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append creative audit record: %w", err)
	}
	return nil
}

// ListByJob returns the audit trail for one job, oldest first.
func (a *AuditStore) ListByJob(ctx context.Context, jobID int64, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, org_id, job_id, action, status, provider, model, duration_ms, detail, created_at
		 FROM creative_audit WHERE job_id = ? ORDER BY id LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list creative audit records: %w", err)
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.OrgID, &rec.JobID, &rec.Action, &rec.Status,
			&rec.Provider, &rec.Model, &rec.DurationMS, &rec.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan creative audit record: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate creative audit records: %w", err)
	}
	return records, nil
}
