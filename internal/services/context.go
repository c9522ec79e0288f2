package services

import (
	"context"
	"log/slog"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
)

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	orgIDKey     contextKey = "org_id"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates the context with the active job identifier.
func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier when present.
func JobIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(jobIDKey).(int64)
	return id, ok
}

// WithOrgID annotates the context with the organization identifier.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// OrgIDFromContext extracts the organization identifier when present.
func OrgIDFromContext(ctx context.Context) (string, bool) {
	orgID, ok := ctx.Value(orgIDKey).(string)
	return orgID, ok
}

// WithStage annotates the context with the active pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext extracts the stage name when present.
func StageFromContext(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(stageKey).(string)
	return stage, ok
}

// WithRequestID annotates the context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier when present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// ContextFields extracts standardized slog attributes from the context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := JobIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(logging.FieldJobID, id))
	}
	if orgID, ok := OrgIDFromContext(ctx); ok {
		fields = append(fields, slog.String(logging.FieldOrgID, orgID))
	}
	if stage, ok := StageFromContext(ctx); ok {
		fields = append(fields, slog.String(logging.FieldStage, stage))
	}
	if rid, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(logging.FieldCorrelationID, rid))
	}
	return fields
}

// ContextLogger returns a logger augmented with structured fields derived
// from the supplied context.
func ContextLogger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = logging.NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(logging.Args(fields...)...)
}
