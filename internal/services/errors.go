package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
)

var (
	// ErrValidation marks bad input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrAuth marks an expired or invalid external credential. Surfaced
	// distinctly so an operator can act; never downgraded to a generic
	// failure.
	ErrAuth = errors.New("auth error")
	// ErrProviderUnavailable marks a missing or misconfigured dependency.
	// Optional capabilities degrade instead of hard-failing on it.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrTimeout marks a bounded call that ran out of time.
	ErrTimeout = errors.New("timeout")
	// ErrProcessing marks an analyzer failure.
	ErrProcessing = errors.New("processing error")
	// ErrResourceExhausted marks oversized input rejected before any
	// expensive call was attempted.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrExternalAPI marks a failed call to an external service.
	ErrExternalAPI = errors.New("external api error")
	// ErrDownload marks a failure fetching source media.
	ErrDownload = errors.New("download error")
	// ErrParse marks an unparseable provider response.
	ErrParse = errors.New("parse error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrProcessing
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureCode maps an error to the dead-letter triage taxonomy. Unrecognized
// errors fall back to unknown so nothing is silently dropped from triage.
func FailureCode(err error) dlq.FailureCode {
	switch {
	case err == nil:
		return dlq.CodeUnknown
	case errors.Is(err, ErrValidation):
		return dlq.CodeValidationError
	case errors.Is(err, ErrAuth):
		return dlq.CodeAuthError
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return dlq.CodeTimeout
	case errors.Is(err, ErrResourceExhausted):
		return dlq.CodeResourceExhausted
	case errors.Is(err, ErrParse):
		return dlq.CodeParseError
	case errors.Is(err, ErrDownload):
		return dlq.CodeDownloadError
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrExternalAPI):
		return dlq.CodeExternalAPIError
	case errors.Is(err, ErrProcessing):
		return dlq.CodeProcessingError
	default:
		return dlq.CodeUnknown
	}
}

// Retryable reports whether a failure is worth re-entering the pipeline.
// The answer follows the failure-code taxonomy so classification and retry
// policy cannot drift apart.
func Retryable(err error) bool {
	return FailureCode(err).Retryable()
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
