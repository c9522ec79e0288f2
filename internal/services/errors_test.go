package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services"
)

func TestWrapTagsMarkerAndDetail(t *testing.T) {
	cause := errors.New("connection refused")
	err := services.Wrap(services.ErrExternalAPI, "transcribe", "transcribe", "call failed", cause)
	if !errors.Is(err, services.ErrExternalAPI) {
		t.Fatalf("expected marker preserved, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause preserved, got %v", err)
	}
	for _, fragment := range []string{"transcribe", "call failed", "connection refused"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in message, got %q", fragment, err.Error())
		}
	}
}

func TestWrapDefaultsToProcessing(t *testing.T) {
	err := services.Wrap(nil, "worker", "analyze", "analyzer crashed", nil)
	if !errors.Is(err, services.ErrProcessing) {
		t.Fatalf("expected processing marker, got %v", err)
	}
}

func TestFailureCodeTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want dlq.FailureCode
	}{
		{nil, dlq.CodeUnknown},
		{services.ErrValidation, dlq.CodeValidationError},
		{services.ErrAuth, dlq.CodeAuthError},
		{services.ErrTimeout, dlq.CodeTimeout},
		{context.DeadlineExceeded, dlq.CodeTimeout},
		{services.ErrResourceExhausted, dlq.CodeResourceExhausted},
		{services.ErrParse, dlq.CodeParseError},
		{services.ErrDownload, dlq.CodeDownloadError},
		{services.ErrProviderUnavailable, dlq.CodeExternalAPIError},
		{services.ErrExternalAPI, dlq.CodeExternalAPIError},
		{services.ErrProcessing, dlq.CodeProcessingError},
		{errors.New("mystery"), dlq.CodeUnknown},
	}
	for _, tc := range cases {
		if got := services.FailureCode(tc.err); got != tc.want {
			t.Fatalf("FailureCode(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}

	wrapped := fmt.Errorf("outer: %w", services.Wrap(services.ErrAuth, "creative", "complete", "http 401", nil))
	if got := services.FailureCode(wrapped); got != dlq.CodeAuthError {
		t.Fatalf("expected auth code through wrapping, got %s", got)
	}
}

func TestRetryableExcludesValidation(t *testing.T) {
	if services.Retryable(services.Wrap(services.ErrValidation, "queue", "enqueue", "bad input", nil)) {
		t.Fatal("validation failures must not be retryable")
	}
	if !services.Retryable(services.ErrTimeout) {
		t.Fatal("timeouts should be retryable")
	}
	if !services.Retryable(errors.New("mystery")) {
		t.Fatal("unknown failures should be retryable")
	}
}
