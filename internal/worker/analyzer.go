package worker

import (
	"context"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
)

// UnconfiguredAnalyzer stands in when no external technical analyzer is
// wired. Jobs still complete, but their reports carry the
// dependency-unavailable marker so the reprocess-candidate scan picks them
// up once a real analyzer is deployed.
type UnconfiguredAnalyzer struct{}

func (UnconfiguredAnalyzer) Analyze(_ context.Context, _ *queue.Job) (Report, error) {
	return Report{
		Passed:                false,
		DependencyUnavailable: true,
		Issues:                []string{"technical analyzer not configured"},
	}, nil
}
