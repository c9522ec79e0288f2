package worker

import (
	"encoding/json"
	"strings"
)

// Report is the structured technical QC result persisted on the job row.
type Report struct {
	Passed bool `json:"passed"`
	// Measurements holds the deterministic signal measurements. A complete
	// report carries every required measurement; missing entries mark the
	// job as a reprocess candidate.
	Measurements map[string]float64 `json:"measurements,omitempty"`
	Issues       []string           `json:"issues,omitempty"`
	// Transcript is dialogue text extracted during technical analysis,
	// reused by creative QC when present.
	Transcript string `json:"transcript,omitempty"`
	// DependencyUnavailable marks a report produced while an analysis
	// dependency was down. The job completed, but with partial results.
	DependencyUnavailable bool `json:"dependency_unavailable,omitempty"`
}

// requiredMeasurements are the fields a full technical report must carry.
var requiredMeasurements = []string{"loudness_lufs", "sync_offset_ms"}

// Complete reports whether the report carries full measurements from a
// healthy analysis run.
func (r Report) Complete() bool {
	if r.DependencyUnavailable {
		return false
	}
	for _, key := range requiredMeasurements {
		if _, ok := r.Measurements[key]; !ok {
			return false
		}
	}
	return true
}

// needsReprocessing inspects a stored technical result and reports whether a
// completed job should be rerun. An undecodable or empty result counts as
// needing reprocessing rather than being silently accepted.
func needsReprocessing(technicalResult string) bool {
	if strings.TrimSpace(technicalResult) == "" {
		return true
	}
	var report Report
	if err := json.Unmarshal([]byte(technicalResult), &report); err != nil {
		return true
	}
	return !report.Complete()
}
