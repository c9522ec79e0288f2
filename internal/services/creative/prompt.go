package creative

import (
	"fmt"
	"strings"
)

// scoringSystemPrompt captures the instructions sent to the scoring model.
// Keep updates centralized here so every call stays in sync.
const scoringSystemPrompt = `You are a quality-control analyst for post-production media deliveries. You score a transcript of the delivery against the organization's creative standards.

Score three overall dimensions on a 0-100 scale:
- "creative_score": overall creative quality of the writing and delivery.
- "risk_score": likelihood the content creates legal, compliance, or reputation risk (higher means riskier).
- "brand_fit_score": alignment with the stated brand guidelines and target audience.

Also score individual parameters (tone, clarity, pacing, language appropriateness, call-to-action strength) in a "parameters" array, each with "parameter", "score" (0-100), and a short "rationale".

Respond ONLY with a JSON object:
{"creative_score": 0-100, "risk_score": 0-100, "brand_fit_score": 0-100, "parameters": [...], "summary": "2-3 sentences", "recommendations": ["..."]}`

func buildScoringPrompt(transcript string, orgCtx OrgContext) string {
	var b strings.Builder
	if audience := strings.TrimSpace(orgCtx.TargetAudience); audience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", audience)
	}
	if guidelines := strings.TrimSpace(orgCtx.BrandGuidelines); guidelines != "" {
		fmt.Fprintf(&b, "Brand guidelines: %s\n", guidelines)
	}
	if platform := strings.TrimSpace(orgCtx.PlatformType); platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", platform)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}
