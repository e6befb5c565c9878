// Package triage inspects submitted threat reports for indicators that
// the reported risk score understates the danger. It runs configurable
// pattern rules over the threat's type and detail bag and recommends a
// score adjustment, so low-quality feeds still trigger proportionate
// mitigation.
package triage

import "context"

// Finding is a single rule match returned by the analyzer.
type Finding struct {
	Rule        string  `json:"rule"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Report is the output of a triage run.
type Report struct {
	// Score is the aggregate indicator score (0–100).
	Score int `json:"score"`

	// Severity is a human-readable label derived from Score:
	//   0–14   → "none"
	//   15–34  → "low"
	//   35–64  → "medium"
	//   65–84  → "high"
	//   85–100 → "critical"
	Severity string `json:"severity"`

	// Findings lists every rule that triggered.
	Findings []Finding `json:"findings"`

	// ScoreBoost is the suggested additive adjustment to the threat's
	// risk score, proportional to Score on the nominal 0–25 range.
	ScoreBoost float64 `json:"score_boost"`

	// Escalate is true when Score ≥ 85. Threats with Escalate=true
	// warrant critical-tier handling regardless of the reported score.
	Escalate bool `json:"escalate"`
}

// Analyzer inspects a threat report for risk indicators.
type Analyzer interface {
	Analyze(ctx context.Context, threatType string, details map[string]string) (*Report, error)
}

// severityLabel maps a 0–100 score to a severity string.
func severityLabel(score int) string {
	switch {
	case score >= 85:
		return "critical"
	case score >= 65:
		return "high"
	case score >= 35:
		return "medium"
	case score >= 15:
		return "low"
	default:
		return "none"
	}
}
