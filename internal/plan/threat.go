// Package plan turns a classified threat into an ordered list of
// mitigation actions. Planning is deterministic and side-effect free;
// execution of the resulting actions belongs to the effector layer.
package plan

import (
	"math"
	"sort"
)

// Threat is an immutable description of a detected threat as submitted
// to the mitigation engine.
type Threat struct {
	// ID is an opaque identifier. The engine generates one when the
	// caller leaves it empty.
	ID string `json:"id,omitempty"`

	// Type is a free-text category, e.g. "SQL Injection" or "DDoS".
	Type string `json:"type"`

	// RiskScore is the computed risk score, nominally in [0, 25].
	RiskScore float64 `json:"risk_score"`

	// Details carries threat-specific attributes such as ip, sender,
	// domain, or pattern.
	Details map[string]string `json:"details,omitempty"`
}

// IP returns the source IP from the details bag, if present.
func (t Threat) IP() (string, bool) {
	ip, ok := t.Details["ip"]
	return ip, ok && ip != ""
}

// Prioritize returns threats sorted from highest to lowest risk score.
// Threats with a NaN score are dropped. The input slice is not modified.
func Prioritize(threats []Threat) []Threat {
	out := make([]Threat, 0, len(threats))
	for _, t := range threats {
		if !math.IsNaN(t.RiskScore) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RiskScore > out[j].RiskScore
	})
	return out
}
