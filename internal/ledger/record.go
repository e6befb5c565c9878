// Package ledger persists the audit trail of mitigation runs. Every run
// produces exactly one Record; records are append-only and never mutated
// after creation. A bounded in-memory history always holds recent runs,
// and an optional persistent store adds durability — the ledger keeps
// working, degraded, when the store is absent or failing.
package ledger

import (
	"context"
	"time"

	"github.com/aegis-secops/aegis/internal/plan"
	"github.com/aegis-secops/aegis/internal/scoring"
)

// Run completion states.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is the durable audit artifact of one mitigation run.
// Results and Actions are 1:1 and ordered: every planned action has
// exactly one recorded outcome.
type Record struct {
	ThreatID   string              `json:"threat_id"`
	ThreatType string              `json:"threat_type"`
	RiskScore  float64             `json:"risk_score"`
	Severity   scoring.Severity    `json:"severity"`
	Actions    []plan.ActionSpec   `json:"actions"`
	Results    []plan.ActionResult `json:"results"`
	Timestamp  time.Time           `json:"timestamp"`
	Status     string              `json:"status"`
}

// Filter narrows a history query. All supplied fields must match.
type Filter struct {
	// Limit caps the number of returned records; 0 means the default of 100.
	Limit int

	// ThreatType, when non-empty, selects records of that threat type.
	ThreatType string

	// Severity, when non-empty, selects records of that severity tier.
	Severity scoring.Severity
}

// DefaultHistoryLimit is applied when a Filter leaves Limit at zero.
const DefaultHistoryLimit = 100

// Matches reports whether r satisfies every supplied filter field.
func (f Filter) Matches(r *Record) bool {
	if f.ThreatType != "" && r.ThreatType != f.ThreatType {
		return false
	}
	if f.Severity != "" && r.Severity != f.Severity {
		return false
	}
	return true
}

// Stats summarises how well one action kind has performed.
type Stats struct {
	// Effectiveness is the observed success ratio in [0, 1].
	Effectiveness float64 `json:"effectiveness"`

	// Count is the number of executions contributing to the ratio.
	Count int `json:"count"`
}

// Store is the persistent backend consumed by the Ledger. Both methods
// may fail freely; the Ledger treats the in-memory history as the source
// of truth whenever the store misbehaves.
type Store interface {
	Insert(ctx context.Context, r *Record) error
	Query(ctx context.Context, f Filter) ([]*Record, error)
}
