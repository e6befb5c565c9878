package scoring

// Severity is a discrete tier derived from a continuous risk score.
type Severity string

// Severity tiers, ordered low < medium < high < critical.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering position of the tier (low=0 … critical=3).
// Unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 0
	default:
		return -1
	}
}

// Valid reports whether s is one of the four known tiers.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// Thresholds holds the score boundaries between severity tiers.
// They are policy knobs, loaded from configuration; the defaults mirror
// the nominal 0–25 scoring range.
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// DefaultThresholds returns the standard 10/15/20 tier boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 10, High: 15, Critical: 20}
}

// Classify maps a risk score to a Severity. It is total: out-of-range
// scores clamp to the nearest tier, so negative scores are low and
// anything at or above the critical boundary is critical.
func (t Thresholds) Classify(score float64) Severity {
	switch {
	case score >= t.Critical:
		return SeverityCritical
	case score >= t.High:
		return SeverityHigh
	case score >= t.Medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
