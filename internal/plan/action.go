package plan

import "time"

// ActionKind enumerates every mitigation action the planner can emit.
// The set is closed: the effector layer switches over it exhaustively,
// so adding a kind is a compile-time visible change.
type ActionKind string

const (
	KindLog               ActionKind = "log"
	KindBlock             ActionKind = "block"
	KindNotify            ActionKind = "notify"
	KindMonitor           ActionKind = "monitor"
	KindRateLimit         ActionKind = "rateLimit"
	KindWAF               ActionKind = "waf"
	KindDDoS              ActionKind = "ddos"
	KindEmailSecurity     ActionKind = "emailSecurity"
	KindAccountProtection ActionKind = "accountProtection"
	KindDefenseAction     ActionKind = "defenseAction"
	KindRecommendations   ActionKind = "recommendations"
	KindResponsePlan      ActionKind = "responsePlan"
)

// Status is the outcome vocabulary of an executed action.
type Status string

const (
	// StatusSuccess means the action's effect was applied.
	StatusSuccess Status = "success"

	// StatusSimulated means the target system is not configured and the
	// action was a designed no-op. Distinct from an error.
	StatusSimulated Status = "simulated"

	// StatusPartial means a local side effect was applied but the
	// external call failed.
	StatusPartial Status = "partial"

	// StatusSkipped means the action was not applicable, e.g. a block
	// with no IP to block.
	StatusSkipped Status = "skipped"

	// StatusError means the action failed.
	StatusError Status = "error"

	// StatusInformational marks advisory actions that are recorded for
	// manual review, never executed.
	StatusInformational Status = "informational"
)

// ActionSpec is a single planned mitigation step. Produced by the
// planner, consumed once by the effector layer, never mutated.
type ActionSpec struct {
	Kind        ActionKind     `json:"kind"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params,omitempty"`
}

// StringParam returns the named parameter if it is a non-empty string.
func (a ActionSpec) StringParam(key string) (string, bool) {
	v, ok := a.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// ActionResult records the outcome of one executed ActionSpec.
type ActionResult struct {
	Action    ActionSpec `json:"action"`
	Status    Status     `json:"status"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}
