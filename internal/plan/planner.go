package plan

import (
	"fmt"

	"github.com/aegis-secops/aegis/internal/scoring"
)

// Planner produces the ordered action list for a classified threat.
// The ordering is a contract: a log action always comes first, severity
// base actions precede type-specific extras, and the advisory
// recommendations/responsePlan pair is always last.
type Planner struct {
	recs  Recommendations
	plans ResponsePlans
}

// NewPlanner returns a Planner loaded with the default advice tables.
func NewPlanner() *Planner {
	return &Planner{
		recs:  DefaultRecommendations(),
		plans: DefaultResponsePlans(),
	}
}

// SetRecommendations replaces the mitigation advice table.
func (p *Planner) SetRecommendations(r Recommendations) {
	if r != nil {
		p.recs = r
	}
}

// SetResponsePlans replaces the incident response plan table.
func (p *Planner) SetResponsePlans(r ResponsePlans) {
	if r != nil {
		p.plans = r
	}
}

// Plan returns the deterministic action sequence for threat at the given
// severity tier. It has no side effects.
func (p *Planner) Plan(t Threat, severity scoring.Severity) []ActionSpec {
	actions := []ActionSpec{{
		Kind:        KindLog,
		Description: fmt.Sprintf("Logging detected %s threat", t.Type),
		Params:      map[string]any{"threat": t},
	}}

	switch severity {
	case scoring.SeverityCritical:
		actions = append(actions, p.criticalActions(t)...)
	case scoring.SeverityHigh:
		actions = append(actions, p.highActions(t)...)
	case scoring.SeverityMedium:
		actions = append(actions,
			ActionSpec{
				Kind:        KindMonitor,
				Description: "Increasing monitoring for this threat vector",
				Params:      map[string]any{"duration": "24h", "interval": "5m"},
			},
			notifyAction(t, "medium", "Logging alert for review", "security-analysts"),
		)
	default: // low
		actions = append(actions, ActionSpec{
			Kind:        KindMonitor,
			Description: "Adding to watch list",
			Params:      map[string]any{"duration": "72h", "interval": "30m"},
		})
	}

	actions = append(actions,
		ActionSpec{
			Kind:        KindRecommendations,
			Description: "Security control recommendations",
			Params:      map[string]any{"recommendations": p.recs.Lookup(t.Type)},
		},
		ActionSpec{
			Kind:        KindResponsePlan,
			Description: "Incident response plan",
			Params:      map[string]any{"steps": p.plans.Lookup(t.Type)},
		},
	)
	return actions
}

// criticalActions returns the base actions for the critical tier plus a
// type-specific extra, in that order.
func (p *Planner) criticalActions(t Threat) []ActionSpec {
	ip, hasIP := t.IP()

	target := "associated with threat"
	if hasIP {
		target = ip
	}
	actions := []ActionSpec{
		{
			Kind:        KindBlock,
			Description: fmt.Sprintf("Blocking IP address %s", target),
			Params:      map[string]any{"ip": ip},
		},
		notifyAction(t, "critical", "Sending urgent notification to security team",
			"security-team", "management"),
	}

	if hasIP {
		actions = append(actions, ActionSpec{
			Kind:        KindDefenseAction,
			Description: "Activating defensive countermeasures",
			Params:      map[string]any{"action": "blockIP", "ip": ip},
		})
	}

	switch t.Type {
	case "SQL Injection", "XSS":
		pattern := t.Details["pattern"]
		if pattern == "" {
			pattern = "default"
		}
		actions = append(actions, ActionSpec{
			Kind:        KindWAF,
			Description: "Updating WAF rules to block attack pattern",
			Params:      map[string]any{"pattern": pattern},
		})
	case "DDoS":
		actions = append(actions, ActionSpec{
			Kind:        KindDDoS,
			Description: "Activating DDoS protection",
			Params:      map[string]any{"mode": "aggressive"},
		})
	case "Phishing":
		actions = append(actions, ActionSpec{
			Kind:        KindEmailSecurity,
			Description: "Updating email security rules",
			Params: map[string]any{
				"sender": t.Details["sender"],
				"domain": t.Details["domain"],
				"action": "block",
			},
		})
	}
	return actions
}

// highActions returns the base actions for the high tier plus a
// type-specific extra, in that order.
func (p *Planner) highActions(t Threat) []ActionSpec {
	var actions []ActionSpec

	if ip, ok := t.IP(); ok {
		actions = append(actions, ActionSpec{
			Kind:        KindRateLimit,
			Description: fmt.Sprintf("Rate limiting IP address %s", ip),
			Params:      map[string]any{"ip": ip, "rate": "10/minute"},
		})
	}

	actions = append(actions,
		notifyAction(t, "high", "Sending notification to security team", "security-team"))

	if t.Type == "Brute Force" {
		actions = append(actions, ActionSpec{
			Kind:        KindAccountProtection,
			Description: "Temporarily locking targeted accounts",
			Params:      map[string]any{"duration": "30m", "notifyUsers": true},
		})
	}
	return actions
}

func notifyAction(t Threat, urgency, description string, recipients ...string) ActionSpec {
	return ActionSpec{
		Kind:        KindNotify,
		Description: description,
		Params: map[string]any{
			"urgency":    urgency,
			"recipients": recipients,
			"threat":     t.Type,
			"risk_score": t.RiskScore,
		},
	}
}
