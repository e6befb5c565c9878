package plan_test

import (
	"testing"

	"github.com/aegis-secops/aegis/internal/plan"
	"github.com/aegis-secops/aegis/internal/scoring"
)

func kinds(actions []plan.ActionSpec) []plan.ActionKind {
	out := make([]plan.ActionKind, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

func assertKinds(t *testing.T, got []plan.ActionSpec, want []plan.ActionKind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d actions, got %d: %v", len(want), len(got), kinds(got))
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("action[%d]: got %q, want %q", i, got[i].Kind, k)
		}
	}
}

func TestPlan_lowSeverity(t *testing.T) {
	p := plan.NewPlanner()
	threat := plan.Threat{ID: "t-1", Type: "Port Scan", RiskScore: 4}

	actions := p.Plan(threat, scoring.SeverityLow)
	assertKinds(t, actions, []plan.ActionKind{
		plan.KindLog, plan.KindMonitor, plan.KindRecommendations, plan.KindResponsePlan,
	})

	if d, _ := actions[1].StringParam("duration"); d != "72h" {
		t.Errorf("low monitor duration: got %q, want 72h", d)
	}
	if iv, _ := actions[1].StringParam("interval"); iv != "30m" {
		t.Errorf("low monitor interval: got %q, want 30m", iv)
	}
}

func TestPlan_mediumSeverity(t *testing.T) {
	p := plan.NewPlanner()
	threat := plan.Threat{ID: "t-2", Type: "Suspicious Login", RiskScore: 12}

	actions := p.Plan(threat, scoring.SeverityMedium)
	assertKinds(t, actions, []plan.ActionKind{
		plan.KindLog, plan.KindMonitor, plan.KindNotify,
		plan.KindRecommendations, plan.KindResponsePlan,
	})

	if d, _ := actions[1].StringParam("duration"); d != "24h" {
		t.Errorf("medium monitor duration: got %q, want 24h", d)
	}
	if u, _ := actions[2].StringParam("urgency"); u != "medium" {
		t.Errorf("notify urgency: got %q, want medium", u)
	}
}

func TestPlan_highSeverityWithIP(t *testing.T) {
	p := plan.NewPlanner()
	threat := plan.Threat{
		ID: "t-3", Type: "Brute Force", RiskScore: 17,
		Details: map[string]string{"ip": "203.0.113.7"},
	}

	actions := p.Plan(threat, scoring.SeverityHigh)
	assertKinds(t, actions, []plan.ActionKind{
		plan.KindLog, plan.KindRateLimit, plan.KindNotify, plan.KindAccountProtection,
		plan.KindRecommendations, plan.KindResponsePlan,
	})

	if ip, _ := actions[1].StringParam("ip"); ip != "203.0.113.7" {
		t.Errorf("rateLimit ip: got %q, want 203.0.113.7", ip)
	}
	if r, _ := actions[1].StringParam("rate"); r != "10/minute" {
		t.Errorf("rateLimit rate: got %q, want 10/minute", r)
	}
}

func TestPlan_highSeverityWithoutIPSkipsRateLimit(t *testing.T) {
	p := plan.NewPlanner()
	threat := plan.Threat{ID: "t-4", Type: "Data Exfiltration", RiskScore: 16}

	actions := p.Plan(threat, scoring.SeverityHigh)
	assertKinds(t, actions, []plan.ActionKind{
		plan.KindLog, plan.KindNotify, plan.KindRecommendations, plan.KindResponsePlan,
	})
}

func TestPlan_criticalSQLInjection(t *testing.T) {
	p := plan.NewPlanner()
	threat := plan.Threat{
		ID: "t-5", Type: "SQL Injection", RiskScore: 22,
		Details: map[string]string{"ip": "198.51.100.9", "pattern": "union-select"},
	}

	actions := p.Plan(threat, scoring.SeverityCritical)
	assertKinds(t, actions, []plan.ActionKind{
		plan.KindLog, plan.KindBlock, plan.KindNotify, plan.KindDefenseAction,
		plan.KindWAF, plan.KindRecommendations, plan.KindResponsePlan,
	})

	if ip, _ := actions[1].StringParam("ip"); ip != "198.51.100.9" {
		t.Errorf("block ip: got %q, want 198.51.100.9", ip)
	}
	if pat, _ := actions[4].StringParam("pattern"); pat != "union-select" {
		t.Errorf("waf pattern: got %q, want union-select", pat)
	}
}

func TestPlan_criticalWAFDefaultPattern(t *testing.T) {
	p := plan.NewPlanner()
	threat := plan.Threat{ID: "t-6", Type: "XSS", RiskScore: 21}

	actions := p.Plan(threat, scoring.SeverityCritical)
	var waf *plan.ActionSpec
	for i := range actions {
		if actions[i].Kind == plan.KindWAF {
			waf = &actions[i]
		}
	}
	if waf == nil {
		t.Fatal("expected a waf action for XSS")
	}
	if pat, _ := waf.StringParam("pattern"); pat != "default" {
		t.Errorf("waf pattern: got %q, want default", pat)
	}
}

func TestPlan_criticalDDoS(t *testing.T) {
	p := plan.NewPlanner()
	threat := plan.Threat{
		ID: "t-7", Type: "DDoS", RiskScore: 24,
		Details: map[string]string{"ip": "203.0.113.50"},
	}

	actions := p.Plan(threat, scoring.SeverityCritical)
	assertKinds(t, actions, []plan.ActionKind{
		plan.KindLog, plan.KindBlock, plan.KindNotify, plan.KindDefenseAction,
		plan.KindDDoS, plan.KindRecommendations, plan.KindResponsePlan,
	})

	if mode, _ := actions[4].StringParam("mode"); mode != "aggressive" {
		t.Errorf("ddos mode: got %q, want aggressive", mode)
	}
}

func TestPlan_criticalWithoutIPOmitsDefenseAction(t *testing.T) {
	p := plan.NewPlanner()
	threat := plan.Threat{ID: "t-8", Type: "Phishing", RiskScore: 20,
		Details: map[string]string{"sender": "evil@example.com", "domain": "example.com"}}

	actions := p.Plan(threat, scoring.SeverityCritical)
	assertKinds(t, actions, []plan.ActionKind{
		plan.KindLog, plan.KindBlock, plan.KindNotify,
		plan.KindEmailSecurity, plan.KindRecommendations, plan.KindResponsePlan,
	})

	if actions[1].Description != "Blocking IP address associated with threat" {
		t.Errorf("block description: got %q", actions[1].Description)
	}
	if sender, _ := actions[3].StringParam("sender"); sender != "evil@example.com" {
		t.Errorf("emailSecurity sender: got %q", sender)
	}
}

func TestPlan_logFirstAdviceLast(t *testing.T) {
	p := plan.NewPlanner()
	for _, sev := range []scoring.Severity{
		scoring.SeverityLow, scoring.SeverityMedium, scoring.SeverityHigh, scoring.SeverityCritical,
	} {
		actions := p.Plan(plan.Threat{ID: "t", Type: "Malware", RiskScore: 10}, sev)
		if actions[0].Kind != plan.KindLog {
			t.Errorf("%s: first action is %q, want log", sev, actions[0].Kind)
		}
		n := len(actions)
		if actions[n-2].Kind != plan.KindRecommendations || actions[n-1].Kind != plan.KindResponsePlan {
			t.Errorf("%s: last two actions are %q, %q", sev, actions[n-2].Kind, actions[n-1].Kind)
		}
	}
}

func TestPlan_notifyCarriesThreatContext(t *testing.T) {
	p := plan.NewPlanner()
	threat := plan.Threat{ID: "t-9", Type: "DDoS", RiskScore: 23,
		Details: map[string]string{"ip": "203.0.113.1"}}

	actions := p.Plan(threat, scoring.SeverityCritical)
	var notify *plan.ActionSpec
	for i := range actions {
		if actions[i].Kind == plan.KindNotify {
			notify = &actions[i]
			break
		}
	}
	if notify == nil {
		t.Fatal("expected a notify action")
	}
	if got, _ := notify.StringParam("threat"); got != "DDoS" {
		t.Errorf("notify threat param: got %q, want DDoS", got)
	}
	if score, ok := notify.Params["risk_score"].(float64); !ok || score != 23 {
		t.Errorf("notify risk_score param: got %v", notify.Params["risk_score"])
	}
	recipients, ok := notify.Params["recipients"].([]string)
	if !ok || len(recipients) != 2 {
		t.Fatalf("notify recipients: got %v", notify.Params["recipients"])
	}
	if recipients[0] != "security-team" || recipients[1] != "management" {
		t.Errorf("notify recipients: got %v", recipients)
	}
}
