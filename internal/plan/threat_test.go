package plan_test

import (
	"math"
	"testing"

	"github.com/aegis-secops/aegis/internal/plan"
)

func TestThreat_IP(t *testing.T) {
	threat := plan.Threat{Details: map[string]string{"ip": "192.0.2.1"}}
	if ip, ok := threat.IP(); !ok || ip != "192.0.2.1" {
		t.Errorf("IP(): got %q, %v", ip, ok)
	}

	if _, ok := (plan.Threat{}).IP(); ok {
		t.Error("IP() on threat without details should report false")
	}

	empty := plan.Threat{Details: map[string]string{"ip": ""}}
	if _, ok := empty.IP(); ok {
		t.Error("IP() with empty value should report false")
	}
}

func TestPrioritize_sortsDescending(t *testing.T) {
	threats := []plan.Threat{
		{ID: "a", RiskScore: 5},
		{ID: "b", RiskScore: 22},
		{ID: "c", RiskScore: 14},
	}

	got := plan.Prioritize(threats)
	want := []string{"b", "c", "a"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Prioritize()[%d]: got %q, want %q", i, got[i].ID, id)
		}
	}

	// Input order untouched.
	if threats[0].ID != "a" {
		t.Error("Prioritize() modified its input")
	}
}

func TestPrioritize_dropsNaN(t *testing.T) {
	threats := []plan.Threat{
		{ID: "a", RiskScore: 10},
		{ID: "bad", RiskScore: math.NaN()},
	}

	got := plan.Prioritize(threats)
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("Prioritize() with NaN: got %v", got)
	}
}
