package effector_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aegis-secops/aegis/internal/defense"
	"github.com/aegis-secops/aegis/internal/effector"
	"github.com/aegis-secops/aegis/internal/notify"
	"github.com/aegis-secops/aegis/internal/plan"
	"go.uber.org/zap"
)

var ctx = context.Background()

func newExecutor(t *testing.T, cfg effector.Config, guard *defense.Guard, notifier *notify.Notifier) *effector.Executor {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	return effector.NewExecutor(cfg, guard, notifier, zap.NewNop())
}

func TestExecute_logAction(t *testing.T) {
	e := newExecutor(t, effector.Config{}, nil, nil)

	res := e.Execute(ctx, plan.ActionSpec{Kind: plan.KindLog, Params: map[string]any{"threat": "x"}})
	if res.Status != plan.StatusSuccess {
		t.Errorf("log: got status %q, want success", res.Status)
	}
}

func TestExecute_blockWithoutIPSkipped(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	e := newExecutor(t, effector.Config{}, g, nil)

	res := e.Execute(ctx, plan.ActionSpec{Kind: plan.KindBlock, Params: map[string]any{}})
	if res.Status != plan.StatusSkipped {
		t.Errorf("block without ip: got %q, want skipped", res.Status)
	}
}

func TestExecute_blockWithoutGuardSimulated(t *testing.T) {
	e := newExecutor(t, effector.Config{}, nil, nil)

	res := e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindBlock,
		Params: map[string]any{"ip": "203.0.113.4"},
	})
	if res.Status != plan.StatusSimulated {
		t.Errorf("block without guard: got %q, want simulated", res.Status)
	}
}

func TestExecute_blockSuccessAndRepeat(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	e := newExecutor(t, effector.Config{}, g, nil)
	action := plan.ActionSpec{Kind: plan.KindBlock, Params: map[string]any{"ip": "203.0.113.5"}}

	res := e.Execute(ctx, action)
	if res.Status != plan.StatusSuccess || res.Message != "IP 203.0.113.5 blocked" {
		t.Errorf("first block: %q / %q", res.Status, res.Message)
	}

	res = e.Execute(ctx, action)
	if res.Status != plan.StatusSuccess || !strings.Contains(res.Message, "already blocked") {
		t.Errorf("repeat block: %q / %q", res.Status, res.Message)
	}
}

type failingFirewall struct{}

func (failingFirewall) BlockIP(ctx context.Context, ip string) error {
	return context.DeadlineExceeded
}
func (failingFirewall) ApplyRule(ctx context.Context, rule defense.Rule) error { return nil }

func TestExecute_blockGuardFailureIsError(t *testing.T) {
	g := defense.NewGuard(failingFirewall{}, nil, zap.NewNop())
	e := newExecutor(t, effector.Config{}, g, nil)

	res := e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindBlock,
		Params: map[string]any{"ip": "203.0.113.6"},
	})
	if res.Status != plan.StatusError {
		t.Errorf("failed block: got %q, want error", res.Status)
	}
	if g.IsBlocked("203.0.113.6") {
		t.Error("failed block must not mark the IP as blocked")
	}
}

func TestExecute_rateLimit(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	e := newExecutor(t, effector.Config{}, g, nil)

	res := e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindRateLimit,
		Params: map[string]any{"ip": "203.0.113.7", "rate": "10/minute"},
	})
	if res.Status != plan.StatusSuccess {
		t.Errorf("rateLimit: got %q, want success", res.Status)
	}
	if len(g.Rules()) != 1 {
		t.Error("rateLimit should record a rule on the guard")
	}

	res = e.Execute(ctx, plan.ActionSpec{Kind: plan.KindRateLimit, Params: map[string]any{}})
	if res.Status != plan.StatusSkipped {
		t.Errorf("rateLimit without ip: got %q, want skipped", res.Status)
	}
}

func TestExecute_wafUnconfiguredSimulated(t *testing.T) {
	e := newExecutor(t, effector.Config{}, nil, nil)

	res := e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindWAF,
		Params: map[string]any{"pattern": "union-select"},
	})
	if res.Status != plan.StatusSimulated {
		t.Errorf("waf unconfigured: got %q, want simulated", res.Status)
	}
}

func TestExecute_wafWebhookSuccess(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newExecutor(t, effector.Config{Endpoints: effector.Endpoints{WAF: srv.URL}}, nil, nil)

	res := e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindWAF,
		Params: map[string]any{"pattern": "union-select"},
	})
	if res.Status != plan.StatusSuccess {
		t.Fatalf("waf: got %q / %q", res.Status, res.Message)
	}
	if got["action"] != "updateRules" || got["pattern"] != "union-select" {
		t.Errorf("waf payload: %v", got)
	}
}

func TestExecute_wafWebhookFailurePartial(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := newExecutor(t, effector.Config{
		Endpoints:     effector.Endpoints{WAF: srv.URL},
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
	}, nil, nil)

	res := e.Execute(ctx, plan.ActionSpec{Kind: plan.KindWAF, Params: map[string]any{"pattern": "p"}})
	if res.Status != plan.StatusPartial {
		t.Errorf("waf failure: got %q, want partial", res.Status)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestExecute_ddosConfiguredAppliesLocalRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := defense.NewGuard(nil, nil, zap.NewNop())
	e := newExecutor(t, effector.Config{
		Endpoints: effector.Endpoints{SecurityGateway: srv.URL},
	}, g, nil)

	res := e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindDDoS,
		Params: map[string]any{"mode": "aggressive"},
	})
	if res.Status != plan.StatusSuccess {
		t.Fatalf("ddos: got %q / %q", res.Status, res.Message)
	}
	if len(g.Rules()) != 2 {
		t.Errorf("ddos should apply 2 local rules, got %d", len(g.Rules()))
	}
}

func TestExecute_ddosGatewayFailurePartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := defense.NewGuard(nil, nil, zap.NewNop())
	e := newExecutor(t, effector.Config{
		Endpoints:     effector.Endpoints{SecurityGateway: srv.URL},
		RetryAttempts: 1,
	}, g, nil)

	res := e.Execute(ctx, plan.ActionSpec{Kind: plan.KindDDoS, Params: map[string]any{"mode": "aggressive"}})
	if res.Status != plan.StatusPartial {
		t.Errorf("ddos gateway failure: got %q, want partial", res.Status)
	}
	// Local rules applied even though the gateway call failed.
	if len(g.Rules()) != 2 {
		t.Errorf("local rules should stand, got %d", len(g.Rules()))
	}
}

func TestExecute_ddosUnconfiguredSimulated(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	e := newExecutor(t, effector.Config{}, g, nil)

	res := e.Execute(ctx, plan.ActionSpec{Kind: plan.KindDDoS, Params: map[string]any{"mode": "aggressive"}})
	if res.Status != plan.StatusSimulated {
		t.Errorf("ddos unconfigured: got %q, want simulated", res.Status)
	}
	if len(g.Rules()) != 0 {
		t.Error("simulated ddos must not touch local rules")
	}
}

func TestExecute_emailSecurityErrorOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e := newExecutor(t, effector.Config{
		Endpoints:     effector.Endpoints{EmailSecurity: srv.URL},
		RetryAttempts: 1,
	}, nil, nil)

	res := e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindEmailSecurity,
		Params: map[string]any{"sender": "evil@example.com", "domain": "example.com", "action": "block"},
	})
	if res.Status != plan.StatusError {
		t.Errorf("email security failure: got %q, want error", res.Status)
	}
}

func TestExecute_notifyWithoutNotifierSimulated(t *testing.T) {
	e := newExecutor(t, effector.Config{}, nil, nil)

	res := e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindNotify,
		Params: map[string]any{"urgency": "high", "recipients": []string{"security-team"}},
	})
	if res.Status != plan.StatusSimulated {
		t.Errorf("notify without notifier: got %q, want simulated", res.Status)
	}
}

func TestExecute_notifyRecipientsFromJSONRoundTrip(t *testing.T) {
	n := notify.NewNotifier(notify.NewNoopSender(zap.NewNop()), nil, nil, zap.NewNop())
	e := newExecutor(t, effector.Config{}, nil, n)

	// Params as they come back from a JSON decode: []any, not []string.
	res := e.Execute(ctx, plan.ActionSpec{
		Kind: plan.KindNotify,
		Params: map[string]any{
			"urgency":    "critical",
			"recipients": []any{"security-team", "management"},
			"threat":     "DDoS",
			"risk_score": 23.0,
		},
	})
	if res.Status != plan.StatusSuccess {
		t.Fatalf("notify: got %q / %q", res.Status, res.Message)
	}
	if !strings.Contains(res.Message, "security-team, management") {
		t.Errorf("notify message: %q", res.Message)
	}
}

func TestExecute_monitorAndAccountProtection(t *testing.T) {
	e := newExecutor(t, effector.Config{}, nil, nil)

	res := e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindMonitor,
		Params: map[string]any{"duration": "24h", "interval": "5m"},
	})
	if res.Status != plan.StatusSuccess || !strings.Contains(res.Message, "24h") {
		t.Errorf("monitor: %q / %q", res.Status, res.Message)
	}

	res = e.Execute(ctx, plan.ActionSpec{Kind: plan.KindAccountProtection, Params: map[string]any{}})
	if res.Status != plan.StatusSuccess {
		t.Errorf("accountProtection: got %q, want success", res.Status)
	}
}

func TestExecute_defenseActionDispatch(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	e := newExecutor(t, effector.Config{}, g, nil)

	res := e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindDefenseAction,
		Params: map[string]any{"action": "blockIP", "ip": "198.51.100.1"},
	})
	if res.Status != plan.StatusSuccess {
		t.Fatalf("defenseAction blockIP: %q / %q", res.Status, res.Message)
	}
	if !g.IsBlocked("198.51.100.1") {
		t.Error("defense blockIP should block through the guard")
	}

	res = e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindDefenseAction,
		Params: map[string]any{"action": "blockIP"},
	})
	if res.Status != plan.StatusSkipped {
		t.Errorf("defenseAction blockIP without ip: got %q, want skipped", res.Status)
	}

	res = e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindDefenseAction,
		Params: map[string]any{"action": "implementMalwareProtection"},
	})
	if res.Status != plan.StatusSuccess {
		t.Errorf("defenseAction malware: got %q", res.Status)
	}

	res = e.Execute(ctx, plan.ActionSpec{
		Kind:   plan.KindDefenseAction,
		Params: map[string]any{"action": "selfDestruct"},
	})
	if res.Status != plan.StatusSkipped {
		t.Errorf("unknown defense action: got %q, want skipped", res.Status)
	}
}

func TestExecute_adviceActionsInformational(t *testing.T) {
	e := newExecutor(t, effector.Config{}, nil, nil)

	for _, kind := range []plan.ActionKind{plan.KindRecommendations, plan.KindResponsePlan} {
		res := e.Execute(ctx, plan.ActionSpec{Kind: kind, Params: map[string]any{}})
		if res.Status != plan.StatusInformational {
			t.Errorf("%s: got %q, want informational", kind, res.Status)
		}
	}
}

func TestExecute_unknownKindSkipped(t *testing.T) {
	e := newExecutor(t, effector.Config{}, nil, nil)

	res := e.Execute(ctx, plan.ActionSpec{Kind: plan.ActionKind("teleport")})
	if res.Status != plan.StatusSkipped {
		t.Errorf("unknown kind: got %q, want skipped", res.Status)
	}
}

func TestFirewallWebhook_blockPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fw := effector.NewFirewallWebhook(srv.URL, time.Second, zap.NewNop())
	if err := fw.BlockIP(ctx, "203.0.113.8"); err != nil {
		t.Fatal(err)
	}
	if got["action"] != "block" || got["ip"] != "203.0.113.8" {
		t.Errorf("block payload: %v", got)
	}
}
