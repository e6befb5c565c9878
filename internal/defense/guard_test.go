package defense_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aegis-secops/aegis/internal/defense"
	"go.uber.org/zap"
)

var ctx = context.Background()

// countingFirewall counts external calls and optionally fails them.
type countingFirewall struct {
	blockCalls int32
	ruleCalls  int32
	blockErr   error
}

func (f *countingFirewall) BlockIP(ctx context.Context, ip string) error {
	atomic.AddInt32(&f.blockCalls, 1)
	return f.blockErr
}

func (f *countingFirewall) ApplyRule(ctx context.Context, rule defense.Rule) error {
	atomic.AddInt32(&f.ruleCalls, 1)
	return nil
}

func TestBlockIP_firstCallApplies(t *testing.T) {
	fw := &countingFirewall{}
	g := defense.NewGuard(fw, nil, zap.NewNop())

	applied, err := g.BlockIP(ctx, "203.0.113.1")
	if err != nil {
		t.Fatal(err)
	}
	if !applied {
		t.Error("first BlockIP should report applied=true")
	}
	if !g.IsBlocked("203.0.113.1") {
		t.Error("IP should be in the blocked set after a successful block")
	}
	if n := atomic.LoadInt32(&fw.blockCalls); n != 1 {
		t.Errorf("expected 1 external call, got %d", n)
	}
}

func TestBlockIP_secondCallIsNoop(t *testing.T) {
	fw := &countingFirewall{}
	g := defense.NewGuard(fw, nil, zap.NewNop())

	if _, err := g.BlockIP(ctx, "203.0.113.2"); err != nil {
		t.Fatal(err)
	}
	applied, err := g.BlockIP(ctx, "203.0.113.2")
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("second BlockIP should report applied=false")
	}
	if n := atomic.LoadInt32(&fw.blockCalls); n != 1 {
		t.Errorf("expected 1 external call total, got %d", n)
	}
}

func TestBlockIP_concurrentCallsSingleExternalCall(t *testing.T) {
	fw := &countingFirewall{}
	g := defense.NewGuard(fw, nil, zap.NewNop())

	const workers = 32
	var (
		wg      sync.WaitGroup
		applied int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.BlockIP(ctx, "198.51.100.5")
			if err != nil {
				t.Error(err)
			}
			if ok {
				atomic.AddInt32(&applied, 1)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&fw.blockCalls); n != 1 {
		t.Errorf("expected exactly 1 external call under contention, got %d", n)
	}
	if applied != 1 {
		t.Errorf("expected exactly 1 caller to report applied=true, got %d", applied)
	}
	if !g.IsBlocked("198.51.100.5") {
		t.Error("IP should be blocked after concurrent calls")
	}
}

func TestBlockIP_failureLeavesIPUnblocked(t *testing.T) {
	fw := &countingFirewall{blockErr: errors.New("upstream down")}
	g := defense.NewGuard(fw, nil, zap.NewNop())

	applied, err := g.BlockIP(ctx, "203.0.113.3")
	if err == nil {
		t.Fatal("expected error from failed external call")
	}
	if applied {
		t.Error("failed block should not report applied")
	}
	if g.IsBlocked("203.0.113.3") {
		t.Error("failed block must leave the IP out of the set so a retry is possible")
	}

	// A retry after the upstream recovers succeeds.
	fw.blockErr = nil
	applied, err = g.BlockIP(ctx, "203.0.113.3")
	if err != nil || !applied {
		t.Errorf("retry after failure: applied=%v, err=%v", applied, err)
	}
}

func TestBlockIP_emptyAddress(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	if _, err := g.BlockIP(ctx, ""); err == nil {
		t.Error("expected error for empty address")
	}
}

func TestBlockIP_nilFirewallLocalOnly(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())

	applied, err := g.BlockIP(ctx, "192.0.2.1")
	if err != nil || !applied {
		t.Fatalf("local-only block: applied=%v, err=%v", applied, err)
	}
	if got := g.BlockedIPs(); len(got) != 1 || got[0] != "192.0.2.1" {
		t.Errorf("BlockedIPs(): got %v", got)
	}
}

func TestBlockedIPs_sorted(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	for _, ip := range []string{"10.0.0.3", "10.0.0.1", "10.0.0.2"} {
		if _, err := g.BlockIP(ctx, ip); err != nil {
			t.Fatal(err)
		}
	}

	got := g.BlockedIPs()
	want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("BlockedIPs(): got %v, want %v", got, want)
		}
	}
}

func TestRateLimitIP_recordsRule(t *testing.T) {
	fw := &countingFirewall{}
	g := defense.NewGuard(fw, nil, zap.NewNop())

	if err := g.RateLimitIP(ctx, "203.0.113.9", "10/minute"); err != nil {
		t.Fatal(err)
	}

	rules := g.Rules()
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	r := rules[0]
	if r.Name != "ratelimit_203.0.113.9" || r.Rate != "10/minute" || r.Direction != "inbound" {
		t.Errorf("unexpected rule: %+v", r)
	}
	if n := atomic.LoadInt32(&fw.ruleCalls); n != 1 {
		t.Errorf("expected 1 rule push, got %d", n)
	}
}

func TestImplementDDoSProtection_rules(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	if err := g.ImplementDDoSProtection(ctx); err != nil {
		t.Fatal(err)
	}

	rules := g.Rules()
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	// Sorted by name: tcp before udp.
	tcp, udp := rules[0], rules[1]
	if tcp.Protocol != "tcp" || len(tcp.Ports) != 2 || tcp.Ports[0] != 80 || tcp.Ports[1] != 443 || tcp.Rate != "1000/second" {
		t.Errorf("tcp rule: %+v", tcp)
	}
	if udp.Protocol != "udp" || udp.Ports[0] != 53 || udp.Ports[1] != 123 || udp.Rate != "500/second" {
		t.Errorf("udp rule: %+v", udp)
	}
}

func TestImplementBruteForceProtection_rule(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	if err := g.ImplementBruteForceProtection(ctx); err != nil {
		t.Fatal(err)
	}

	rules := g.Rules()
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	r := rules[0]
	if r.Ports[0] != 22 || r.Ports[1] != 3389 || r.Rate != "10/minute" {
		t.Errorf("brute force rule: %+v", r)
	}
}

func TestImplementMalwareProtection_bothDirections(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	if err := g.ImplementMalwareProtection(ctx); err != nil {
		t.Fatal(err)
	}

	rules := g.Rules()
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	directions := map[string]bool{}
	for _, r := range rules {
		directions[r.Direction] = true
		if r.Ports[0] != 445 || r.Ports[1] != 139 {
			t.Errorf("malware rule ports: %+v", r)
		}
	}
	if !directions["inbound"] || !directions["outbound"] {
		t.Errorf("expected inbound and outbound rules, got %v", directions)
	}
}

func TestApplyRules_idempotentByName(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())
	for i := 0; i < 3; i++ {
		if err := g.ImplementBruteForceProtection(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(g.Rules()); n != 1 {
		t.Errorf("repeated application should keep 1 rule, got %d", n)
	}
}

func TestStaleRules(t *testing.T) {
	g := defense.NewGuard(nil, nil, zap.NewNop())

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return base })
	if err := g.ImplementBruteForceProtection(ctx); err != nil {
		t.Fatal(err)
	}

	g.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	if err := g.ImplementDDoSProtection(ctx); err != nil {
		t.Fatal(err)
	}

	g.SetClock(func() time.Time { return base.Add(26 * time.Hour) })
	stale := g.StaleRules(24 * time.Hour)
	if len(stale) != 1 || stale[0].Name != "brute_force_protection" {
		t.Fatalf("stale rules: %+v", stale)
	}

	if got := g.StaleRules(time.Hour); len(got) != 3 {
		t.Errorf("expected all 3 rules stale, got %d", len(got))
	}
}
