// Package defense owns the shared mitigation state: the set of IPs whose
// blocks have been confirmed applied and the table of active firewall
// rules. All mutation goes through the Guard so concurrent mitigation
// runs cannot double-apply the same countermeasure.
package defense

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FirewallCaller performs external firewall changes on behalf of the
// Guard. A nil caller degrades the Guard to local bookkeeping only.
type FirewallCaller interface {
	BlockIP(ctx context.Context, ip string) error
	ApplyRule(ctx context.Context, rule Rule) error
}

// Rule describes an active firewall rule applied by a defensive measure.
type Rule struct {
	Name      string    `json:"name"`
	Direction string    `json:"direction"`
	Protocol  string    `json:"protocol"`
	Ports     []int     `json:"ports,omitempty"`
	Rate      string    `json:"rate,omitempty"`
	AppliedAt time.Time `json:"applied_at"`
}

// blockedIPsKey is the Redis set holding confirmed-blocked IPs when a
// Redis client is configured, so multiple instances share one view.
const blockedIPsKey = "aegis:blocked_ips"

// inflight tracks an external block call in progress for one IP, so a
// concurrent caller for the same IP waits instead of re-invoking.
type inflight struct {
	done chan struct{}
	err  error
}

// Guard is the concurrency-safe owner of blocked IPs and firewall rules.
// The set records blocks that were confirmed applied, not attempted: a
// failed external call leaves the IP out so a later run can retry.
type Guard struct {
	mu      sync.Mutex
	blocked map[string]time.Time
	pending map[string]*inflight
	rules   map[string]Rule

	fw     FirewallCaller
	rdb    *redis.Client
	clock  func() time.Time
	logger *zap.Logger
}

// NewGuard creates a Guard. fw and rdb are both optional; without them
// the Guard keeps in-process state only.
func NewGuard(fw FirewallCaller, rdb *redis.Client, logger *zap.Logger) *Guard {
	return &Guard{
		blocked: make(map[string]time.Time),
		pending: make(map[string]*inflight),
		rules:   make(map[string]Rule),
		fw:      fw,
		rdb:     rdb,
		clock:   time.Now,
		logger:  logger,
	}
}

// SetClock overrides the clock used to stamp blocks and rules. Intended
// for tests.
func (g *Guard) SetClock(now func() time.Time) {
	if now != nil {
		g.clock = now
	}
}

// BlockIP blocks ip at most once. It returns applied=true when this call
// performed the block, and applied=false when the IP was already blocked
// or another in-flight call won the race. The external firewall call runs
// outside the critical section; only one call is made per IP regardless
// of concurrency, and the IP joins the set only after the call succeeds.
func (g *Guard) BlockIP(ctx context.Context, ip string) (applied bool, err error) {
	if ip == "" {
		return false, fmt.Errorf("block ip: empty address")
	}

	g.mu.Lock()
	if _, ok := g.blocked[ip]; ok {
		g.mu.Unlock()
		return false, nil
	}
	if c, ok := g.pending[ip]; ok {
		g.mu.Unlock()
		<-c.done
		return false, c.err
	}
	call := &inflight{done: make(chan struct{})}
	g.pending[ip] = call
	g.mu.Unlock()

	if g.alreadyBlockedShared(ctx, ip) {
		g.finish(ip, call, nil, false)
		return false, nil
	}

	if g.fw != nil {
		err = g.fw.BlockIP(ctx, ip)
	}
	if err != nil {
		g.finish(ip, call, fmt.Errorf("firewall block %s: %w", ip, err), false)
		return false, call.err
	}

	g.finish(ip, call, nil, true)
	g.markBlockedShared(ctx, ip)
	return true, nil
}

// finish completes an in-flight block: records the outcome, releases
// waiters, and on success inserts the IP into the confirmed set.
func (g *Guard) finish(ip string, call *inflight, err error, confirmed bool) {
	g.mu.Lock()
	delete(g.pending, ip)
	if err == nil && confirmed {
		g.blocked[ip] = g.clock().UTC()
	}
	g.mu.Unlock()
	call.err = err
	close(call.done)
}

// alreadyBlockedShared consults the shared Redis set when configured.
// Redis errors degrade to "not blocked" so the local path still works.
func (g *Guard) alreadyBlockedShared(ctx context.Context, ip string) bool {
	if g.rdb == nil {
		return false
	}
	member, err := g.rdb.SIsMember(ctx, blockedIPsKey, ip).Result()
	if err != nil {
		g.logger.Warn("redis blocked-ip lookup failed, using local state",
			zap.String("ip", ip), zap.Error(err))
		return false
	}
	if member {
		g.mu.Lock()
		g.blocked[ip] = g.clock().UTC()
		g.mu.Unlock()
	}
	return member
}

// markBlockedShared mirrors a confirmed block into Redis, best effort.
func (g *Guard) markBlockedShared(ctx context.Context, ip string) {
	if g.rdb == nil {
		return
	}
	if err := g.rdb.SAdd(ctx, blockedIPsKey, ip).Err(); err != nil {
		g.logger.Warn("redis blocked-ip publish failed",
			zap.String("ip", ip), zap.Error(err))
	}
}

// IsBlocked reports whether ip is in the confirmed-blocked set.
func (g *Guard) IsBlocked(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blocked[ip]
	return ok
}

// BlockedIPs returns the confirmed-blocked set, sorted for stable output.
func (g *Guard) BlockedIPs() []string {
	g.mu.Lock()
	ips := make([]string, 0, len(g.blocked))
	for ip := range g.blocked {
		ips = append(ips, ip)
	}
	g.mu.Unlock()
	sort.Strings(ips)
	return ips
}

// Rules returns the active firewall rule table, sorted by name.
func (g *Guard) Rules() []Rule {
	g.mu.Lock()
	rules := make([]Rule, 0, len(g.rules))
	for _, r := range g.rules {
		rules = append(rules, r)
	}
	g.mu.Unlock()
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// StaleRules returns the rules applied longer than maxAge ago, sorted
// by name. The server's periodic sweep logs these so emergency rules do
// not quietly outlive the threat they answered.
func (g *Guard) StaleRules(maxAge time.Duration) []Rule {
	cutoff := g.clock().UTC().Add(-maxAge)
	g.mu.Lock()
	var stale []Rule
	for _, r := range g.rules {
		if r.AppliedAt.Before(cutoff) {
			stale = append(stale, r)
		}
	}
	g.mu.Unlock()
	sort.Slice(stale, func(i, j int) bool { return stale[i].Name < stale[j].Name })
	return stale
}

// RateLimitIP records a per-IP rate limit rule and pushes it to the
// firewall when one is configured. The external call is best effort; the
// local rule stands either way.
func (g *Guard) RateLimitIP(ctx context.Context, ip, rate string) error {
	rule := Rule{
		Name:      "ratelimit_" + ip,
		Direction: "inbound",
		Protocol:  "tcp",
		Rate:      rate,
		AppliedAt: g.clock().UTC(),
	}
	g.applyRules(ctx, rule)
	return nil
}

// ImplementDDoSProtection applies rate-limit rules on public service ports.
func (g *Guard) ImplementDDoSProtection(ctx context.Context) error {
	g.applyRules(ctx,
		Rule{
			Name:      "ddos_protection_tcp",
			Direction: "inbound",
			Protocol:  "tcp",
			Ports:     []int{80, 443},
			Rate:      "1000/second",
			AppliedAt: g.clock().UTC(),
		},
		Rule{
			Name:      "ddos_protection_udp",
			Direction: "inbound",
			Protocol:  "udp",
			Ports:     []int{53, 123},
			Rate:      "500/second",
			AppliedAt: g.clock().UTC(),
		},
	)
	return nil
}

// ImplementBruteForceProtection rate-limits remote access ports.
func (g *Guard) ImplementBruteForceProtection(ctx context.Context) error {
	g.applyRules(ctx, Rule{
		Name:      "brute_force_protection",
		Direction: "inbound",
		Protocol:  "tcp",
		Ports:     []int{22, 3389},
		Rate:      "10/minute",
		AppliedAt: g.clock().UTC(),
	})
	return nil
}

// ImplementMalwareProtection blocks SMB/NetBIOS ports in both directions.
func (g *Guard) ImplementMalwareProtection(ctx context.Context) error {
	g.applyRules(ctx,
		Rule{
			Name:      "malware_protection_inbound",
			Direction: "inbound",
			Protocol:  "tcp",
			Ports:     []int{445, 139},
			AppliedAt: g.clock().UTC(),
		},
		Rule{
			Name:      "malware_protection_outbound",
			Direction: "outbound",
			Protocol:  "tcp",
			Ports:     []int{445, 139},
			AppliedAt: g.clock().UTC(),
		},
	)
	return nil
}

// applyRules records rules in the table and forwards them to the
// firewall caller when configured. Forwarding failures are logged only.
func (g *Guard) applyRules(ctx context.Context, rules ...Rule) {
	g.mu.Lock()
	for _, r := range rules {
		g.rules[r.Name] = r
	}
	g.mu.Unlock()

	if g.fw == nil {
		return
	}
	for _, r := range rules {
		if err := g.fw.ApplyRule(ctx, r); err != nil {
			g.logger.Warn("firewall rule push failed",
				zap.String("rule", r.Name), zap.Error(err))
		}
	}
}
