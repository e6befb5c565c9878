package effector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aegis-secops/aegis/internal/defense"
	"github.com/aegis-secops/aegis/internal/notify"
	"github.com/aegis-secops/aegis/internal/plan"
	"go.uber.org/zap"
)

// Config holds Executor construction parameters. Zero durations and
// counts fall back to defaults.
type Config struct {
	Endpoints     Endpoints
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Executor runs one handler per action kind. Handlers are fault
// isolated: a panic or failure inside one handler is captured in that
// action's result and never prevents subsequent actions from running.
type Executor struct {
	guard    *defense.Guard
	notifier *notify.Notifier
	eps      Endpoints
	client   *webhookClient
	logger   *zap.Logger
}

// NewExecutor creates an Executor. guard and notifier are each optional;
// actions needing an absent collaborator fall back to simulated or
// skipped outcomes.
func NewExecutor(cfg Config, guard *defense.Guard, notifier *notify.Notifier, logger *zap.Logger) *Executor {
	return &Executor{
		guard:    guard,
		notifier: notifier,
		eps:      cfg.Endpoints,
		client:   newWebhookClient(cfg.Timeout, cfg.RetryAttempts, cfg.RetryBackoff, logger),
		logger:   logger,
	}
}

// Execute runs a single action and returns its result. It never panics:
// a handler panic is converted into a result with status error.
func (e *Executor) Execute(ctx context.Context, action plan.ActionSpec) (result plan.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("action handler panicked",
				zap.String("kind", string(action.Kind)),
				zap.Any("panic", r),
			)
			result = e.result(action, plan.StatusError, fmt.Sprintf("action %s panicked: %v", action.Kind, r))
		}
	}()

	switch action.Kind {
	case plan.KindLog:
		e.logger.Info("threat logged for audit", zap.Any("params", action.Params))
		return e.result(action, plan.StatusSuccess, "Threat logged successfully")

	case plan.KindBlock:
		return e.executeBlock(ctx, action)

	case plan.KindNotify:
		return e.executeNotify(ctx, action)

	case plan.KindMonitor:
		return e.result(action, plan.StatusSuccess, monitorMessage(action))

	case plan.KindRateLimit:
		return e.executeRateLimit(ctx, action)

	case plan.KindWAF:
		return e.executeWAF(ctx, action)

	case plan.KindDDoS:
		return e.executeDDoS(ctx, action)

	case plan.KindEmailSecurity:
		return e.executeEmailSecurity(ctx, action)

	case plan.KindAccountProtection:
		return e.result(action, plan.StatusSuccess, "Account protection measures activated")

	case plan.KindDefenseAction:
		return e.executeDefenseAction(ctx, action)

	case plan.KindRecommendations, plan.KindResponsePlan:
		return e.result(action, plan.StatusInformational, "Information recorded for manual review")

	default:
		e.logger.Warn("unknown mitigation action kind", zap.String("kind", string(action.Kind)))
		return e.result(action, plan.StatusSkipped, "Unknown action type")
	}
}

// executeBlock blocks the threat's source IP through the Guard. The
// Guard owns the external firewall call and its at-most-once semantics,
// so an already-blocked IP is a success without a second call.
func (e *Executor) executeBlock(ctx context.Context, action plan.ActionSpec) plan.ActionResult {
	ip, ok := action.StringParam("ip")
	if !ok {
		return e.result(action, plan.StatusSkipped, "No IP address provided for blocking")
	}
	if e.guard == nil {
		return e.result(action, plan.StatusSimulated, fmt.Sprintf("IP %s block simulated (defense guard not available)", ip))
	}

	applied, err := e.guard.BlockIP(ctx, ip)
	if err != nil {
		return e.result(action, plan.StatusError, fmt.Sprintf("IP %s block failed: %v", ip, err))
	}
	if !applied {
		return e.result(action, plan.StatusSuccess, fmt.Sprintf("IP %s already blocked, no action needed", ip))
	}
	return e.result(action, plan.StatusSuccess, fmt.Sprintf("IP %s blocked", ip))
}

// executeRateLimit records a rate-limit rule for the source IP. The rule
// is local state; pushing it to a configured firewall is best effort.
func (e *Executor) executeRateLimit(ctx context.Context, action plan.ActionSpec) plan.ActionResult {
	ip, ok := action.StringParam("ip")
	if !ok {
		return e.result(action, plan.StatusSkipped, "No IP address provided for rate limiting")
	}
	rate, _ := action.StringParam("rate")
	if rate == "" {
		rate = "10/minute"
	}
	if e.guard == nil {
		return e.result(action, plan.StatusSimulated, fmt.Sprintf("Rate limiting for IP %s at %s simulated (defense guard not available)", ip, rate))
	}

	if err := e.guard.RateLimitIP(ctx, ip, rate); err != nil {
		return e.result(action, plan.StatusError, fmt.Sprintf("Rate limiting for IP %s failed: %v", ip, err))
	}
	return e.result(action, plan.StatusSuccess, fmt.Sprintf("Rate limiting applied for IP %s at %s", ip, rate))
}

// executeWAF pushes a rule update to the WAF endpoint. No local side
// effect exists, so unconfigured is simulated and a failed call is partial.
func (e *Executor) executeWAF(ctx context.Context, action plan.ActionSpec) plan.ActionResult {
	pattern, _ := action.StringParam("pattern")
	if e.eps.WAF == "" {
		return e.result(action, plan.StatusSimulated,
			fmt.Sprintf("WAF rules update simulated for pattern %q (webhook not configured)", pattern))
	}

	err := e.client.post(ctx, e.eps.WAF, map[string]any{
		"action":    "updateRules",
		"pattern":   pattern,
		"reason":    "Automated threat mitigation",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return e.result(action, plan.StatusPartial, fmt.Sprintf("WAF webhook failed: %v", err))
	}
	return e.result(action, plan.StatusSuccess, "WAF rules updated successfully")
}

// executeDDoS activates DDoS protection through the security gateway.
// When the gateway is configured the Guard's local rules are applied
// first, so a failed gateway call leaves a partial result.
func (e *Executor) executeDDoS(ctx context.Context, action plan.ActionSpec) plan.ActionResult {
	mode, _ := action.StringParam("mode")
	if mode == "" {
		mode = "standard"
	}
	if e.eps.SecurityGateway == "" {
		return e.result(action, plan.StatusSimulated,
			fmt.Sprintf("DDoS protection in %s mode simulated (webhook not configured)", mode))
	}

	if e.guard != nil {
		if err := e.guard.ImplementDDoSProtection(ctx); err != nil {
			e.logger.Warn("local DDoS rules failed", zap.Error(err))
		}
	}

	err := e.client.post(ctx, e.eps.SecurityGateway, map[string]any{
		"action":    "ddos_protection",
		"mode":      mode,
		"reason":    "Automated threat mitigation",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return e.result(action, plan.StatusPartial,
			fmt.Sprintf("Local DDoS rules applied but security gateway webhook failed: %v", err))
	}
	return e.result(action, plan.StatusSuccess, fmt.Sprintf("DDoS protection activated in %s mode", mode))
}

// executeEmailSecurity pushes sender/domain blocking to the email
// security gateway. There is no local side effect, so a failed call is
// an error.
func (e *Executor) executeEmailSecurity(ctx context.Context, action plan.ActionSpec) plan.ActionResult {
	sender, _ := action.StringParam("sender")
	domain, _ := action.StringParam("domain")
	emailAction, _ := action.StringParam("action")

	if e.eps.EmailSecurity == "" {
		target := sender
		if target == "" {
			target = domain
		}
		return e.result(action, plan.StatusSimulated,
			fmt.Sprintf("Email security update for %q simulated (webhook not configured)", target))
	}

	err := e.client.post(ctx, e.eps.EmailSecurity, map[string]any{
		"action":    emailAction,
		"sender":    sender,
		"domain":    domain,
		"reason":    "Automated threat mitigation",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return e.result(action, plan.StatusError, fmt.Sprintf("Email security webhook failed: %v", err))
	}
	return e.result(action, plan.StatusSuccess, "Email security rules updated successfully")
}

// executeNotify fans the alert out through the Notifier. Delivery
// failures are the Notifier's concern and never fail the action.
func (e *Executor) executeNotify(ctx context.Context, action plan.ActionSpec) plan.ActionResult {
	if e.notifier == nil {
		return e.result(action, plan.StatusSimulated, "Notification simulated (notifier not configured)")
	}

	urgency, _ := action.StringParam("urgency")
	recipients := recipientGroups(action)
	threatName, _ := action.StringParam("threat")
	if threatName == "" {
		threatName = "security threat"
	}
	score, _ := action.Params["risk_score"].(float64)

	e.notifier.Alert(ctx, threatName, score, urgency, recipients)
	return e.result(action, plan.StatusSuccess,
		fmt.Sprintf("Notification sent to %s", strings.Join(recipients, ", ")))
}

// executeDefenseAction dispatches a named defensive sub-operation on
// the Guard.
func (e *Executor) executeDefenseAction(ctx context.Context, action plan.ActionSpec) plan.ActionResult {
	name, _ := action.StringParam("action")
	if e.guard == nil {
		return e.result(action, plan.StatusSimulated,
			fmt.Sprintf("Defense action %s simulated (defense guard not available)", name))
	}

	switch name {
	case "blockIP":
		ip, ok := action.StringParam("ip")
		if !ok {
			return e.result(action, plan.StatusSkipped, "Defense action blockIP requires an IP address")
		}
		if _, err := e.guard.BlockIP(ctx, ip); err != nil {
			return e.result(action, plan.StatusError, fmt.Sprintf("Defense action blockIP failed: %v", err))
		}
		return e.result(action, plan.StatusSuccess, fmt.Sprintf("Defense guard blocked IP %s", ip))

	case "implementDDoSProtection":
		if err := e.guard.ImplementDDoSProtection(ctx); err != nil {
			return e.result(action, plan.StatusError, fmt.Sprintf("DDoS protection failed: %v", err))
		}
		return e.result(action, plan.StatusSuccess, "Defense guard implemented DDoS protection")

	case "implementBruteForceProtection":
		if err := e.guard.ImplementBruteForceProtection(ctx); err != nil {
			return e.result(action, plan.StatusError, fmt.Sprintf("Brute force protection failed: %v", err))
		}
		return e.result(action, plan.StatusSuccess, "Defense guard implemented brute force protection")

	case "implementMalwareProtection":
		if err := e.guard.ImplementMalwareProtection(ctx); err != nil {
			return e.result(action, plan.StatusError, fmt.Sprintf("Malware protection failed: %v", err))
		}
		return e.result(action, plan.StatusSuccess, "Defense guard implemented malware protection")

	default:
		return e.result(action, plan.StatusSkipped,
			fmt.Sprintf("Unknown defense action: %s", name))
	}
}

func (e *Executor) result(action plan.ActionSpec, status plan.Status, message string) plan.ActionResult {
	return plan.ActionResult{
		Action:    action,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// monitorMessage renders the monitoring window from the action params.
func monitorMessage(action plan.ActionSpec) string {
	duration, _ := action.StringParam("duration")
	interval, _ := action.StringParam("interval")
	if duration == "" {
		return "Monitoring configured"
	}
	return fmt.Sprintf("Monitoring configured for %s at %s intervals", duration, interval)
}

// recipientGroups extracts the notify audience, tolerating both the
// planner's []string and the []any produced by a JSON round trip.
func recipientGroups(action plan.ActionSpec) []string {
	switch v := action.Params["recipients"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
