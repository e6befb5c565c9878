// Package engine orchestrates a mitigation run: classify the threat,
// plan the response, execute each action in planner order, and record
// the outcome in the ledger. Runs are safe to trigger concurrently; the
// only cross-run shared state lives behind the defense guard and the
// ledger, which synchronise internally.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aegis-secops/aegis/internal/effector"
	"github.com/aegis-secops/aegis/internal/ledger"
	"github.com/aegis-secops/aegis/internal/plan"
	"github.com/aegis-secops/aegis/internal/scoring"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidThreat is returned when a submitted threat cannot be
// planned. It is the only hard failure of a mitigation run; everything
// downstream of planning is captured per action in the results.
var ErrInvalidThreat = errors.New("invalid threat")

// ActionMetricsRecorder is an optional callback recording each executed
// action's outcome.
type ActionMetricsRecorder func(kind plan.ActionKind, status plan.Status)

// RunMetricsRecorder is an optional callback recording each completed run.
type RunMetricsRecorder func(severity scoring.Severity)

// CompletionFunc is an optional callback invoked with every completed
// record, e.g. to feed a live event stream.
type CompletionFunc func(r *ledger.Record)

// Engine runs automated threat mitigation.
type Engine struct {
	planner    *plan.Planner
	thresholds scoring.Thresholds
	exec       *effector.Executor
	ledger     *ledger.Ledger
	logger     *zap.Logger

	onAction   ActionMetricsRecorder
	onRun      RunMetricsRecorder
	onComplete CompletionFunc
}

// New creates an Engine.
func New(planner *plan.Planner, thresholds scoring.Thresholds, exec *effector.Executor, led *ledger.Ledger, logger *zap.Logger) *Engine {
	return &Engine{
		planner:    planner,
		thresholds: thresholds,
		exec:       exec,
		ledger:     led,
		logger:     logger,
	}
}

// SetActionMetricsRecorder configures the per-action metrics callback.
func (e *Engine) SetActionMetricsRecorder(fn ActionMetricsRecorder) {
	e.onAction = fn
}

// SetRunMetricsRecorder configures the per-run metrics callback.
func (e *Engine) SetRunMetricsRecorder(fn RunMetricsRecorder) {
	e.onRun = fn
}

// SetCompletionFunc configures the completed-record callback.
func (e *Engine) SetCompletionFunc(fn CompletionFunc) {
	e.onComplete = fn
}

// Mitigate runs the full mitigation flow for t and returns the recorded
// run. Actions execute strictly in planner order; an individual action
// failure is captured in its result and never aborts the run. Only a
// threat that cannot be planned at all fails hard.
func (e *Engine) Mitigate(ctx context.Context, t plan.Threat) (*ledger.Record, error) {
	if t.Type == "" {
		return nil, fmt.Errorf("%w: threat type is required", ErrInvalidThreat)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	severity := e.thresholds.Classify(t.RiskScore)

	e.logger.Info("starting automated mitigation",
		zap.String("threat_id", t.ID),
		zap.String("threat_type", t.Type),
		zap.Float64("risk_score", t.RiskScore),
		zap.String("severity", string(severity)),
	)

	actions := e.planner.Plan(t, severity)

	results := make([]plan.ActionResult, 0, len(actions))
	for _, action := range actions {
		res := e.exec.Execute(ctx, action)
		results = append(results, res)

		if res.Status == plan.StatusError {
			e.logger.Warn("mitigation action degraded",
				zap.String("threat_id", t.ID),
				zap.String("kind", string(action.Kind)),
				zap.String("message", res.Message),
			)
		}
		if e.onAction != nil {
			e.onAction(action.Kind, res.Status)
		}
	}

	record := &ledger.Record{
		ThreatID:   t.ID,
		ThreatType: t.Type,
		RiskScore:  t.RiskScore,
		Severity:   severity,
		Actions:    actions,
		Results:    results,
		Timestamp:  time.Now().UTC(),
		Status:     ledger.StatusCompleted,
	}
	e.ledger.Record(ctx, record)

	if e.onRun != nil {
		e.onRun(severity)
	}
	if e.onComplete != nil {
		e.onComplete(record)
	}

	e.logger.Info("mitigation completed",
		zap.String("threat_id", t.ID),
		zap.Int("actions", len(actions)),
	)
	return record, nil
}

// History exposes the ledger's filtered history.
func (e *Engine) History(ctx context.Context, f ledger.Filter) []*ledger.Record {
	return e.ledger.History(ctx, f)
}

// Effectiveness exposes the ledger's per-kind effectiveness summary.
func (e *Engine) Effectiveness(ctx context.Context) map[plan.ActionKind]ledger.Stats {
	return e.ledger.Effectiveness(ctx)
}
