// Package health probes the configured effector webhook endpoints so
// operators can see, before a run needs them, whether the firewall, WAF,
// gateway, and email security systems are reachable.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Target is one probed effector endpoint.
type Target struct {
	Name string
	URL  string
}

// Status is the last known state of one target.
type Status struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Healthy   bool      `json:"healthy"`
	FailCount int       `json:"fail_count"`
	CheckedAt time.Time `json:"checked_at"`
}

// DegradedFunc is an optional callback invoked when a target crosses the
// failure threshold.
type DegradedFunc func(ctx context.Context, target Target, failCount int)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Checker runs periodic effector endpoint health probes. Targets with an
// empty URL are skipped, matching the effectors' optional configuration.
type Checker struct {
	targets    []Target
	httpClient *http.Client
	cfg        Config

	mu         sync.Mutex
	failCounts map[string]int
	statuses   map[string]Status

	onDegraded DegradedFunc
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a Checker for the given targets.
func New(targets []Target, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	return &Checker{
		targets:    targets,
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout},
		cfg:        cfg,
		failCounts: make(map[string]int),
		statuses:   make(map[string]Status),
		logger:     logger,
	}
}

// SetDegradedFunc configures the threshold-crossing callback.
func (h *Checker) SetDegradedFunc(fn DegradedFunc) {
	h.onDegraded = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the probe loop until ctx is cancelled.
func (h *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, h.probeWindow())
			h.CheckAll(probeCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// probeWindow is the deadline for one round of probes: a second short of
// the check interval so rounds never overlap, but never less than the
// probe timeout — short intervals must not expire the context up front.
func (h *Checker) probeWindow() time.Duration {
	w := h.cfg.CheckInterval - time.Second
	if w < h.cfg.ProbeTimeout {
		w = h.cfg.ProbeTimeout
	}
	return w
}

// CheckAll probes every configured target once, concurrently.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range h.targets {
		if t.URL == "" {
			continue
		}
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()

			success := h.probe(ctx, target.URL)
			if h.onMetrics != nil {
				h.onMetrics(success)
			}

			h.mu.Lock()
			prevCount := h.failCounts[target.Name]
			if success {
				h.failCounts[target.Name] = 0
			} else {
				h.failCounts[target.Name]++
			}
			count := h.failCounts[target.Name]
			h.statuses[target.Name] = Status{
				Name:      target.Name,
				URL:       target.URL,
				Healthy:   success,
				FailCount: count,
				CheckedAt: time.Now().UTC(),
			}
			h.mu.Unlock()

			if success && prevCount >= h.cfg.FailThreshold {
				h.logger.Info("effector recovered", zap.String("effector", target.Name))
			} else if count == h.cfg.FailThreshold {
				h.logger.Warn("effector degraded",
					zap.String("effector", target.Name),
					zap.Int("fail_count", count),
				)
				if h.onDegraded != nil {
					h.onDegraded(ctx, target, count)
				}
			}
		}(t)
	}
	wg.Wait()
}

// Statuses returns the last known state of every probed target, sorted
// by name.
func (h *Checker) Statuses() []Status {
	h.mu.Lock()
	out := make([]Status, 0, len(h.statuses))
	for _, s := range h.statuses {
		out = append(out, s)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// probe attempts HEAD then GET, returning true on any 2xx response.
func (h *Checker) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := h.httpClient.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
	}

	// Fallback to GET.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err = h.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
