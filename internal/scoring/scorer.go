// Package scoring computes time-decayed risk scores for detected threats
// and classifies scores into discrete severity tiers. Scoring is pure:
// the same inputs always produce the same score for a fixed clock.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidInput is returned when scoring inputs are outside their valid
// domain. It is the only scorer failure surfaced to callers.
var ErrInvalidInput = errors.New("invalid scoring input")

// Config holds the scoring policy knobs. Zero values fall back to defaults.
type Config struct {
	// DecayRate is the per-day reduction of the decay factor (default 0.05).
	DecayRate float64

	// MinDecay is the floor of the decay factor (default 0.1), so a stale
	// detection never decays to zero.
	MinDecay float64
}

// Scorer computes likelihood × impact risk scores with time-based decay.
type Scorer struct {
	decayRate float64
	minDecay  float64
	now       func() time.Time
}

// NewScorer creates a Scorer from cfg, applying defaults for zero fields.
func NewScorer(cfg Config) *Scorer {
	if cfg.DecayRate == 0 {
		cfg.DecayRate = 0.05
	}
	if cfg.MinDecay == 0 {
		cfg.MinDecay = 0.1
	}
	return &Scorer{
		decayRate: cfg.DecayRate,
		minDecay:  cfg.MinDecay,
		now:       time.Now,
	}
}

// SetClock overrides the clock used for decay computation. Intended for tests.
func (s *Scorer) SetClock(now func() time.Time) {
	s.now = now
}

// Score computes the time-weighted risk score:
//
//	days  = max(0, floor((now − lastSeen) / 24h))
//	decay = max(minDecay, 1 − decayRate × days)
//	score = round2(likelihood × impact × decay)
//
// likelihood and impact must be finite numbers in [1, 5] and lastSeen must
// be a valid (non-zero) instant; anything else returns ErrInvalidInput.
func (s *Scorer) Score(likelihood, impact float64, lastSeen time.Time) (float64, error) {
	if !inRange(likelihood) {
		return 0, fmt.Errorf("%w: likelihood must be a number between 1 and 5, got %v", ErrInvalidInput, likelihood)
	}
	if !inRange(impact) {
		return 0, fmt.Errorf("%w: impact must be a number between 1 and 5, got %v", ErrInvalidInput, impact)
	}
	if lastSeen.IsZero() {
		return 0, fmt.Errorf("%w: lastSeen must be a valid timestamp", ErrInvalidInput)
	}

	elapsed := s.now().Sub(lastSeen)
	days := math.Floor(elapsed.Hours() / 24)
	if days < 0 {
		days = 0
	}

	decay := 1 - s.decayRate*days
	if decay < s.minDecay {
		decay = s.minDecay
	}

	return round2(likelihood * impact * decay), nil
}

// inRange reports whether v is a finite number in [1, 5].
func inRange(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 1 && v <= 5
}

// round2 rounds v to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
