// File: internal/pacing/pacing.go
// Description: Randomized pacing between form actions. A pure function of
// configuration; the single asynchronous delay primitive used everywhere a
// human-like pause is wanted.

package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/veriform/veriform-cli/internal/config"
)

// Policy produces randomized, optionally-disabled pacing intervals.
type Policy struct {
	enabled   bool
	min       time.Duration
	max       time.Duration
	keystroke time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Policy from configuration.
func New(cfg config.DelaysConfig) *Policy {
	return &Policy{
		enabled:   cfg.Enabled,
		min:       cfg.Min,
		max:       cfg.Max,
		keystroke: cfg.Keystroke,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Interval returns the next pacing interval, uniformly distributed over the
// configured range, or zero when pacing is disabled.
func (p *Policy) Interval() time.Duration {
	if !p.enabled || p.max <= 0 {
		return 0
	}
	if p.max <= p.min {
		return p.min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min + time.Duration(p.rng.Int63n(int64(p.max-p.min)))
}

// Keystroke returns the inter-keystroke delay for character-by-character
// typing, or zero when pacing is disabled.
func (p *Policy) Keystroke() time.Duration {
	if !p.enabled {
		return 0
	}
	return p.keystroke
}

// Sleep pauses for one pacing interval, returning early with the context's
// error if it is canceled first.
func (p *Policy) Sleep(ctx context.Context) error {
	return SleepFor(ctx, p.Interval())
}

// SleepFor is a context-aware sleep.
func SleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
