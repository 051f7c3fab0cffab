// Package ratelimit implements sliding-window admission control for outbound
// requests. A Limiter decides whether one more request may be sent right now;
// a Gate owns the active Limiter, lets callers block until admitted, and can
// swap the Limiter at runtime.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Defaults applied when no explicit configuration is given.
const (
	// DefaultRate is the number of admissions allowed per DefaultPeriod.
	DefaultRate = 100

	// DefaultPeriod is the length of the trailing admission window.
	DefaultPeriod = 1000 * time.Millisecond
)

var (
	// ErrInvalidRate is returned when the rate is negative.
	ErrInvalidRate = errors.New("ratelimit: rate must not be negative")

	// ErrInvalidPeriod is returned when the period is not positive.
	ErrInvalidPeriod = errors.New("ratelimit: period must be positive")
)

// Limiter decides whether one more operation may proceed now.
// Implementations must be safe for concurrent use, and a granted admission
// must be recorded atomically with the check that granted it.
type Limiter interface {
	Admit(ctx context.Context) (bool, error)
}

// Config holds the window settings of a limiter.
type Config struct {
	// Rate is the maximum number of admissions inside one Period.
	// A rate of 0 denies every check; callers waiting on such a limiter
	// block until their context ends.
	Rate int

	// Period is the length of the trailing window.
	Period time.Duration
}

// DefaultConfig returns 100 admissions per second.
func DefaultConfig() Config {
	return Config{
		Rate:   DefaultRate,
		Period: DefaultPeriod,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Rate < 0 {
		return ErrInvalidRate
	}
	if c.Period <= 0 {
		return ErrInvalidPeriod
	}
	return nil
}

// SlidingWindow is an in-process sliding-log limiter. It keeps the
// timestamps of admissions granted in the trailing period, oldest first.
type SlidingWindow struct {
	mu     sync.Mutex
	cfg    Config
	stamps []time.Time
	now    func() time.Time
}

// NewSlidingWindow creates an empty window.
func NewSlidingWindow(cfg Config) (*SlidingWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SlidingWindow{
		cfg: cfg,
		now: time.Now,
	}, nil
}

// Admit grants an admission iff fewer than Rate admissions were recorded
// in the last Period, and records it when granted.
func (w *SlidingWindow) Admit(_ context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expire(now)

	if len(w.stamps) >= w.cfg.Rate {
		return false, nil
	}
	w.stamps = append(w.stamps, now)
	return true, nil
}

// InWindow returns the number of admissions currently counted.
func (w *SlidingWindow) InWindow() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expire(w.now())
	return len(w.stamps)
}

// Config returns the window settings.
func (w *SlidingWindow) Config() Config {
	return w.cfg
}

// expire drops timestamps at or before now-period. Callers hold w.mu.
func (w *SlidingWindow) expire(now time.Time) {
	cutoff := now.Add(-w.cfg.Period)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	if i == len(w.stamps) {
		// reuse the backing array once the window drains
		w.stamps = w.stamps[:0]
		return
	}
	w.stamps = w.stamps[i:]
}
