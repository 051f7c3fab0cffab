package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/webreq/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for admission control.
var (
	admissionsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "webreq_ratelimit_admissions_total",
		Help: "Admission checks by result (granted, denied, error)",
	}, []string{"result"})

	waitSeconds = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "webreq_ratelimit_wait_seconds",
		Help:    "Time spent waiting for an admission",
		Buckets: []float64{0, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	limiterSwapsTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "webreq_ratelimit_swaps_total",
		Help: "Number of times the active limiter was replaced",
	})
)

// DefaultPollInterval is the sleep between admission checks in Wait.
const DefaultPollInterval = 100 * time.Millisecond

// Gate owns the active Limiter. Every outbound request passes through the
// same Gate, and the Limiter behind it can be replaced while requests are
// waiting.
type Gate struct {
	mu      sync.RWMutex
	limiter Limiter

	// PollInterval is the fixed sleep between checks in Wait.
	// Set it before the Gate is shared.
	PollInterval time.Duration

	logger zerolog.Logger
}

// NewGate creates a gate around limiter.
func NewGate(limiter Limiter, logger zerolog.Logger) *Gate {
	if limiter == nil {
		panic("limiter cannot be nil")
	}
	return &Gate{
		limiter:      limiter,
		PollInterval: DefaultPollInterval,
		logger:       logger,
	}
}

// NewDefaultGate creates a gate around an in-process window with the
// default rate.
func NewDefaultGate(logger zerolog.Logger) *Gate {
	w, _ := NewSlidingWindow(DefaultConfig())
	return NewGate(w, logger)
}

// Limiter returns the active limiter.
func (g *Gate) Limiter() Limiter {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.limiter
}

// Swap installs limiter as the active limiter. Admissions already running
// on the previous limiter finish there; later checks use the new one.
func (g *Gate) Swap(limiter Limiter) {
	if limiter == nil {
		panic("limiter cannot be nil")
	}
	g.mu.Lock()
	g.limiter = limiter
	g.mu.Unlock()

	limiterSwapsTotal.Inc()
	g.logger.Info().Msg("Rate limiter replaced")
}

// SetRate replaces the active limiter with a fresh in-process window.
// Admission history is not carried over.
func (g *Gate) SetRate(rate int, period time.Duration) error {
	w, err := NewSlidingWindow(Config{Rate: rate, Period: period})
	if err != nil {
		return err
	}
	g.Swap(w)
	g.logger.Info().
		Int("rate", rate).
		Dur("period", period).
		Msg("Rate limit configured")
	return nil
}

// Admit performs a single admission check against the active limiter.
func (g *Gate) Admit(ctx context.Context) (bool, error) {
	allowed, err := g.Limiter().Admit(ctx)
	switch {
	case err != nil:
		admissionsTotal.WithLabelValues("error").Inc()
	case allowed:
		admissionsTotal.WithLabelValues("granted").Inc()
	default:
		admissionsTotal.WithLabelValues("denied").Inc()
	}
	return allowed, err
}

// Wait blocks until an admission is granted. It re-checks after a fixed
// PollInterval rather than computing the exact wait, so it only bounds the
// long-run rate. It returns early when ctx ends or the limiter fails.
func (g *Gate) Wait(ctx context.Context) error {
	start := time.Now()
	polls := 0

	for {
		allowed, err := g.Admit(ctx)
		if err != nil {
			g.logger.Error().Err(err).Msg("Rate limit check failed")
			return fmt.Errorf("rate limit check: %w", err)
		}
		if allowed {
			waitSeconds.Observe(time.Since(start).Seconds())
			if polls > 0 {
				g.logger.Debug().
					Int("polls", polls).
					Dur("waited", time.Since(start)).
					Msg("Admission granted after waiting")
			}
			return nil
		}

		polls++
		timer := time.NewTimer(g.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			g.logger.Warn().
				Int("polls", polls).
				Msg("Context cancelled while waiting for admission")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (g *Gate) pollInterval() time.Duration {
	if g.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return g.PollInterval
}
