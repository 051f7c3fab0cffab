package pagination

import (
	"context"
	"math/rand"
	"time"
)

// backoff produces jittered exponential delays between failed pages.
type backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	current    time.Duration
}

func newBackoff(cfg Config) *backoff {
	return &backoff{
		initial:    cfg.InitialBackoff,
		max:        cfg.MaxBackoff,
		multiplier: cfg.BackoffMultiplier,
		current:    cfg.InitialBackoff,
	}
}

// next returns the current delay with ±20% jitter and advances the base.
func (b *backoff) next() time.Duration {
	jittered := time.Duration(float64(b.current) * (0.8 + rand.Float64()*0.4))

	b.current = time.Duration(float64(b.current) * b.multiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return jittered
}

func (b *backoff) reset() {
	b.current = b.initial
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
