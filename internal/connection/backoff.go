package connection

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Backoff configures retries with exponential delay and jitter.
type Backoff struct {
	Min         time.Duration // First delay
	Max         time.Duration // Delay cap
	Factor      float64       // Growth per attempt
	Jitter      float64       // Randomized fraction of each delay (1 = full jitter)
	MaxAttempts int           // 0 = unbounded
	MaxElapsed  time.Duration // 0 = unbounded
}

// DefaultBackoff returns full-jitter defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:         500 * time.Millisecond,
		Max:         10 * time.Second,
		Factor:      2.0,
		Jitter:      1.0,
		MaxAttempts: 5,
		MaxElapsed:  30 * time.Second,
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	lo := b.Min
	if lo <= 0 {
		lo = 100 * time.Millisecond
	}
	hi := b.Max
	if hi <= 0 {
		hi = 10 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := lo
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > hi {
			wait = hi
			break
		}
		wait = next
	}

	jitter := b.Jitter
	if jitter <= 0 {
		return wait
	}
	if jitter > 1 {
		jitter = 1
	}
	fixed := float64(wait) * (1 - jitter)
	return time.Duration(fixed + rand.Float64()*float64(wait)*jitter)
}

// WithBackoff calls op until it succeeds, the attempt or elapsed-time bound is
// reached, or ctx is done. The last error is returned wrapped.
func WithBackoff(ctx context.Context, b Backoff, op func(ctx context.Context) error) error {
	start := time.Now()

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}

		wait := b.Delay(attempt)
		if b.MaxElapsed > 0 && time.Since(start)+wait > b.MaxElapsed {
			return fmt.Errorf("gave up after %v: %w", time.Since(start).Round(time.Millisecond), err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
}
