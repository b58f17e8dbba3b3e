package fetch

import (
	"context"
	"math/rand/v2"
	"time"
)

// BackoffDelay returns the wait before retry number attempt (1-based):
// base * 2^(attempt-1) + jitter. It is pure; callers draw jitter themselves.
func BackoffDelay(attempt int, base, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base<<(attempt-1) + jitter
}

// Backoff draws jitter uniformly from [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Jitter time.Duration
}

// Delay returns the wait before retry number attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	var j time.Duration
	if b.Jitter > 0 {
		j = time.Duration(rand.Int64N(int64(b.Jitter)))
	}
	return BackoffDelay(attempt, b.Base, j)
}

// Sleeper waits between attempts, allowing tests to skip real time.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper uses a timer for production code.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
