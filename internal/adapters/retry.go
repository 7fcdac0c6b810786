package adapters

import (
	"context"
	"time"

	"github.com/mkarlsen/swingbot/internal/observ"
)

// RetryConfig bounds a retried network call: per-attempt timeout plus
// exponential backoff between attempts, capped.
type RetryConfig struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// WithRetry runs fn up to MaxRetries+1 times with exponential backoff. Each
// attempt gets its own timeout derived from ctx. The last error comes back
// when every attempt fails; callers decide whether that degrades the cycle
// or just this ticker.
func WithRetry(ctx context.Context, cfg RetryConfig, op string, fn func(ctx context.Context) error) error {
	backoff := cfg.BackoffBase
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		lastErr = fn(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == cfg.MaxRetries {
			break
		}
		observ.IncCounter("retries_total", map[string]string{"op": op})
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > cfg.BackoffMax {
			backoff = cfg.BackoffMax
		}
	}
	return lastErr
}
