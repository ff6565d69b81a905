package portal

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// RetryPolicy wraps a single network call with exponential backoff. Only
// transient transport and HTTP failures are retried; everything else is
// returned immediately. After the attempt budget is spent the last error is
// re-raised to the caller.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// sleep is swappable in tests
	sleep func(time.Duration)
}

// NewRetryPolicy returns the policy used for every portal page request:
// 3 attempts, backoff starting at 2s, doubling, capped at 30s.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  30 * time.Second,
		sleep:       time.Sleep,
	}
}

// Backoff returns the wait before the given retry attempt (1-based)
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

// Do runs fn, retrying transient failures until the attempt budget runs out
func (p *RetryPolicy) Do(ctx context.Context, fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == p.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		sleep(p.Backoff(attempt))
	}
	return err
}

// IsTransient classifies an error as retryable. Network-level failures and
// retryable HTTP statuses qualify; a cancelled caller context never does.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded")
}
