package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, fraction of the delay applied as +/- jitter
	MaxSameErrorType int     // after N consecutive same-type errors, stop retrying (0 disables)
}

// DefaultConfig returns defaults for record store connections:
// 3 retries, 100ms initial delay doubling up to 5s, 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// TransportConfig returns a short policy for a single oracle call. Retries
// here cover transport hiccups only; plan correction is a separate budget.
func TransportConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:       maxRetries,
		InitialDelay:     250 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.2,
		MaxSameErrorType: 3,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do executes fn with exponential backoff until it succeeds or the retries
// are exhausted. Context cancellation during a wait returns ctx.Err().
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := run(ctx, cfg, false, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value (like pgxpool.New).
// The last result is returned even on error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, false, fn)
}

// DoIfRetryable only retries transient errors; permanent ones return at once.
// After MaxSameErrorType consecutive failures of the same kind the error is
// treated as permanent.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := run(ctx, cfg, true, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoIfRetryableWithResult is DoIfRetryable for functions that return a value.
func DoIfRetryableWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, true, fn)
}

func run[T any](ctx context.Context, cfg *Config, onlyRetryable bool, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay
	sameErrorCount := 0
	lastErrorType := ""

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if onlyRetryable {
			if !IsRetryable(err) {
				return result, err
			}
			errorType := classifyErrorType(err)
			if errorType == lastErrorType {
				sameErrorCount++
				if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
					return result, fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, errorType, err)
				}
			} else {
				sameErrorCount = 1
				lastErrorType = errorType
			}
		}

		if attempt == cfg.MaxRetries {
			break
		}

		timer := time.NewTimer(applyJitter(delay, cfg.JitterFactor))
		select {
		case <-timer.C:
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		}
	}

	return result, lastErr
}

// RetryableError is implemented by errors that declare their retryability,
// such as oracle client errors.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	// Connection errors
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	// HTTP status codes
	"429",
	"500",
	"502",
	"503",
	"504",
	// HTTP error messages
	"rate limit",
	"service busy",
	"service unavailable",
	"too many requests",
	"overloaded",
}

// IsRetryable reports whether err is transient and worth retrying.
//
// Context cancellation and deadline expiry are never retryable. An error in
// the chain implementing RetryableError decides for itself. Anything else is
// matched against known transient error strings.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType buckets an error so repeated failures of the same kind
// can be detected.
func classifyErrorType(err error) string {
	errStr := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "429"} {
		if strings.Contains(errStr, code) {
			return code
		}
	}

	switch {
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"):
		return "rate_limit"
	case strings.Contains(errStr, "overloaded"), strings.Contains(errStr, "service busy"), strings.Contains(errStr, "service unavailable"):
		return "unavailable"
	}
	return "unknown"
}
