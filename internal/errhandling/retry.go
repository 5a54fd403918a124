package errhandling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Default retry configuration values
const (
	DefaultMaxAttempts       = 2
	DefaultDelayMs           = 500
	DefaultBackoffMultiplier = 2.0
	DefaultMaxDelayMs        = 10000
	MaxRetryAttempts         = 10
	MinBackoffMultiplier     = 1.0
)

// OnErrorStrategy defines what action to take when a per-row error occurs.
type OnErrorStrategy string

// Error handling strategies
const (
	// OnErrorFail stops processing and returns the error (default).
	OnErrorFail OnErrorStrategy = "fail"

	// OnErrorSkip drops the offending row and continues.
	OnErrorSkip OnErrorStrategy = "skip"

	// OnErrorLog logs the error, drops the row and continues.
	OnErrorLog OnErrorStrategy = "log"
)

// ParseOnErrorStrategy parses an error strategy string.
// Returns OnErrorFail for invalid or empty input.
func ParseOnErrorStrategy(s string) OnErrorStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip":
		return OnErrorSkip
	case "log":
		return OnErrorLog
	default:
		return OnErrorFail
	}
}

// RetryConfig holds retry configuration for upstream calls.
type RetryConfig struct {
	// MaxAttempts is the maximum number of retries after the first attempt (0 = no retry).
	MaxAttempts int `json:"maxAttempts" yaml:"maxAttempts"`

	// DelayMs is the initial delay between retries in milliseconds.
	DelayMs int `json:"delayMs" yaml:"delayMs"`

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64 `json:"backoffMultiplier" yaml:"backoffMultiplier"`

	// MaxDelayMs is the maximum delay between retries in milliseconds.
	MaxDelayMs int `json:"maxDelayMs" yaml:"maxDelayMs"`

	// RetryableStatusCodes are HTTP status codes that trigger retry.
	RetryableStatusCodes []int `json:"retryableStatusCodes,omitempty" yaml:"retryableStatusCodes,omitempty"`

	// UseRetryAfterHeader honours a server Retry-After hint, capped by MaxDelayMs.
	UseRetryAfterHeader bool `json:"useRetryAfterHeader" yaml:"useRetryAfterHeader"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:          DefaultMaxAttempts,
		DelayMs:              DefaultDelayMs,
		BackoffMultiplier:    DefaultBackoffMultiplier,
		MaxDelayMs:           DefaultMaxDelayMs,
		RetryableStatusCodes: []int{429, 500, 502, 503, 504},
		UseRetryAfterHeader:  true,
	}
}

// Validate validates the retry configuration.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return errors.New("maxAttempts must be >= 0")
	}
	if c.MaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("maxAttempts must be <= %d", MaxRetryAttempts)
	}
	if c.DelayMs < 0 {
		return errors.New("delayMs must be >= 0")
	}
	if c.BackoffMultiplier < MinBackoffMultiplier {
		return fmt.Errorf("backoffMultiplier must be >= %v", MinBackoffMultiplier)
	}
	if c.MaxDelayMs < 0 {
		return errors.New("maxDelayMs must be >= 0")
	}
	return nil
}

// CalculateDelay calculates the retry delay for a given attempt using exponential backoff.
// The formula is: min(delayMs * (backoffMultiplier ^ attempt), maxDelayMs)
func (c RetryConfig) CalculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delayMs := float64(c.DelayMs) * math.Pow(c.BackoffMultiplier, float64(attempt))
	if c.MaxDelayMs > 0 && delayMs > float64(c.MaxDelayMs) {
		delayMs = float64(c.MaxDelayMs)
	}
	return time.Duration(delayMs) * time.Millisecond
}

// delayFor returns the wait before the next attempt, preferring a Retry-After
// hint on err when enabled.
func (c RetryConfig) delayFor(attempt int, err error) time.Duration {
	delay := c.CalculateDelay(attempt)
	if !c.UseRetryAfterHeader {
		return delay
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) && classified.RetryAfter > 0 {
		delay = classified.RetryAfter
		if maxDelay := time.Duration(c.MaxDelayMs) * time.Millisecond; c.MaxDelayMs > 0 && delay > maxDelay {
			delay = maxDelay
		}
	}
	return delay
}

// IsStatusCodeRetryable checks if the given status code is in the retryable list.
func (c RetryConfig) IsStatusCodeRetryable(statusCode int) bool {
	for _, code := range c.RetryableStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

// retryable decides whether err warrants another attempt. HTTP errors follow
// RetryableStatusCodes when it is set; other errors follow classification.
func (c RetryConfig) retryable(err error) bool {
	classified := ClassifyError(err)
	if classified.StatusCode > 0 && len(c.RetryableStatusCodes) > 0 {
		return c.IsStatusCodeRetryable(classified.StatusCode)
	}
	return classified.Retryable
}

// ============================
// Retry Executor
// ============================

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) (interface{}, error)

// RetryInfo contains information about retry attempts.
type RetryInfo struct {
	// TotalAttempts is the total number of attempts made.
	TotalAttempts int

	// SuccessfulAttempt is the attempt number that succeeded (0 if failed).
	SuccessfulAttempt int

	// TotalDuration is the total time spent including retries.
	TotalDuration time.Duration

	// Delays is the list of delays between retries.
	Delays []time.Duration

	// Errors is the list of errors encountered.
	Errors []error
}

// RetryExecutor executes functions with retry logic. It is not safe for
// concurrent use; create one per call.
type RetryExecutor struct {
	config    RetryConfig
	retryInfo RetryInfo
	onRetry   func(attempt int, err error, nextDelay time.Duration)
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor creates a new retry executor with the given configuration.
func NewRetryExecutor(config RetryConfig) *RetryExecutor {
	return &RetryExecutor{config: config, sleep: sleepContext}
}

// OnRetry registers a callback invoked after each failed attempt that will be retried.
func (e *RetryExecutor) OnRetry(fn func(attempt int, err error, nextDelay time.Duration)) *RetryExecutor {
	e.onRetry = fn
	return e
}

// Execute runs fn, retrying on transient errors up to MaxAttempts times.
func (e *RetryExecutor) Execute(ctx context.Context, fn RetryFunc) (interface{}, error) {
	start := time.Now()
	e.retryInfo = RetryInfo{}
	defer func() { e.retryInfo.TotalDuration = time.Since(start) }()

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, ClassifyNetworkError(err)
		}

		e.retryInfo.TotalAttempts = attempt + 1
		result, err := fn(ctx)
		if err == nil {
			e.retryInfo.SuccessfulAttempt = attempt + 1
			return result, nil
		}

		lastErr = err
		e.retryInfo.Errors = append(e.retryInfo.Errors, err)

		if !e.config.retryable(err) || attempt >= e.config.MaxAttempts {
			return nil, err
		}

		delay := e.config.delayFor(attempt, err)
		e.retryInfo.Delays = append(e.retryInfo.Delays, delay)
		if e.onRetry != nil {
			e.onRetry(attempt, err, delay)
		}
		if err := e.sleep(ctx, delay); err != nil {
			return nil, ClassifyNetworkError(err)
		}
	}
	return nil, lastErr
}

// GetRetryInfo returns information about the last Execute call.
func (e *RetryExecutor) GetRetryInfo() RetryInfo {
	return e.retryInfo
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
