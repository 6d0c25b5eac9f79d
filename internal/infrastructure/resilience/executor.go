package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// RetryObserver is told about every retry, after the failed attempt.
type RetryObserver func(operation string, attempt int)

type Option func(*Executor)

func WithRetryObserver(observer RetryObserver) Option {
	return func(e *Executor) { e.onRetry = observer }
}

// Executor runs outbound calls with retry and a per-operation circuit breaker.
// The breaker wraps the whole retry loop, so one exhausted call counts once.
type Executor struct {
	retry   RetryPolicy
	breaker BreakerPolicy
	onRetry RetryObserver

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config, opts ...Option) *Executor {
	n := cfg.normalize()
	e := &Executor{
		retry:    n.Retry,
		breaker:  n.Breaker,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = classifyUnknown
	}

	if !e.breaker.Enabled {
		return e.withRetry(ctx, op, fn, classifier)
	}
	_, err := e.breakerFor(op, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.withRetry(ctx, op, fn, classifier)
	})
	return err
}

// Do runs fn through e and returns its value. A nil executor calls fn once.
func Do[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error), classifier ErrorClassifier) (T, error) {
	if e == nil {
		return fn(ctx)
	}
	var out T
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	}, classifier)
	return out, err
}

func (e *Executor) withRetry(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	backoff := e.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= e.retry.MaxAttempts || IsNoRetry(err) || !classifier(err).Retryable {
			return err
		}

		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.retry.MaxAttempts,
			"backoff_ms", float64(backoff.Microseconds())/1000.0,
			"error", err,
		)
		if e.onRetry != nil {
			e.onRetry(operation, attempt)
		}
		if !sleep(ctx, backoff) {
			return err
		}
		backoff = e.retry.next(backoff)
	}
}

// sleep waits d or until ctx is done; false means the context ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) breakerFor(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.breaker.HalfOpenMaxCalls,
		Timeout:     e.breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return e.breaker.shouldTrip(counts.Requests, counts.TotalFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

type noRetryError struct {
	err error
}

func (e *noRetryError) Error() string { return e.err.Error() }
func (e *noRetryError) Unwrap() error { return e.err }

// NoRetry marks err as final for the current call, whatever its classification.
// Streaming calls use it once output has reached the consumer.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &noRetryError{err: err}
}

func IsNoRetry(err error) bool {
	var target *noRetryError
	return errors.As(err, &target)
}
