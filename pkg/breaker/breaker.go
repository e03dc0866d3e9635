// Package breaker wraps outbound operations (client dials, snapshot
// writes) in a circuit breaker so a failing peer or database is isolated
// instead of stalling the caller.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opd-ai/go-dogfight/pkg/config"
	"github.com/opd-ai/go-dogfight/pkg/logging"
)

// Retry defaults used by ExecuteWithRetry.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Operation is a unit of work guarded by the breaker.
type Operation func() error

// Service runs operations through a named gobreaker.CircuitBreaker.
type Service struct {
	breaker    *gobreaker.CircuitBreaker
	logger     *logging.Logger
	maxRetries int
	baseDelay  time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithRetry sets the attempt count and the linear backoff step used by
// ExecuteWithRetry.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(s *Service) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
		if baseDelay >= 0 {
			s.baseDelay = baseDelay
		}
	}
}

// New creates a Service. The circuit opens after
// cfg.MaxConsecutiveFailures consecutive failures and half-opens after
// cfg.Timeout.
func New(name string, cfg config.BreakerConfig, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	threshold := cfg.MaxConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	s := &Service{
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs op once. It fails fast with gobreaker.ErrOpenState while
// the circuit is open.
func (s *Service) Execute(ctx context.Context, op Operation) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, op()
	})
	if err != nil {
		s.logger.Debug(ctx, "circuit breaker execution failed",
			"name", s.breaker.Name(),
			"error", err.Error(),
			"state", s.breaker.State().String(),
		)
		return fmt.Errorf("circuit breaker %s: %w", s.breaker.Name(), err)
	}
	return nil
}

// ExecuteWithRetry runs op up to the configured number of attempts,
// waiting attempt*baseDelay between tries. It stops early when the circuit
// opens or ctx is done.
func (s *Service) ExecuteWithRetry(ctx context.Context, op Operation) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err = s.Execute(ctx, op); err == nil {
			return nil
		}

		if s.breaker.State() == gobreaker.StateOpen || errors.Is(err, gobreaker.ErrOpenState) {
			s.logger.Warn(ctx, "circuit breaker is open, skipping retries",
				"name", s.breaker.Name(),
				"attempt", attempt+1,
			)
			return err
		}

		if attempt == s.maxRetries-1 {
			break
		}

		delay := time.Duration(attempt+1) * s.baseDelay
		s.logger.Warn(ctx, "operation failed, retrying",
			"name", s.breaker.Name(),
			"attempt", attempt+1,
			"max_retries", s.maxRetries,
			"delay", delay.String(),
			"error", err.Error(),
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	s.logger.Error(ctx, "all retry attempts failed", err, "name", s.breaker.Name(), "attempts", s.maxRetries)
	return fmt.Errorf("max retries (%d) exceeded: %w", s.maxRetries, err)
}

// Name returns the breaker name.
func (s *Service) Name() string {
	return s.breaker.Name()
}

// State returns the current state of the circuit breaker.
func (s *Service) State() gobreaker.State {
	return s.breaker.State()
}

// Counts returns the breaker's request counters for the current interval.
func (s *Service) Counts() gobreaker.Counts {
	return s.breaker.Counts()
}
