// Package resilience guards outbound carrier calls with circuit breakers and
// bounded retries.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultFailureThreshold is the run of consecutive failures that opens a breaker
const DefaultFailureThreshold uint32 = 5

// ErrCircuitOpen is returned (wrapped) when a call is rejected by an open breaker
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name string

	// HalfOpenRequests is how many calls may test a half-open breaker
	HalfOpenRequests uint32
	// Window clears the closed-state counts periodically
	Window time.Duration
	// Cooldown is how long the breaker stays open
	Cooldown time.Duration

	FailureThreshold uint32
	// TripRatio opens the breaker once MinSamples calls were seen in the window
	TripRatio  float64
	MinSamples uint32

	// IsSuccessful decides which errors count against the breaker. nil counts every error.
	IsSuccessful func(err error) bool

	// OnStateChange runs after the transition is logged
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultCircuitBreakerConfig suits carrier APIs that answer within seconds
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		HalfOpenRequests: 3,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		FailureThreshold: DefaultFailureThreshold,
		TripRatio:        0.5,
		MinSamples:       10,
	}
}

func (c *CircuitBreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= c.FailureThreshold {
		return true
	}
	return counts.Requests >= c.MinSamples &&
		float64(counts.TotalFailures)/float64(counts.Requests) >= c.TripRatio
}

// CircuitBreaker is a named gobreaker that logs its transitions
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *slog.Logger
}

// NewCircuitBreaker creates a breaker from config
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:   config.Name,
		logger: logger,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:         config.Name,
			MaxRequests:  config.HalfOpenRequests,
			Interval:     config.Window,
			Timeout:      config.Cooldown,
			ReadyToTrip:  config.readyToTrip,
			IsSuccessful: config.IsSuccessful,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
				if config.OnStateChange != nil {
					config.OnStateChange(name, from, to)
				}
			},
		}),
	}
}

// Execute runs fn unless the breaker rejects the call
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := c.cb.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		c.logger.Warn("Call rejected by open circuit", "name", c.name)
		return nil, fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Warn("Call rejected while circuit is probing", "name", c.name)
		return nil, fmt.Errorf("%s: half-open request limit reached: %w", c.name, ErrCircuitOpen)
	}
	return result, err
}

// ExecuteWithResult is the typed form of Execute
func ExecuteWithResult[T any](ctx context.Context, c *CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := c.Execute(ctx, func() (interface{}, error) {
		return fn()
	})
	typed, _ := out.(T)
	return typed, err
}

// State returns the current state of the circuit breaker
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

// CircuitBreakerRegistry hands out one breaker per downstream name
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	logger   *slog.Logger
}

// NewCircuitBreakerRegistry creates an empty registry
func NewCircuitBreakerRegistry(logger *slog.Logger) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the breaker for name, creating it with defaults
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	return r.GetWithConfig(DefaultCircuitBreakerConfig(name))
}

// GetWithConfig returns the breaker for config.Name. config only applies when
// the breaker does not exist yet.
func (r *CircuitBreakerRegistry) GetWithConfig(config *CircuitBreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[config.Name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(config, r.logger)
	r.breakers[config.Name] = cb
	return cb
}
