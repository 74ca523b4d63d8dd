// Package resilience provides rate-limited retry policies and circuit breakers
// for calls to external geocoders and data providers.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the reset timeout passes.
	CircuitOpen
	// CircuitHalfOpen lets a probe request through to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration

	// ShouldTrip decides which errors count as failures. Nil counts every
	// non-nil error.
	ShouldTrip func(err error) bool
}

// DefaultCircuitBreakerConfig opens after two consecutive failures and probes
// again after five minutes, long enough to skip a dead Overpass mirror for the
// rest of a build.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     5 * time.Minute,
	}
}

// CircuitBreaker tracks the health of a single endpoint.
type CircuitBreaker struct {
	name  string
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
	lastFailureTime     time.Time

	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker for the named endpoint.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	return &CircuitBreaker{
		name:    name,
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Name returns the endpoint the breaker guards.
func (cb *CircuitBreaker) Name() string { return cb.name }

// ExecuteVal runs fn through the breaker and returns its value, returning
// ErrCircuitOpen without calling fn while the circuit is open.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allowRequest(); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	cb.recordResult(err)
	return val, err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.lastFailureTime) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.nowFunc().Sub(cb.lastFailureTime) >= cb.cfg.ResetTimeout {
		cb.transition(CircuitHalfOpen)
		return nil
	}
	return eris.Wrapf(ErrCircuitOpen, "%s", cb.name)
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	shouldTrip := cb.cfg.ShouldTrip
	if shouldTrip == nil {
		shouldTrip = func(e error) bool { return e != nil }
	}

	if err == nil || !shouldTrip(err) {
		cb.consecutiveFailures = 0
		if cb.state == CircuitHalfOpen {
			cb.transition(CircuitClosed)
		}
		return
	}

	cb.consecutiveFailures++
	cb.lastFailureTime = cb.nowFunc()

	switch cb.state {
	case CircuitClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	zap.L().Info("resilience: circuit state change",
		zap.String("endpoint", cb.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
}

// Breakers holds one circuit breaker per endpoint, created on first use.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewBreakers creates an empty per-endpoint breaker set.
func NewBreakers(cfg CircuitBreakerConfig) *Breakers {
	return &Breakers{breakers: make(map[string]*CircuitBreaker), cfg: cfg}
}

// Get returns the breaker for endpoint.
func (b *Breakers) Get(endpoint string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[endpoint]
	if !ok {
		cb = NewCircuitBreaker(endpoint, b.cfg)
		b.breakers[endpoint] = cb
	}
	return cb
}

// States returns a snapshot of all breaker states.
func (b *Breakers) States() map[string]CircuitState {
	b.mu.Lock()
	breakers := make(map[string]*CircuitBreaker, len(b.breakers))
	for k, v := range b.breakers {
		breakers[k] = v
	}
	b.mu.Unlock()

	states := make(map[string]CircuitState, len(breakers))
	for name, cb := range breakers {
		states[name] = cb.State()
	}
	return states
}
