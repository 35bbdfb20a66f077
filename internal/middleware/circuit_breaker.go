package middleware

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed - normal operation, calls pass through
	CircuitClosed CircuitState = iota
	// CircuitOpen - calls fail immediately
	CircuitOpen
	// CircuitHalfOpen - probing whether the dependency recovered
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit is open")

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Successes in half-open before closing
	Timeout          time.Duration // Time open before probing
}

// DefaultCircuitBreakerConfig returns default configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
	}
}

// CircuitBreaker stops calls to a failing dependency for a while so a dead
// Redis or broker does not cost a full timeout on every write.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failures        int
	successes       int
	lastStateChange time.Time
}

func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		now:             time.Now,
		lastStateChange: time.Now(),
	}
}

// Name returns the circuit breaker name.
func (c *CircuitBreaker) Name() string {
	return c.name
}

// State returns the current state.
func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Execute runs fn unless the circuit is open.
func (c *CircuitBreaker) Execute(fn func() error) error {
	if !c.allowRequest() {
		return ErrCircuitOpen
	}
	err := fn()
	c.recordResult(err)
	return err
}

func (c *CircuitBreaker) allowRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == CircuitOpen {
		if c.now().Sub(c.lastStateChange) < c.config.Timeout {
			return false
		}
		c.setState(CircuitHalfOpen)
	}
	return true
}

func (c *CircuitBreaker) recordResult(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.failures = 0
		if c.state == CircuitHalfOpen {
			c.successes++
			if c.successes >= c.config.SuccessThreshold {
				c.setState(CircuitClosed)
			}
		}
		return
	}

	c.failures++
	if c.state == CircuitHalfOpen || c.failures >= c.config.FailureThreshold {
		c.setState(CircuitOpen)
	}
}

func (c *CircuitBreaker) setState(state CircuitState) {
	if c.state == state {
		return
	}
	c.state = state
	c.lastStateChange = c.now()
	c.failures = 0
	c.successes = 0
}

// Reset closes the circuit.
func (c *CircuitBreaker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setState(CircuitClosed)
}

// CircuitBreakerMetrics is a point-in-time view for /stats.
type CircuitBreakerMetrics struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	LastStateChange time.Time `json:"last_state_change"`
}

// Metrics returns current metrics.
func (c *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CircuitBreakerMetrics{
		Name:            c.name,
		State:           c.state.String(),
		Failures:        c.failures,
		LastStateChange: c.lastStateChange,
	}
}
