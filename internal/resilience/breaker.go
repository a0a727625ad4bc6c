// Package resilience provides a circuit breaker used to protect the
// Postgres store from repeatedly retrying a collaborator that is down
// (the LLM client does not use it), adapted from the teacher
// repo's internal/circuitbreaker package and trimmed to the one
// knob set this gateway needs.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

var (
	ErrOpen          = errors.New("circuit breaker open")
	ErrTooManyProbes = errors.New("too many probe requests in half-open state")
)

// Config tunes when a breaker trips and how it recovers.
type Config struct {
	FailureThreshold uint32        // consecutive failures in Closed before tripping
	SuccessThreshold uint32        // consecutive successes in HalfOpen before closing
	OpenTimeout      time.Duration // time spent Open before probing again
	MaxProbes        uint32        // concurrent requests allowed while HalfOpen
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Second,
		MaxProbes:        3,
	}
}

// Breaker is a minimal closed/open/half-open circuit breaker guarding calls
// to a single collaborator (one Postgres pool, one upstream base URL).
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger

	mu                   sync.Mutex
	state                State
	consecutiveFailures  uint32
	consecutiveSuccesses uint32
	probesInFlight       uint32
	openedAt             time.Time
}

func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	return &Breaker{name: name, cfg: cfg, logger: logger, state: StateClosed}
}

// Execute runs fn if the breaker admits the call, recording the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.openedAt) < b.cfg.OpenTimeout {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.probesInFlight >= b.cfg.MaxProbes {
			return ErrTooManyProbes
		}
		b.probesInFlight++
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.probesInFlight > 0 {
		b.probesInFlight--
	}

	if success {
		b.consecutiveFailures = 0
		switch b.state {
		case StateHalfOpen:
			b.consecutiveSuccesses++
			if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.consecutiveSuccesses = 0
	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.probesInFlight = 0
	if to == StateOpen {
		b.openedAt = time.Now()
	}
	if b.logger != nil {
		b.logger.Info("circuit breaker state change",
			zap.String("breaker", b.name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
