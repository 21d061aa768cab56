// Package circuitbreaker guards VEIL's outbound dependencies (the rule
// evaluator and the judge model) against hammering an endpoint that is
// already down. The pipeline stays fail-closed either way; the breaker
// only converts repeated slow failures into immediate ones.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker is open.
var ErrOpen = errors.New("circuitbreaker: open")

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// Breaker trips after a run of consecutive failures and stays open for a
// cooldown period. After the cooldown one probe request is let through;
// its outcome closes or re-opens the circuit.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// New builds a breaker that opens after threshold consecutive failures
// and probes again after cooldown.
func New(name string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a request may proceed. While open it returns
// ErrOpen until the cooldown elapses; then exactly one caller wins the
// probe slot and the rest keep getting ErrOpen until the probe resolves.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// Success records a completed request.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		b.setState(StateClosed)
	}
}

// Failure records a failed request, tripping the breaker when the
// consecutive-failure threshold is reached.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if b.state == StateHalfOpen {
		b.openedAt = b.now()
		b.setState(StateOpen)
		return
	}

	b.failures++
	if b.failures >= b.threshold && b.state == StateClosed {
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// setState assumes b.mu is held.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	slog.Warn("Circuit state change", "breaker", b.name, "from", b.state.String(), "to", s.String())
	b.state = s
	if s == StateClosed {
		b.failures = 0
	}
}

// SetClock overrides the time source, for tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
