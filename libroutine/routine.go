// Package libroutine provides circuit-breaker protected execution and
// managed background loops. The coffeehouse auto-chat scheduler runs on a
// pool loop: the loop interval is the inter-round delay and the breaker
// keeps a failing agent round from spinning.
package libroutine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute while the circuit is open.
var ErrCircuitOpen = errors.New("libroutine: circuit open")

// Routine is a circuit breaker around a repeatable operation.
type Routine struct {
	mu            sync.Mutex
	state         State
	failures      int
	threshold     int
	resetTimeout  time.Duration
	openedAt      time.Time
	trialInFlight bool
}

// NewRoutine creates a circuit breaker that opens after threshold
// consecutive failures and probes again after resetTimeout.
func NewRoutine(threshold int, resetTimeout time.Duration) *Routine {
	return &Routine{
		state:        Closed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

// Allow reports whether an execution may proceed. In the open state it
// transitions to half-open once the reset timeout has elapsed; in the
// half-open state only a single trial call is let through.
func (r *Routine) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case Closed:
		return true
	case Open:
		if time.Since(r.openedAt) >= r.resetTimeout {
			r.state = HalfOpen
			r.trialInFlight = false
			return true
		}
		return false
	case HalfOpen:
		if r.trialInFlight {
			return false
		}
		r.trialInFlight = true
		return true
	default:
		return false
	}
}

// MarkSuccess records a successful execution and closes the circuit.
func (r *Routine) MarkSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Closed
	r.failures = 0
	r.trialInFlight = false
}

// MarkFailure records a failed execution; it opens the circuit when the
// failure threshold is reached or when a half-open trial fails.
func (r *Routine) MarkFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	if r.state == HalfOpen || r.failures >= r.threshold {
		r.state = Open
		r.openedAt = time.Now()
		r.trialInFlight = false
		log.Printf("libroutine: circuit opened after %d failures", r.failures)
	}
}

// Execute runs fn under the circuit breaker.
func (r *Routine) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(ctx); err != nil {
		r.MarkFailure()
		return err
	}
	r.MarkSuccess()
	return nil
}

// ExecuteWithRetry runs fn up to maxAttempts times, sleeping interval
// between attempts. An open circuit aborts immediately; a context error
// during the sleep is returned as-is.
func (r *Routine) ExecuteWithRetry(ctx context.Context, interval time.Duration, maxAttempts int, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := r.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		lastErr = err
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return lastErr
}

// Loop runs fn immediately and then on every interval tick or trigger
// message until ctx is done. Every error, including ErrCircuitOpen while
// the breaker is open, is passed to errHandler.
func (r *Routine) Loop(ctx context.Context, interval time.Duration, trigger <-chan struct{}, fn func(ctx context.Context) error, errHandler func(error)) {
	run := func() {
		if err := r.Execute(ctx, fn); err != nil {
			errHandler(err)
		}
	}
	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			run()
		case <-trigger:
			run()
		}
	}
}

// GetState returns the current breaker state.
func (r *Routine) GetState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// GetThreshold returns the configured failure threshold.
func (r *Routine) GetThreshold() int {
	return r.threshold
}

// GetResetTimeout returns the configured reset timeout.
func (r *Routine) GetResetTimeout() time.Duration {
	return r.resetTimeout
}

// ForceOpen opens the circuit immediately.
func (r *Routine) ForceOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Open
	r.openedAt = time.Now()
	r.trialInFlight = false
}

// ForceClose closes the circuit and clears the failure count.
func (r *Routine) ForceClose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Closed
	r.failures = 0
	r.trialInFlight = false
}
