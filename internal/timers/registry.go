// Package timers owns every delayed callback of the simulation.
//
// Timers are individually addressable and can be paused: stopping a timer
// converts its absolute deadline into a remaining duration, restarting it
// converts the remaining duration back into a deadline. The whole colony can
// therefore be frozen and resumed without losing cooldown progress.
//
// The registry never reads a global clock. The current time comes from an
// injected Clock, and Fire is driven by the caller.
package timers

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned for handles that were never issued, already fired
// or were cleared.
var ErrNotFound = errors.New("timer not found")

// Handle identifies a timer. Handles increase monotonically and are never
// reused. The zero Handle means "no timer".
type Handle uint64

// state tags which half of the deadline/remaining union is valid.
type state int

const (
	running state = iota // deadline is valid
	stopped              // remaining is valid
)

type timer struct {
	state     state
	deadline  time.Time
	remaining time.Duration
	total     time.Duration
	cb        func()
}

func (t *timer) remainingAt(now time.Time) time.Duration {
	if t.state == stopped {
		return t.remaining
	}
	left := t.deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Observer receives registry activity, typically a metrics collector.
type Observer interface {
	RecordTimerScheduled()
	RecordTimersFired(fired, pending int)
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver reports scheduling activity to o.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// Registry holds the pending timers. It is safe for concurrent use;
// callbacks run without the registry lock held so they may schedule or
// clear other timers.
type Registry struct {
	mu       sync.Mutex
	clock    Clock
	next     Handle
	timers   map[Handle]*timer
	observer Observer
}

// NewRegistry creates an empty registry reading time from clock.
func NewRegistry(clock Clock, opts ...Option) *Registry {
	r := &Registry{
		clock:  clock,
		timers: make(map[Handle]*timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Clock returns the clock the registry reads.
func (r *Registry) Clock() Clock {
	return r.clock
}

// Schedule registers a one-shot callback due after delay and returns its
// handle immediately. A non-positive delay makes the timer due on the next Fire.
func (r *Registry) Schedule(cb func(), delay time.Duration) Handle {
	if delay < 0 {
		delay = 0
	}
	r.mu.Lock()
	r.next++
	h := r.next
	r.timers[h] = &timer{
		state:    running,
		deadline: r.clock.Now().Add(delay),
		total:    delay,
		cb:       cb,
	}
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.RecordTimerScheduled()
	}
	return h
}

// Stop pauses a running timer and returns the time it had left. ok is false
// when the timer was already stopped.
func (r *Registry) Stop(h Handle) (remaining time.Duration, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.lookup(h)
	if err != nil {
		return 0, false, err
	}
	if t.state == stopped {
		return t.remaining, false, nil
	}
	r.stop(t, r.clock.Now())
	return t.remaining, true, nil
}

// Restart resumes a stopped timer so it fires remaining after now. ok is
// false, and nothing changes, when the timer is already running.
func (r *Registry) Restart(h Handle, now time.Time) (remaining time.Duration, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.lookup(h)
	if err != nil {
		return 0, false, err
	}
	if t.state == running {
		return t.remainingAt(now), false, nil
	}
	remaining = t.remaining
	r.restart(t, now)
	return remaining, true, nil
}

// Clear removes a timer without firing it.
func (r *Registry) Clear(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.lookup(h); err != nil {
		return err
	}
	delete(r.timers, h)
	return nil
}

// Elapsed returns how much of the timer's delay has already run.
func (r *Registry) Elapsed(h Handle) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.lookup(h)
	if err != nil {
		return 0, err
	}
	return t.total - t.remainingAt(r.clock.Now()), nil
}

// Remaining returns how much of the timer's delay is left.
func (r *Registry) Remaining(h Handle) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.lookup(h)
	if err != nil {
		return 0, err
	}
	return t.remainingAt(r.clock.Now()), nil
}

// Running reports whether h is registered and counting down.
func (r *Registry) Running(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[h]
	return ok && t.state == running
}

// Pending returns the number of registered timers.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// StopAll pauses every running timer.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for _, t := range r.timers {
		if t.state == running {
			r.stop(t, now)
		}
	}
}

// RestartAll resumes every stopped timer against a single reading of the
// clock, so relative offsets between timers survive the pause.
func (r *Registry) RestartAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for _, t := range r.timers {
		if t.state == stopped {
			r.restart(t, now)
		}
	}
}

// ClearAll drops every timer without firing.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers = make(map[Handle]*timer)
}

// Fire runs, in deadline order, every running timer due at or before now
// and returns how many fired. Each timer is removed before its callback
// runs. Timers scheduled by a callback wait for the next Fire.
func (r *Registry) Fire(now time.Time) int {
	r.mu.Lock()
	limit := r.next
	r.mu.Unlock()

	fired := 0
	for {
		cb := r.popDue(now, limit)
		if cb == nil {
			break
		}
		fired++
		cb()
	}

	if r.observer != nil && fired > 0 {
		r.observer.RecordTimersFired(fired, r.Pending())
	}
	return fired
}

// popDue removes and returns the callback of the earliest due timer.
// Ties are broken by handle so scheduling order is kept. Handles above
// limit are ignored.
func (r *Registry) popDue(now time.Time, limit Handle) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		best  Handle
		bestT *timer
	)
	for h, t := range r.timers {
		if h > limit || t.state != running || t.deadline.After(now) {
			continue
		}
		if bestT == nil || t.deadline.Before(bestT.deadline) ||
			(t.deadline.Equal(bestT.deadline) && h < best) {
			best, bestT = h, t
		}
	}
	if bestT == nil {
		return nil
	}
	delete(r.timers, best)
	if bestT.cb == nil {
		return func() {}
	}
	return bestT.cb
}

func (r *Registry) lookup(h Handle) (*timer, error) {
	t, ok := r.timers[h]
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", ErrNotFound, h)
	}
	return t, nil
}

func (r *Registry) stop(t *timer, now time.Time) {
	t.remaining = t.remainingAt(now)
	t.deadline = time.Time{}
	t.state = stopped
}

func (r *Registry) restart(t *timer, now time.Time) {
	t.deadline = now.Add(t.remaining)
	t.remaining = 0
	t.state = running
}
