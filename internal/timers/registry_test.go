package timers

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestRegistry() (*Registry, *ManualClock) {
	clock := NewManualClock(epoch)
	return NewRegistry(clock), clock
}

func TestStopRestartRoundTrip(t *testing.T) {
	r, clock := newTestRegistry()
	calls := 0
	h := r.Schedule(func() { calls++ }, time.Second)

	clock.Advance(400 * time.Millisecond)
	remaining, ok, err := r.Stop(h)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 600*time.Millisecond, remaining)

	// time passing while stopped is not counted
	clock.Advance(10 * time.Second)
	assert.Equal(t, 0, r.Fire(clock.Now()))

	remaining, ok, err = r.Restart(h, clock.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 600*time.Millisecond, remaining)

	clock.Advance(599 * time.Millisecond)
	assert.Equal(t, 0, r.Fire(clock.Now()))
	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, r.Fire(clock.Now()))
	assert.Equal(t, 0, r.Fire(clock.Advance(time.Hour)))
	assert.Equal(t, 1, calls)

	_, err = r.Remaining(h)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStopTwiceIsGuarded(t *testing.T) {
	r, clock := newTestRegistry()
	h := r.Schedule(func() {}, time.Second)
	clock.Advance(250 * time.Millisecond)

	_, ok, err := r.Stop(h)
	require.NoError(t, err)
	require.True(t, ok)

	remaining, ok, err := r.Stop(h)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 750*time.Millisecond, remaining)
}

func TestRestartRunningIsNoop(t *testing.T) {
	r, clock := newTestRegistry()
	h := r.Schedule(func() {}, time.Second)

	_, ok, err := r.Restart(h, clock.Advance(100*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := r.Remaining(h)
	require.NoError(t, err)
	assert.Equal(t, 900*time.Millisecond, remaining)
}

func TestUnknownHandle(t *testing.T) {
	r, clock := newTestRegistry()

	_, _, err := r.Stop(42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = r.Restart(42, clock.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Clear(42), ErrNotFound)
	_, err = r.Elapsed(42)
	assert.ErrorIs(t, err, ErrNotFound)

	h := r.Schedule(func() {}, time.Second)
	require.NoError(t, r.Clear(h))
	_, err = r.Remaining(h)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClearDoesNotFire(t *testing.T) {
	r, clock := newTestRegistry()
	fired := false
	h := r.Schedule(func() { fired = true }, 10*time.Millisecond)
	require.NoError(t, r.Clear(h))

	r.Fire(clock.Advance(time.Second))
	assert.False(t, fired)
}

func TestElapsedAndRemaining(t *testing.T) {
	r, clock := newTestRegistry()
	h := r.Schedule(func() {}, time.Second)
	clock.Advance(300 * time.Millisecond)

	elapsed, err := r.Elapsed(h)
	require.NoError(t, err)
	remaining, err := r.Remaining(h)
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, elapsed)
	assert.Equal(t, 700*time.Millisecond, remaining)
}

func TestRestartAllPreservesOffsets(t *testing.T) {
	r, clock := newTestRegistry()
	var order []string
	var firedAt []time.Time

	r.Schedule(func() { order = append(order, "late"); firedAt = append(firedAt, clock.Now()) }, 300*time.Millisecond)
	r.Schedule(func() { order = append(order, "early"); firedAt = append(firedAt, clock.Now()) }, 100*time.Millisecond)

	r.StopAll()
	clock.Advance(5 * time.Second)
	r.RestartAll()

	for i := 0; i < 40; i++ {
		r.Fire(clock.Advance(10 * time.Millisecond))
	}

	require.Equal(t, []string{"early", "late"}, order)
	assert.Equal(t, 200*time.Millisecond, firedAt[1].Sub(firedAt[0]))
}

func TestCallbackCanReschedule(t *testing.T) {
	r, clock := newTestRegistry()
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			r.Schedule(tick, 0)
		}
	}
	r.Schedule(tick, 0)

	// a zero delay reschedule waits for the next pass
	assert.Equal(t, 1, r.Fire(clock.Now()))
	assert.Equal(t, 1, r.Fire(clock.Now()))
	assert.Equal(t, 1, r.Fire(clock.Now()))
	assert.Equal(t, 0, r.Fire(clock.Now()))
	assert.Equal(t, 3, count)
}

func TestCallbackClearingSiblingPreventsIt(t *testing.T) {
	r, clock := newTestRegistry()
	var second Handle
	secondFired := false

	r.Schedule(func() { _ = r.Clear(second) }, 10*time.Millisecond)
	second = r.Schedule(func() { secondFired = true }, 20*time.Millisecond)

	assert.Equal(t, 1, r.Fire(clock.Advance(time.Second)))
	assert.False(t, secondFired)
}

func TestHandlesAreNeverReused(t *testing.T) {
	r, clock := newTestRegistry()
	a := r.Schedule(func() {}, 0)
	r.Fire(clock.Now())
	b := r.Schedule(func() {}, 0)
	r.ClearAll()
	c := r.Schedule(func() {}, 0)

	assert.Less(t, uint64(a), uint64(b))
	assert.Less(t, uint64(b), uint64(c))
}

type countingObserver struct{ scheduled, fired int }

func (o *countingObserver) RecordTimerScheduled()          { o.scheduled++ }
func (o *countingObserver) RecordTimersFired(fired, _ int) { o.fired += fired }

func TestObserver(t *testing.T) {
	obs := &countingObserver{}
	clock := NewManualClock(epoch)
	r := NewRegistry(clock, WithObserver(obs))

	r.Schedule(func() {}, time.Millisecond)
	r.Schedule(func() {}, time.Hour)
	r.Fire(clock.Advance(time.Second))

	assert.Equal(t, 2, obs.scheduled)
	assert.Equal(t, 1, obs.fired)
}

func TestFiresInDeadlineOrderProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("timers fire sorted by deadline", prop.ForAll(
		func(delays []int) bool {
			r, clock := newTestRegistry()
			var got []int
			for _, d := range delays {
				d := d
				r.Schedule(func() { got = append(got, d) }, time.Duration(d)*time.Millisecond)
			}
			r.Fire(clock.Advance(time.Hour))
			if len(got) != len(delays) {
				return false
			}
			for i := 1; i < len(got); i++ {
				if got[i] < got[i-1] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5000)),
	))

	properties.Property("pause keeps remaining time", prop.ForAll(
		func(delay, before, paused int) bool {
			r, clock := newTestRegistry()
			h := r.Schedule(func() {}, time.Duration(delay)*time.Millisecond)
			clock.Advance(time.Duration(before) * time.Millisecond)
			r.StopAll()
			clock.Advance(time.Duration(paused) * time.Millisecond)
			r.RestartAll()
			left, err := r.Remaining(h)
			if err != nil {
				return false
			}
			want := delay - before
			if want < 0 {
				want = 0
			}
			return left == time.Duration(want)*time.Millisecond
		},
		gen.IntRange(1, 10000),
		gen.IntRange(0, 10000),
		gen.IntRange(0, 100000),
	))

	properties.TestingRun(t)
}
