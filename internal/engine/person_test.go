package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/presentation"
)

func TestEnergyBelowZeroBleedsIntoLife(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.Found("ada"))
	p := h.person(t, "p1")

	p.UpdateEnergy(-150)
	assert.Equal(t, 0.0, p.Vitals().Energy)
	assert.Equal(t, 50.0, p.Vitals().Life)
	assert.False(t, p.Dead())

	p.UpdateEnergy(500)
	assert.Equal(t, 100.0, p.Vitals().Energy, "energy is capped")
}

func TestDeathHappensOnceAndRemovalWaitsForGrace(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.Found("ada", "bruno"))
	ada := h.person(t, "p1")

	_, err := h.Click("p1", "chop")
	require.NoError(t, err)

	ada.UpdateLife(-150)
	ada.UpdateLife(-10)
	ada.Die()

	assert.True(t, ada.Dead())
	assert.Nil(t, ada.Busy(), "death cancels the running action")
	require.Len(t, h.seen.of(events.MsgLooseSomeone), 1)
	flag, ok := h.sink.Last("flag", presentation.PersonHandle("p1"))
	require.True(t, ok)
	assert.Equal(t, presentation.FlagDying, flag.Flag)

	h.advance(999 * time.Millisecond)
	_, present := h.w.People.Get("p1")
	assert.True(t, present, "the dead stay visible during the grace delay")
	assert.Equal(t, 0.0, h.count(t, "wood"), "the cancelled chop never completes")

	h.advance(time.Millisecond)
	_, present = h.w.People.Get("p1")
	assert.False(t, present)
	assert.Empty(t, h.seen.of(events.MsgLoose), "bruno is still alive")

	h.person(t, "p2").UpdateLife(-101)
	h.advance(time.Second)
	assert.Len(t, h.seen.of(events.MsgLoose), 1)
	assert.True(t, h.View().Lost)
}

func TestRefreshDrainsOnlyOnceSettled(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.Found("ada"))
	p := h.person(t, "p1")

	require.NoError(t, h.Tick(time.Second))
	assert.Equal(t, 100.0, p.Vitals().Energy)

	h.w.Colony.Settled = true
	require.NoError(t, h.Tick(2*time.Second))
	assert.InDelta(t, 98.0, p.Vitals().Energy, 1e-9, "idle drain is one point per hour")

	_, err := h.Click("p1", "chop")
	require.NoError(t, err)
	require.NoError(t, h.Tick(500*time.Millisecond))
	assert.InDelta(t, 97.0, p.Vitals().Energy, 1e-9, "busy drain is two points per hour")
}

func TestRestingRestoresAndIgnoresDamage(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.Found("ada"))
	p := h.person(t, "p1")
	h.w.Colony.Settled = true
	p.UpdateEnergy(-50)

	_, err := h.Click("p1", "sleep")
	require.NoError(t, err)
	p.UpdateEnergy(-10)
	assert.Equal(t, 50.0, p.Vitals().Energy, "energy changes are suppressed while resting")

	require.NoError(t, h.Tick(time.Second))
	assert.InDelta(t, 58.0, p.Vitals().Energy, 1e-9, "rest restores relaxing times the busy drain")
}

func TestLockActionAcceptsSeveralIDs(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.Found("ada"))
	p := h.person(t, "p1")

	p.LockAction("chop", "eat", "missing")
	require.Len(t, p.Actions(), 1)
	assert.Equal(t, "sleep", p.Actions()[0].ID())
	assert.Zero(t, h.w.Ledger.Consumers("food"))
}
