package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/colony/server/internal/catalog"
	"github.com/MRamiBalles/colony/server/internal/domain/save"
	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/platform/config"
	"github.com/MRamiBalles/colony/server/internal/presentation"
	"github.com/MRamiBalles/colony/server/internal/timers"
)

const testCatalog = `
version: 1
starting_actions: [chop, sleep, eat]
resources:
  - {id: wood,  name: wood,  order: 1}
  - {id: stone, name: stone, order: 2}
  - {id: food,  name: food,  order: 3, start: 5}
actions:
  - {id: chop, name: chop, time: 1, give: [{amount: 2, resource: wood}], unlock: [build], unlock_after: 2, log: "@people.name chops wood."}
  - {id: sleep, name: sleep, time: 2, relaxing: 4}
  - {id: eat, name: eat, time: 0.5, consume: [{amount: 1, resource: food}]}
  - id: build
    name: build
    time: 1
    consume: [{amount: 2, resource: wood}, {amount: 1, resource: stone}]
    build: hut
    lock: [build]
    win: true
incidents:
  - {id: storm, name: storm, kind: incident, confirm: true, time: 2, energy: -10, consume: [{amount: 1, resource: wood}], give_pool: [{amount: 3, resource: stone}], give_span: 1}
  - {id: flood, name: flood, kind: event, confirm: false, give: [{amount: 1, resource: stone}]}
`

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.HourLength = time.Second
	cfg.TickLength = 100 * time.Millisecond
	cfg.TimerResolution = 10 * time.Millisecond
	cfg.DeathGrace = time.Second
	cfg.EnergyDrainIdle = 1
	cfg.EnergyDrainBusy = 2
	cfg.ActionEnergyPerHour = 2
	cfg.IncidentChance = 0
	cfg.SettleResource = "wood"
	cfg.SettleAmount = 1000
	cfg.InitialPeople = 1
	cfg.Seed = 1
	cfg.StoreDriver = "none"
	return cfg
}

type harness struct {
	*Engine
	clock *timers.ManualClock
	sink  *presentation.Recorder
	seen  *messageLog
}

type option func(*Deps)

func withStore(s SaveStore) option       { return func(d *Deps) { d.Store = s } }
func withNames(n NameSource) option      { return func(d *Deps) { d.Names = n } }
func withConfig(c *config.Config) option { return func(d *Deps) { d.Config = c } }

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)

	clock := timers.NewManualClock(epoch)
	sink := &presentation.Recorder{}
	deps := Deps{Config: testConfig(), Catalog: cat, Clock: clock, Sink: sink}
	for _, opt := range opts {
		opt(&deps)
	}
	e, err := New(deps)
	require.NoError(t, err)

	h := &harness{Engine: e, clock: clock, sink: sink, seen: &messageLog{}}
	e.Bus().ObserveFunc(h.seen.record, events.Types()...)
	return h
}

// advance moves the clock and fires what became due.
func (h *harness) advance(d time.Duration) int {
	h.clock.Advance(d)
	return h.Pump()
}

func (h *harness) person(t *testing.T, id string) *Person {
	t.Helper()
	p, ok := h.w.People.Get(id)
	require.True(t, ok, "person %s", id)
	return p
}

func (h *harness) count(t *testing.T, id string) float64 {
	t.Helper()
	n, err := h.w.Ledger.Count(id)
	require.NoError(t, err)
	return n
}

type messageLog struct {
	mu   sync.Mutex
	msgs []events.Message
}

func (l *messageLog) record(m events.Message) {
	l.mu.Lock()
	l.msgs = append(l.msgs, m)
	l.mu.Unlock()
}

func (l *messageLog) of(t events.MessageType) []events.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Message
	for _, m := range l.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type memoryStore struct {
	snap *save.Snapshot
	err  error
}

func (s *memoryStore) Persist(_ context.Context, snap save.Snapshot) error {
	if s.err != nil {
		return s.err
	}
	s.snap = &snap
	return nil
}

func (s *memoryStore) Load(context.Context) (save.Snapshot, error) {
	if s.err != nil {
		return save.Snapshot{}, s.err
	}
	return *s.snap, nil
}

func (s *memoryStore) HasData(context.Context) (bool, error) { return s.snap != nil, s.err }

func (s *memoryStore) Clear(context.Context) error {
	s.snap = nil
	return nil
}

type staticNames []string

func (n staticNames) Fetch(_ context.Context, count int) ([]string, error) {
	if count > len(n) {
		count = len(n)
	}
	return n[:count], nil
}
