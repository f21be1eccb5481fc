package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/catalog"
	"github.com/MRamiBalles/colony/server/internal/domain/action"
	"github.com/MRamiBalles/colony/server/internal/domain/colony"
	"github.com/MRamiBalles/colony/server/internal/domain/incident"
	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/platform/config"
	"github.com/MRamiBalles/colony/server/internal/platform/logger"
	"github.com/MRamiBalles/colony/server/internal/platform/metrics"
	"github.com/MRamiBalles/colony/server/internal/presentation"
	"github.com/MRamiBalles/colony/server/internal/timers"
)

// KeySpace toggles the pause.
const KeySpace = 32

// ErrNoStore is returned by Save when no store is configured.
var ErrNoStore = errors.New("no save store configured")

// NameSource supplies display names for new colony members.
type NameSource interface {
	Fetch(ctx context.Context, n int) ([]string, error)
}

// ViewCache keeps the last saved view of a colony for quick reads.
type ViewCache interface {
	StoreView(ctx context.Context, colonyID string, view ColonyView) error
}

// Deps are the collaborators of an engine. Only Config and Catalog matter
// for a headless run; everything else has a working default.
type Deps struct {
	Config    *config.Config
	Catalog   *catalog.Catalog
	Clock     timers.Clock
	Sink      presentation.Sink
	Store     SaveStore
	Names     NameSource
	Cache     ViewCache
	Persister events.EventPersister // journal write-through
	Logger    *logger.Logger
	Metrics   *metrics.Collector
}

// Engine is the composition root of one simulation. It builds the single
// bus and timer registry and serializes every mutation behind one lock.
type Engine struct {
	mu        sync.Mutex
	w         *World
	incidents *Incidents
	journal   *events.Journal
	clock     timers.Clock

	store SaveStore
	names NameSource
	cache ViewCache

	paused bool
	lost   bool
	nextID int

	ticker *Ticker
	pump   *Ticker
}

// New wires a fresh, empty colony. Call Load or Found before Start.
func New(deps Deps) (*Engine, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cat := deps.Catalog
	if cat == nil {
		var err error
		if cat, err = catalog.Default(); err != nil {
			return nil, err
		}
	}
	if cfg.SettleResource != "" {
		if _, err := cat.Resource(cfg.SettleResource); err != nil {
			return nil, fmt.Errorf("settle resource: %w", err)
		}
	}
	clock := deps.Clock
	if clock == nil {
		clock = timers.SystemClock{}
	}
	sink := deps.Sink
	if sink == nil {
		sink = presentation.Nop{}
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	bus := events.NewBus()
	bus.OnError(func(t events.MessageType, err error) {
		log.Error("bus handler failed", zap.Stringer("type", t), zap.Error(err))
		deps.Metrics.RecordHandlerFailure(t.String())
	})
	bus.OnPublish(func(t events.MessageType) {
		deps.Metrics.RecordMessage(t.String())
	})

	var opts []timers.Option
	if deps.Metrics != nil {
		opts = append(opts, timers.WithObserver(deps.Metrics))
	}

	w := &World{
		Config:  cfg,
		Catalog: cat,
		Bus:     bus,
		Timers:  timers.NewRegistry(clock, opts...),
		Ledger:  NewLedger(cat.Resources, bus, sink),
		Sink:    sink,
		Colony:  colony.New(uuid.NewString()),
		People:  newRoster(),
		Rand:    rand.New(rand.NewSource(seed)),
		Log:     log,
		Metrics: deps.Metrics,
	}

	jopts := events.JournalOptions{
		Size:      cfg.JournalSize,
		Persister: deps.Persister,
		Now:       clock.Now,
		Skip:      []events.MessageType{events.MsgRefresh},
		OnDrop: func(e events.Entry) {
			log.Warn("journal queue full, entry not persisted", zap.String("id", e.ID), zap.String("type", e.TypeName))
		},
	}
	if deps.Metrics != nil {
		jopts.Observer = deps.Metrics
	}
	journal := events.NewJournal(jopts)
	journal.Attach(bus, events.Types()...)

	e := &Engine{
		w:         w,
		incidents: NewIncidents(w),
		journal:   journal,
		clock:     clock,
		store:     deps.Store,
		names:     deps.Names,
		cache:     deps.Cache,
	}
	bus.ObserveFunc(func(events.Message) { e.lost = true }, events.MsgLoose)
	return e, nil
}

// Bus returns the bus of the simulation for presentation subscribers.
// Handlers run with the engine lock held and must not call back into it.
func (e *Engine) Bus() *events.Bus { return e.w.Bus }

// Timers returns the registry, for drivers that fire it themselves.
func (e *Engine) Timers() *timers.Registry { return e.w.Timers }

// Config returns the configuration in use.
func (e *Engine) Config() *config.Config { return e.w.Config }

// Found starts a new colony with the given people, or the configured
// number of default names when none are given.
func (e *Engine) Found(names ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(names) == 0 {
		names = defaultNames(e.w.Config.InitialPeople)
	}
	e.w.Ledger.Show()
	for _, name := range names {
		if _, err := e.addPerson(name); err != nil {
			return err
		}
	}
	e.w.Log.Info("colony founded", zap.String("colony", e.w.Colony.ID), zap.Int("people", len(names)))
	return nil
}

func (e *Engine) addPerson(name string) (*Person, error) {
	e.nextID++
	p := newPerson(e.w, fmt.Sprintf("p%d", e.nextID), name)
	e.w.People.add(p)
	p.show()

	defs := make([]action.Def, 0, len(e.w.Catalog.StartingActions))
	for _, id := range e.w.Catalog.StartingActions {
		def, err := e.w.Catalog.Action(id)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := p.AddAction(defs...); err != nil {
		return nil, err
	}
	p.render(p.View())
	e.w.publish(events.MsgArrival, events.PersonPayload{PersonID: p.ID(), Name: p.Name()})
	return p, nil
}

// Start launches the tick loop, the timer pump and the journal writer.
func (e *Engine) Start(ctx context.Context) {
	e.w.Log.Info("Starting colony engine...", zap.String("colony", e.w.Colony.ID))

	e.ticker = NewTicker("tick", e.w.Config.TickLength, e.Tick, e.w.Log)
	e.pump = NewTicker("timers", e.w.Config.TimerResolution, func(time.Duration) error {
		e.Pump()
		return nil
	}, e.w.Log)

	go e.journal.Run(ctx)
	go e.ticker.Start(ctx)
	go e.pump.Start(ctx)
}

// Stop halts both loops started by Start.
func (e *Engine) Stop() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.pump.Stop()
	}
}

// Done is closed when the tick loop returns, either stopped or failed.
func (e *Engine) Done() <-chan struct{} {
	if e.ticker == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return e.ticker.Done()
}

// Err returns the invariant violation that stopped the tick loop.
func (e *Engine) Err() error {
	if e.ticker == nil {
		return nil
	}
	return e.ticker.Err()
}

// Tick advances the simulation by elapsed real time: the colony ages,
// people and the ledger are refreshed and a random incident may start.
func (e *Engine) Tick(elapsed time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick(elapsed)
}

func (e *Engine) tick(elapsed time.Duration) error {
	if e.paused || e.lost {
		return nil
	}
	started := time.Now()
	w := e.w
	w.Colony.Hours += w.Config.Hours(elapsed)

	if w.Config.SettleResource != "" && !w.Colony.Settled {
		count, err := w.Ledger.Count(w.Config.SettleResource)
		if err != nil {
			return err
		}
		if w.Colony.Settle(count, w.Config.SettleAmount) {
			w.Log.Info("colony settled", zap.Float64("hours", w.Colony.Hours))
			w.chronicle("the colony is settled, everyone starts to feel the days.", nil)
		}
	}

	var errs []error
	for _, p := range w.People.All() {
		if p.Dead() {
			continue
		}
		if err := p.Refresh(elapsed, w.Colony.Settled); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	w.Ledger.Render()
	e.incidents.OnTick()

	w.publish(events.MsgRefresh, events.TickPayload{ElapsedMs: elapsed.Milliseconds(), Hours: w.Colony.Hours})
	w.Metrics.RecordTick(time.Since(started))
	w.Metrics.SetPopulation(len(w.People.Alive()), len(e.incidents.Active()))
	return nil
}

// Pump fires every due timer. It does nothing while paused.
func (e *Engine) Pump() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return 0
	}
	return e.w.Timers.Fire(e.clock.Now())
}

// Pause freezes every timer, keeping what each had left.
func (e *Engine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pause()
}

func (e *Engine) pause() bool {
	if e.paused {
		return false
	}
	e.w.Timers.StopAll()
	e.paused = true
	e.w.publish(events.MsgPause, nil)
	return true
}

// Resume restarts every timer from where it was paused.
func (e *Engine) Resume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resume()
}

func (e *Engine) resume() bool {
	if !e.paused {
		return false
	}
	e.w.Timers.RestartAll()
	e.paused = false
	e.w.publish(events.MsgResume, nil)
	return true
}

// Paused reports whether the simulation is frozen.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Key publishes a raw key press. Space toggles the pause.
func (e *Engine) Key(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.w.publish(events.KeyMessage(code), nil)
	if code == KeySpace {
		if e.paused {
			e.resume()
		} else {
			e.pause()
		}
	}
}

// Click starts an action of a person. It returns false when a guard
// refused it, and an error for unknown ids.
func (e *Engine) Click(personID, actionID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.w.People.Get(personID)
	if !ok {
		return false, fmt.Errorf("person %q: %w", personID, ErrUnknownPerson)
	}
	a, ok := p.Action(actionID)
	if !ok {
		return false, fmt.Errorf("action %q of %s: %w", actionID, personID, ErrUnknownAction)
	}
	if e.paused || e.lost {
		return false, nil
	}
	return a.Click()
}

// TriggerIncident starts an incident on demand.
func (e *Engine) TriggerIncident(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	in, err := e.incidents.Trigger(id)
	if err != nil {
		return false, err
	}
	return in.State() != incident.Idle, nil
}

// Confirm answers the prompt of an incident. Declining drops it.
func (e *Engine) Confirm(incidentID string, accept bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incidents.Confirm(incidentID, accept)
}

// CancelIncident ends a running incident early.
func (e *Engine) CancelIncident(incidentID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incidents.Cancel(incidentID)
}

// RecruitResult is delivered once the names of new members are known.
type RecruitResult struct {
	People []string // ids of the new members
	Err    error
}

// Recruit asks the name source for n names and adds that many people. It
// returns at once; the outcome arrives on the channel.
func (e *Engine) Recruit(ctx context.Context, n int) <-chan RecruitResult {
	out := make(chan RecruitResult, 1)
	go func() {
		defer close(out)
		names, err := e.fetchNames(ctx, n)
		if err != nil {
			e.w.Log.Warn("name fetch failed, nobody recruited", zap.Error(err))
			out <- RecruitResult{Err: err}
			return
		}

		e.mu.Lock()
		var res RecruitResult
		for _, name := range names {
			p, err := e.addPerson(name)
			if err != nil {
				res.Err = err
				break
			}
			res.People = append(res.People, p.ID())
			e.w.chronicle("@people.name joins the colony.", p)
		}
		e.mu.Unlock()
		out <- res
	}()
	return out
}

func (e *Engine) fetchNames(ctx context.Context, n int) ([]string, error) {
	if e.names == nil {
		return defaultNames(n), nil
	}
	names, err := e.names.Fetch(ctx, n)
	if err != nil {
		return nil, err
	}
	if len(names) > n {
		names = names[:n]
	}
	return names, nil
}

// Journal returns the recorded messages, oldest first.
func (e *Engine) Journal() []events.Entry {
	return e.journal.Replay()
}

// JournalSince returns the messages recorded after t.
func (e *Engine) JournalSince(t time.Time) []events.Entry {
	return e.journal.Since(t)
}

// ColonyView is the whole colony as the outer layers see it.
type ColonyView struct {
	ID        string         `json:"id"`
	Hours     float64        `json:"hours"`
	Settled   bool           `json:"settled"`
	Won       bool           `json:"won"`
	Lost      bool           `json:"lost"`
	Paused    bool           `json:"paused"`
	Buildings []string       `json:"buildings"`
	Resources []ResourceView `json:"resources"`
	People    []PersonView   `json:"people"`
	Incidents []IncidentView `json:"incidents"`
}

// View returns the current colony view.
func (e *Engine) View() ColonyView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view()
}

func (e *Engine) view() ColonyView {
	w := e.w
	v := ColonyView{
		ID:        w.Colony.ID,
		Hours:     w.Colony.Hours,
		Settled:   w.Colony.Settled,
		Won:       w.Colony.Won,
		Lost:      e.lost,
		Paused:    e.paused,
		Buildings: append([]string{}, w.Colony.Buildings...),
		Resources: w.Ledger.Views(),
		People:    []PersonView{},
		Incidents: []IncidentView{},
	}
	for _, p := range w.People.All() {
		v.People = append(v.People, p.view())
	}
	for _, in := range e.incidents.Active() {
		v.Incidents = append(v.Incidents, in.view())
	}
	return v
}

var fallbackNames = []string{"ada", "bruno", "clara", "dario", "elena", "fermin", "greta", "hugo"}

func defaultNames(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name := fallbackNames[i%len(fallbackNames)]
		if i >= len(fallbackNames) {
			name = fmt.Sprintf("%s %d", name, i/len(fallbackNames)+1)
		}
		out = append(out, name)
	}
	return out
}
