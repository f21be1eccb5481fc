package engine

import (
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/catalog"
	"github.com/MRamiBalles/colony/server/internal/domain/colony"
	"github.com/MRamiBalles/colony/server/internal/domain/text"
	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/platform/config"
	"github.com/MRamiBalles/colony/server/internal/platform/logger"
	"github.com/MRamiBalles/colony/server/internal/platform/metrics"
	"github.com/MRamiBalles/colony/server/internal/presentation"
	"github.com/MRamiBalles/colony/server/internal/timers"
)

var (
	ErrUnknownResource = errors.New("unknown resource")
	ErrUnknownPerson   = errors.New("unknown person")
	ErrUnknownAction   = errors.New("unknown action")
	ErrUnknownIncident = errors.New("unknown incident")
)

// World is what every entity of one simulation shares.
type World struct {
	Config  *config.Config
	Catalog *catalog.Catalog
	Bus     *events.Bus
	Timers  *timers.Registry
	Ledger  *Ledger
	Sink    presentation.Sink
	Colony  *colony.Colony
	People  *Roster
	Rand    *rand.Rand
	Log     *logger.Logger
	Metrics *metrics.Collector // nil-safe
}

// publish notifies the bus. Handler failures were already reported to the
// bus error callback, so the publisher carries on.
func (w *World) publish(t events.MessageType, payload any) {
	_ = w.Bus.Notify(t, payload)
}

// chronicle personifies a template and publishes it as a LOG line.
func (w *World) chronicle(template string, who *Person) {
	if template == "" {
		return
	}
	line := text.Personify(template, w.textContext(who))
	w.Log.Event("LOG", actorID(who), line)
	w.publish(events.MsgLog, events.LogPayload{Text: line})
}

func (w *World) textContext(who *Person) text.Context {
	ctx := text.Context{
		"colony": text.Context{
			"hours":     int(w.Colony.Hours),
			"buildings": len(w.Colony.Buildings),
		},
	}
	if who == nil {
		who = w.People.First()
	}
	if who != nil {
		ctx["people"] = text.Context{"id": who.ID(), "name": who.Name()}
	}
	return ctx
}

func (w *World) duration(hours float64) time.Duration {
	return time.Duration(hours * float64(w.Config.HourLength))
}

func (w *World) logError(msg string, err error, fields ...zap.Field) {
	w.Log.Error(msg, append(fields, zap.Error(err))...)
}

func actorID(p *Person) string {
	if p == nil {
		return "colony"
	}
	return p.ID()
}

// Entity is anything the presentation layer draws.
type Entity interface {
	Handle() presentation.Handle
	View() presentation.View
}

// Model is the presentation half shared by every entity: a handle on the
// sink plus the visibility bookkeeping.
type Model struct {
	handle  presentation.Handle
	sink    presentation.Sink
	shown   bool
	removed bool
}

func newModel(h presentation.Handle, sink presentation.Sink) Model {
	if sink == nil {
		sink = presentation.Nop{}
	}
	return Model{handle: h, sink: sink}
}

func (m *Model) Handle() presentation.Handle { return m.handle }

func (m *Model) show() {
	if m.shown || m.removed {
		return
	}
	m.shown = true
	m.sink.Show(m.handle)
}

func (m *Model) hide() {
	if !m.shown || m.removed {
		return
	}
	m.shown = false
	m.sink.Hide(m.handle)
}

func (m *Model) remove() {
	if m.removed {
		return
	}
	m.removed = true
	m.shown = false
	m.sink.Remove(m.handle)
}

func (m *Model) render(v presentation.View) {
	if m.removed {
		return
	}
	m.sink.Update(m.handle, v)
}

func (m *Model) flag(f presentation.Flag, on bool, d time.Duration) {
	if m.removed {
		return
	}
	m.sink.SetFlag(m.handle, f, on, d)
}

// Roster keeps the people of the colony in arrival order.
type Roster struct {
	byID  map[string]*Person
	order []string
}

func newRoster() *Roster {
	return &Roster{byID: make(map[string]*Person)}
}

func (r *Roster) Get(id string) (*Person, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// All returns every person, dead or alive, until they are removed.
func (r *Roster) All() []*Person {
	out := make([]*Person, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Alive returns the people that did not die.
func (r *Roster) Alive() []*Person {
	out := make([]*Person, 0, len(r.order))
	for _, id := range r.order {
		if p := r.byID[id]; !p.Dead() {
			out = append(out, p)
		}
	}
	return out
}

// First returns the first living person, or nil.
func (r *Roster) First() *Person {
	for _, id := range r.order {
		if p := r.byID[id]; !p.Dead() {
			return p
		}
	}
	return nil
}

func (r *Roster) Len() int { return len(r.order) }

func (r *Roster) add(p *Person) {
	if _, ok := r.byID[p.ID()]; !ok {
		r.order = append(r.order, p.ID())
	}
	r.byID[p.ID()] = p
}

func (r *Roster) remove(id string) {
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}
