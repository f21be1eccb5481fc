package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/domain/action"
	"github.com/MRamiBalles/colony/server/internal/domain/person"
	"github.com/MRamiBalles/colony/server/internal/domain/rules"
	"github.com/MRamiBalles/colony/server/internal/domain/save"
	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/presentation"
	"github.com/MRamiBalles/colony/server/internal/timers"
)

// Person is a colony member. At most one of its actions runs at a time.
type Person struct {
	Model
	w       *World
	id      string
	name    string
	vitals  person.Vitals
	busy    *Action
	actions map[string]*Action
	order   []string
	dead    bool
	removal timers.Handle
}

func newPerson(w *World, id, name string) *Person {
	return &Person{
		Model:   newModel(presentation.PersonHandle(id), w.Sink),
		w:       w,
		id:      id,
		name:    name,
		vitals:  person.Fresh(),
		actions: make(map[string]*Action),
	}
}

func (p *Person) ID() string            { return p.id }
func (p *Person) Name() string          { return p.name }
func (p *Person) Vitals() person.Vitals { return p.vitals }
func (p *Person) Dead() bool            { return p.dead }
func (p *Person) Tired() bool           { return p.vitals.Tired() }

// Busy returns the running action, or nil when idle.
func (p *Person) Busy() *Action { return p.busy }

// Action returns an owned action.
func (p *Person) Action(id string) (*Action, bool) {
	a, ok := p.actions[id]
	return a, ok
}

// Actions returns the owned actions in the order they were unlocked.
func (p *Person) Actions() []*Action {
	out := make([]*Action, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.actions[id])
	}
	return out
}

// AddAction unlocks one or more actions. An id already owned is
// re-initialized in place.
func (p *Person) AddAction(defs ...action.Def) error {
	var errs []error
	for _, def := range defs {
		if existing, ok := p.actions[def.ID]; ok {
			existing.def = def
			if err := existing.Refresh(); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		a := newAction(p.w, p, def)
		p.actions[def.ID] = a
		p.order = append(p.order, def.ID)
		if err := a.unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// unlockIDs resolves ids in the catalog, adds them and publishes UNLOCK.
func (p *Person) unlockIDs(source string, ids []string) error {
	defs := make([]action.Def, 0, len(ids))
	for _, id := range ids {
		def, err := p.w.Catalog.Action(id)
		if err != nil {
			return fmt.Errorf("failed to unlock %s: %w", id, err)
		}
		defs = append(defs, def)
	}
	if err := p.AddAction(defs...); err != nil {
		return err
	}
	p.w.publish(events.MsgUnlock, events.ActionPayload{PersonID: p.id, ActionID: source, Targets: ids})
	return nil
}

// LockAction retires one or more actions. Unknown ids are ignored.
func (p *Person) LockAction(ids ...string) {
	for _, id := range ids {
		a, ok := p.actions[id]
		if !ok {
			continue
		}
		a.retire()
		delete(p.actions, id)
		for i, oid := range p.order {
			if oid == id {
				p.order = append(p.order[:i:i], p.order[i+1:]...)
				break
			}
		}
	}
}

// Refresh refreshes every owned action and, once the colony is settled,
// applies the energy rate over elapsed.
func (p *Person) Refresh(elapsed time.Duration, settled bool) error {
	var errs []error
	for _, a := range p.Actions() {
		if err := a.Refresh(); err != nil {
			errs = append(errs, err)
		}
	}
	if settled && !p.dead {
		params := rules.EnergyRateParams{
			Busy:      p.busy != nil,
			IdleDrain: p.w.Config.EnergyDrainIdle,
			BusyDrain: p.w.Config.EnergyDrainBusy,
		}
		if p.busy != nil {
			params.Relaxing = p.busy.def.Relaxing
		}
		delta := rules.EnergyRate(params) * p.w.Config.Hours(elapsed)
		if params.Relaxing > 0 {
			// restoring while resting goes around the relaxing suppression
			p.applyEnergy(delta)
		} else {
			p.UpdateEnergy(delta)
		}
	}
	p.render(p.View())
	return errors.Join(errs...)
}

// relaxing reports whether the person is busy with a relaxing action.
func (p *Person) relaxing() bool {
	return p.busy != nil && p.busy.def.IsRelaxing()
}

// UpdateEnergy changes energy within [0, 100]. Energy that would go below
// zero is taken from life instead. Ignored while resting.
func (p *Person) UpdateEnergy(delta float64) {
	if p.relaxing() {
		return
	}
	p.applyEnergy(delta)
}

func (p *Person) applyEnergy(delta float64) {
	if p.dead {
		return
	}
	wasTired := p.Tired()
	next, overflow := p.vitals.ApplyEnergy(delta)
	p.vitals = next
	if p.Tired() != wasTired {
		p.flag(presentation.FlagWarning, p.Tired(), 0)
	}
	if overflow < 0 {
		p.UpdateLife(overflow)
	}
	p.render(p.View())
}

// UpdateLife changes life within [0, 100]. A result below zero kills.
func (p *Person) UpdateLife(delta float64) {
	if p.dead {
		return
	}
	next, dead := p.vitals.ApplyLife(delta)
	p.vitals = next
	if dead {
		p.Die()
		return
	}
	p.render(p.View())
}

// Die is terminal and happens once. The person stays visible, flagged as
// dying, until the grace delay elapses.
func (p *Person) Die() {
	if p.dead {
		return
	}
	p.dead = true
	if p.busy != nil {
		p.busy.cancel()
	}
	p.flag(presentation.FlagDying, true, p.w.Config.DeathGrace)
	p.render(p.View())

	p.w.Log.Warn("person died", zap.String("person", p.id), zap.String("name", p.name))
	p.w.Metrics.RecordDeath()
	p.w.publish(events.MsgLooseSomeone, events.PersonPayload{PersonID: p.id, Name: p.name})

	p.removal = p.w.Timers.Schedule(p.removeFromColony, p.w.Config.DeathGrace)
}

// removeFromColony drops the person once the grace delay is over. The
// colony is lost when nobody is left.
func (p *Person) removeFromColony() {
	p.removal = 0
	for _, a := range p.Actions() {
		a.retire()
	}
	p.actions = make(map[string]*Action)
	p.order = nil
	p.remove()
	p.w.People.remove(p.id)

	if len(p.w.People.Alive()) == 0 {
		p.w.Log.Warn("colony lost")
		p.w.publish(events.MsgLoose, events.PersonPayload{PersonID: p.id, Name: p.name})
	}
}

// Snapshot returns the persisted form of the person.
func (p *Person) Snapshot() save.Person {
	s := save.Person{ID: p.id, Name: p.name, Vitals: p.vitals}
	for _, a := range p.Actions() {
		s.Actions = append(s.Actions, a.Snapshot())
	}
	if p.busy != nil {
		s.Busy = &save.Busy{ID: p.busy.def.ID, RemainingMs: p.busy.Remaining().Milliseconds()}
	}
	return s
}

// PersonView is the display form of a person.
type PersonView struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Energy  float64      `json:"energy"`
	Life    float64      `json:"life"`
	Busy    string       `json:"busy,omitempty"`
	Dead    bool         `json:"dead,omitempty"`
	Actions []ActionView `json:"actions"`
}

func (p *Person) view() PersonView {
	v := PersonView{
		ID:      p.id,
		Name:    p.name,
		Energy:  p.vitals.Energy,
		Life:    p.vitals.Life,
		Dead:    p.dead,
		Actions: make([]ActionView, 0, len(p.order)),
	}
	if p.busy != nil {
		v.Busy = p.busy.def.ID
	}
	for _, a := range p.Actions() {
		v.Actions = append(v.Actions, a.view())
	}
	return v
}

func (p *Person) View() presentation.View {
	v := presentation.View{
		"id":     p.id,
		"name":   p.name,
		"energy": p.vitals.Energy,
		"life":   p.vitals.Life,
		"dead":   p.dead,
	}
	if p.busy != nil {
		v["busy"] = p.busy.def.ID
	}
	return v
}
