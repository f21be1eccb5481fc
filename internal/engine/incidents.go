package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/domain/incident"
	"github.com/MRamiBalles/colony/server/internal/domain/rules"
)

// Incidents triggers incidents and events at random once the colony is
// settled, and keeps the ones still waiting or running.
type Incidents struct {
	w      *World
	chance float64 // probability per tick
	active map[string]*Incident
}

// NewIncidents creates the trigger with the configured chance per tick.
func NewIncidents(w *World) *Incidents {
	return &Incidents{
		w:      w,
		chance: w.Config.IncidentChance,
		active: make(map[string]*Incident),
	}
}

// OnTick may start one eligible incident.
func (m *Incidents) OnTick() {
	m.prune()
	if !m.w.Colony.Settled || len(m.w.People.Alive()) == 0 {
		return
	}
	if !rules.Roll(m.chance, m.w.Rand) {
		return
	}
	eligible := m.eligible()
	if len(eligible) == 0 {
		return
	}
	def := eligible[m.w.Rand.Intn(len(eligible))]
	m.start(def, "random")
}

// Trigger starts a given incident on demand. An incident already active
// is returned as is.
func (m *Incidents) Trigger(id string) (*Incident, error) {
	def, err := m.w.Catalog.Incident(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownIncident, err)
	}
	m.prune()
	if in, busy := m.active[id]; busy {
		return in, nil
	}
	return m.start(def, "manual"), nil
}

func (m *Incidents) start(def incident.Def, reason string) *Incident {
	in := newIncident(m.w, def)
	m.active[def.ID] = in
	m.w.Log.Event("INCIDENT", def.ID, fmt.Sprintf("%s %s | Reason:%s", def.Kind, def.Name, reason))
	in.Start()
	return in
}

func (m *Incidents) eligible() []incident.Def {
	var out []incident.Def
	for _, def := range m.w.Catalog.Incidents {
		if _, busy := m.active[def.ID]; busy {
			continue
		}
		if m.w.Colony.Hours < def.MinHours {
			continue
		}
		out = append(out, def)
	}
	return out
}

// prune forgets incidents that are over.
func (m *Incidents) prune() {
	for id, in := range m.active {
		if !in.Active() {
			delete(m.active, id)
		}
	}
}

// Get returns an active incident.
func (m *Incidents) Get(id string) (*Incident, bool) {
	in, ok := m.active[id]
	if !ok || !in.Active() {
		return nil, false
	}
	return in, true
}

// Active returns the incidents still waiting or running, by id.
func (m *Incidents) Active() []*Incident {
	m.prune()
	out := make([]*Incident, 0, len(m.active))
	for _, def := range m.w.Catalog.Incidents {
		if in, ok := m.active[def.ID]; ok {
			out = append(out, in)
		}
	}
	return out
}

// Confirm runs an incident waiting for the player, or drops it.
func (m *Incidents) Confirm(id string, accept bool) (bool, error) {
	in, ok := m.Get(id)
	if !ok {
		return false, fmt.Errorf("incident %q: %w", id, ErrUnknownIncident)
	}
	if !accept {
		return in.Decline(), nil
	}
	return in.Run(nil), nil
}

// Cancel ends a running incident early.
func (m *Incidents) Cancel(id string) (bool, error) {
	in, ok := m.Get(id)
	if !ok {
		return false, fmt.Errorf("incident %q: %w", id, ErrUnknownIncident)
	}
	return in.Cancel(), nil
}

// resume restores a running incident from a save.
func (m *Incidents) resume(id string, remaining time.Duration) error {
	def, err := m.w.Catalog.Incident(id)
	if err != nil {
		return err
	}
	in := newIncident(m.w, def)
	m.active[id] = in
	in.resume(remaining)
	m.w.Log.Debug("incident resumed", zap.String("incident", id), zap.Duration("remaining", remaining))
	return nil
}

// clear drops every incident without effect.
func (m *Incidents) clear() {
	for id, in := range m.active {
		if in.timer != 0 {
			_ = m.w.Timers.Clear(in.timer)
			in.timer = 0
		}
		in.remove()
		delete(m.active, id)
	}
}
