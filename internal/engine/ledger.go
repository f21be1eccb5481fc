package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/MRamiBalles/colony/server/internal/domain/resource"
	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/presentation"
)

// Ledger owns every resource of the colony. Mutations are validated under
// the ledger lock and published on the bus after it is released.
type Ledger struct {
	mu        sync.Mutex
	resources map[string]*resource.Resource
	order     []string
	consumers map[string]int // actions that list the resource in their consume table
	warned    map[string]bool

	bus  *events.Bus
	sink presentation.Sink
}

// publish notifies the bus. Handler failures are reported through the
// bus error handler, like every other publisher in the engine.
func (l *Ledger) publish(t events.MessageType, payload any) {
	_ = l.bus.Notify(t, payload)
}

// NewLedger instantiates one resource per template, in display order.
func NewLedger(defs []resource.Def, bus *events.Bus, sink presentation.Sink) *Ledger {
	if sink == nil {
		sink = presentation.Nop{}
	}
	sorted := append([]resource.Def(nil), defs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	l := &Ledger{
		resources: make(map[string]*resource.Resource, len(defs)),
		consumers: make(map[string]int),
		warned:    make(map[string]bool),
		bus:       bus,
		sink:      sink,
	}
	for _, def := range sorted {
		l.resources[def.ID] = resource.New(def)
		l.order = append(l.order, def.ID)
	}
	return l
}

func (l *Ledger) lookup(id string) (*resource.Resource, error) {
	r, ok := l.resources[id]
	if !ok {
		return nil, fmt.Errorf("resource %q: %w", id, ErrUnknownResource)
	}
	return r, nil
}

// Count returns the quantity of a resource.
func (l *Ledger) Count(id string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, err := l.lookup(id)
	if err != nil {
		return 0, err
	}
	return r.Count(), nil
}

// Has reports whether at least amount of id is available.
func (l *Ledger) Has(id string, amount float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, err := l.lookup(id)
	if err != nil {
		return false, err
	}
	return r.Has(amount), nil
}

// Affordable reports whether every cost can be paid right now.
func (l *Ledger) Affordable(costs []resource.Cost) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.affordable(costs)
}

func (l *Ledger) affordable(costs []resource.Cost) (bool, error) {
	need := make(map[string]float64, len(costs))
	for _, c := range costs {
		need[c.ResourceID] += c.Amount
	}
	ok := true
	for id, amount := range need {
		r, err := l.lookup(id)
		if err != nil {
			return false, err
		}
		if !r.Has(amount) {
			ok = false
		}
	}
	return ok, nil
}

// Update applies delta to one resource. A negative result is refused and
// leaves the count unchanged.
func (l *Ledger) Update(id string, delta float64) error {
	l.mu.Lock()
	r, err := l.lookup(id)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	before := r.Count()
	if err := r.Update(delta); err != nil {
		l.mu.Unlock()
		return err
	}
	empty := l.ranOut(id, before, r.Count())
	l.mu.Unlock()

	l.render(id)
	l.notifyRunsOut("ledger", empty)
	return nil
}

// Set replaces the quantity of one resource.
func (l *Ledger) Set(id string, amount float64) error {
	l.mu.Lock()
	r, err := l.lookup(id)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := r.Set(amount); err != nil {
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()
	l.render(id)
	return nil
}

// Consume pays every cost or none. It returns false, with nothing taken,
// when any single cost is unaffordable.
func (l *Ledger) Consume(source string, costs []resource.Cost) (bool, error) {
	if len(costs) == 0 {
		return true, nil
	}
	l.mu.Lock()
	ok, err := l.affordable(costs)
	if err != nil || !ok {
		l.mu.Unlock()
		return false, err
	}

	var empty []string
	for _, c := range costs {
		r := l.resources[c.ResourceID]
		before := r.Count()
		if err := r.Update(-c.Amount); err != nil {
			// affordable already checked every cost
			l.mu.Unlock()
			return false, fmt.Errorf("failed to consume %s: %w", c.ResourceID, err)
		}
		empty = append(empty, l.ranOut(c.ResourceID, before, r.Count())...)
	}
	l.mu.Unlock()

	for _, c := range costs {
		l.render(c.ResourceID)
	}
	l.publish(events.MsgUse, events.ResourcePayload{Source: source, Amounts: amounts(costs)})
	l.notifyRunsOut(source, empty)
	return true, nil
}

// Give adds every gain and publishes GIVE.
func (l *Ledger) Give(source string, gains []resource.Cost) error {
	if len(gains) == 0 {
		return nil
	}
	l.mu.Lock()
	for _, g := range gains {
		if _, err := l.lookup(g.ResourceID); err != nil {
			l.mu.Unlock()
			return err
		}
	}
	for _, g := range gains {
		if err := l.resources[g.ResourceID].Update(g.Amount); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("failed to give %s: %w", g.ResourceID, err)
		}
	}
	l.mu.Unlock()

	for _, g := range gains {
		l.render(g.ResourceID)
	}
	l.publish(events.MsgGive, events.ResourcePayload{Source: source, Amounts: amounts(gains)})
	return nil
}

// Drain takes as much of each cost as is available, never going below zero,
// and publishes USE with what was actually taken.
func (l *Ledger) Drain(source string, costs []resource.Cost) ([]events.Amount, error) {
	if len(costs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	for _, c := range costs {
		if _, err := l.lookup(c.ResourceID); err != nil {
			l.mu.Unlock()
			return nil, err
		}
	}
	var (
		taken []events.Amount
		empty []string
	)
	for _, c := range costs {
		r := l.resources[c.ResourceID]
		before := r.Count()
		amount := c.Amount
		if amount > before {
			amount = before
		}
		if amount <= 0 {
			continue
		}
		if err := r.Update(-amount); err != nil {
			l.mu.Unlock()
			return nil, fmt.Errorf("failed to drain %s: %w", c.ResourceID, err)
		}
		taken = append(taken, events.Amount{ResourceID: c.ResourceID, Quantity: amount})
		empty = append(empty, l.ranOut(c.ResourceID, before, r.Count())...)
	}
	l.mu.Unlock()

	for _, a := range taken {
		l.render(a.ResourceID)
	}
	if len(taken) > 0 {
		l.publish(events.MsgUse, events.ResourcePayload{Source: source, Amounts: taken})
	}
	l.notifyRunsOut(source, empty)
	return taken, nil
}

// RegisterConsumer records that an action depends on the given resources.
func (l *Ledger) RegisterConsumer(costs []resource.Cost) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range costs {
		l.consumers[c.ResourceID]++
	}
}

// ReleaseConsumer undoes RegisterConsumer.
func (l *Ledger) ReleaseConsumer(costs []resource.Cost) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range costs {
		if l.consumers[c.ResourceID] > 0 {
			l.consumers[c.ResourceID]--
		}
	}
}

// Consumers returns how many actions depend on a resource.
func (l *Ledger) Consumers(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consumers[id]
}

// ranOut reports id when it just hit zero while someone still needs it.
func (l *Ledger) ranOut(id string, before, after float64) []string {
	if before > 0 && after == 0 && l.consumers[id] > 0 {
		return []string{id}
	}
	return nil
}

func (l *Ledger) notifyRunsOut(source string, ids []string) {
	for _, id := range ids {
		l.mu.Lock()
		l.warned[id] = true
		l.mu.Unlock()
		l.sink.SetFlag(presentation.ResourceHandle(id), presentation.FlagWarning, true, 0)
		l.publish(events.MsgRunsOut, events.ResourcePayload{
			Source:  source,
			Amounts: []events.Amount{{ResourceID: id}},
		})
	}
}

// Snapshot returns every resource as [count, id], in display order.
func (l *Ledger) Snapshot() []resource.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]resource.State, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.resources[id].Snapshot())
	}
	return out
}

// Restore sets the counts of a snapshot. Unknown ids are rejected before
// anything changes.
func (l *Ledger) Restore(states []resource.State) error {
	l.mu.Lock()
	for _, s := range states {
		if _, err := l.lookup(s.ID); err != nil {
			l.mu.Unlock()
			return err
		}
		if s.Count < 0 {
			l.mu.Unlock()
			return fmt.Errorf("resource %q: %w", s.ID, resource.ErrNegativeQuantity)
		}
	}
	for _, s := range states {
		_ = l.resources[s.ID].Set(s.Count)
	}
	l.mu.Unlock()
	l.Render()
	return nil
}

// ResourceView is the display form of one resource.
type ResourceView struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Icon  string  `json:"icon,omitempty"`
	Count float64 `json:"count"`
}

// Views returns every resource in display order.
func (l *Ledger) Views() []ResourceView {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ResourceView, 0, len(l.order))
	for _, id := range l.order {
		r := l.resources[id]
		out = append(out, ResourceView{ID: r.ID, Name: r.Name, Icon: r.Icon, Count: r.Count()})
	}
	return out
}

// Show displays every resource.
func (l *Ledger) Show() {
	for _, id := range l.order {
		l.sink.Show(presentation.ResourceHandle(id))
	}
	l.Render()
}

// Render refreshes the display of every resource.
func (l *Ledger) Render() {
	for _, id := range l.order {
		l.render(id)
	}
}

func (l *Ledger) render(id string) {
	l.mu.Lock()
	r, ok := l.resources[id]
	if !ok {
		l.mu.Unlock()
		return
	}
	view := presentation.View{"id": r.ID, "name": r.Name, "icon": r.Icon, "count": r.Count()}
	cleared := l.warned[id] && r.Count() > 0
	if cleared {
		l.warned[id] = false
	}
	l.mu.Unlock()

	h := presentation.ResourceHandle(id)
	l.sink.Update(h, view)
	if cleared {
		l.sink.SetFlag(h, presentation.FlagWarning, false, 0)
	}
}

func amounts(costs []resource.Cost) []events.Amount {
	out := make([]events.Amount, 0, len(costs))
	for _, c := range costs {
		out = append(out, events.Amount{ResourceID: c.ResourceID, Quantity: c.Amount})
	}
	return out
}
