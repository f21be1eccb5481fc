package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/domain/action"
	"github.com/MRamiBalles/colony/server/internal/domain/resource"
	"github.com/MRamiBalles/colony/server/internal/domain/save"
	"github.com/MRamiBalles/colony/server/internal/events"
)

// SaveStore persists colony snapshots.
type SaveStore interface {
	Persist(ctx context.Context, snap save.Snapshot) error
	Load(ctx context.Context) (save.Snapshot, error)
	HasData(ctx context.Context) (bool, error)
	Clear(ctx context.Context) error
}

// Snapshot captures the colony. Running cooldowns and incidents keep the
// time they have left.
func (e *Engine) Snapshot() save.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) snapshot() save.Snapshot {
	w := e.w
	snap := save.Snapshot{
		Version:   save.Version,
		ID:        uuid.NewString(),
		SavedAt:   e.clock.Now(),
		Colony:    *w.Colony,
		Resources: w.Ledger.Snapshot(),
	}
	snap.Colony.Buildings = append([]string{}, w.Colony.Buildings...)
	for _, p := range w.People.Alive() {
		snap.People = append(snap.People, p.Snapshot())
	}
	for _, in := range e.incidents.Active() {
		if s := in.Snapshot(); s != nil {
			snap.Incidents = append(snap.Incidents, *s)
		}
	}
	return snap
}

// Save persists a snapshot, publishes SAVE and refreshes the view cache.
func (e *Engine) Save(ctx context.Context) error {
	if e.store == nil {
		return ErrNoStore
	}
	snap := e.Snapshot()
	err := e.store.Persist(ctx, snap)
	e.w.Metrics.RecordSave(err)
	if err != nil {
		return fmt.Errorf("failed to persist colony: %w", err)
	}

	e.mu.Lock()
	e.w.publish(events.MsgSave, nil)
	view := e.view()
	e.mu.Unlock()

	if e.cache != nil {
		if err := e.cache.StoreView(ctx, view.ID, view); err != nil {
			e.w.Log.Warn("failed to cache colony view", zap.Error(err))
		}
	}
	e.w.Log.Info("colony saved", zap.String("save", snap.ID), zap.Int("people", len(snap.People)))
	return nil
}

// Load restores the stored colony. It returns false, leaving the engine
// untouched, when there is nothing to load or the save cannot be used;
// the caller then founds a fresh colony.
func (e *Engine) Load(ctx context.Context) bool {
	if e.store == nil {
		return false
	}
	ok, err := e.store.HasData(ctx)
	if err != nil {
		e.w.Log.Warn("failed to check for a saved colony", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	snap, err := e.store.Load(ctx)
	if err != nil {
		e.w.Log.Warn("failed to load colony, starting fresh", zap.Error(err))
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.restore(snap); err != nil {
		e.w.Log.Warn("saved colony is unusable, starting fresh", zap.Error(err))
		return false
	}
	e.w.Log.Info("colony loaded", zap.String("colony", snap.Colony.ID), zap.Int("people", len(snap.People)))
	return true
}

// Restore replaces the running colony with a snapshot.
func (e *Engine) Restore(snap save.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restore(snap)
}

func (e *Engine) restore(snap save.Snapshot) error {
	if snap.Version != save.Version {
		return fmt.Errorf("unsupported save version %d", snap.Version)
	}
	w := e.w

	// Validate the whole snapshot before touching anything.
	defs := make(map[string]action.Def)
	seen := make(map[string]bool, len(snap.People))
	for _, p := range snap.People {
		if seen[p.ID] {
			return fmt.Errorf("person %s saved twice", p.ID)
		}
		seen[p.ID] = true
		owned := make(map[string]bool, len(p.Actions))
		for _, a := range p.Actions {
			def, err := w.Catalog.Action(a.ID)
			if err != nil {
				return err
			}
			defs[a.ID] = def
			owned[a.ID] = true
		}
		if p.Busy != nil {
			if !owned[p.Busy.ID] {
				return fmt.Errorf("person %s busy with %q: %w", p.ID, p.Busy.ID, ErrUnknownAction)
			}
			if p.Busy.RemainingMs < 0 {
				return fmt.Errorf("person %s busy with %q for %dms", p.ID, p.Busy.ID, p.Busy.RemainingMs)
			}
		}
	}
	for _, in := range snap.Incidents {
		if _, err := w.Catalog.Incident(in.ID); err != nil {
			return err
		}
		if in.RemainingMs < 0 {
			return fmt.Errorf("incident %s with %dms left", in.ID, in.RemainingMs)
		}
	}
	for _, r := range snap.Resources {
		if _, err := w.Catalog.Resource(r.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownResource, err)
		}
		if r.Count < 0 {
			return fmt.Errorf("resource %q: %w", r.ID, resource.ErrNegativeQuantity)
		}
	}

	w.Timers.ClearAll()
	e.incidents.clear()
	for _, p := range w.People.All() {
		for _, a := range p.Actions() {
			a.retire()
		}
		p.remove()
	}
	w.People = newRoster()
	if err := w.Ledger.Restore(snap.Resources); err != nil {
		return err
	}
	*w.Colony = snap.Colony
	if w.Colony.Buildings == nil {
		w.Colony.Buildings = []string{}
	}
	e.paused = false
	e.lost = false
	e.nextID = 0

	w.Ledger.Show()
	for _, ps := range snap.People {
		p := newPerson(w, ps.ID, ps.Name)
		p.vitals = ps.Vitals
		w.People.add(p)
		p.show()
		for _, as := range ps.Actions {
			if err := p.AddAction(defs[as.ID]); err != nil {
				return err
			}
			if a, ok := p.Action(as.ID); ok {
				a.repeated = as.Repeated
			}
		}
		if ps.Busy != nil {
			a, ok := p.Action(ps.Busy.ID)
			if !ok {
				return fmt.Errorf("person %s busy with %q: %w", ps.ID, ps.Busy.ID, ErrUnknownAction)
			}
			a.start(time.Duration(ps.Busy.RemainingMs) * time.Millisecond)
		}
		p.render(p.View())
		if n := idNumber(ps.ID); n > e.nextID {
			e.nextID = n
		}
	}
	for _, in := range snap.Incidents {
		if err := e.incidents.resume(in.ID, time.Duration(in.RemainingMs)*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// idNumber extracts n from ids of the form "p<n>".
func idNumber(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "p"))
	if err != nil {
		return 0
	}
	return n
}
