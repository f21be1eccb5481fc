package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/domain/action"
	"github.com/MRamiBalles/colony/server/internal/domain/rules"
	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/presentation"
	"github.com/MRamiBalles/colony/server/internal/timers"
)

// Action is one person's instance of an action template.
//
//	Locked <-> Ready -> Running -> Ready|Locked
//	any state -> Retired (LOCK directive)
type Action struct {
	Model
	w        *World
	def      action.Def
	owner    *Person
	state    action.State
	repeated int
	timer    timers.Handle
}

func newAction(w *World, owner *Person, def action.Def) *Action {
	return &Action{
		Model: newModel(presentation.ActionHandle(owner.ID(), def.ID), w.Sink),
		w:     w,
		def:   def,
		owner: owner,
		state: action.Locked,
	}
}

func (a *Action) ID() string          { return a.def.ID }
func (a *Action) Def() action.Def     { return a.def }
func (a *Action) State() action.State { return a.state }
func (a *Action) Repeated() int       { return a.repeated }

// unlock enters the owner's set: consumers are registered and the
// affordability computed.
func (a *Action) unlock() error {
	a.w.Ledger.RegisterConsumer(a.def.Consume)
	a.show()
	return a.Refresh()
}

// Refresh toggles Locked and Ready from affordability. Running and Retired
// actions are left alone. Calling it repeatedly is harmless.
func (a *Action) Refresh() error {
	if a.state == action.Running || a.state == action.Retired {
		return nil
	}
	ok, err := a.w.Ledger.Affordable(a.def.Consume)
	if err != nil {
		return fmt.Errorf("action %s: %w", a.def.ID, err)
	}
	prev := a.state
	if ok {
		a.state = action.Ready
	} else {
		a.state = action.Locked
	}
	if prev != a.state {
		a.flag(presentation.FlagDisabled, a.state == action.Locked, 0)
	}
	a.render(a.View())
	return nil
}

// Click starts the action. It returns false, doing nothing, when the owner
// is busy, dead or tired, when the action is not Ready, or when the ledger
// cannot pay the full cost.
func (a *Action) Click() (bool, error) {
	started, err := a.click()
	a.w.publish(events.MsgClick, events.ActionPayload{
		PersonID: a.owner.ID(),
		ActionID: a.def.ID,
		Started:  started,
	})
	return started, err
}

func (a *Action) click() (bool, error) {
	if a.owner.Busy() != nil || a.owner.Dead() || a.owner.Tired() {
		return false, nil
	}
	if a.state != action.Ready {
		return false, nil
	}
	ok, err := a.w.Ledger.Consume(a.def.ID, a.def.Consume)
	if err != nil {
		return false, fmt.Errorf("action %s: %w", a.def.ID, err)
	}
	if !ok {
		return false, a.Refresh()
	}

	a.start(a.w.duration(a.def.Time))
	a.w.chronicle(a.def.Log, a.owner)
	return true, nil
}

// start marks the owner busy and schedules completion after d.
func (a *Action) start(d time.Duration) {
	a.owner.busy = a
	a.state = action.Running
	a.timer = a.w.Timers.Schedule(a.complete, d)
	a.flag(presentation.FlagCooldown, true, d)
	a.owner.render(a.owner.View())
	a.render(a.View())
}

// complete runs when the cooldown timer fires. The handle is zeroed first
// so a second call is a no-op.
func (a *Action) complete() {
	a.timer = 0
	if a.state != action.Running {
		return
	}
	if err := a.finish(); err != nil {
		a.w.logError("action completion failed", err,
			zap.String("person", a.owner.ID()), zap.String("action", a.def.ID))
	}
}

func (a *Action) finish() error {
	owner := a.owner
	owner.busy = nil
	a.state = action.Ready
	a.repeated++
	a.flag(presentation.FlagCooldown, false, 0)

	if !a.def.IsRelaxing() {
		owner.UpdateEnergy(rules.ActionDrain(a.def.Time, a.w.Config.ActionEnergyPerHour))
	}
	var errs []error
	if err := a.w.Ledger.Give(a.def.ID, a.def.Give); err != nil {
		errs = append(errs, err)
	}
	if a.def.Build != "" && a.w.Colony.AddBuilding(a.def.Build) {
		a.w.publish(events.MsgBuild, events.ActionPayload{
			PersonID: owner.ID(),
			ActionID: a.def.ID,
			Targets:  []string{a.def.Build},
		})
	}
	if !owner.Dead() {
		if len(a.def.Unlock) > 0 && a.def.UnlocksAt(a.repeated) {
			if err := owner.unlockIDs(a.def.ID, a.def.Unlock); err != nil {
				errs = append(errs, err)
			}
		}
		if len(a.def.Lock) > 0 {
			owner.LockAction(a.def.Lock...)
			a.w.publish(events.MsgLock, events.ActionPayload{
				PersonID: owner.ID(),
				ActionID: a.def.ID,
				Targets:  a.def.Lock,
			})
		}
	}
	if a.def.Win && !a.w.Colony.Won {
		a.w.Colony.Won = true
		a.w.Log.Event("WIN", owner.ID(), a.def.ID)
		a.w.publish(events.MsgWin, events.ActionPayload{PersonID: owner.ID(), ActionID: a.def.ID})
	}
	a.w.Metrics.RecordActionCompleted(a.def.ID)

	if err := a.Refresh(); err != nil {
		errs = append(errs, err)
	}
	owner.render(owner.View())
	return errors.Join(errs...)
}

// cancel stops a running action without completing it.
func (a *Action) cancel() {
	if a.state != action.Running {
		return
	}
	if a.timer != 0 {
		if err := a.w.Timers.Clear(a.timer); err != nil && !errors.Is(err, timers.ErrNotFound) {
			a.w.logError("failed to clear action timer", err)
		}
		a.timer = 0
	}
	if a.owner.busy == a {
		a.owner.busy = nil
	}
	a.state = action.Locked
	a.flag(presentation.FlagCooldown, false, 0)
}

// retire removes the action for good.
func (a *Action) retire() {
	a.cancel()
	if a.state == action.Retired {
		return
	}
	a.state = action.Retired
	a.w.Ledger.ReleaseConsumer(a.def.Consume)
	a.remove()
}

// Remaining returns the cooldown left while Running.
func (a *Action) Remaining() time.Duration {
	if a.state != action.Running || a.timer == 0 {
		return 0
	}
	left, err := a.w.Timers.Remaining(a.timer)
	if err != nil {
		return 0
	}
	return left
}

// Snapshot returns the persisted form {id, repeated}.
func (a *Action) Snapshot() action.Snapshot {
	return action.Snapshot{ID: a.def.ID, Repeated: a.repeated}
}

// ActionView is the display form of an action.
type ActionView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	State       string `json:"state"`
	Repeated    int    `json:"repeated"`
	RemainingMs int64  `json:"remainingMs,omitempty"`
}

func (a *Action) view() ActionView {
	return ActionView{
		ID:          a.def.ID,
		Name:        a.def.Name,
		Description: a.def.Description,
		State:       a.state.String(),
		Repeated:    a.repeated,
		RemainingMs: a.Remaining().Milliseconds(),
	}
}

func (a *Action) View() presentation.View {
	v := a.view()
	return presentation.View{
		"id":          v.ID,
		"person":      a.owner.ID(),
		"name":        v.Name,
		"state":       v.State,
		"repeated":    v.Repeated,
		"remainingMs": v.RemainingMs,
	}
}
