package engine

import (
	"errors"
	"time"

	"github.com/MRamiBalles/colony/server/internal/domain/incident"
	"github.com/MRamiBalles/colony/server/internal/domain/resource"
	"github.com/MRamiBalles/colony/server/internal/domain/rules"
	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/presentation"
	"github.com/MRamiBalles/colony/server/internal/timers"
)

// Incident is a running instance of an incident or event template.
//
//	Idle -> AwaitingConfirmation -> Running -> Ended
//	                                Running -> Cancelled
type Incident struct {
	Model
	w        *World
	def      incident.Def
	state    incident.State
	timer    timers.Handle
	target   *Person // chosen victim for single target definitions
	duration time.Duration
}

func newIncident(w *World, def incident.Def) *Incident {
	return &Incident{
		Model: newModel(presentation.IncidentHandle(def.ID), w.Sink),
		w:     w,
		def:   def,
	}
}

func (in *Incident) ID() string            { return in.def.ID }
func (in *Incident) Def() incident.Def     { return in.def }
func (in *Incident) State() incident.State { return in.state }

// Active reports whether the incident still waits or runs.
func (in *Incident) Active() bool {
	return in.state == incident.AwaitingConfirmation || in.state == incident.Running
}

// Start asks for confirmation, or runs straight away when the definition
// needs none. It returns false unless the incident was Idle.
func (in *Incident) Start() bool {
	if in.state != incident.Idle {
		return false
	}
	if !in.def.Confirm {
		return in.Run(nil)
	}
	in.state = incident.AwaitingConfirmation
	in.show()
	in.sink.Prompt(in.handle, in.View())
	return true
}

// Decline drops an incident waiting for confirmation, without effect.
func (in *Incident) Decline() bool {
	if in.state != incident.AwaitingConfirmation {
		return false
	}
	in.state = incident.Ended
	in.remove()
	return true
}

// Run applies the immediate effect and schedules the end. forced, when
// set, replaces the drawn duration.
func (in *Incident) Run(forced *time.Duration) bool {
	switch {
	case in.state == incident.AwaitingConfirmation:
	case in.state == incident.Idle && !in.def.Confirm:
	default:
		return false
	}
	in.state = incident.Running
	in.show()

	victims := in.victims()
	for _, p := range victims {
		if in.def.Energy != 0 {
			p.UpdateEnergy(in.def.Energy)
		}
		if in.def.Life != 0 {
			p.UpdateLife(in.def.Life)
		}
	}
	if _, err := in.w.Ledger.Drain(in.def.ID, in.def.Consume); err != nil {
		in.w.logError("incident consumption failed", err)
	}
	in.w.chronicle(in.def.Log, in.target)

	if forced != nil {
		in.duration = *forced
	} else {
		in.duration = rules.IncidentDuration(in.def.Time, in.def.TimeDelta, in.w.Config.TickLength, in.w.Rand)
	}
	in.w.publish(in.startType(), in.payload(false))

	if in.duration <= 0 {
		in.End()
		return true
	}
	in.timer = in.w.Timers.Schedule(in.End, in.duration)
	in.flag(presentation.FlagBusy, true, in.duration)
	in.render(in.View())
	return true
}

// resume puts a persisted running incident back on its timer without
// replaying its immediate effect.
func (in *Incident) resume(remaining time.Duration) {
	in.state = incident.Running
	in.duration = remaining
	in.show()
	in.timer = in.w.Timers.Schedule(in.End, remaining)
	in.render(in.View())
}

func (in *Incident) victims() []*Person {
	alive := in.w.People.Alive()
	if len(alive) == 0 {
		return nil
	}
	if in.def.Target == incident.TargetOne {
		in.target = alive[in.w.Rand.Intn(len(alive))]
		return []*Person{in.target}
	}
	return alive
}

// Cancel ends a running incident early. It returns false otherwise.
func (in *Incident) Cancel() bool {
	if in.state != incident.Running {
		return false
	}
	if in.timer != 0 {
		if err := in.w.Timers.Clear(in.timer); err != nil && !errors.Is(err, timers.ErrNotFound) {
			in.w.logError("failed to clear incident timer", err)
		}
	}
	in.end(true)
	return true
}

// End applies the closing effect. The handle is zeroed before anything
// else and only a Running incident ends, so it applies at most once.
func (in *Incident) End() {
	in.end(false)
}

func (in *Incident) end(cancelled bool) {
	in.timer = 0
	if in.state != incident.Running {
		return
	}
	if cancelled {
		in.state = incident.Cancelled
	} else {
		in.state = incident.Ended
	}

	gains := in.def.Give
	if len(in.def.GivePool) > 0 {
		gains = append(append([]resource.Cost(nil), gains...), rules.PickGive(in.def.GivePool, in.def.GiveSpan, in.w.Rand)...)
	}
	if err := in.w.Ledger.Give(in.def.ID, gains); err != nil {
		in.w.logError("incident reward failed", err)
	}
	in.w.publish(in.endType(), in.payload(cancelled))
	in.w.chronicle(in.def.EndLog, in.target)
	in.remove()
}

func (in *Incident) startType() events.MessageType {
	if in.def.Kind == incident.KindIncident {
		return events.MsgIncidentStart
	}
	return events.MsgEventStart
}

func (in *Incident) endType() events.MessageType {
	if in.def.Kind == incident.KindIncident {
		return events.MsgIncidentEnd
	}
	return events.MsgEventEnd
}

func (in *Incident) payload(cancelled bool) events.IncidentPayload {
	return events.IncidentPayload{
		IncidentID: in.def.ID,
		Name:       in.def.Name,
		DurationMs: in.duration.Milliseconds(),
		Cancelled:  cancelled,
	}
}

// Remaining returns the time left while Running.
func (in *Incident) Remaining() time.Duration {
	if in.state != incident.Running || in.timer == 0 {
		return 0
	}
	left, err := in.w.Timers.Remaining(in.timer)
	if err != nil {
		return 0
	}
	return left
}

// Snapshot returns the persisted form, or nil unless Running.
func (in *Incident) Snapshot() *incident.Snapshot {
	if in.state != incident.Running {
		return nil
	}
	return &incident.Snapshot{ID: in.def.ID, RemainingMs: in.Remaining().Milliseconds()}
}

// IncidentView is the display form of an incident.
type IncidentView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	RemainingMs int64  `json:"remainingMs,omitempty"`
}

func (in *Incident) view() IncidentView {
	return IncidentView{
		ID:          in.def.ID,
		Name:        in.def.Name,
		Description: in.def.Description,
		Kind:        in.def.Kind.String(),
		State:       in.state.String(),
		RemainingMs: in.Remaining().Milliseconds(),
	}
}

func (in *Incident) View() presentation.View {
	v := in.view()
	return presentation.View{
		"id":          v.ID,
		"name":        v.Name,
		"description": v.Description,
		"kind":        v.Kind,
		"state":       v.State,
		"remainingMs": v.RemainingMs,
	}
}
