// Package presentation is the boundary between the simulation and whatever
// draws it. The simulation only ever talks to a Sink.
package presentation

import (
	"sync"
	"time"
)

// Handle identifies one displayed entity, usually "<kind>:<id>".
type Handle string

// Flag is a visual state toggled on a handle.
type Flag string

const (
	FlagCooldown Flag = "cooldown"
	FlagDisabled Flag = "disabled"
	FlagWarning  Flag = "warning"
	FlagDying    Flag = "dying"
	FlagBusy     Flag = "busy"
)

// View is the render data of an entity.
type View map[string]any

// Sink receives presentation updates.
type Sink interface {
	Show(h Handle)
	Hide(h Handle)
	Remove(h Handle)
	Update(h Handle, v View)
	// SetFlag toggles f on h. A positive d asks the sink to clear it after d.
	SetFlag(h Handle, f Flag, on bool, d time.Duration)
	// Prompt asks the player to acknowledge something, such as an incident.
	Prompt(h Handle, v View)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Show(Handle)                               {}
func (Nop) Hide(Handle)                               {}
func (Nop) Remove(Handle)                             {}
func (Nop) Update(Handle, View)                       {}
func (Nop) SetFlag(Handle, Flag, bool, time.Duration) {}
func (Nop) Prompt(Handle, View)                       {}

// Call is one recorded sink invocation.
type Call struct {
	Op     string
	Handle Handle
	View   View
	Flag   Flag
	On     bool
	For    time.Duration
}

// Recorder keeps every call in memory. Tests and the scenario runner use it.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) add(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *Recorder) Show(h Handle)   { r.add(Call{Op: "show", Handle: h}) }
func (r *Recorder) Hide(h Handle)   { r.add(Call{Op: "hide", Handle: h}) }
func (r *Recorder) Remove(h Handle) { r.add(Call{Op: "remove", Handle: h}) }
func (r *Recorder) Update(h Handle, v View) {
	r.add(Call{Op: "update", Handle: h, View: v})
}
func (r *Recorder) SetFlag(h Handle, f Flag, on bool, d time.Duration) {
	r.add(Call{Op: "flag", Handle: h, Flag: f, On: on, For: d})
}
func (r *Recorder) Prompt(h Handle, v View) {
	r.add(Call{Op: "prompt", Handle: h, View: v})
}

// Calls returns a copy of the recorded calls, optionally filtered by op.
func (r *Recorder) Calls(ops ...string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(ops) == 0 {
		return append([]Call(nil), r.calls...)
	}
	var out []Call
	for _, c := range r.calls {
		for _, op := range ops {
			if c.Op == op {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Last returns the most recent call on h with the given op.
func (r *Recorder) Last(op string, h Handle) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].Op == op && r.calls[i].Handle == h {
			return r.calls[i], true
		}
	}
	return Call{}, false
}

// Fanout forwards every call to several sinks.
type Fanout []Sink

func (f Fanout) Show(h Handle) {
	for _, s := range f {
		s.Show(h)
	}
}
func (f Fanout) Hide(h Handle) {
	for _, s := range f {
		s.Hide(h)
	}
}
func (f Fanout) Remove(h Handle) {
	for _, s := range f {
		s.Remove(h)
	}
}
func (f Fanout) Update(h Handle, v View) {
	for _, s := range f {
		s.Update(h, v)
	}
}
func (f Fanout) SetFlag(h Handle, fl Flag, on bool, d time.Duration) {
	for _, s := range f {
		s.SetFlag(h, fl, on, d)
	}
}
func (f Fanout) Prompt(h Handle, v View) {
	for _, s := range f {
		s.Prompt(h, v)
	}
}

// Handles for the entity kinds of the simulation.

func ResourceHandle(id string) Handle { return Handle("resource:" + id) }
func PersonHandle(id string) Handle   { return Handle("person:" + id) }
func ActionHandle(personID, actionID string) Handle {
	return Handle("action:" + personID + "/" + actionID)
}
func IncidentHandle(id string) Handle { return Handle("incident:" + id) }
