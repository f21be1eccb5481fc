// Package incident defines incident and event templates and their states.
// This package is PURE and must NOT import any infrastructure packages.
package incident

import (
	"fmt"

	"github.com/MRamiBalles/colony/server/internal/domain/resource"
)

// Kind separates harmful incidents from neutral or helpful events. They
// share a lifecycle and differ in the messages they publish.
type Kind int

const (
	KindEvent Kind = iota
	KindIncident
)

func (k Kind) String() string {
	if k == KindIncident {
		return "incident"
	}
	return "event"
}

// UnmarshalText parses "event" or "incident".
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "event", "":
		*k = KindEvent
	case "incident":
		*k = KindIncident
	default:
		return fmt.Errorf("unknown incident kind %q", b)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// State is the position of an incident in its lifecycle.
type State int

const (
	Idle State = iota
	AwaitingConfirmation
	Running
	Ended
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Running:
		return "running"
	case Ended:
		return "ended"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Target selects who receives the immediate effect.
const (
	TargetAll = "all"
	TargetOne = "one"
)

// Def is the immutable catalog template of an incident or event.
type Def struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description,omitempty"`
	Kind        Kind            `yaml:"kind" json:"kind"`
	Confirm     bool            `yaml:"confirm" json:"confirm"`
	Time        float64         `yaml:"time" json:"time,omitempty"`             // in ticks
	TimeDelta   float64         `yaml:"time_delta" json:"time_delta,omitempty"` // jitter, in ticks
	Energy      float64         `yaml:"energy" json:"energy,omitempty"`         // immediate effect
	Life        float64         `yaml:"life" json:"life,omitempty"`             // immediate effect
	Target      string          `yaml:"target" json:"target,omitempty"`
	Consume     []resource.Cost `yaml:"consume" json:"consume,omitempty"`
	Give        []resource.Cost `yaml:"give" json:"give,omitempty"`
	GivePool    []resource.Cost `yaml:"give_pool" json:"give_pool,omitempty"`
	GiveSpan    int             `yaml:"give_span" json:"give_span,omitempty"`
	MinHours    float64         `yaml:"min_hours" json:"min_hours,omitempty"` // colony age before it can trigger
	Log         string          `yaml:"log" json:"log,omitempty"`
	EndLog      string          `yaml:"end_log" json:"end_log,omitempty"`
}

// Snapshot is the persisted state of a running incident.
type Snapshot struct {
	ID          string `json:"id"`
	RemainingMs int64  `json:"remainingMs"`
}
