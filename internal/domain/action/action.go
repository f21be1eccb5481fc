// Package action defines action templates and the action state machine states.
// This package is PURE and must NOT import any infrastructure packages.
package action

import "github.com/MRamiBalles/colony/server/internal/domain/resource"

// State is the position of an action instance in its lifecycle.
type State int

const (
	Locked  State = iota // unlocked for the owner but currently unaffordable
	Ready                // affordable, can be clicked
	Running              // cooldown timer active
	Retired              // removed by a LOCK directive
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Retired:
		return "retired"
	}
	return "unknown"
}

// Def is the immutable catalog template of an action.
type Def struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description,omitempty"`
	Time        float64         `yaml:"time" json:"time"` // in-game hours
	Consume     []resource.Cost `yaml:"consume" json:"consume,omitempty"`
	Give        []resource.Cost `yaml:"give" json:"give,omitempty"`
	Unlock      []string        `yaml:"unlock" json:"unlock,omitempty"`
	UnlockAfter int             `yaml:"unlock_after" json:"unlock_after,omitempty"` // completions needed before Unlock applies
	Lock        []string        `yaml:"lock" json:"lock,omitempty"`
	Relaxing    float64         `yaml:"relaxing" json:"relaxing,omitempty"` // energy restored per hour, as a factor of the busy drain
	Build       string          `yaml:"build" json:"build,omitempty"`
	Win         bool            `yaml:"win" json:"win,omitempty"`
	Log         string          `yaml:"log" json:"log,omitempty"` // personified on start
}

// IsRelaxing reports whether the action restores energy.
func (d Def) IsRelaxing() bool {
	return d.Relaxing > 0
}

// UnlocksAt reports whether the unlock list applies on the given completion count.
func (d Def) UnlocksAt(repeated int) bool {
	return repeated >= d.UnlockAfter
}

// Snapshot is the persisted state of an action: {id, repeated}.
type Snapshot struct {
	ID       string `json:"id"`
	Repeated int    `json:"repeated"`
}
