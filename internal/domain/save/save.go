// Package save defines the persisted shape of a colony.
// This package is PURE and must NOT import any infrastructure packages.
package save

import (
	"time"

	"github.com/MRamiBalles/colony/server/internal/domain/action"
	"github.com/MRamiBalles/colony/server/internal/domain/colony"
	"github.com/MRamiBalles/colony/server/internal/domain/incident"
	"github.com/MRamiBalles/colony/server/internal/domain/person"
	"github.com/MRamiBalles/colony/server/internal/domain/resource"
)

// Version is bumped whenever the shape below changes incompatibly.
const Version = 1

// Snapshot is everything needed to resume a colony.
type Snapshot struct {
	Version   int                 `json:"version"`
	ID        string              `json:"id"` // unique per save
	SavedAt   time.Time           `json:"saved_at"`
	Colony    colony.Colony       `json:"colony"`
	Resources []resource.State    `json:"resources"`
	People    []Person            `json:"people"`
	Incidents []incident.Snapshot `json:"incidents,omitempty"` // running ones only
}

// Person is the persisted state of one colony member.
type Person struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Vitals  person.Vitals     `json:"vitals"`
	Actions []action.Snapshot `json:"actions"`
	Busy    *Busy             `json:"busy,omitempty"`
}

// Busy is the action a person was running and the time it had left.
type Busy struct {
	ID          string `json:"id"`
	RemainingMs int64  `json:"remainingMs"`
}
