// Package rules contains the pure calculation logic for colony mechanics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"math/rand"
	"time"

	"github.com/MRamiBalles/colony/server/internal/domain/resource"
)

// EnergyRateParams describes what a person is doing during a refresh.
type EnergyRateParams struct {
	Busy      bool
	Relaxing  float64 // factor of the busy action, 0 when not relaxing
	IdleDrain float64 // points per hour
	BusyDrain float64 // points per hour
}

// EnergyRate returns the energy change per in-game hour. Resting restores
// energy at Relaxing times the busy drain.
func EnergyRate(p EnergyRateParams) float64 {
	switch {
	case p.Busy && p.Relaxing > 0:
		return p.Relaxing * p.BusyDrain
	case p.Busy:
		return -p.BusyDrain
	default:
		return -p.IdleDrain
	}
}

// ActionDrain is the energy spent by completing a non relaxing action.
func ActionDrain(hours, perHour float64) float64 {
	return -hours * perHour
}

// IncidentDuration draws the duration of an incident: base ticks plus a
// uniform jitter in [-delta, +delta], scaled by the tick length. The result
// is never negative.
func IncidentDuration(base, delta float64, tick time.Duration, rng *rand.Rand) time.Duration {
	ticks := base
	if delta > 0 {
		ticks += (rng.Float64()*2 - 1) * delta
	}
	if ticks <= 0 {
		return 0
	}
	return time.Duration(ticks * float64(tick))
}

// PickGive draws span distinct entries from pool. A span larger than the
// pool, or not positive, returns the whole pool.
func PickGive(pool []resource.Cost, span int, rng *rand.Rand) []resource.Cost {
	if span <= 0 || span >= len(pool) {
		return append([]resource.Cost(nil), pool...)
	}
	picked := make([]resource.Cost, 0, span)
	for _, i := range rng.Perm(len(pool))[:span] {
		picked = append(picked, pool[i])
	}
	return picked
}

// Roll reports whether an event with the given probability happens.
func Roll(chance float64, rng *rand.Rand) bool {
	return rng.Float64() < chance
}
