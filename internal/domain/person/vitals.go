// Package person defines the vitality rules of colony members.
// This package is PURE and must NOT import any infrastructure packages.
package person

// Bounds of every vital.
const (
	Min = 0.0
	Max = 100.0
)

// Vitals are the two counters that keep a person alive.
type Vitals struct {
	Energy float64 `json:"energy"` // 0-100, 0 = exhausted
	Life   float64 `json:"life"`   // 0-100, below 0 = dead
}

// Fresh returns full vitals.
func Fresh() Vitals {
	return Vitals{Energy: Max, Life: Max}
}

// Tired reports whether the person is too exhausted to start an action.
func (v Vitals) Tired() bool {
	return v.Energy <= Min
}

// ApplyEnergy adds delta to energy. Energy that would go below zero is
// returned as overflow, a negative amount the caller turns into life damage.
func (v Vitals) ApplyEnergy(delta float64) (next Vitals, overflow float64) {
	raw := v.Energy + delta
	if raw < Min {
		overflow = raw
	}
	v.Energy = clamp(raw)
	return v, overflow
}

// ApplyLife adds delta to life. dead is true when the raw result went
// below zero.
func (v Vitals) ApplyLife(delta float64) (next Vitals, dead bool) {
	raw := v.Life + delta
	v.Life = clamp(raw)
	return v, raw < Min
}

func clamp(x float64) float64 {
	if x < Min {
		return Min
	}
	if x > Max {
		return Max
	}
	return x
}
