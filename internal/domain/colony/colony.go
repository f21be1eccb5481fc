// Package colony defines the colony-wide state shared by every person.
// This package is PURE and must NOT import any infrastructure packages.
package colony

// Colony tracks what the group achieved together.
type Colony struct {
	ID        string   `json:"id"`
	Hours     float64  `json:"hours"`   // in-game hours since founding
	Settled   bool     `json:"settled"` // vitality drain only starts once settled
	Buildings []string `json:"buildings"`
	Won       bool     `json:"won"`
}

// New creates an unsettled colony.
func New(id string) *Colony {
	return &Colony{
		ID:        id,
		Buildings: []string{},
	}
}

// AddBuilding records a building. Returns false if it already stands.
func (c *Colony) AddBuilding(id string) bool {
	if c.HasBuilding(id) {
		return false
	}
	c.Buildings = append(c.Buildings, id)
	return true
}

// HasBuilding reports whether the building stands.
func (c *Colony) HasBuilding(id string) bool {
	for _, b := range c.Buildings {
		if b == id {
			return true
		}
	}
	return false
}

// Settle marks the colony settled once amount reaches threshold. Settling
// is permanent. Returns true on the transition.
func (c *Colony) Settle(amount, threshold float64) bool {
	if c.Settled || amount < threshold {
		return false
	}
	c.Settled = true
	return true
}
