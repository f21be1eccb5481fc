// Package resource defines countable colony resources.
// This package is PURE and must NOT import any infrastructure packages.
package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrNegativeQuantity is returned by mutations that would drive a count
// below zero. The count is left unchanged.
var ErrNegativeQuantity = errors.New("resource quantity would become negative")

// Def is the immutable catalog template of a resource.
type Def struct {
	ID    string  `yaml:"id" json:"id"`
	Name  string  `yaml:"name" json:"name"`
	Icon  string  `yaml:"icon" json:"icon,omitempty"`
	Order int     `yaml:"order" json:"order"`
	Start float64 `yaml:"start" json:"start,omitempty"`
}

// Cost is an amount of one resource, used for consume and give tables.
type Cost struct {
	Amount     float64 `yaml:"amount" json:"amount"`
	ResourceID string  `yaml:"resource" json:"resource"`
}

// Resource is a named quantity that is never negative.
type Resource struct {
	Def
	count float64
}

// New instantiates a resource from its template at its start quantity.
func New(def Def) *Resource {
	start := def.Start
	if start < 0 {
		start = 0
	}
	return &Resource{Def: def, count: start}
}

// Count returns the current quantity.
func (r *Resource) Count() float64 {
	return r.count
}

// Update applies delta. A result within float noise of zero lands on zero.
func (r *Resource) Update(delta float64) error {
	next := r.count + delta
	if next < 0 {
		if !NearlyEqual(r.count, -delta) {
			return fmt.Errorf("%s: %v%+v: %w", r.ID, r.count, delta, ErrNegativeQuantity)
		}
		next = 0
	}
	r.count = next
	return nil
}

// Set replaces the quantity.
func (r *Resource) Set(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("%s: set %v: %w", r.ID, amount, ErrNegativeQuantity)
	}
	r.count = amount
	return nil
}

// Has reports whether at least amount is available, treating values equal
// within float noise as equal.
func (r *Resource) Has(amount float64) bool {
	return r.count >= amount || NearlyEqual(r.count, amount)
}

// MarshalJSON encodes the resource as [count, id].
func (r *Resource) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.count, r.ID})
}

// State is the persisted form of a resource: [count, id].
type State struct {
	Count float64
	ID    string
}

// MarshalJSON encodes the state as [count, id].
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Count, s.ID})
}

// UnmarshalJSON decodes [count, id].
func (s *State) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("resource state: want [count, id], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &s.Count); err != nil {
		return fmt.Errorf("resource state count: %w", err)
	}
	if err := json.Unmarshal(raw[1], &s.ID); err != nil {
		return fmt.Errorf("resource state id: %w", err)
	}
	return nil
}

// Snapshot returns the persisted form.
func (r *Resource) Snapshot() State {
	return State{Count: r.count, ID: r.ID}
}

// NearlyEqual compares two quantities within a few ulps scaled by their
// magnitude.
func NearlyEqual(a, b float64) bool {
	const ulps = 4
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= ulps*epsilon*scale
}

// epsilon is the gap between 1.0 and the next float64.
var epsilon = math.Nextafter(1, 2) - 1
