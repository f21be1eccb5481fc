// Package storage provides the persistence layer for the colony server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MRamiBalles/colony/server/internal/events"
)

// ErrNoSave is returned by Load when the slot is empty.
var ErrNoSave = errors.New("no saved colony")

// DefaultSlot is the save slot used when none is given.
const DefaultSlot = "current"

// StoredEvent is the persisted form of a journal entry.
type StoredEvent struct {
	ID        string          `json:"id" db:"id"`
	ColonyID  string          `json:"colony_id" db:"colony_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	EventType string          `json:"event_type" db:"event_type"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
}

// EventRepository defines the interface for event persistence.
// The engine only sees events.EventPersister; queries serve the HTTP layer.
type EventRepository interface {
	// Append adds a new event to the immutable journal.
	Append(ctx context.Context, event StoredEvent) error

	// ByColony retrieves all events of a colony, oldest first.
	ByColony(ctx context.Context, colonyID string) ([]StoredEvent, error)

	// ByActor retrieves all events of one actor.
	ByActor(ctx context.Context, colonyID, actorID string) ([]StoredEvent, error)

	// ByType retrieves all events of one message type.
	ByType(ctx context.Context, colonyID, eventType string) ([]StoredEvent, error)

	// Since retrieves the events recorded after t.
	Since(ctx context.Context, colonyID string, t time.Time) ([]StoredEvent, error)
}

// JournalPersister adapts an EventRepository to the journal of one colony.
type JournalPersister struct {
	repo     EventRepository
	colonyID string
}

// NewJournalPersister binds repo to a colony.
func NewJournalPersister(repo EventRepository, colonyID string) *JournalPersister {
	return &JournalPersister{repo: repo, colonyID: colonyID}
}

// Append implements events.EventPersister.
func (p *JournalPersister) Append(ctx context.Context, entry events.Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return p.repo.Append(ctx, StoredEvent{
		ID:        entry.ID,
		ColonyID:  p.colonyID,
		Timestamp: entry.Timestamp,
		EventType: entry.TypeName,
		ActorID:   entry.ActorID,
		Payload:   payload,
	})
}

var _ events.EventPersister = (*JournalPersister)(nil)
