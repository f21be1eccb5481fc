package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MRamiBalles/colony/server/internal/domain/save"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payload := string(event.Payload)
	if payload == "" {
		payload = "null"
	}
	query := `
		INSERT INTO events (id, colony_id, timestamp, event_type, actor_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.ColonyID, event.Timestamp.UTC(), event.EventType, event.ActorID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

const sqliteEventColumns = `SELECT id, colony_id, timestamp, event_type, actor_id, payload FROM events`

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payload string
		if err := rows.Scan(&e.ID, &e.ColonyID, &e.Timestamp, &e.EventType, &e.ActorID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) ByColony(ctx context.Context, colonyID string) ([]StoredEvent, error) {
	query := sqliteEventColumns + ` WHERE colony_id = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, colonyID)
}

func (r *SQLiteEventRepository) ByActor(ctx context.Context, colonyID, actorID string) ([]StoredEvent, error) {
	query := sqliteEventColumns + ` WHERE colony_id = ? AND actor_id = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, colonyID, actorID)
}

func (r *SQLiteEventRepository) ByType(ctx context.Context, colonyID, eventType string) ([]StoredEvent, error) {
	query := sqliteEventColumns + ` WHERE colony_id = ? AND event_type = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, colonyID, eventType)
}

func (r *SQLiteEventRepository) Since(ctx context.Context, colonyID string, t time.Time) ([]StoredEvent, error) {
	query := sqliteEventColumns + ` WHERE colony_id = ? AND timestamp > ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, colonyID, t.UTC())
}

var _ EventRepository = (*SQLiteEventRepository)(nil)

// ---------------------------------------------------------
// SQLiteSaveStore
// ---------------------------------------------------------

// SQLiteSaveStore keeps one colony snapshot per slot.
type SQLiteSaveStore struct {
	db   *sql.DB
	slot string
}

func NewSQLiteSaveStore(db *sql.DB, slot string) *SQLiteSaveStore {
	if slot == "" {
		slot = DefaultSlot
	}
	return &SQLiteSaveStore{db: db, slot: slot}
}

func (s *SQLiteSaveStore) Persist(ctx context.Context, snap save.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal save: %w", err)
	}
	query := `
		INSERT INTO saves (slot, save_id, colony_id, saved_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			save_id=excluded.save_id,
			colony_id=excluded.colony_id,
			saved_at=excluded.saved_at,
			payload=excluded.payload
	`
	if _, err := s.db.ExecContext(ctx, query, s.slot, snap.ID, snap.Colony.ID, snap.SavedAt.UTC(), string(payload)); err != nil {
		return fmt.Errorf("failed to persist save: %w", err)
	}
	return nil
}

func (s *SQLiteSaveStore) Load(ctx context.Context) (save.Snapshot, error) {
	var snap save.Snapshot
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM saves WHERE slot = ?`, s.slot).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, ErrNoSave
		}
		return snap, fmt.Errorf("failed to load save: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return snap, fmt.Errorf("failed to decode save: %w", err)
	}
	return snap, nil
}

func (s *SQLiteSaveStore) HasData(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM saves WHERE slot = ?`, s.slot).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check save: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteSaveStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM saves WHERE slot = ?`, s.slot); err != nil {
		return fmt.Errorf("failed to clear save: %w", err)
	}
	return nil
}
