package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/MRamiBalles/colony/server/internal/domain/save"
)

var postgresSchemas = []string{
	`CREATE TABLE IF NOT EXISTS saves (
		slot TEXT PRIMARY KEY,
		save_id TEXT NOT NULL,
		colony_id TEXT NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		colony_id TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		event_type TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		payload JSONB
	);`,
	`CREATE INDEX IF NOT EXISTS idx_events_colony ON events(colony_id, timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_events_actor ON events(colony_id, actor_id);`,
}

// OpenPostgres connects to PostgreSQL and ensures the schema exists.
func OpenPostgres(dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := createSchemas(db, postgresSchemas); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// PostgresEventRepository implements EventRepository using PostgreSQL.
type PostgresEventRepository struct {
	db *sql.DB
}

// NewPostgresEventRepository creates a new PostgreSQL event repository.
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

// Append inserts a new event into the immutable journal.
func (r *PostgresEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payload := []byte(event.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	query := `
		INSERT INTO events (id, colony_id, timestamp, event_type, actor_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.ColonyID,
		event.Timestamp,
		event.EventType,
		event.ActorID,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

const postgresEventColumns = `SELECT id, colony_id, timestamp, event_type, actor_id, payload FROM events`

// ByColony retrieves the whole journal of a colony.
func (r *PostgresEventRepository) ByColony(ctx context.Context, colonyID string) ([]StoredEvent, error) {
	return r.queryEvents(ctx, postgresEventColumns+` WHERE colony_id = $1 ORDER BY timestamp ASC`, colonyID)
}

// ByActor retrieves all events concerning one person or incident.
func (r *PostgresEventRepository) ByActor(ctx context.Context, colonyID, actorID string) ([]StoredEvent, error) {
	return r.queryEvents(ctx, postgresEventColumns+` WHERE colony_id = $1 AND actor_id = $2 ORDER BY timestamp ASC`, colonyID, actorID)
}

// ByType retrieves all events of a specific type.
func (r *PostgresEventRepository) ByType(ctx context.Context, colonyID, eventType string) ([]StoredEvent, error) {
	return r.queryEvents(ctx, postgresEventColumns+` WHERE colony_id = $1 AND event_type = $2 ORDER BY timestamp ASC`, colonyID, eventType)
}

// Since retrieves the events recorded after t.
func (r *PostgresEventRepository) Since(ctx context.Context, colonyID string, t time.Time) ([]StoredEvent, error) {
	return r.queryEvents(ctx, postgresEventColumns+` WHERE colony_id = $1 AND timestamp > $2 ORDER BY timestamp ASC`, colonyID, t)
}

func (r *PostgresEventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.ColonyID, &e.Timestamp, &e.EventType, &e.ActorID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ EventRepository = (*PostgresEventRepository)(nil)

// PostgresSaveStore keeps one colony snapshot per slot in PostgreSQL.
type PostgresSaveStore struct {
	db   *sql.DB
	slot string
}

func NewPostgresSaveStore(db *sql.DB, slot string) *PostgresSaveStore {
	if slot == "" {
		slot = DefaultSlot
	}
	return &PostgresSaveStore{db: db, slot: slot}
}

func (s *PostgresSaveStore) Persist(ctx context.Context, snap save.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal save: %w", err)
	}
	query := `
		INSERT INTO saves (slot, save_id, colony_id, saved_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slot) DO UPDATE SET
			save_id = EXCLUDED.save_id,
			colony_id = EXCLUDED.colony_id,
			saved_at = EXCLUDED.saved_at,
			payload = EXCLUDED.payload
	`
	if _, err := s.db.ExecContext(ctx, query, s.slot, snap.ID, snap.Colony.ID, snap.SavedAt, payload); err != nil {
		return fmt.Errorf("failed to persist save: %w", err)
	}
	return nil
}

func (s *PostgresSaveStore) Load(ctx context.Context) (save.Snapshot, error) {
	var snap save.Snapshot
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM saves WHERE slot = $1`, s.slot).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, ErrNoSave
		}
		return snap, fmt.Errorf("failed to load save: %w", err)
	}
	if err := json.Unmarshal(payload, &snap); err != nil {
		return snap, fmt.Errorf("failed to decode save: %w", err)
	}
	return snap, nil
}

func (s *PostgresSaveStore) HasData(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM saves WHERE slot = $1)`, s.slot).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check save: %w", err)
	}
	return exists, nil
}

func (s *PostgresSaveStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM saves WHERE slot = $1`, s.slot); err != nil {
		return fmt.Errorf("failed to clear save: %w", err)
	}
	return nil
}
