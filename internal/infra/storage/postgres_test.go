package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresAppendUsesPositionalArgs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO events").
		WithArgs("e1", "c1", ts, "CLICK", "p1", []byte(`{"action":"chop"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewPostgresEventRepository(db)
	err = repo.Append(context.Background(), StoredEvent{
		ID: "e1", ColonyID: "c1", Timestamp: ts, EventType: "CLICK", ActorID: "p1",
		Payload: json.RawMessage(`{"action":"chop"}`),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "colony_id", "timestamp", "event_type", "actor_id", "payload"}).
		AddRow("e1", "c1", ts, "ARRIVAL", "p1", []byte(`{"name":"ada"}`)).
		AddRow("e2", "c1", ts.Add(time.Second), "CLICK", "p1", []byte(`null`))
	mock.ExpectQuery("WHERE colony_id = \\$1 AND actor_id = \\$2").
		WithArgs("c1", "p1").
		WillReturnRows(rows)

	events, err := NewPostgresEventRepository(db).ByActor(context.Background(), "c1", "p1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ARRIVAL", events[0].EventType)
	assert.JSONEq(t, `{"name":"ada"}`, string(events[0].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM events").WillReturnError(errors.New("connection reset"))
	_, err = NewPostgresEventRepository(db).ByColony(context.Background(), "c1")
	assert.ErrorContains(t, err, "failed to query events")
}

func TestPostgresSaveStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	store := NewPostgresSaveStore(db, "")
	snap := sampleSnapshot()
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO saves").
		WithArgs(DefaultSlot, "s1", "c1", snap.SavedAt, payload).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Persist(ctx, snap))

	mock.ExpectQuery("SELECT payload FROM saves").
		WithArgs(DefaultSlot).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Colony, loaded.Colony)

	mock.ExpectQuery("SELECT payload FROM saves").
		WithArgs(DefaultSlot).
		WillReturnError(sql.ErrNoRows)
	_, err = store.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoSave))

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(DefaultSlot).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	has, err := store.HasData(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	mock.ExpectExec("DELETE FROM saves").
		WithArgs(DefaultSlot).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Clear(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}
