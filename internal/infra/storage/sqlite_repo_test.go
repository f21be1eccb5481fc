package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/colony/server/internal/domain/colony"
	"github.com/MRamiBalles/colony/server/internal/domain/resource"
	"github.com/MRamiBalles/colony/server/internal/domain/save"
	"github.com/MRamiBalles/colony/server/internal/events"
)

func newMemoryDB(t *testing.T) *SQLiteEventRepository {
	t.Helper()
	db, err := InitSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteEventRepository(db)
}

func TestSQLiteEventQueries(t *testing.T) {
	repo := newMemoryDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, e := range []StoredEvent{
		{ID: "e1", ColonyID: "c1", EventType: "ARRIVAL", ActorID: "p1", Payload: json.RawMessage(`{"name":"ada"}`)},
		{ID: "e2", ColonyID: "c1", EventType: "CLICK", ActorID: "p1"},
		{ID: "e3", ColonyID: "c1", EventType: "ARRIVAL", ActorID: "p2"},
		{ID: "e4", ColonyID: "c2", EventType: "ARRIVAL", ActorID: "p1"},
	} {
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Append(ctx, e))
	}

	all, err := repo.ByColony(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e1", all[0].ID)
	assert.JSONEq(t, `{"name":"ada"}`, string(all[0].Payload))
	assert.JSONEq(t, `null`, string(all[1].Payload))

	byActor, err := repo.ByActor(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byType, err := repo.ByType(ctx, "c1", "ARRIVAL")
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	since, err := repo.Since(ctx, "c1", base.Add(30*time.Second))
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, "e2", since[0].ID)
}

func TestJournalPersisterWritesEntries(t *testing.T) {
	repo := newMemoryDB(t)
	ctx := context.Background()
	p := NewJournalPersister(repo, "slot")

	err := p.Append(ctx, events.Entry{
		ID:        "x",
		Timestamp: time.Now(),
		TypeName:  "LOG",
		Payload:   events.LogPayload{Text: "Ada chops wood."},
	})
	require.NoError(t, err)

	stored, err := repo.ByType(ctx, "slot", "LOG")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.JSONEq(t, `{"text":"Ada chops wood."}`, string(stored[0].Payload))
}

func sampleSnapshot() save.Snapshot {
	return save.Snapshot{
		Version:   save.Version,
		ID:        "s1",
		SavedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Colony:    colony.Colony{ID: "c1", Hours: 12.5, Settled: true, Buildings: []string{"hut"}},
		Resources: []resource.State{{ID: "wood", Count: 4}},
		People: []save.Person{{
			ID:   "p1",
			Name: "ada",
			Busy: &save.Busy{ID: "chop", RemainingMs: 700},
		}},
	}
}

func TestSQLiteSaveStoreRoundTrip(t *testing.T) {
	db, err := InitSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	store := NewSQLiteSaveStore(db, "")

	has, err := store.HasData(ctx)
	require.NoError(t, err)
	assert.False(t, has)
	_, err = store.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoSave))

	snap := sampleSnapshot()
	require.NoError(t, store.Persist(ctx, snap))
	snap.ID = "s2"
	require.NoError(t, store.Persist(ctx, snap), "a second save replaces the slot")

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s2", loaded.ID)
	assert.Equal(t, snap.Colony, loaded.Colony)
	assert.Equal(t, int64(700), loaded.People[0].Busy.RemainingMs)

	other := NewSQLiteSaveStore(db, "other")
	has, err = other.HasData(ctx)
	require.NoError(t, err)
	assert.False(t, has, "slots are independent")

	require.NoError(t, store.Clear(ctx))
	has, err = store.HasData(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}
