package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecapSummarizesAndSkipsNoise(t *testing.T) {
	repo := newMemoryDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, e := range []StoredEvent{
		{ID: "1", EventType: "ARRIVAL", ActorID: "p1", Payload: json.RawMessage(`{"person":"p1","name":"Ada"}`)},
		{ID: "2", EventType: "CLICK", ActorID: "p1", Payload: json.RawMessage(`{"person":"p1","action":"chop"}`)},
		{ID: "3", EventType: "BUILD", ActorID: "p1", Payload: json.RawMessage(`{"targets":["hut"]}`)},
		{ID: "4", EventType: "RUNS_OUT", ActorID: "chop", Payload: json.RawMessage(`{"amounts":[{"resource":"food","quantity":0}]}`)},
		{ID: "5", EventType: "INCIDENT_END", ActorID: "storm", Payload: json.RawMessage(`{"name":"Storm","cancelled":true}`)},
	} {
		e.ColonyID = "c1"
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Append(ctx, e))
	}

	recap, err := NewRecap(repo).Since(ctx, "c1", base.Add(-time.Second))
	require.NoError(t, err)
	require.Len(t, recap, 4, "clicks are noise")

	assert.Equal(t, "Ada arrived.", recap[0].Summary)
	assert.Equal(t, ImpactPositive, recap[0].Impact)
	assert.Equal(t, "Built hut.", recap[1].Summary)
	assert.Equal(t, "Ran out of food.", recap[2].Summary)
	assert.Equal(t, ImpactNegative, recap[2].Impact)
	assert.Equal(t, "Storm was averted.", recap[3].Summary)

	mine, err := NewRecap(repo).ForActor(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestJoinTargets(t *testing.T) {
	assert.Equal(t, "nothing", joinTargets(nil))
	assert.Equal(t, "a and b", joinTargets([]string{"a", "b"}))
	assert.Equal(t, "a, b and c", joinTargets([]string{"a", "b", "c"}))
}
