package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSaveStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileSaveStore(filepath.Join(t.TempDir(), "saves", "colony.sav"))

	_, err := store.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoSave))
	has, err := store.HasData(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	snap := sampleSnapshot()
	require.NoError(t, store.Persist(ctx, snap))

	h, err := store.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, "c1", h.ColonyID)
	assert.Equal(t, snap.Version, h.Version)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Colony, loaded.Colony)
	assert.Equal(t, snap.Resources, loaded.Resources)
	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist), "the temp file is renamed away")

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx), "clearing twice is fine")
	has, err = store.HasData(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte("not zstd at all")))
	assert.Error(t, err)
}

func TestEncodeIsCompressed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleSnapshot()))
	assert.NotContains(t, buf.String(), `"colony_id"`)

	h, snap, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "s1", h.SaveID)
	assert.Equal(t, "ada", snap.People[0].Name)
}
