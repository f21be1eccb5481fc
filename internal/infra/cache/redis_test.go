package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MRamiBalles/colony/server/internal/engine"
)

type fakeRedis struct {
	strings map[string]string
	hashes  map[string]map[string]string
	ttl     map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: map[string]string{},
		hashes:  map[string]map[string]string{},
		ttl:     map[string]time.Duration{},
	}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	v, ok := f.strings[key]
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) error {
	switch v := value.(type) {
	case []byte:
		f.strings[key] = string(v)
	case string:
		f.strings[key] = v
	}
	f.ttl[key] = exp
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.strings, k)
		delete(f.hashes, k)
	}
	return nil
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) (map[string]string, error) {
	return f.hashes[key], nil
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...interface{}) error {
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	return nil
}

func (f *fakeRedis) Expire(_ context.Context, key string, exp time.Duration) error {
	f.ttl[key] = exp
	return nil
}

func TestColonyCacheStoresViewAndPeople(t *testing.T) {
	redis := newFakeRedis()
	c := NewColonyCache(redis, time.Minute)
	ctx := context.Background()

	view := engine.ColonyView{
		ID:    "c1",
		Hours: 3,
		People: []engine.PersonView{
			{ID: "p1", Name: "Ada", Energy: 80, Life: 100},
			{ID: "p2", Name: "Bruno", Energy: 20, Life: 90},
		},
	}
	if err := c.StoreView(ctx, "c1", view); err != nil {
		t.Fatalf("StoreView failed: %v", err)
	}

	got, err := c.View(ctx, "c1")
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if got.Hours != 3 || len(got.People) != 2 {
		t.Errorf("Expected the stored view back, got %+v", got)
	}

	people, err := c.People(ctx, "c1")
	if err != nil {
		t.Fatalf("People failed: %v", err)
	}
	if people["p2"].Energy != 20 {
		t.Errorf("Expected Bruno's energy 20, got %v", people["p2"].Energy)
	}
	if redis.ttl["colony:c1:people"] != time.Minute {
		t.Errorf("Expected the people hash to expire, got %v", redis.ttl["colony:c1:people"])
	}
}

func TestColonyCacheDropsDepartedPeople(t *testing.T) {
	c := NewColonyCache(newFakeRedis(), 0)
	ctx := context.Background()

	_ = c.StoreView(ctx, "c1", engine.ColonyView{People: []engine.PersonView{{ID: "p1"}, {ID: "p2"}}})
	_ = c.StoreView(ctx, "c1", engine.ColonyView{People: []engine.PersonView{{ID: "p2"}}})

	people, _ := c.People(ctx, "c1")
	if _, ok := people["p1"]; ok {
		t.Error("Expected p1 to be gone from the cache")
	}
}

func TestColonyCacheInvalidate(t *testing.T) {
	c := NewColonyCache(newFakeRedis(), time.Minute)
	ctx := context.Background()
	_ = c.StoreView(ctx, "c1", engine.ColonyView{ID: "c1"})

	if err := c.Invalidate(ctx, "c1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := c.View(ctx, "c1"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected a miss after invalidation, got %v", err)
	}
}
