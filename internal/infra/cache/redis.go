// Package cache provides Redis-based caching of colony views for quick reads.
// The cache is never the source of truth; saves are.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MRamiBalles/colony/server/internal/engine"
)

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache miss")

// RedisClient is the subset of Redis operations the cache needs.
// This allows for easy mocking in tests.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values ...interface{}) error
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// GoRedis adapts a go-redis client to RedisClient.
type GoRedis struct {
	client *redis.Client
}

// NewGoRedis connects to addr and checks the connection.
func NewGoRedis(ctx context.Context, addr string, poolSize int) (*GoRedis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: poolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return &GoRedis{client: client}, nil
}

func (g *GoRedis) Get(ctx context.Context, key string) (string, error) {
	v, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (g *GoRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return g.client.Set(ctx, key, value, expiration).Err()
}

func (g *GoRedis) Del(ctx context.Context, keys ...string) error {
	return g.client.Del(ctx, keys...).Err()
}

func (g *GoRedis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return g.client.HGetAll(ctx, key).Result()
}

func (g *GoRedis) HSet(ctx context.Context, key string, values ...interface{}) error {
	return g.client.HSet(ctx, key, values...).Err()
}

func (g *GoRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return g.client.Expire(ctx, key, expiration).Err()
}

// Close releases the connection pool.
func (g *GoRedis) Close() error { return g.client.Close() }

// ColonyCache provides fast access to the latest colony view.
type ColonyCache struct {
	client     RedisClient
	expiration time.Duration
}

// NewColonyCache creates a cache whose entries expire after ttl.
func NewColonyCache(client RedisClient, ttl time.Duration) *ColonyCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ColonyCache{client: client, expiration: ttl}
}

// StoreView caches the whole view and each person under the colony hash.
func (c *ColonyCache) StoreView(ctx context.Context, colonyID string, view engine.ColonyView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal colony view: %w", err)
	}
	if err := c.client.Set(ctx, c.viewKey(colonyID), data, c.expiration); err != nil {
		return fmt.Errorf("failed to cache colony view: %w", err)
	}

	if len(view.People) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(view.People)*2)
	for _, p := range view.People {
		pd, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal person %s: %w", p.ID, err)
		}
		values = append(values, p.ID, string(pd))
	}
	key := c.peopleKey(colonyID)
	if err := c.client.Del(ctx, key); err != nil {
		return err
	}
	if err := c.client.HSet(ctx, key, values...); err != nil {
		return fmt.Errorf("failed to cache people: %w", err)
	}
	return c.client.Expire(ctx, key, c.expiration)
}

// View retrieves the cached colony view.
func (c *ColonyCache) View(ctx context.Context, colonyID string) (*engine.ColonyView, error) {
	data, err := c.client.Get(ctx, c.viewKey(colonyID))
	if err != nil {
		return nil, err
	}
	var view engine.ColonyView
	if err := json.Unmarshal([]byte(data), &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal colony view: %w", err)
	}
	return &view, nil
}

// People retrieves the cached people of a colony keyed by id.
func (c *ColonyCache) People(ctx context.Context, colonyID string) (map[string]engine.PersonView, error) {
	data, err := c.client.HGetAll(ctx, c.peopleKey(colonyID))
	if err != nil {
		return nil, err
	}
	people := make(map[string]engine.PersonView, len(data))
	for id, raw := range data {
		var p engine.PersonView
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal person %s: %w", id, err)
		}
		people[id] = p
	}
	return people, nil
}

// Invalidate removes all cached state for a colony.
func (c *ColonyCache) Invalidate(ctx context.Context, colonyID string) error {
	return c.client.Del(ctx, c.viewKey(colonyID), c.peopleKey(colonyID))
}

func (c *ColonyCache) viewKey(colonyID string) string {
	return fmt.Sprintf("colony:%s:view", colonyID)
}

func (c *ColonyCache) peopleKey(colonyID string) string {
	return fmt.Sprintf("colony:%s:people", colonyID)
}

var _ engine.ViewCache = (*ColonyCache)(nil)
