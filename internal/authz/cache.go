package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// Cache holds role capability sets keyed by (role, generation). Every
// administrative write touching a role's mapping bumps the role's
// generation in Redis, so a reader that observes the current generation
// can never be served a set from before the write. An in-process LRU tier
// avoids re-fetching the set itself; it is validated against the Redis
// generation on every lookup.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	local  *lru.Cache[int64, localEntry]
}

type localEntry struct {
	version int64
	caps    map[string]struct{}
}

// NewCache instantiates the cache. localSize bounds the in-process tier.
func NewCache(client *redis.Client, ttl time.Duration, localSize int) (*Cache, error) {
	if localSize <= 0 {
		localSize = 1024
	}
	local, err := lru.New[int64, localEntry](localSize)
	if err != nil {
		return nil, fmt.Errorf("authz: cache: %w", err)
	}
	return &Cache{client: client, ttl: ttl, local: local}, nil
}

func roleVersionKey(roleID int64) string {
	return fmt.Sprintf("authz:role:%d:ver", roleID)
}

func roleCapsKey(roleID, version int64) string {
	return fmt.Sprintf("authz:role:%d:caps:%d", roleID, version)
}

// RoleVersion returns the current generation for a role, initialising it
// when missing.
func (c *Cache) RoleVersion(ctx context.Context, roleID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, errors.New("authz: cache not configured")
	}
	ver, err := c.client.Get(ctx, roleVersionKey(roleID)).Int64()
	if err == redis.Nil {
		// NX so a bump that lands between the read and this write is never
		// rolled back. Reporting 1 after a lost race is still safe: the set
		// fetched for generation 1 is loaded from the store after this read,
		// so it is at least as fresh as its label.
		if err := c.client.SetNX(ctx, roleVersionKey(roleID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BumpRole advances the role's generation, invalidating every cached set
// for that role. Called synchronously after an administrative write commits.
func (c *Cache) BumpRole(ctx context.Context, roleID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	c.local.Remove(roleID)
	return c.client.Incr(ctx, roleVersionKey(roleID)).Err()
}

// Lookup returns the locally cached capability set when its generation
// matches the given one.
func (c *Cache) Lookup(roleID, version int64) (map[string]struct{}, bool) {
	if c == nil || c.local == nil {
		return nil, false
	}
	entry, ok := c.local.Get(roleID)
	if !ok || entry.version != version {
		return nil, false
	}
	return entry.caps, true
}

// FetchSet loads the capability set for (role, generation) from Redis,
// populating it via the loader on a miss. Any Redis failure past this
// point degrades to a loader call; a cache that cannot answer must not
// block a decision the store can make. The TTL bounds how long an
// orphaned generation lingers.
func (c *Cache) FetchSet(ctx context.Context, roleID, version int64, loader func(context.Context) (map[string]struct{}, error)) (map[string]struct{}, error) {
	if loader == nil {
		return nil, errors.New("authz: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := roleCapsKey(roleID, version)
	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var codes []string
		if err := json.Unmarshal(payload, &codes); err == nil {
			caps := make(map[string]struct{}, len(codes))
			for _, code := range codes {
				caps[code] = struct{}{}
			}
			c.local.Add(roleID, localEntry{version: version, caps: caps})
			return caps, nil
		}
	}
	caps, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(caps))
	for code := range caps {
		codes = append(codes, code)
	}
	if raw, err := json.Marshal(codes); err == nil {
		// Best effort: a failed write only costs the next reader a store read.
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	c.local.Add(roleID, localEntry{version: version, caps: caps})
	return caps, nil
}
