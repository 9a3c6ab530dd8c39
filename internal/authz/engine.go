package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/assetkart/iam/internal/directory"
	"github.com/assetkart/iam/internal/observability"
)

// CapabilityStore is the directory query surface the engine needs.
type CapabilityStore interface {
	CapabilitiesOf(ctx context.Context, roleID int64) (map[string]struct{}, error)
}

// Decision is the outcome of a single authorization check. Decisions are
// ephemeral; they are never persisted and never reused across requests.
type Decision struct {
	Capability string
	Allowed    bool
	CheckedAt  time.Time
}

// Engine answers "does this principal hold this capability" against the
// directory, with an optional versioned cache. The role→capability model
// is flat: no wildcards, no inheritance.
type Engine struct {
	store   CapabilityStore
	cache   *Cache
	metrics *observability.Metrics
	logger  *slog.Logger
	group   singleflight.Group
}

// NewEngine constructs an Engine. cache, metrics and logger may be nil;
// with a nil cache every check queries the store directly.
func NewEngine(store CapabilityStore, cache *Cache, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{store: store, cache: cache, metrics: metrics, logger: logger}
}

// Authorize decides whether the principal holds the capability. A principal
// without a role is denied everything. A store failure or cancellation
// yields ErrUnavailable, never a silent deny, so callers can distinguish
// "denied" from "undecidable".
func (e *Engine) Authorize(ctx context.Context, p directory.Principal, code string) (Decision, error) {
	start := time.Now()
	decision := Decision{Capability: code, CheckedAt: start}
	if p.RoleID == nil {
		e.observe(decision, start)
		return decision, nil
	}
	caps, err := e.roleCapabilities(ctx, *p.RoleID)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("authorize", slog.String("capability", code), slog.Any("error", err))
		}
		// Wrap with %v, not %w: the sentinel is matchable, the store
		// detail is not.
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_, decision.Allowed = caps[code]
	e.observe(decision, start)
	return decision, nil
}

// roleCapabilities loads the capability set for a role, via the cache when
// one is configured. When the generation cannot be read the cache is
// bypassed and the store answers directly, which is always correct.
func (e *Engine) roleCapabilities(ctx context.Context, roleID int64) (map[string]struct{}, error) {
	if e.cache == nil {
		return e.store.CapabilitiesOf(ctx, roleID)
	}
	version, err := e.cache.RoleVersion(ctx, roleID)
	if err != nil {
		e.cacheEvent("bypass")
		return e.store.CapabilitiesOf(ctx, roleID)
	}
	if caps, ok := e.cache.Lookup(roleID, version); ok {
		e.cacheEvent("hit")
		return caps, nil
	}
	e.cacheEvent("miss")
	key := "role:" + strconv.FormatInt(roleID, 10) + ":" + strconv.FormatInt(version, 10)
	resultChan := e.group.DoChan(key, func() (interface{}, error) {
		return e.cache.FetchSet(ctx, roleID, version, func(ctx context.Context) (map[string]struct{}, error) {
			return e.store.CapabilitiesOf(ctx, roleID)
		})
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]struct{}), nil
	}
}

func (e *Engine) observe(d Decision, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveDecision(d.Allowed, time.Since(start))
}

func (e *Engine) cacheEvent(event string) {
	if e.metrics == nil {
		return
	}
	e.metrics.CacheEvent(event)
}
