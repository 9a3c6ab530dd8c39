package authz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/assetkart/iam/internal/directory"
)

type mockCapStore struct {
	mu    sync.Mutex
	caps  map[int64]map[string]struct{}
	err   error
	calls int
}

func (m *mockCapStore) CapabilitiesOf(ctx context.Context, roleID int64) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	set, ok := m.caps[roleID]
	if !ok {
		return map[string]struct{}{}, nil
	}
	out := make(map[string]struct{}, len(set))
	for code := range set {
		out[code] = struct{}{}
	}
	return out, nil
}

func (m *mockCapStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func roleRef(id int64) *int64 { return &id }

func principalWithRole(id int64) directory.Principal {
	return directory.Principal{ID: 1, Subject: "customer@assetkart.local", RoleID: roleRef(id), Status: directory.PrincipalActive}
}

func newTestEngine(t *testing.T, store CapabilityStore) (*Engine, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache, err := NewCache(client, time.Minute, 16)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return NewEngine(store, cache, nil, nil), cache
}

func TestAuthorizeDeniesPrincipalWithoutRole(t *testing.T) {
	store := &mockCapStore{caps: map[int64]map[string]struct{}{}}
	engine, _ := newTestEngine(t, store)

	decision, err := engine.Authorize(context.Background(), directory.Principal{ID: 1, Status: directory.PrincipalActive}, "investments.create")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected deny for principal without role")
	}
	if store.callCount() != 0 {
		t.Fatalf("expected no store call for roleless principal, got %d", store.callCount())
	}
}

func TestAuthorizeAllowsOnlyGrantedCapabilities(t *testing.T) {
	store := &mockCapStore{caps: map[int64]map[string]struct{}{
		4: {"investments.create": {}, "wallet.view": {}},
	}}
	engine, _ := newTestEngine(t, store)
	ctx := context.Background()
	p := principalWithRole(4)

	decision, err := engine.Authorize(ctx, p, "investments.create")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow for granted capability")
	}

	decision, err = engine.Authorize(ctx, p, "commissions.payout")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected deny for ungranted capability")
	}
}

func TestAuthorizeRepeatedChecksUseCache(t *testing.T) {
	store := &mockCapStore{caps: map[int64]map[string]struct{}{
		4: {"wallet.view": {}},
	}}
	engine, _ := newTestEngine(t, store)
	ctx := context.Background()
	p := principalWithRole(4)

	for i := 0; i < 5; i++ {
		decision, err := engine.Authorize(ctx, p, "wallet.view")
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("expected allow on check %d", i)
		}
	}
	if store.callCount() != 1 {
		t.Fatalf("expected single store load, got %d", store.callCount())
	}
}

func TestRevokeVisibleImmediatelyAfterBump(t *testing.T) {
	store := &mockCapStore{caps: map[int64]map[string]struct{}{
		4: {"investments.create": {}},
	}}
	engine, cache := newTestEngine(t, store)
	ctx := context.Background()
	p := principalWithRole(4)

	decision, err := engine.Authorize(ctx, p, "investments.create")
	if err != nil || !decision.Allowed {
		t.Fatalf("expected initial allow, decision=%+v err=%v", decision, err)
	}

	// Revoke in the store, then bump the role generation the way the
	// directory service does after commit.
	store.mu.Lock()
	delete(store.caps[4], "investments.create")
	store.mu.Unlock()
	if err := cache.BumpRole(ctx, 4); err != nil {
		t.Fatalf("bump: %v", err)
	}

	decision, err = engine.Authorize(ctx, p, "investments.create")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected deny immediately after revoke and bump")
	}
}

func TestRoleReassignmentUsesNewRoleSet(t *testing.T) {
	store := &mockCapStore{caps: map[int64]map[string]struct{}{
		1: {"commissions.payout": {}},
		2: {"wallet.view": {}},
	}}
	engine, _ := newTestEngine(t, store)
	ctx := context.Background()

	p := principalWithRole(1)
	decision, err := engine.Authorize(ctx, p, "commissions.payout")
	if err != nil || !decision.Allowed {
		t.Fatalf("expected allow under old role, decision=%+v err=%v", decision, err)
	}

	// The resolver hands the engine the reassigned principal on the next
	// request; the old role's cached set must not leak through.
	p.RoleID = roleRef(2)
	decision, err = engine.Authorize(ctx, p, "commissions.payout")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected deny after reassignment to lesser role")
	}
	decision, err = engine.Authorize(ctx, p, "wallet.view")
	if err != nil || !decision.Allowed {
		t.Fatalf("expected allow from new role, decision=%+v err=%v", decision, err)
	}
}

func TestAuthorizeStoreFailureIsUnavailableNotDeny(t *testing.T) {
	storeErr := errors.New("connection refused")
	store := &mockCapStore{err: storeErr}
	engine := NewEngine(store, nil, nil, nil)

	_, err := engine.Authorize(context.Background(), principalWithRole(4), "wallet.view")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, storeErr) {
		t.Fatalf("store detail must not be matchable by callers")
	}
}

func TestAuthorizeWithoutCacheQueriesStore(t *testing.T) {
	store := &mockCapStore{caps: map[int64]map[string]struct{}{
		4: {"wallet.view": {}},
	}}
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()
	p := principalWithRole(4)

	for i := 0; i < 3; i++ {
		decision, err := engine.Authorize(ctx, p, "wallet.view")
		if err != nil || !decision.Allowed {
			t.Fatalf("expected allow, decision=%+v err=%v", decision, err)
		}
	}
	if store.callCount() != 3 {
		t.Fatalf("expected store query per check without cache, got %d", store.callCount())
	}
}

func TestAuthorizeConcurrentChecksAgree(t *testing.T) {
	store := &mockCapStore{caps: map[int64]map[string]struct{}{
		4: {"investments.view": {}},
	}}
	engine, _ := newTestEngine(t, store)
	p := principalWithRole(4)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			decision, err := engine.Authorize(context.Background(), p, "investments.view")
			if err != nil {
				return err
			}
			if !decision.Allowed {
				return errors.New("unexpected deny")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent authorize: %v", err)
	}
}

func TestAuthorizeCancelledContext(t *testing.T) {
	store := &mockCapStore{caps: map[int64]map[string]struct{}{
		4: {"wallet.view": {}},
	}}
	engine, _ := newTestEngine(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Authorize(ctx, principalWithRole(4), "wallet.view")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on cancellation, got %v", err)
	}
}
