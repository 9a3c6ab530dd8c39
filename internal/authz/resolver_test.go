package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/assetkart/iam/internal/directory"
)

type mockPrincipalStore struct {
	principals map[string]directory.Principal
	err        error
	calls      int
}

func (m *mockPrincipalStore) GetPrincipalBySubject(ctx context.Context, subject string) (directory.Principal, error) {
	m.calls++
	if m.err != nil {
		return directory.Principal{}, m.err
	}
	p, ok := m.principals[subject]
	if !ok {
		return directory.Principal{}, directory.ErrNotFound
	}
	return p, nil
}

func TestResolveActivePrincipal(t *testing.T) {
	store := &mockPrincipalStore{principals: map[string]directory.Principal{
		"customer@assetkart.local": {ID: 9, Subject: "customer@assetkart.local", Status: directory.PrincipalActive},
	}}
	resolver := NewResolver(store)

	p, err := resolver.Resolve(context.Background(), "customer@assetkart.local")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.ID != 9 {
		t.Fatalf("expected principal 9, got %d", p.ID)
	}
}

func TestResolveUnknownSubject(t *testing.T) {
	resolver := NewResolver(&mockPrincipalStore{principals: map[string]directory.Principal{}})

	_, err := resolver.Resolve(context.Background(), "ghost@assetkart.local")
	if !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestResolveSuspendedPrincipal(t *testing.T) {
	store := &mockPrincipalStore{principals: map[string]directory.Principal{
		"partner@assetkart.local": {ID: 3, Subject: "partner@assetkart.local", Status: directory.PrincipalSuspended},
	}}
	resolver := NewResolver(store)

	_, err := resolver.Resolve(context.Background(), "partner@assetkart.local")
	if !errors.Is(err, ErrPrincipalSuspended) {
		t.Fatalf("expected ErrPrincipalSuspended, got %v", err)
	}
}

func TestResolveStoreFailure(t *testing.T) {
	storeErr := errors.New("timeout")
	resolver := NewResolver(&mockPrincipalStore{err: storeErr})

	_, err := resolver.Resolve(context.Background(), "customer@assetkart.local")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, storeErr) {
		t.Fatalf("store detail must not be matchable by callers")
	}
}
