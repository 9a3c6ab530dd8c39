package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/assetkart/iam/internal/directory"
)

// PrincipalStore is the directory lookup surface the resolver needs.
type PrincipalStore interface {
	GetPrincipalBySubject(ctx context.Context, subject string) (directory.Principal, error)
}

// Resolver maps a verified token subject claim to a principal record.
// Token verification itself happens upstream; the resolver trusts the
// subject it is handed.
type Resolver struct {
	store PrincipalStore
}

// NewResolver constructs a Resolver.
func NewResolver(store PrincipalStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve loads the principal for a subject. Unknown subjects yield
// ErrPrincipalNotFound, suspended principals ErrPrincipalSuspended, and
// store failures ErrUnavailable.
func (r *Resolver) Resolve(ctx context.Context, subject string) (directory.Principal, error) {
	p, err := r.store.GetPrincipalBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Principal{}, ErrPrincipalNotFound
		}
		return directory.Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !p.Active() {
		return directory.Principal{}, ErrPrincipalSuspended
	}
	return p, nil
}
