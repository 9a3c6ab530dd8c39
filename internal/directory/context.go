package directory

import "context"

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in the request
// context. The principal travels with the request; there is no
// process-wide current user.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the resolved principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
