package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/assetkart/iam/internal/directory"
	"github.com/assetkart/iam/internal/platform/httpx"
	"github.com/assetkart/iam/internal/shared"
)

// Gate wraps protected operations with authorization checks. Per request
// it performs exactly one principal resolution and one Authorize call per
// required capability; nothing is carried over from earlier requests.
type Gate struct {
	Resolver *Resolver
	Engine   *Engine
	Logger   *slog.Logger
}

// RequireAll ensures the principal holds every required capability.
func (g Gate) RequireAll(caps ...string) func(http.Handler) http.Handler {
	normalized := normalizeCapabilities(caps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := g.resolve(w, r)
			if !ok {
				return
			}
			for _, code := range normalized {
				decision, err := g.Engine.Authorize(r.Context(), principal, code)
				if err != nil {
					g.rejectError(w, r, err)
					return
				}
				if !decision.Allowed {
					g.reject(w, http.StatusForbidden, ReasonForbidden)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(directory.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAny ensures the principal holds at least one of the required
// capabilities. An engine failure is only surfaced when no capability
// allowed the request.
func (g Gate) RequireAny(caps ...string) func(http.Handler) http.Handler {
	normalized := normalizeCapabilities(caps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := g.resolve(w, r)
			if !ok {
				return
			}
			var checkErr error
			for _, code := range normalized {
				decision, err := g.Engine.Authorize(r.Context(), principal, code)
				if err != nil {
					checkErr = err
					continue
				}
				if decision.Allowed {
					next.ServeHTTP(w, r.WithContext(directory.ContextWithPrincipal(r.Context(), principal)))
					return
				}
			}
			if checkErr != nil {
				g.rejectError(w, r, checkErr)
				return
			}
			g.reject(w, http.StatusForbidden, ReasonForbidden)
		})
	}
}

// resolve extracts the verified subject and loads its principal, writing
// the rejection itself when that fails.
func (g Gate) resolve(w http.ResponseWriter, r *http.Request) (directory.Principal, bool) {
	subject, ok := shared.SubjectFromContext(r.Context())
	if !ok {
		g.reject(w, http.StatusUnauthorized, ReasonUnauthenticated)
		return directory.Principal{}, false
	}
	principal, err := g.Resolver.Resolve(r.Context(), subject)
	if err != nil {
		g.rejectError(w, r, err)
		return directory.Principal{}, false
	}
	return principal, true
}

func (g Gate) rejectError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPrincipalNotFound), errors.Is(err, ErrPrincipalSuspended):
		g.reject(w, http.StatusUnauthorized, ReasonUnauthenticated)
	default:
		if g.Logger != nil {
			g.Logger.Error("authorization gate", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		g.reject(w, http.StatusServiceUnavailable, ReasonUnavailable)
	}
}

func (g Gate) reject(w http.ResponseWriter, status int, reason Reason) {
	httpx.ProblemReason(w, status, http.StatusText(status), string(reason))
}

func normalizeCapabilities(caps []string) []string {
	seen := make(map[string]struct{}, len(caps))
	normalized := make([]string, 0, len(caps))
	for _, code := range caps {
		code = strings.TrimSpace(strings.ToLower(code))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		normalized = append(normalized, code)
	}
	return normalized
}
