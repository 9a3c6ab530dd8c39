package authz

import "errors"

var (
	// ErrPrincipalNotFound indicates no principal matches the verified subject.
	ErrPrincipalNotFound = errors.New("authz: principal not found")
	// ErrPrincipalSuspended indicates the principal exists but is suspended.
	ErrPrincipalSuspended = errors.New("authz: principal suspended")
	// ErrUnavailable indicates the engine could not reach a decision because
	// a dependency failed or the request was cancelled. Distinct from a Deny:
	// the caller may retry with backoff.
	ErrUnavailable = errors.New("authz: engine unavailable")
)

// Reason is the machine-readable rejection code surfaced to callers.
type Reason string

const (
	// ReasonUnauthenticated covers unknown and suspended principals.
	ReasonUnauthenticated Reason = "unauthenticated"
	// ReasonForbidden covers capability denials.
	ReasonForbidden Reason = "forbidden"
	// ReasonUnavailable covers engine failures and cancellations.
	ReasonUnavailable Reason = "unavailable"
)
