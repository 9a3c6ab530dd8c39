package directory

import "time"

// PrincipalStatus enumerates the lifecycle states of a principal.
// Principals are never hard-deleted; suspension preserves the audit trail.
type PrincipalStatus string

const (
	// PrincipalActive marks a principal allowed to act.
	PrincipalActive PrincipalStatus = "active"
	// PrincipalSuspended marks a principal denied every capability.
	PrincipalSuspended PrincipalStatus = "suspended"
)

// Principal describes an authenticated actor. The Subject is the token
// subject claim supplied by the external token validator; RoleID is nil
// when no role has been assigned yet.
type Principal struct {
	ID           int64
	Subject      string
	Email        string
	Name         string
	PasswordHash string
	RoleID       *int64
	Status       PrincipalStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the principal may act.
func (p Principal) Active() bool {
	return p.Status == PrincipalActive
}

// Role represents a named bundle of capabilities. System roles are
// seeded with the platform and cannot be deleted.
type Role struct {
	ID          int64
	Slug        string
	Name        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Capability represents an atomic permission identified by a
// dot-namespaced code such as "investments.create".
type Capability struct {
	ID        int64
	Code      string
	Name      string
	Category  string
	CreatedAt time.Time
}

// Assignment grants a capability to a role. The (role, capability) pair
// is unique; a role either grants a capability or it does not.
type Assignment struct {
	RoleID       int64
	CapabilityID int64
	CreatedAt    time.Time
}
