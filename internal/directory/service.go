package directory

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/assetkart/iam/internal/shared"
)

// RepositoryPort defines data access methods for the directory.
type RepositoryPort interface {
	CreateRole(ctx context.Context, slug, name, description string, isSystem bool) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleBySlug(ctx context.Context, slug string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	CreateCapability(ctx context.Context, code, name, category string) (Capability, error)
	UpsertCapability(ctx context.Context, code, name, category string) (Capability, error)
	GetCapabilityByCode(ctx context.Context, code string) (Capability, error)
	ListCapabilities(ctx context.Context) ([]Capability, error)
	DeleteCapability(ctx context.Context, id int64) error

	Grant(ctx context.Context, roleID, capabilityID int64) error
	Revoke(ctx context.Context, roleID, capabilityID int64) error
	ReplaceRoleCapabilities(ctx context.Context, roleID int64, capabilityIDs []int64) error
	ListRoleCapabilities(ctx context.Context, roleID int64) ([]Capability, error)
	CapabilitiesOf(ctx context.Context, roleID int64) (map[string]struct{}, error)
	HasCapability(ctx context.Context, roleID int64, code string) (bool, error)

	CreatePrincipal(ctx context.Context, p Principal) (Principal, error)
	GetPrincipal(ctx context.Context, id int64) (Principal, error)
	GetPrincipalBySubject(ctx context.Context, subject string) (Principal, error)
	ListPrincipals(ctx context.Context) ([]Principal, error)
	SetPrincipalRole(ctx context.Context, id int64, roleID *int64) (Principal, error)
	SetPrincipalStatus(ctx context.Context, id int64, status PrincipalStatus) (Principal, error)
}

// CacheInvalidator bumps the cached generation of a role's capability set.
// The bump happens synchronously after the write commits, so the next
// authorization check observes the new mapping.
type CacheInvalidator interface {
	BumpRole(ctx context.Context, roleID int64) error
}

// Service orchestrates administrative directory operations.
type Service struct {
	repo   RepositoryPort
	cache  CacheInvalidator
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds a Service instance. cache and audit may be nil.
func NewService(repo RepositoryPort, cache CacheInvalidator, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// bump invalidates the cached capability set for a role. A failed bump is
// surfaced to the admin caller: the write has committed but readers may
// serve the previous mapping until the cache TTL expires, so the caller
// must retry.
func (s *Service) bump(ctx context.Context, roleID int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.BumpRole(ctx, roleID); err != nil {
		if s.logger != nil {
			s.logger.Error("bump role cache", slog.Int64("role_id", roleID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil && s.logger != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

// --- Roles ---

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// GetRoleBySlug fetches a role by its slug.
func (s *Service) GetRoleBySlug(ctx context.Context, slug string) (Role, error) {
	return s.repo.GetRoleBySlug(ctx, strings.TrimSpace(strings.ToLower(slug)))
}

// RoleCapabilities lists the capabilities granted to a role.
func (s *Service) RoleCapabilities(ctx context.Context, roleID int64) ([]Capability, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRoleCapabilities(ctx, roleID)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, actorID int64, slug, name, description string) (Role, error) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	name = strings.TrimSpace(name)
	if slug == "" || name == "" {
		return Role{}, errors.New("directory: role slug and name required")
	}
	role, err := s.repo.CreateRole(ctx, slug, name, strings.TrimSpace(description), false)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.create", "role", role.Slug, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("directory: role name required")
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.update", "role", role.Slug, map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a role. System roles are protected; roles still held
// by principals fail with ErrConstraintViolation.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.delete", "role", role.Slug, nil)
	return s.bump(ctx, id)
}

// --- Capabilities ---

// ListCapabilities returns all capabilities ordered by code.
func (s *Service) ListCapabilities(ctx context.Context) ([]Capability, error) {
	return s.repo.ListCapabilities(ctx)
}

// CreateCapability registers a new capability code.
func (s *Service) CreateCapability(ctx context.Context, actorID int64, code, name, category string) (Capability, error) {
	code = strings.TrimSpace(strings.ToLower(code))
	if code == "" {
		return Capability{}, errors.New("directory: capability code required")
	}
	cap, err := s.repo.CreateCapability(ctx, code, strings.TrimSpace(name), strings.TrimSpace(category))
	if err != nil {
		return Capability{}, err
	}
	s.record(ctx, actorID, "capability.create", "capability", cap.Code, nil)
	return cap, nil
}

// GetCapabilityByCode fetches a capability by its code.
func (s *Service) GetCapabilityByCode(ctx context.Context, code string) (Capability, error) {
	return s.repo.GetCapabilityByCode(ctx, strings.TrimSpace(strings.ToLower(code)))
}

// EnsureCapability upserts a capability, refreshing its display name.
func (s *Service) EnsureCapability(ctx context.Context, code, name, category string) (Capability, error) {
	return s.repo.UpsertCapability(ctx, strings.TrimSpace(strings.ToLower(code)), strings.TrimSpace(name), strings.TrimSpace(category))
}

// DeleteCapability removes a capability. Assignments referencing it must be
// revoked first.
func (s *Service) DeleteCapability(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteCapability(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "capability.delete", "capability", "", map[string]any{"capability_id": id})
	return nil
}

// --- Assignments ---

// GrantCapability attaches a capability to a role and invalidates the
// role's cached capability set.
func (s *Service) GrantCapability(ctx context.Context, actorID, roleID, capabilityID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.Grant(ctx, roleID, capabilityID); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.capability.grant", "role", itoa(roleID), map[string]any{"capability_id": capabilityID})
	return s.bump(ctx, roleID)
}

// RevokeCapability detaches a capability from a role and invalidates the
// role's cached capability set.
func (s *Service) RevokeCapability(ctx context.Context, actorID, roleID, capabilityID int64) error {
	if err := s.repo.Revoke(ctx, roleID, capabilityID); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.capability.revoke", "role", itoa(roleID), map[string]any{"capability_id": capabilityID})
	return s.bump(ctx, roleID)
}

// SetRoleCapabilities replaces the capability set of a role with the given
// capability IDs in one transactional swap, then invalidates the role's
// cached set once.
func (s *Service) SetRoleCapabilities(ctx context.Context, actorID, roleID int64, capabilityIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.ReplaceRoleCapabilities(ctx, roleID, capabilityIDs); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.capability.set", "role", itoa(roleID), map[string]any{"capability_ids": capabilityIDs})
	return s.bump(ctx, roleID)
}

// --- Principals ---

// ListPrincipals returns all principals.
func (s *Service) ListPrincipals(ctx context.Context) ([]Principal, error) {
	return s.repo.ListPrincipals(ctx)
}

// GetPrincipal fetches a principal by ID.
func (s *Service) GetPrincipal(ctx context.Context, id int64) (Principal, error) {
	return s.repo.GetPrincipal(ctx, id)
}

// RegisterPrincipal creates a new active principal. The password hash is
// stored for the external credential collaborator; this service never
// verifies credentials.
func (s *Service) RegisterPrincipal(ctx context.Context, actorID int64, p Principal) (Principal, error) {
	p.Subject = strings.TrimSpace(p.Subject)
	if p.Subject == "" {
		return Principal{}, errors.New("directory: principal subject required")
	}
	if p.Status == "" {
		p.Status = PrincipalActive
	}
	created, err := s.repo.CreatePrincipal(ctx, p)
	if err != nil {
		return Principal{}, err
	}
	s.record(ctx, actorID, "principal.register", "principal", created.Subject, map[string]any{"email": created.Email})
	return created, nil
}

// AssignPrincipalRole reassigns a principal's role; a nil roleID clears it.
// The role mapping itself is untouched, and role membership is resolved
// from the store on every request, so no cache bump is needed here.
func (s *Service) AssignPrincipalRole(ctx context.Context, actorID, principalID int64, roleID *int64) (Principal, error) {
	if roleID != nil {
		if _, err := s.repo.GetRole(ctx, *roleID); err != nil {
			return Principal{}, err
		}
	}
	p, err := s.repo.SetPrincipalRole(ctx, principalID, roleID)
	if err != nil {
		return Principal{}, err
	}
	meta := map[string]any{}
	if roleID != nil {
		meta["role_id"] = *roleID
	}
	s.record(ctx, actorID, "principal.role.assign", "principal", p.Subject, meta)
	return p, nil
}

// SuspendPrincipal marks a principal suspended. Suspension, not deletion,
// keeps the audit trail intact.
func (s *Service) SuspendPrincipal(ctx context.Context, actorID, principalID int64) (Principal, error) {
	p, err := s.repo.SetPrincipalStatus(ctx, principalID, PrincipalSuspended)
	if err != nil {
		return Principal{}, err
	}
	s.record(ctx, actorID, "principal.suspend", "principal", p.Subject, nil)
	return p, nil
}

// ActivatePrincipal marks a principal active again.
func (s *Service) ActivatePrincipal(ctx context.Context, actorID, principalID int64) (Principal, error) {
	p, err := s.repo.SetPrincipalStatus(ctx, principalID, PrincipalActive)
	if err != nil {
		return Principal{}, err
	}
	s.record(ctx, actorID, "principal.activate", "principal", p.Subject, nil)
	return p, nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
