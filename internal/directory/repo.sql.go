package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assetkart/iam/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// mapPgError translates PostgreSQL SQLSTATE codes into directory sentinels
// so the HTTP layer never leaks schema detail.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicate
		case "23503":
			return ErrConstraintViolation
		}
	}
	return err
}

// --- Roles ---

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, slug, name, description string, isSystem bool) (Role, error) {
	const query = `
INSERT INTO roles (slug, name, description, is_system, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
RETURNING id, slug, name, description, is_system, created_at, updated_at`
	var role Role
	err := r.pool.QueryRow(ctx, query, slug, name, description, isSystem).
		Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, mapPgError(err)
	}
	return role, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	const query = `SELECT id, slug, name, description, is_system, created_at, updated_at FROM roles WHERE id = $1`
	var role Role
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetRoleBySlug fetches a role by its slug.
func (r *Repository) GetRoleBySlug(ctx context.Context, slug string) (Role, error) {
	const query = `SELECT id, slug, name, description, is_system, created_at, updated_at FROM roles WHERE slug = $1`
	var role Role
	err := r.pool.QueryRow(ctx, query, slug).
		Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	const query = `SELECT id, slug, name, description, is_system, created_at, updated_at FROM roles ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole updates an existing role's name and description.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	const query = `
UPDATE roles SET name = $2, description = $3, updated_at = NOW()
WHERE id = $1
RETURNING id, slug, name, description, is_system, created_at, updated_at`
	var role Role
	err := r.pool.QueryRow(ctx, query, id, name, description).
		Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, mapPgError(err)
	}
	return role, nil
}

// DeleteRole removes a role by ID. Fails with ErrConstraintViolation while
// principals still reference the role.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Capabilities ---

// CreateCapability inserts a new capability.
func (r *Repository) CreateCapability(ctx context.Context, code, name, category string) (Capability, error) {
	const query = `
INSERT INTO capabilities (code, name, category, created_at)
VALUES ($1, $2, $3, NOW())
RETURNING id, code, name, category, created_at`
	var cap Capability
	err := r.pool.QueryRow(ctx, query, code, name, category).
		Scan(&cap.ID, &cap.Code, &cap.Name, &cap.Category, &cap.CreatedAt)
	if err != nil {
		return Capability{}, mapPgError(err)
	}
	return cap, nil
}

// UpsertCapability inserts a capability or refreshes its name/category.
func (r *Repository) UpsertCapability(ctx context.Context, code, name, category string) (Capability, error) {
	const query = `
INSERT INTO capabilities (code, name, category, created_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category
RETURNING id, code, name, category, created_at`
	var cap Capability
	err := r.pool.QueryRow(ctx, query, code, name, category).
		Scan(&cap.ID, &cap.Code, &cap.Name, &cap.Category, &cap.CreatedAt)
	if err != nil {
		return Capability{}, mapPgError(err)
	}
	return cap, nil
}

// GetCapabilityByCode fetches a capability by its code.
func (r *Repository) GetCapabilityByCode(ctx context.Context, code string) (Capability, error) {
	const query = `SELECT id, code, name, category, created_at FROM capabilities WHERE code = $1`
	var cap Capability
	err := r.pool.QueryRow(ctx, query, code).
		Scan(&cap.ID, &cap.Code, &cap.Name, &cap.Category, &cap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Capability{}, ErrNotFound
		}
		return Capability{}, err
	}
	return cap, nil
}

// ListCapabilities returns all capabilities ordered by code.
func (r *Repository) ListCapabilities(ctx context.Context) ([]Capability, error) {
	const query = `SELECT id, code, name, category, created_at FROM capabilities ORDER BY code`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var caps []Capability
	for rows.Next() {
		var cap Capability
		if err := rows.Scan(&cap.ID, &cap.Code, &cap.Name, &cap.Category, &cap.CreatedAt); err != nil {
			return nil, err
		}
		caps = append(caps, cap)
	}
	return caps, rows.Err()
}

// DeleteCapability removes a capability. Fails with ErrConstraintViolation
// while role assignments still reference it.
func (r *Repository) DeleteCapability(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM capabilities WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Assignments ---

// Grant attaches a capability to a role. Granting an existing pair is a no-op.
func (r *Repository) Grant(ctx context.Context, roleID, capabilityID int64) error {
	const query = `
INSERT INTO role_capabilities (role_id, capability_id, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (role_id, capability_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, roleID, capabilityID); err != nil {
		return mapPgError(err)
	}
	return nil
}

// Revoke detaches a capability from a role.
func (r *Repository) Revoke(ctx context.Context, roleID, capabilityID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_capabilities WHERE role_id = $1 AND capability_id = $2`, roleID, capabilityID)
	return err
}

// ReplaceRoleCapabilities swaps the role's capability set for the given IDs
// in a single transaction, so a concurrent reader observes either the old
// set or the new one, never a partial mix.
func (r *Repository) ReplaceRoleCapabilities(ctx context.Context, roleID int64, capabilityIDs []int64) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_capabilities WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		const insert = `
INSERT INTO role_capabilities (role_id, capability_id, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (role_id, capability_id) DO NOTHING`
		for _, capID := range capabilityIDs {
			if _, err := tx.Exec(ctx, insert, roleID, capID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// ListRoleCapabilities returns the capabilities granted to a role.
func (r *Repository) ListRoleCapabilities(ctx context.Context, roleID int64) ([]Capability, error) {
	const query = `
SELECT c.id, c.code, c.name, c.category, c.created_at
FROM capabilities c
JOIN role_capabilities rc ON rc.capability_id = c.id
WHERE rc.role_id = $1
ORDER BY c.code`
	rows, err := r.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var caps []Capability
	for rows.Next() {
		var cap Capability
		if err := rows.Scan(&cap.ID, &cap.Code, &cap.Name, &cap.Category, &cap.CreatedAt); err != nil {
			return nil, err
		}
		caps = append(caps, cap)
	}
	return caps, rows.Err()
}

// CapabilitiesOf returns the set of capability codes granted to a role.
func (r *Repository) CapabilitiesOf(ctx context.Context, roleID int64) (map[string]struct{}, error) {
	const query = `
SELECT c.code
FROM capabilities c
JOIN role_capabilities rc ON rc.capability_id = c.id
WHERE rc.role_id = $1`
	rows, err := r.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	codes := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes[code] = struct{}{}
	}
	return codes, rows.Err()
}

// HasCapability reports whether the role grants the capability code.
func (r *Repository) HasCapability(ctx context.Context, roleID int64, code string) (bool, error) {
	const query = `
SELECT EXISTS (
	SELECT 1
	FROM role_capabilities rc
	JOIN capabilities c ON c.id = rc.capability_id
	WHERE rc.role_id = $1 AND c.code = $2
)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, roleID, code).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// --- Principals ---

const principalColumns = `id, subject, email, name, password_hash, role_id, status, created_at, updated_at`

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	err := row.Scan(&p.ID, &p.Subject, &p.Email, &p.Name, &p.PasswordHash, &p.RoleID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreatePrincipal registers a new principal.
func (r *Repository) CreatePrincipal(ctx context.Context, p Principal) (Principal, error) {
	const query = `
INSERT INTO principals (subject, email, name, password_hash, role_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
RETURNING ` + principalColumns
	created, err := scanPrincipal(r.pool.QueryRow(ctx, query, p.Subject, p.Email, p.Name, p.PasswordHash, p.RoleID, p.Status))
	if err != nil {
		return Principal{}, mapPgError(err)
	}
	return created, nil
}

// GetPrincipal fetches a principal by ID.
func (r *Repository) GetPrincipal(ctx context.Context, id int64) (Principal, error) {
	p, err := scanPrincipal(r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, err
	}
	return p, nil
}

// GetPrincipalBySubject fetches a principal by its token subject claim.
func (r *Repository) GetPrincipalBySubject(ctx context.Context, subject string) (Principal, error) {
	p, err := scanPrincipal(r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE subject = $1`, subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, err
	}
	return p, nil
}

// ListPrincipals returns all principals ordered by id.
func (r *Repository) ListPrincipals(ctx context.Context) ([]Principal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+principalColumns+` FROM principals ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var principals []Principal
	for rows.Next() {
		var p Principal
		if err := rows.Scan(&p.ID, &p.Subject, &p.Email, &p.Name, &p.PasswordHash, &p.RoleID, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}

// SetPrincipalRole reassigns (or clears, when roleID is nil) a principal's role.
func (r *Repository) SetPrincipalRole(ctx context.Context, id int64, roleID *int64) (Principal, error) {
	const query = `
UPDATE principals SET role_id = $2, updated_at = NOW()
WHERE id = $1
RETURNING ` + principalColumns
	p, err := scanPrincipal(r.pool.QueryRow(ctx, query, id, roleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, mapPgError(err)
	}
	return p, nil
}

// SetPrincipalStatus flips a principal between active and suspended.
func (r *Repository) SetPrincipalStatus(ctx context.Context, id int64, status PrincipalStatus) (Principal, error) {
	const query = `
UPDATE principals SET status = $2, updated_at = NOW()
WHERE id = $1
RETURNING ` + principalColumns
	p, err := scanPrincipal(r.pool.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, err
	}
	return p, nil
}

var _ RepositoryPort = (*Repository)(nil)
