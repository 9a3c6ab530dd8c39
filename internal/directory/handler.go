package directory

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/assetkart/iam/internal/platform/httpx"
	"github.com/assetkart/iam/internal/shared"
)

// GateMiddleware guards route groups with required capabilities. Satisfied
// by the authorization gate.
type GateMiddleware interface {
	RequireAll(caps ...string) func(http.Handler) http.Handler
	RequireAny(caps ...string) func(http.Handler) http.Handler
}

// capabilityCodePattern enforces the <resource>.<action> convention:
// lowercase, dot-namespaced, underscores allowed.
var capabilityCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// Handler exposes the administrative JSON API over the directory.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	gate     GateMiddleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate GateMiddleware) *Handler {
	v := validator.New()
	_ = v.RegisterValidation("capability_code", func(fl validator.FieldLevel) bool {
		return capabilityCodePattern.MatchString(fl.Field().String())
	})
	return &Handler{logger: logger, service: service, gate: gate, validate: v}
}

// MountRoutes registers directory routes. The admin API protects itself
// with the same gate it administers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAny(shared.CapRolesView, shared.CapRolesUpdate))
			r.Get("/", h.listRoles)
			r.Get("/{roleID}", h.getRole)
			r.Get("/{roleID}/capabilities", h.listRoleCapabilities)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAll(shared.CapRolesCreate))
			r.Post("/", h.createRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAll(shared.CapRolesUpdate))
			r.Put("/{roleID}", h.updateRole)
			r.Put("/{roleID}/capabilities", h.setRoleCapabilities)
			r.Post("/{roleID}/capabilities/{capabilityID}", h.grantCapability)
			r.Delete("/{roleID}/capabilities/{capabilityID}", h.revokeCapability)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAll(shared.CapRolesDelete))
			r.Delete("/{roleID}", h.deleteRole)
		})
	})

	r.Route("/capabilities", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAll(shared.CapPermissionsView))
			r.Get("/", h.listCapabilities)
			r.Get("/{capability}", h.getCapability)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAll(shared.CapPermissionsManage))
			r.Post("/", h.createCapability)
			r.Delete("/{capability}", h.deleteCapability)
		})
	})

	r.Route("/principals", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAll(shared.CapUsersView))
			r.Get("/", h.listPrincipals)
			r.Get("/{principalID}", h.getPrincipal)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAll(shared.CapUsersCreate))
			r.Post("/", h.registerPrincipal)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAll(shared.CapUsersManageRoles))
			r.Put("/{principalID}/role", h.assignRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAll(shared.CapUsersUpdate))
			r.Put("/{principalID}/status", h.setStatus)
		})
	})
}

// --- view models ---

type roleView struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsSystem    bool   `json:"is_system"`
}

func toRoleView(role Role) roleView {
	return roleView{ID: role.ID, Slug: role.Slug, Name: role.Name, Description: role.Description, IsSystem: role.IsSystem}
}

type capabilityView struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
}

func toCapabilityView(cap Capability) capabilityView {
	return capabilityView{ID: cap.ID, Code: cap.Code, Name: cap.Name, Category: cap.Category}
}

type principalView struct {
	ID      int64  `json:"id"`
	Subject string `json:"subject"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	RoleID  *int64 `json:"role_id,omitempty"`
	Status  string `json:"status"`
}

func toPrincipalView(p Principal) principalView {
	return principalView{ID: p.ID, Subject: p.Subject, Email: p.Email, Name: p.Name, RoleID: p.RoleID, Status: string(p.Status)}
}

// --- roles ---

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, toRoleView(role))
	}
	httpx.JSON(w, http.StatusOK, views)
}

// getRole accepts either a numeric id or a slug; admin panels link roles
// both ways.
func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "roleID")
	var (
		role Role
		err  error
	)
	if id, parseErr := strconv.ParseInt(ref, 10, 64); parseErr == nil {
		role, err = h.service.GetRole(r.Context(), id)
	} else {
		role, err = h.service.GetRoleBySlug(r.Context(), ref)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

type roleForm struct {
	Slug        string `json:"slug" validate:"required,min=2,max=100"`
	Name        string `json:"name" validate:"required,min=2,max=150"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var form roleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	role, err := h.service.CreateRole(r.Context(), actorID(r), form.Slug, form.Name, form.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleView(role))
}

type roleUpdateForm struct {
	Name        string `json:"name" validate:"required,min=2,max=150"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var form roleUpdateForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), actorID(r), id, form.Name, form.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.DeleteRole(r.Context(), actorID(r), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoleCapabilities(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	caps, err := h.service.RoleCapabilities(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]capabilityView, 0, len(caps))
	for _, cap := range caps {
		views = append(views, toCapabilityView(cap))
	}
	httpx.JSON(w, http.StatusOK, views)
}

type setCapabilitiesForm struct {
	CapabilityIDs []int64 `json:"capability_ids" validate:"required"`
}

func (h *Handler) setRoleCapabilities(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var form setCapabilitiesForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.SetRoleCapabilities(r.Context(), actorID(r), id, form.CapabilityIDs); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grantCapability(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	capID, err := pathID(r, "capabilityID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.GrantCapability(r.Context(), actorID(r), roleID, capID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeCapability(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	capID, err := pathID(r, "capabilityID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.RevokeCapability(r.Context(), actorID(r), roleID, capID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- capabilities ---

func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := h.service.ListCapabilities(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]capabilityView, 0, len(caps))
	for _, cap := range caps {
		views = append(views, toCapabilityView(cap))
	}
	httpx.JSON(w, http.StatusOK, views)
}

type capabilityForm struct {
	Code     string `json:"code" validate:"required,capability_code"`
	Name     string `json:"name" validate:"max=150"`
	Category string `json:"category" validate:"max=100"`
}

func (h *Handler) createCapability(w http.ResponseWriter, r *http.Request) {
	var form capabilityForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	cap, err := h.service.CreateCapability(r.Context(), actorID(r), form.Code, form.Name, form.Category)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCapabilityView(cap))
}

// getCapability looks a capability up by its code.
func (h *Handler) getCapability(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "capability")
	if !capabilityCodePattern.MatchString(code) {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	cap, err := h.service.GetCapabilityByCode(r.Context(), code)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCapabilityView(cap))
}

func (h *Handler) deleteCapability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "capability")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.DeleteCapability(r.Context(), actorID(r), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- principals ---

func (h *Handler) listPrincipals(w http.ResponseWriter, r *http.Request) {
	principals, err := h.service.ListPrincipals(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]principalView, 0, len(principals))
	for _, p := range principals {
		views = append(views, toPrincipalView(p))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) getPrincipal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "principalID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	p, err := h.service.GetPrincipal(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPrincipalView(p))
}

type principalForm struct {
	Subject string `json:"subject" validate:"required,min=1,max=255"`
	Email   string `json:"email" validate:"omitempty,email"`
	Name    string `json:"name" validate:"max=150"`
	RoleID  *int64 `json:"role_id"`
}

func (h *Handler) registerPrincipal(w http.ResponseWriter, r *http.Request) {
	var form principalForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	p, err := h.service.RegisterPrincipal(r.Context(), actorID(r), Principal{
		Subject: form.Subject,
		Email:   form.Email,
		Name:    form.Name,
		RoleID:  form.RoleID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPrincipalView(p))
}

type assignRoleForm struct {
	RoleID *int64 `json:"role_id"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "principalID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var form assignRoleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	p, err := h.service.AssignPrincipalRole(r.Context(), actorID(r), id, form.RoleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPrincipalView(p))
}

type statusForm struct {
	Status string `json:"status" validate:"required,oneof=active suspended"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "principalID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var form statusForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var (
		p       Principal
		callErr error
	)
	if form.Status == string(PrincipalSuspended) {
		p, callErr = h.service.SuspendPrincipal(r.Context(), actorID(r), id)
	} else {
		p, callErr = h.service.ActivatePrincipal(r.Context(), actorID(r), id)
	}
	if callErr != nil {
		h.respondError(w, callErr)
		return
	}
	httpx.JSON(w, http.StatusOK, toPrincipalView(p))
}

// respondError maps directory errors onto the shared HTTP taxonomy so
// store detail never reaches the caller.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, httpx.ErrDuplicate)
	case errors.Is(err, ErrConstraintViolation), errors.Is(err, ErrSystemRole):
		httpx.RespondError(w, httpx.ErrConflict)
	default:
		if h.logger != nil {
			h.logger.Error("directory handler", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// actorID extracts the acting principal's id for audit attribution.
func actorID(r *http.Request) int64 {
	if actor, ok := PrincipalFromContext(r.Context()); ok {
		return actor.ID
	}
	return 0
}
