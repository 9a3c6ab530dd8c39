package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/assetkart/iam/internal/platform/httpx"
	"github.com/assetkart/iam/internal/shared"
)

// Handler exposes the decision endpoint for sibling services.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	engine   *Engine
	gate     Gate
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, engine *Engine, gate Gate) *Handler {
	return &Handler{
		logger:   logger,
		resolver: resolver,
		engine:   engine,
		gate:     gate,
		validate: validator.New(),
	}
}

// MountRoutes registers authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAll(shared.CapAuthzCheck))
		r.Post("/check", h.check)
	})
}

type checkRequest struct {
	Subject      string   `json:"subject" validate:"required"`
	Capabilities []string `json:"capabilities" validate:"required,min=1,dive,required"`
}

type checkResult struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason,omitempty"`
}

type checkResponse struct {
	DecisionID string        `json:"decision_id"`
	Subject    string        `json:"subject"`
	Results    []checkResult `json:"results"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// check evaluates the requested capabilities for a target subject. Unknown
// or suspended subjects produce denials with the unauthenticated reason;
// only an engine failure yields a non-200 response.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	codes := normalizeCapabilities(req.Capabilities)
	if len(codes) == 0 {
		// Whitespace-only entries survive struct validation but normalize
		// away; a check with nothing to decide is a malformed request.
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	resp := checkResponse{
		DecisionID: uuid.NewString(),
		Subject:    req.Subject,
		CheckedAt:  time.Now().UTC(),
	}

	principal, err := h.resolver.Resolve(r.Context(), req.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) || errors.Is(err, ErrPrincipalSuspended) {
			for _, code := range codes {
				resp.Results = append(resp.Results, checkResult{Capability: code, Reason: string(ReasonUnauthenticated)})
			}
			httpx.JSON(w, http.StatusOK, resp)
			return
		}
		h.logger.Error("resolve check subject", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}

	for _, code := range codes {
		decision, err := h.engine.Authorize(r.Context(), principal, code)
		if err != nil {
			h.logger.Error("check capability", slog.String("capability", code), slog.Any("error", err))
			httpx.RespondError(w, httpx.ErrUnavailable)
			return
		}
		result := checkResult{Capability: code, Allowed: decision.Allowed}
		if !decision.Allowed {
			result.Reason = string(ReasonForbidden)
		}
		resp.Results = append(resp.Results, result)
	}
	httpx.JSON(w, http.StatusOK, resp)
}
