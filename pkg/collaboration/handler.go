package collaboration

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/dramaforge/internal/audit"
	"github.com/wisbric/dramaforge/internal/auth"
	"github.com/wisbric/dramaforge/internal/httpserver"
	"github.com/wisbric/dramaforge/pkg/notify"
	"github.com/wisbric/dramaforge/pkg/policy"
	"github.com/wisbric/dramaforge/pkg/production"
	"github.com/wisbric/dramaforge/pkg/tenant"
)

// Beginner starts a transaction; satisfied by *pgxpool.Pool. Accepting an
// invitation needs a transaction to atomically create the grant and mark
// the invitation accepted (see Store.Accept).
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Handler exposes invitation and collaborator-grant management: invite,
// accept, list/change-role/remove grants.
type Handler struct {
	store       *Store
	productions *production.Store
	tenants     *tenant.Store
	gate        *policy.Gate
	beginner    Beginner
	notifier    *notify.Notifier
	audit       *audit.Writer
	logger      *slog.Logger
}

// NewHandler creates a collaboration Handler. auditWriter may be nil,
// disabling audit logging.
func NewHandler(store *Store, productions *production.Store, tenants *tenant.Store, gate *policy.Gate, beginner Beginner, notifier *notify.Notifier, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{store: store, productions: productions, tenants: tenants, gate: gate, beginner: beginner, notifier: notifier, audit: auditWriter, logger: logger}
}

// logAction records a collaboration lifecycle event to the audit trail. A
// nil audit writer (the default in tests) makes this a no-op.
func (h *Handler) logAction(r *http.Request, action string, productionID uuid.UUID) {
	if h.audit == nil {
		return
	}
	h.audit.LogFromRequest(r, action, "production", productionID, nil)
}

// ProductionRoutes mounts invitation and grant management endpoints under
// /api/v1/productions/{id}/invitations and /collaborators.
func (h *Handler) ProductionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/invitations", h.handleInvite)
	r.Get("/collaborators", h.handleListGrants)
	r.Put("/collaborators/{tenantId}", h.handleChangeRole)
	r.Delete("/collaborators/{tenantId}", h.handleRemoveGrant)
	return r
}

// GlobalRoutes mounts the invitation-acceptance endpoint, which is not
// scoped under a production path since the invitee may not yet have any
// role on it.
func (h *Handler) GlobalRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/accept", h.handleAccept)
	return r
}

// InviteRequest is the JSON body for POST .../invitations.
type InviteRequest struct {
	InviteeEmail string    `json:"invitee_email" validate:"required,email"`
	Role         GrantRole `json:"role" validate:"required,oneof=viewer editor admin"`
}

func (h *Handler) loadProduction(w http.ResponseWriter, r *http.Request) (production.Production, bool) {
	pid, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid production id")
		return production.Production{}, false
	}
	p, err := h.productions.Load(r.Context(), pid)
	if err != nil {
		if errors.Is(err, production.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "production not found")
		} else {
			httpserver.RespondError(w, http.StatusInternalServerError, "internal", "loading production")
		}
		return production.Production{}, false
	}
	return p, true
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProduction(w, r)
	if !ok {
		return
	}
	id := auth.FromContext(r.Context())
	if err := h.gate.Check(r.Context(), p.ID, p.TenantID, id.TenantID, policy.OpInviteCollaborator); err != nil {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "insufficient role to invite collaborators")
		return
	}

	var req InviteRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	inv, err := h.store.Invite(r.Context(), p.ID, id.TenantID, req.InviteeEmail, req.Role)
	if err != nil {
		if errors.Is(err, ErrPendingInvitationExists) {
			httpserver.RespondError(w, http.StatusConflict, "conflict", err.Error())
			return
		}
		h.logger.Error("inviting collaborator", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "unexpected error")
		return
	}
	h.logAction(r, "invite", p.ID)
	if h.notifier != nil {
		if err := h.notifier.InvitationSent(r.Context(), p.ID.String(), inv.InviteeEmail, string(inv.Role)); err != nil {
			h.logger.Warn("notifying invitation sent", "error", err, "production_id", p.ID)
		}
	}
	httpserver.Respond(w, http.StatusCreated, inv)
}

// handleAccept implements POST invitations/{id}/accept. The accepting
// tenant's registered email must case-insensitively match invitee_email
// and no grant may already exist for the pair.
func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	invID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid invitation id")
		return
	}

	acct, err := h.tenants.GetByID(r.Context(), id.TenantID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "loading tenant account")
		return
	}

	grant, err := h.store.Accept(r.Context(), h.beginner, invID, id.TenantID, acct.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvitationNotFound):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "invitation not found")
		case errors.Is(err, ErrInvitationNotPending):
			httpserver.RespondError(w, http.StatusConflict, "conflict", "invitation is not pending")
		case errors.Is(err, ErrEmailMismatch):
			httpserver.RespondError(w, http.StatusForbidden, "forbidden", "invitation email does not match account email")
		case errors.Is(err, ErrGrantExists):
			httpserver.RespondError(w, http.StatusConflict, "conflict", "a grant already exists for this tenant")
		default:
			h.logger.Error("accepting invitation", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal", "unexpected error")
		}
		return
	}
	h.logAction(r, "accept-invitation", grant.ProductionID)
	httpserver.Respond(w, http.StatusOK, grant)
}

func (h *Handler) handleListGrants(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProduction(w, r)
	if !ok {
		return
	}
	id := auth.FromContext(r.Context())
	if err := h.gate.Check(r.Context(), p.ID, p.TenantID, id.TenantID, policy.OpRead); err != nil {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "insufficient role")
		return
	}
	grants, err := h.store.ListGrants(r.Context(), p.ID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "listing collaborators")
		return
	}
	httpserver.Respond(w, http.StatusOK, grants)
}

// ChangeRoleRequest is the JSON body for PUT .../collaborators/{tenantId}.
type ChangeRoleRequest struct {
	Role GrantRole `json:"role" validate:"required,oneof=viewer editor admin"`
}

func (h *Handler) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProduction(w, r)
	if !ok {
		return
	}
	id := auth.FromContext(r.Context())
	if err := h.gate.Check(r.Context(), p.ID, p.TenantID, id.TenantID, policy.OpChangeRole); err != nil {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "insufficient role to change collaborator roles")
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "tenantId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid tenant id")
		return
	}

	var req ChangeRoleRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.ChangeRole(r.Context(), p.ID, targetID, req.Role); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, nil)
}

func (h *Handler) handleRemoveGrant(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProduction(w, r)
	if !ok {
		return
	}
	id := auth.FromContext(r.Context())
	if err := h.gate.Check(r.Context(), p.ID, p.TenantID, id.TenantID, policy.OpChangeRole); err != nil {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "insufficient role to remove collaborators")
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "tenantId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid tenant id")
		return
	}

	if err := h.store.RemoveGrant(r.Context(), p.ID, targetID); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "removing collaborator")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}
