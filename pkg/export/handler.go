package export

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/dramaforge/internal/audit"
	"github.com/wisbric/dramaforge/internal/auth"
	"github.com/wisbric/dramaforge/internal/httpserver"
	"github.com/wisbric/dramaforge/pkg/notify"
	"github.com/wisbric/dramaforge/pkg/policy"
	"github.com/wisbric/dramaforge/pkg/production"
)

// Handler exposes the Export Coordinator's two-phase HTTP surface:
// POST .../export/estimate and POST .../export/confirm.
type Handler struct {
	coordinator *Coordinator
	notifier    *notify.Notifier
	audit       *audit.Writer
	logger      *slog.Logger
}

// NewHandler creates an export Handler. auditWriter may be nil, disabling
// audit logging.
func NewHandler(coordinator *Coordinator, notifier *notify.Notifier, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{coordinator: coordinator, notifier: notifier, audit: auditWriter, logger: logger}
}

// Routes mounts the export endpoints under /api/v1/productions/{id}/export.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/estimate", h.handleEstimate)
	r.Post("/confirm", h.handleConfirm)
	return r
}

// logAction records an export lifecycle event to the audit trail. A nil
// audit writer (the default in tests) makes this a no-op.
func (h *Handler) logAction(r *http.Request, action string, productionID uuid.UUID) {
	if h.audit == nil {
		return
	}
	h.audit.LogFromRequest(r, action, "production", productionID, nil)
}

// EstimateRequest is the JSON body for POST .../export/estimate.
type EstimateRequest struct {
	Minutes float64 `json:"minutes" validate:"required,gt=0"`
}

func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	pid, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid production id")
		return
	}

	var req EstimateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	est, err := h.coordinator.Estimate(r.Context(), pid, req.Minutes)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logAction(r, "export-estimate", pid)
	httpserver.Respond(w, http.StatusOK, est)
}

// ConfirmRequest is the JSON body for POST .../export/confirm.
type ConfirmRequest struct {
	Minutes   float64 `json:"minutes" validate:"required,gt=0"`
	Confirmed bool    `json:"confirmed"`
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	pid, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid production id")
		return
	}

	var req ConfirmRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.coordinator.Confirm(r.Context(), id.TenantID, pid, req.Minutes, req.Confirmed)
	if err != nil {
		if errors.Is(err, ErrDeclined) {
			httpserver.Respond(w, http.StatusOK, result)
			return
		}
		h.respondError(w, err)
		return
	}
	h.logAction(r, "export-confirm", pid)
	if result.CanProceed && result.Production != nil && h.notifier != nil {
		if err := h.notifier.ExportConfirmed(r.Context(), result.Production.ID.String(), result.Estimate.TotalCost); err != nil {
			h.logger.Warn("notifying export confirmation", "error", err, "production_id", result.Production.ID)
		}
	}
	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, production.ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "production not found")
	case errors.Is(err, policy.ErrForbidden):
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "insufficient role to trigger export")
	default:
		h.logger.Error("export handler error", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "unexpected error")
	}
}
