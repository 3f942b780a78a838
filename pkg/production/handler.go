package production

import (
	"context"
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
	"github.com/wisbric/dramaforge/pkg/progress"
	"github.com/wisbric/dramaforge/pkg/workflow"
)

// Handler exposes the production-scoped request surface: creation,
// retrieval, listing, stage advancement, pause/resume/cancel and
// the derived progress view. Export estimate/confirm and collaborator
// management are mounted separately by pkg/export and pkg/collaboration,
// which share this handler's gate and engine.
type Handler struct {
	service  *Service
	engine   *workflow.Engine
	gate     *policy.Gate
	notifier *notify.Notifier
	audit    *audit.Writer
	logger   *slog.Logger
}

// NewHandler creates a production Handler. notifier may be a disabled
// (no-op) Notifier; failure notifications are best-effort and never block
// or fail the response. auditWriter may be nil, disabling audit logging.
func NewHandler(service *Service, engine *workflow.Engine, gate *policy.Gate, notifier *notify.Notifier, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{service: service, engine: engine, gate: gate, notifier: notifier, audit: auditWriter, logger: logger}
}

// logAction records a production lifecycle event to the audit trail.
// A nil audit writer (the default in tests) makes this a no-op.
func (h *Handler) logAction(r *http.Request, action string, productionID uuid.UUID) {
	if h.audit == nil {
		return
	}
	h.audit.LogFromRequest(r, action, "production", productionID, nil)
}

// Routes mounts the production endpoints under /api/v1/productions.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/advance", h.handleAdvance)
	r.Post("/{id}/pause", h.handlePause)
	r.Post("/{id}/resume", h.handleResume)
	r.Post("/{id}/cancel", h.handleCancel)
	r.Get("/{id}/progress", h.handleProgress)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.service.Create(r.Context(), id.TenantID, req)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	h.logAction(r, "create", p.ID)
	httpserver.Respond(w, http.StatusCreated, p)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var filter Filter
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = Status(status)
	}

	items, total, err := h.service.List(r.Context(), id.TenantID, filter, params.PageSize, params.Offset)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "listing productions")
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

// loadAuthorized loads a production by its path id and checks op against
// the caller's resolved role. Writes the error response and
// returns ok=false on any failure.
func (h *Handler) loadAuthorized(w http.ResponseWriter, r *http.Request, op policy.Operation) (Production, bool) {
	id := auth.FromContext(r.Context())

	pid, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid production id")
		return Production{}, false
	}

	p, err := h.service.Get(r.Context(), pid)
	if err != nil {
		h.respondStoreError(w, err)
		return Production{}, false
	}

	if err := h.gate.Check(r.Context(), p.ID, p.TenantID, id.TenantID, op); err != nil {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "insufficient role for this operation")
		return Production{}, false
	}
	return p, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadAuthorized(w, r, policy.OpRead)
	if !ok {
		return
	}
	httpserver.Respond(w, http.StatusOK, p)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadAuthorized(w, r, policy.OpDeleteProduction)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p.ID); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "deleting production")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// AdvanceRequest is the JSON body for POST .../advance.
type AdvanceRequest struct {
	Mode workflow.Mode `json:"mode" validate:"required,oneof=step run"`
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadAuthorized(w, r, policy.OpAdvanceStage)
	if !ok {
		return
	}

	var req AdvanceRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.engine.Advance(r.Context(), p.ID, req.Mode)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.logAction(r, "advance", p.ID)
	h.notifyIfFailed(r.Context(), updated)
	httpserver.Respond(w, http.StatusOK, updated)
}

// notifyIfFailed posts a best-effort Slack notification when a step just
// failed the production. Errors from the notifier
// are logged, never surfaced to the caller — the stage failure itself is
// already reflected in the response.
func (h *Handler) notifyIfFailed(ctx context.Context, p Production) {
	if p.Status != StatusFailed || p.LastError == nil || h.notifier == nil {
		return
	}
	if err := h.notifier.ProductionFailed(ctx, p.ID.String(), string(p.LastError.Stage), p.LastError.Kind, p.LastError.Message); err != nil {
		h.logger.Warn("notifying production failure", "error", err, "production_id", p.ID)
	}
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadAuthorized(w, r, policy.OpPauseResume)
	if !ok {
		return
	}
	updated, err := h.engine.Pause(r.Context(), p.ID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.logAction(r, "pause", p.ID)
	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadAuthorized(w, r, policy.OpPauseResume)
	if !ok {
		return
	}
	updated, err := h.engine.Resume(r.Context(), p.ID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.logAction(r, "resume", p.ID)
	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadAuthorized(w, r, policy.OpPauseResume)
	if !ok {
		return
	}
	updated, err := h.engine.Cancel(r.Context(), p.ID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.logAction(r, "cancel", p.ID)
	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadAuthorized(w, r, policy.OpRead)
	if !ok {
		return
	}
	httpserver.Respond(w, http.StatusOK, progress.For(p))
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "production not found")
	case errors.Is(err, ErrVersionConflict):
		httpserver.RespondError(w, http.StatusConflict, "version_conflict", "production was concurrently modified")
	case errors.Is(err, policy.ErrForbidden):
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "insufficient role for this operation")
	case errors.Is(err, workflow.ErrRenderRequiresExport):
		httpserver.RespondError(w, http.StatusConflict, "render_requires_export", "the render stage only runs through the export estimate/confirm endpoints")
	default:
		h.logger.Error("production handler error", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "unexpected error")
	}
}
