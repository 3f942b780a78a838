package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/dramaforge/internal/auth"
	"github.com/wisbric/dramaforge/internal/db"
	"github.com/wisbric/dramaforge/internal/httpserver"
)

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	dbtx   db.DBTX
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(dbtx db.DBTX, logger *slog.Logger) *Handler {
	return &Handler{dbtx: dbtx, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

// LogEntry is the read-side shape of an audit_log row.
type LogEntry struct {
	ID         uuid.UUID `json:"id"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID uuid.UUID `json:"resource_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var total int
	if err := h.dbtx.QueryRow(r.Context(),
		`SELECT count(*) FROM audit_log WHERE tenant_id = $1`, id.TenantID,
	).Scan(&total); err != nil {
		h.logger.Error("counting audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	rows, err := h.dbtx.Query(r.Context(),
		`SELECT id, action, resource, resource_id, created_at FROM audit_log
		WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		id.TenantID, params.PageSize, params.Offset,
	)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Resource, &e.ResourceID, &e.CreatedAt); err != nil {
			h.logger.Error("scanning audit log row", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
			return
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("iterating audit log rows", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	page := httpserver.NewOffsetPage(entries, params, total)
	httpserver.Respond(w, http.StatusOK, page)
}
