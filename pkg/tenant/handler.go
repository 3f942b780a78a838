package tenant

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/wisbric/dramaforge/internal/auth"
	"github.com/wisbric/dramaforge/internal/httpserver"
)

// SessionIssuer mints a session JWT for a successfully authenticated tenant.
// Satisfied by *auth.SessionManager.
type SessionIssuer interface {
	IssueToken(claims auth.SessionClaims) (string, error)
}

// Handler exposes tenant account registration and local email/password
// login — the dev-mode / self-hosted counterpart to OIDC: bcrypt password
// verification, a self-signed session JWT on success.
type Handler struct {
	store   *Store
	session SessionIssuer
	logger  *slog.Logger
}

func NewHandler(store *Store, session SessionIssuer, logger *slog.Logger) *Handler {
	return &Handler{store: store, session: session, logger: logger}
}

// Routes returns the public, pre-authentication auth routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	return r
}

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Tier     string `json:"tier" validate:"required,oneof=FREE PAY_PER_USE PROFESSIONAL ENTERPRISE"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse carries the issued session token plus the public account view.
type AuthResponse struct {
	Token   string `json:"token"`
	Account View   `json:"account"`
}

// View is the public-safe projection of an Account (never carries
// PasswordDigest).
type View struct {
	ID                    string  `json:"id"`
	Email                 string  `json:"email"`
	Tier                  string  `json:"tier"`
	QuotaMinutesRemaining float64 `json:"quota_minutes_remaining"`
}

func viewOf(a Account) View {
	return View{
		ID:                    a.ID.String(),
		Email:                 a.Email,
		Tier:                  string(a.Tier),
		QuotaMinutesRemaining: a.QuotaMinutesRemaining,
	}
}

// startingQuota seeds a fresh account's monthly balance per tier, matching
// the Tier Table's monthly quota minutes in pkg/quota.
var startingQuota = map[Tier]float64{
	TierFree:         5,
	TierPayPerUse:    0,
	TierProfessional: 50,
	TierEnterprise:   200,
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hashing password", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create account")
		return
	}

	tier := Tier(req.Tier)
	account, err := h.store.Create(r.Context(), CreateParams{
		Email:                 req.Email,
		PasswordDigest:        string(digest),
		Tier:                  tier,
		QuotaMinutesRemaining: startingQuota[tier],
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httpserver.RespondError(w, http.StatusConflict, "email_taken", "an account with that email already exists")
			return
		}
		h.logger.Error("creating tenant account", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create account")
		return
	}

	h.issueAndRespond(w, account)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.store.GetByEmail(r.Context(), req.Email)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordDigest), []byte(req.Password)); err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	h.issueAndRespond(w, account)
}

func (h *Handler) issueAndRespond(w http.ResponseWriter, account Account) {
	token, err := h.session.IssueToken(auth.SessionClaims{
		Subject:  account.ID.String(),
		Email:    account.Email,
		Role:     auth.RoleUser,
		TenantID: account.ID.String(),
		Method:   "local",
	})
	if err != nil {
		h.logger.Error("issuing session token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to issue token")
		return
	}

	httpserver.Respond(w, http.StatusOK, AuthResponse{Token: token, Account: viewOf(account)})
}

// HandleMe returns the calling tenant's account, used by the authenticated
// /api/v1/me route mounted from internal/app.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	account, err := h.store.GetByID(r.Context(), id.TenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "tenant account not found")
			return
		}
		h.logger.Error("loading tenant account", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load account")
		return
	}

	httpserver.Respond(w, http.StatusOK, viewOf(account))
}
