package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Middleware returns an HTTP middleware that authenticates the caller via
// session JWT, OIDC JWT, or a dev-mode tenant header, storing the resulting
// Identity in the request context. This is the sole obligation of
// authentication: yield a tenant id, or refuse.
//
// Authentication precedence:
//  1. Authorization: Bearer <jwt>  →  session JWT (HMAC) → OIDC JWT
//  2. X-Tenant-ID: <uuid>          →  development-only fallback (no real auth)
//
// If none succeed, the request is rejected with 401.
func Middleware(sessionMgr *SessionManager, oidcAuth *OIDCAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				rawToken := trimBearer(authHeader)

				if sessionMgr != nil {
					if claims, err := sessionMgr.ValidateToken(rawToken); err == nil {
						tenantID, parseErr := uuid.Parse(claims.TenantID)
						if parseErr != nil {
							logger.Warn("session token carried invalid tenant_id", "error", parseErr)
							respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
							return
						}
						identity = &Identity{
							Subject:  claims.Subject,
							Email:    claims.Email,
							Role:     claims.Role,
							TenantID: tenantID,
							Method:   MethodSession,
						}
					}
				}

				if identity == nil {
					if oidcAuth == nil {
						logger.Warn("bearer token presented but no authenticator accepted it")
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
						return
					}
					claims, err := oidcAuth.Authenticate(r.Context(), authHeader)
					if err != nil {
						logger.Warn("OIDC authentication failed", "error", err)
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
						return
					}
					tenantID, parseErr := uuid.Parse(claims.TenantID)
					if parseErr != nil {
						logger.Warn("OIDC token carried invalid tenant_id", "error", parseErr)
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
						return
					}
					identity = &Identity{
						Subject:  claims.Subject,
						Email:    claims.Email,
						Role:     claims.Role,
						TenantID: tenantID,
						Method:   MethodOIDC,
					}
				}
			}

			// Dev-mode fallback: caller names its tenant directly, no signature check.
			if identity == nil {
				if raw := r.Header.Get("X-Tenant-ID"); raw != "" {
					tenantID, err := uuid.Parse(raw)
					if err != nil {
						respondErr(w, http.StatusUnauthorized, "unauthorized", "X-Tenant-ID must be a UUID")
						return
					}
					identity = &Identity{
						Subject:  "dev:" + raw,
						Role:     RoleAdmin,
						TenantID: tenantID,
						Method:   MethodDev,
					}
					logger.Debug("dev-mode authentication", "tenant_id", tenantID)
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// trimBearer strips a case-insensitive "Bearer " prefix and surrounding whitespace.
func trimBearer(header string) string {
	const prefix = "bearer "
	if len(header) >= len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		header = header[len(prefix):]
	}
	return strings.TrimSpace(header)
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
