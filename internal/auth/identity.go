package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Authentication methods recorded on an Identity.
const (
	MethodSession = "session"
	MethodOIDC    = "oidc"
	MethodDev     = "dev"
)

// Roles a Tenant Account identity may carry. These authenticate *who the
// caller is*; they are distinct from the Policy Gate's production-scoped
// capability roles (owner/admin/editor/viewer/none, see pkg/policy), which
// govern *what the caller may do to a specific production*.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// IsValidRole reports whether role is a recognized identity role.
func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

// Identity is the authenticated principal attached to a request context.
type Identity struct {
	Subject    string
	Email      string
	Role       string
	TenantID   uuid.UUID
	TenantSlug string
	Method     string
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying identity.
func NewContext(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// FromContext returns the Identity stored in ctx, or nil if none is present.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}

// HashAPIKey returns a deterministic SHA-256 hex digest of a raw secret, used
// to hash bearer tokens at rest without storing the plaintext.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
