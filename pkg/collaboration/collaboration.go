// Package collaboration implements Collaborator Grants and the Invitation
// lifecycle: an invitation becomes a grant only on acceptance, with a
// case-insensitive email match between the invitee's address and the
// acceptor's registered account.
package collaboration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wisbric/dramaforge/internal/db"
)

// GrantRole is the role stored on a Collaborator Grant. The
// owner's implicit admin role is never stored here.
type GrantRole string

const (
	GrantViewer GrantRole = "viewer"
	GrantEditor GrantRole = "editor"
	GrantAdmin  GrantRole = "admin"
)

func (r GrantRole) Valid() bool {
	switch r {
	case GrantViewer, GrantEditor, GrantAdmin:
		return true
	default:
		return false
	}
}

// InvitationStatus is one of an invitation's lifecycle states.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationExpired  InvitationStatus = "expired"
)

// Grant is a stored Collaborator Grant: unique on
// (production_id, tenant_id).
type Grant struct {
	ProductionID uuid.UUID
	TenantID     uuid.UUID
	Role         GrantRole
	CreatedAt    time.Time
}

// Invitation is a stored invitation.
type Invitation struct {
	ID           uuid.UUID
	ProductionID uuid.UUID
	Inviter      uuid.UUID
	InviteeEmail string
	Role         GrantRole
	Status       InvitationStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	// ErrPendingInvitationExists is returned when an invitee already has a
	// pending invitation for the same production: at most one pending
	// invitation per (production_id, invitee_email) is allowed.
	ErrPendingInvitationExists = errors.New("collaboration: pending invitation already exists for this email")
	// ErrGrantExists is returned when a collaborator grant already exists
	// for the (production, tenant) pair.
	ErrGrantExists = errors.New("collaboration: grant already exists")
	// ErrInvitationNotFound is returned when an invitation id does not exist.
	ErrInvitationNotFound = errors.New("collaboration: invitation not found")
	// ErrInvitationNotPending is returned when accepting/rejecting an
	// invitation that is not in the pending state.
	ErrInvitationNotPending = errors.New("collaboration: invitation is not pending")
	// ErrEmailMismatch is returned when the accepting tenant's email does
	// not case-insensitively match invitee_email.
	ErrEmailMismatch = errors.New("collaboration: acceptor email does not match invitee_email")
)

// Store provides database operations for grants and invitations.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a collaboration Store backed by the given database
// connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// RoleFor satisfies pkg/policy's GrantLookup interface.
func (s *Store) RoleFor(ctx context.Context, productionID, tenantID uuid.UUID) (string, bool, error) {
	var role GrantRole
	err := s.dbtx.QueryRow(ctx,
		`SELECT role FROM collaborator_grants WHERE production_id = $1 AND tenant_id = $2`,
		productionID, tenantID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(role), true, nil
}

// Invite creates a pending invitation, failing with
// ErrPendingInvitationExists if one already exists for the same email
//.
func (s *Store) Invite(ctx context.Context, productionID, inviter uuid.UUID, inviteeEmail string, role GrantRole) (Invitation, error) {
	var existing int
	err := s.dbtx.QueryRow(ctx,
		`SELECT count(*) FROM invitations
		WHERE production_id = $1 AND lower(invitee_email) = lower($2) AND status = $3`,
		productionID, inviteeEmail, InvitationPending,
	).Scan(&existing)
	if err != nil {
		return Invitation{}, err
	}
	if existing > 0 {
		return Invitation{}, ErrPendingInvitationExists
	}

	var inv Invitation
	err = s.dbtx.QueryRow(ctx,
		`INSERT INTO invitations (id, production_id, inviter, invitee_email, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, production_id, inviter, invitee_email, role, status, created_at, updated_at`,
		uuid.New(), productionID, inviter, inviteeEmail, role, InvitationPending,
	).Scan(&inv.ID, &inv.ProductionID, &inv.Inviter, &inv.InviteeEmail, &inv.Role, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

// GetInvitation loads an invitation by id.
func (s *Store) GetInvitation(ctx context.Context, id uuid.UUID) (Invitation, error) {
	var inv Invitation
	err := s.dbtx.QueryRow(ctx,
		`SELECT id, production_id, inviter, invitee_email, role, status, created_at, updated_at
		FROM invitations WHERE id = $1`,
		id,
	).Scan(&inv.ID, &inv.ProductionID, &inv.Inviter, &inv.InviteeEmail, &inv.Role, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invitation{}, ErrInvitationNotFound
		}
		return Invitation{}, err
	}
	return inv, nil
}

// Accept atomically accepts invitationID for a tenant whose registered
// email is acceptorEmail, creating the collaborator grant and marking the
// invitation accepted. The email comparison is case-insensitive.
func (s *Store) Accept(ctx context.Context, beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}, invitationID, acceptorTenantID uuid.UUID, acceptorEmail string) (Grant, error) {
	var grant Grant
	err := db.WithTx(ctx, beginner, func(tx pgx.Tx) error {
		var inv Invitation
		err := tx.QueryRow(ctx,
			`SELECT id, production_id, inviter, invitee_email, role, status, created_at, updated_at
			FROM invitations WHERE id = $1 FOR UPDATE`,
			invitationID,
		).Scan(&inv.ID, &inv.ProductionID, &inv.Inviter, &inv.InviteeEmail, &inv.Role, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvitationNotFound
			}
			return err
		}
		if inv.Status != InvitationPending {
			return ErrInvitationNotPending
		}
		if !strings.EqualFold(inv.InviteeEmail, acceptorEmail) {
			return ErrEmailMismatch
		}

		var existing int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM collaborator_grants WHERE production_id = $1 AND tenant_id = $2`,
			inv.ProductionID, acceptorTenantID,
		).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return ErrGrantExists
		}

		if err := tx.QueryRow(ctx,
			`INSERT INTO collaborator_grants (production_id, tenant_id, role)
			VALUES ($1, $2, $3)
			RETURNING production_id, tenant_id, role, created_at`,
			inv.ProductionID, acceptorTenantID, inv.Role,
		).Scan(&grant.ProductionID, &grant.TenantID, &grant.Role, &grant.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return ErrGrantExists
			}
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE invitations SET status = $2, updated_at = now() WHERE id = $1`,
			invitationID, InvitationAccepted,
		); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Grant{}, err
	}
	return grant, nil
}

// ListGrants returns every collaborator grant on a production.
func (s *Store) ListGrants(ctx context.Context, productionID uuid.UUID) ([]Grant, error) {
	rows, err := s.dbtx.Query(ctx,
		`SELECT production_id, tenant_id, role, created_at
		FROM collaborator_grants WHERE production_id = $1 ORDER BY created_at`,
		productionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ProductionID, &g.TenantID, &g.Role, &g.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ChangeRole updates an existing grant's role.
func (s *Store) ChangeRole(ctx context.Context, productionID, tenantID uuid.UUID, role GrantRole) error {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE collaborator_grants SET role = $3 WHERE production_id = $1 AND tenant_id = $2`,
		productionID, tenantID, role,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("collaboration: grant not found")
	}
	return nil
}

// RemoveGrant deletes a collaborator grant.
func (s *Store) RemoveGrant(ctx context.Context, productionID, tenantID uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx,
		`DELETE FROM collaborator_grants WHERE production_id = $1 AND tenant_id = $2`,
		productionID, tenantID,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
