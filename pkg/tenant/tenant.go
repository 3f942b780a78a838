// Package tenant implements the Tenant Account: the billing and identity
// principal that owns productions, carries a subscription tier, and spends
// a monthly quota of render minutes.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wisbric/dramaforge/internal/db"
)

// Tier is a subscription category determining quota and overage rules.
type Tier string

const (
	TierFree         Tier = "FREE"
	TierPayPerUse    Tier = "PAY_PER_USE"
	TierProfessional Tier = "PROFESSIONAL"
	TierEnterprise   Tier = "ENTERPRISE"
)

// Valid reports whether t is one of the recognized tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPayPerUse, TierProfessional, TierEnterprise:
		return true
	default:
		return false
	}
}

// ErrEmailTaken is returned by Create when the email is already registered.
var ErrEmailTaken = errors.New("tenant: email already registered")

// ErrNotFound is returned when no matching account exists.
var ErrNotFound = errors.New("tenant: not found")

// Account is a Tenant Account record.
type Account struct {
	ID                    uuid.UUID
	Email                 string
	PasswordDigest        string
	Tier                  Tier
	QuotaMinutesRemaining float64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Store provides durable access to tenant accounts.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a tenant Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const accountColumns = `id, email, password_digest, tier, quota_minutes_remaining, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordDigest, &a.Tier, &a.QuotaMinutesRemaining, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// CreateParams holds the fields needed to create a tenant account.
type CreateParams struct {
	Email                 string
	PasswordDigest        string
	Tier                  Tier
	QuotaMinutesRemaining float64
}

// Create inserts a new tenant account. Fails with ErrEmailTaken if the email
// is already registered.
func (s *Store) Create(ctx context.Context, p CreateParams) (Account, error) {
	query := `INSERT INTO tenants (email, password_digest, tier, quota_minutes_remaining)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + accountColumns
	row := s.dbtx.QueryRow(ctx, query, p.Email, p.PasswordDigest, p.Tier, p.QuotaMinutesRemaining)
	acc, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrEmailTaken
		}
		return Account{}, fmt.Errorf("creating tenant account: %w", err)
	}
	return acc, nil
}

// GetByID returns a tenant account by id.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM tenants WHERE id = $1`
	acc, err := scanAccount(s.dbtx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("getting tenant account: %w", err)
	}
	return acc, nil
}

// GetByEmail returns a tenant account by email (case-sensitive storage, the
// caller normalizes case where required — see pkg/collaboration for the
// case-insensitive invitation acceptance match).
func (s *Store) GetByEmail(ctx context.Context, email string) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM tenants WHERE email = $1`
	acc, err := scanAccount(s.dbtx.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("getting tenant account by email: %w", err)
	}
	return acc, nil
}

// ErrInsufficientQuota is returned by DebitQuota when the live balance cannot
// cover the requested debit.
var ErrInsufficientQuota = errors.New("tenant: insufficient quota")

// DebitQuota atomically subtracts minutes from the tenant's remaining quota,
// floored at zero, re-validating against the live balance inside a single
// row-locked transaction. The row lock held by the UPDATE is the per-tenant
// exclusion point: it serializes concurrent debits against the same tenant
// regardless of which goroutine or process issues them.
//
// decide is called with the balance observed under the lock — not a value
// read before the lock was acquired — and returns the number of minutes to
// subtract and whether the debit is admissible at all. The debit amount
// itself can therefore depend on the live balance (e.g. quota-consumed-vs-
// overage split).
func (s *Store) DebitQuota(ctx context.Context, beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}, id uuid.UUID, decide func(remaining float64) (debit float64, ok bool)) (remaining float64, err error) {
	err = db.WithTx(ctx, beginner, func(tx pgx.Tx) error {
		var current float64
		if scanErr := tx.QueryRow(ctx, `SELECT quota_minutes_remaining FROM tenants WHERE id = $1 FOR UPDATE`, id).Scan(&current); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("locking tenant row: %w", scanErr)
		}

		debit, ok := decide(current)
		if !ok {
			return ErrInsufficientQuota
		}

		next := current - debit
		if next < 0 {
			next = 0
		}

		if _, execErr := tx.Exec(ctx, `UPDATE tenants SET quota_minutes_remaining = $2, updated_at = now() WHERE id = $1`, id, next); execErr != nil {
			return fmt.Errorf("debiting quota: %w", execErr)
		}
		remaining = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// RefundQuota atomically adds minutes back to the tenant's remaining quota.
// Used when a render that was debited later fails irrecoverably.
func (s *Store) RefundQuota(ctx context.Context, id uuid.UUID, minutes float64) (float64, error) {
	query := `UPDATE tenants SET quota_minutes_remaining = quota_minutes_remaining + $2, updated_at = now()
		WHERE id = $1
		RETURNING quota_minutes_remaining`
	var remaining float64
	if err := s.dbtx.QueryRow(ctx, query, id, minutes).Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("refunding quota: %w", err)
	}
	return remaining, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
