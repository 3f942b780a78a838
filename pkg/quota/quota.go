// Package quota implements the Quota & Pricing Engine: the pure cost
// arithmetic over a tenant's subscription tier, plus the two stateful
// operations (commit_debit, refund) that move a tenant's durable quota
// balance.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/dramaforge/pkg/tenant"
)

// Plan is the fixed pricing and quota configuration for one subscription
// tier.
type Plan struct {
	MonthlyQuotaMinutes float64
	MonthlyPrice        float64
	OveragePermitted    bool
	OverageRate         float64 // cost per minute beyond quota
	PerUnitRate         float64 // PAY_PER_USE: cost per minute, no quota
}

// Plans is the Tier Table.
var Plans = map[tenant.Tier]Plan{
	tenant.TierFree: {
		MonthlyQuotaMinutes: 5,
		MonthlyPrice:        0,
		OveragePermitted:    false,
	},
	tenant.TierPayPerUse: {
		OveragePermitted: true,
		PerUnitRate:      10.0,
	},
	tenant.TierProfessional: {
		MonthlyQuotaMinutes: 50,
		MonthlyPrice:        299,
		OveragePermitted:    true,
		OverageRate:         12.0,
	},
	tenant.TierEnterprise: {
		MonthlyQuotaMinutes: 200,
		MonthlyPrice:        999,
		OveragePermitted:    true,
		OverageRate:         10.0,
	},
}

// round3 rounds to three decimal places, the stated precision for quota
// and cost arithmetic. Applied once to the final figure, never to
// intermediates.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Estimate is the cost and admissibility breakdown for rendering
// durationMinutes against a tenant currently holding quotaRemaining minutes
// on the given tier.
type Estimate struct {
	Tier            tenant.Tier
	DurationMinutes float64
	QuotaConsumed   float64
	OverageMinutes  float64
	BaseCost        float64
	OverageCost     float64
	TotalCost       float64
	Admissible      bool
	Reason          string // set when !Admissible
}

// ErrUnknownTier is returned when a tier has no entry in Plans.
var ErrUnknownTier = errors.New("quota: unknown tier")

// Compute produces an Estimate for rendering durationMinutes against a
// tenant on tier holding quotaRemaining minutes, following the estimate()
// formula directly:
//
//	quota_consumed  = min(d, q)      if T ≠ PAY_PER_USE else 0
//	overage_minutes = max(0, d - q)  if T ≠ PAY_PER_USE else d
//	base_cost       = d * T.per_unit_rate    if T = PAY_PER_USE else 0
//	overage_cost    = overage_minutes * T.overage_rate  if T permits overage
//	total_cost      = base_cost + overage_cost
//	admissible      = (overage_minutes = 0) ∨ T.overage_permitted
//
// It performs no I/O; the result is advisory until CommitDebit re-validates
// it under lock.
func Compute(tier tenant.Tier, quotaRemaining, durationMinutes float64) (Estimate, error) {
	plan, ok := Plans[tier]
	if !ok {
		return Estimate{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	e := Estimate{Tier: tier, DurationMinutes: durationMinutes}

	if tier == tenant.TierPayPerUse {
		e.OverageMinutes = durationMinutes
		e.BaseCost = round3(durationMinutes * plan.PerUnitRate)
	} else {
		e.QuotaConsumed = math.Min(durationMinutes, quotaRemaining)
		e.OverageMinutes = math.Max(0, durationMinutes-quotaRemaining)
	}

	if plan.OveragePermitted {
		e.OverageCost = round3(e.OverageMinutes * plan.OverageRate)
	}

	e.TotalCost = round3(e.BaseCost + e.OverageCost)
	e.Admissible = e.OverageMinutes == 0 || plan.OveragePermitted
	if !e.Admissible {
		e.Reason = "insufficient_quota"
	}
	return e, nil
}

// CheckAdmissible reports whether durationMinutes may be rendered against a
// tenant on tier holding quotaRemaining minutes, without computing cost.
// Only FREE can refuse outright; every other tier is admissible because
// overage (or per-use billing) always has a price.
func CheckAdmissible(tier tenant.Tier, quotaRemaining, durationMinutes float64) bool {
	if tier == tenant.TierFree {
		return durationMinutes <= quotaRemaining
	}
	return true
}

// Service wires the pure pricing math to the durable tenant quota balance.
type Service struct {
	tenants *tenant.Store
}

// NewService creates a quota Service backed by the given tenant store.
func NewService(tenants *tenant.Store) *Service {
	return &Service{tenants: tenants}
}

// Beginner starts a transaction; satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// ErrInsufficientQuota is returned by CommitDebit when the tenant's live
// balance cannot admit the requested duration. Re-exported from pkg/tenant
// so callers need not import both packages to check for it.
var ErrInsufficientQuota = tenant.ErrInsufficientQuota

// CommitDebit re-validates admissibility against the tenant's live balance
// under a row lock and, if admitted, subtracts the render's quota-consuming
// minutes from that balance. It returns the cost computed against the
// balance observed at commit time, which may differ from an earlier
// Estimate if concurrent debits landed first.
func (s *Service) CommitDebit(ctx context.Context, beginner Beginner, tenantID uuid.UUID, tier tenant.Tier, durationMinutes float64) (Estimate, error) {
	var committed Estimate
	decide := func(remaining float64) (float64, bool) {
		if !CheckAdmissible(tier, remaining, durationMinutes) {
			return 0, false
		}
		est, err := Compute(tier, remaining, durationMinutes)
		if err != nil {
			return 0, false
		}
		committed = est
		return est.QuotaConsumed, true
	}

	if _, err := s.tenants.DebitQuota(ctx, beginner, tenantID, decide); err != nil {
		if errors.Is(err, tenant.ErrInsufficientQuota) {
			return Estimate{}, ErrInsufficientQuota
		}
		return Estimate{}, fmt.Errorf("committing quota debit: %w", err)
	}

	return committed, nil
}

// Refund returns previously-debited quota-consuming minutes to the tenant's
// balance. Used when a render that already debited quota later fails
// irrecoverably.
func (s *Service) Refund(ctx context.Context, tenantID uuid.UUID, quotaMinutes float64) error {
	if quotaMinutes <= 0 {
		return nil
	}
	if _, err := s.tenants.RefundQuota(ctx, tenantID, quotaMinutes); err != nil {
		return fmt.Errorf("refunding quota: %w", err)
	}
	return nil
}
