// Package export implements the Export Coordinator: a thin two-phase guard
// in front of the RENDER stage so that the one quota-committing stage only
// ever runs after an explicit user confirmation of its cost. The
// estimate-then-confirm flow is expressed against this module's typed
// Estimate and Engine rather than an ad hoc response dict.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wisbric/dramaforge/pkg/policy"
	"github.com/wisbric/dramaforge/pkg/production"
	"github.com/wisbric/dramaforge/pkg/quota"
	"github.com/wisbric/dramaforge/pkg/tenant"
	"github.com/wisbric/dramaforge/pkg/workflow"
)

// ErrDeclined is returned by Confirm when the caller declines the
// estimated cost.
var ErrDeclined = errors.New("export: declined by user")

// Estimate is the estimate-phase response: the cost breakdown plus
// whether the caller must pay anything beyond their held quota.
type Estimate struct {
	quota.Estimate
	NeedsPayment bool `json:"needs_payment"`
}

// Coordinator wraps the Quota & Pricing Engine and the Workflow Engine
// behind the two-phase estimate/confirm protocol.
type Coordinator struct {
	tenants     *tenant.Store
	productions *production.Store
	gate        *policy.Gate
	engine      *workflow.Engine
}

// NewCoordinator creates an Export Coordinator.
func NewCoordinator(tenants *tenant.Store, productions *production.Store, gate *policy.Gate, engine *workflow.Engine) *Coordinator {
	return &Coordinator{tenants: tenants, productions: productions, gate: gate, engine: engine}
}

// Estimate computes the cost of rendering durationMinutes for production
// productionID without changing any state.
func (c *Coordinator) Estimate(ctx context.Context, productionID uuid.UUID, durationMinutes float64) (Estimate, error) {
	p, err := c.productions.Load(ctx, productionID)
	if err != nil {
		return Estimate{}, err
	}
	acct, err := c.tenants.GetByID(ctx, p.TenantID)
	if err != nil {
		return Estimate{}, err
	}

	est, err := quota.Compute(acct.Tier, acct.QuotaMinutesRemaining, durationMinutes)
	if err != nil {
		return Estimate{}, err
	}

	return Estimate{
		Estimate:     est,
		NeedsPayment: est.OverageMinutes > 0,
	}, nil
}

// ConfirmResult is the outcome of the confirm phase.
type ConfirmResult struct {
	Confirmed  bool        `json:"confirmed"`
	CanProceed bool        `json:"can_proceed"`
	Message    string      `json:"message"`
	Estimate   Estimate    `json:"estimate"`
	Production *Production `json:"production,omitempty"`
}

// Production is the minimal production view returned after a successful
// confirm triggers the render stage.
type Production struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// Confirm re-verifies the policy gate and, if confirmed is true and the
// estimate is admissible, drives the Workflow Engine to run RENDER. If
// confirmed is false, it returns ErrDeclined without any state change.
func (c *Coordinator) Confirm(ctx context.Context, callerTenantID, productionID uuid.UUID, durationMinutes float64, confirmed bool) (ConfirmResult, error) {
	p, err := c.productions.Load(ctx, productionID)
	if err != nil {
		return ConfirmResult{}, err
	}

	est, err := c.Estimate(ctx, productionID, durationMinutes)
	if err != nil {
		return ConfirmResult{}, err
	}

	if !confirmed {
		return ConfirmResult{
			Confirmed:  false,
			CanProceed: false,
			Message:    "export declined by user",
			Estimate:   est,
		}, ErrDeclined
	}

	if err := c.gate.Check(ctx, productionID, p.TenantID, callerTenantID, policy.OpTriggerExport); err != nil {
		return ConfirmResult{}, err
	}

	if !est.Admissible {
		return ConfirmResult{
			Confirmed:  true,
			CanProceed: false,
			Message:    "insufficient quota and overage not permitted",
			Estimate:   est,
		}, nil
	}

	updated, err := c.engine.StepRender(ctx, productionID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("running render stage: %w", err)
	}

	return ConfirmResult{
		Confirmed:  true,
		CanProceed: true,
		Message:    "export confirmed",
		Estimate:   est,
		Production: &Production{ID: updated.ID, Status: string(updated.Status)},
	}, nil
}
