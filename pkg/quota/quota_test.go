package quota

import (
	"testing"

	"github.com/wisbric/dramaforge/pkg/tenant"
)

func TestComputePayPerUse(t *testing.T) {
	e, err := Compute(tenant.TierPayPerUse, 0, 12.5)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !e.Admissible {
		t.Fatalf("pay-per-use should always be admissible")
	}
	if want := 125.0; e.TotalCost != want {
		t.Errorf("TotalCost = %v, want %v", e.TotalCost, want)
	}
}

func TestComputeFreeWithinQuota(t *testing.T) {
	e, err := Compute(tenant.TierFree, 5, 3)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !e.Admissible {
		t.Fatalf("expected admissible, got reason %q", e.Reason)
	}
	if e.QuotaConsumed != 3 {
		t.Errorf("QuotaConsumed = %v, want 3", e.QuotaConsumed)
	}
	if e.TotalCost != 0 {
		t.Errorf("TotalCost = %v, want 0", e.TotalCost)
	}
}

func TestComputeFreeExceedsQuota(t *testing.T) {
	e, err := Compute(tenant.TierFree, 2, 3)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if e.Admissible {
		t.Fatalf("expected inadmissible when duration exceeds free quota")
	}
	if e.Reason != "insufficient_quota" {
		t.Errorf("Reason = %q, want insufficient_quota", e.Reason)
	}
}

func TestComputeProfessionalOverage(t *testing.T) {
	e, err := Compute(tenant.TierProfessional, 10, 15)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !e.Admissible {
		t.Fatalf("professional tier should always be admissible (overage billed)")
	}
	if e.QuotaConsumed != 10 {
		t.Errorf("QuotaConsumed = %v, want 10", e.QuotaConsumed)
	}
	if e.OverageMinutes != 5 {
		t.Errorf("OverageMinutes = %v, want 5", e.OverageMinutes)
	}
	if want := 60.0; e.OverageCost != want {
		t.Errorf("OverageCost = %v, want %v", e.OverageCost, want)
	}
	if e.TotalCost != e.OverageCost {
		t.Errorf("TotalCost = %v, want %v (base plan price is billed separately from renders)", e.TotalCost, e.OverageCost)
	}
}

func TestComputeEnterpriseNoOverage(t *testing.T) {
	e, err := Compute(tenant.TierEnterprise, 200, 50)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if e.OverageMinutes != 0 || e.OverageCost != 0 {
		t.Errorf("expected no overage within quota, got %+v", e)
	}
	if e.QuotaConsumed != 50 {
		t.Errorf("QuotaConsumed = %v, want 50", e.QuotaConsumed)
	}
}

func TestComputeUnknownTier(t *testing.T) {
	if _, err := Compute(tenant.Tier("GOLD"), 10, 5); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestCheckAdmissible(t *testing.T) {
	if CheckAdmissible(tenant.TierFree, 2, 3) {
		t.Error("FREE tier should refuse a duration exceeding remaining quota")
	}
	if !CheckAdmissible(tenant.TierFree, 3, 3) {
		t.Error("FREE tier should admit a duration exactly equal to remaining quota")
	}
	if !CheckAdmissible(tenant.TierProfessional, 0, 1000) {
		t.Error("PROFESSIONAL tier should always admit (overage billed)")
	}
	if !CheckAdmissible(tenant.TierPayPerUse, 0, 1000) {
		t.Error("PAY_PER_USE tier should always admit (no quota)")
	}
}
