package tenant

import "testing"

func TestTierValid(t *testing.T) {
	tests := []struct {
		tier  Tier
		valid bool
	}{
		{TierFree, true},
		{TierPayPerUse, true},
		{TierProfessional, true},
		{TierEnterprise, true},
		{Tier("GOLD"), false},
		{Tier(""), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			if got := tt.tier.Valid(); got != tt.valid {
				t.Errorf("Tier(%q).Valid() = %v, want %v", tt.tier, got, tt.valid)
			}
		})
	}
}
