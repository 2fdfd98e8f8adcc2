package entitlements

import "testing"

func TestLimitsForTier(t *testing.T) {
	cases := []struct {
		tier            string
		wantTier        string
		wantMonthlyAppt int
	}{
		{"free", "free", 50},
		{"starter", "starter", 200},
		{"pro", "pro", 2000},
		{"unknown", "free", 50},
		{"", "free", 50},
	}
	for _, tc := range cases {
		got := LimitsForTier(tc.tier)
		if got.Tier != tc.wantTier {
			t.Errorf("LimitsForTier(%q).Tier = %q, want %q", tc.tier, got.Tier, tc.wantTier)
		}
		if got.MaxMonthlyAppointments != tc.wantMonthlyAppt {
			t.Errorf("LimitsForTier(%q).MaxMonthlyAppointments = %d, want %d", tc.tier, got.MaxMonthlyAppointments, tc.wantMonthlyAppt)
		}
		if got.MaxDevices <= 0 {
			t.Errorf("LimitsForTier(%q).MaxDevices = %d, want > 0", tc.tier, got.MaxDevices)
		}
	}
}
