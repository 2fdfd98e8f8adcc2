package entitlements

// Limits are the entitlements derived from a subscription tier. Kept small
// and stable: scheduling enforces from these numbers.
type Limits struct {
	Tier                   string `json:"tier"`
	MaxDevices             int    `json:"max_devices"`
	MaxMonthlyAppointments int    `json:"max_monthly_appointments"`
}

func LimitsForTier(tier string) Limits {
	switch tier {
	case "starter":
		return Limits{
			Tier:                   "starter",
			MaxDevices:             100,
			MaxMonthlyAppointments: 200,
		}
	case "pro":
		return Limits{
			Tier:                   "pro",
			MaxDevices:             2000,
			MaxMonthlyAppointments: 2000,
		}
	default:
		return Limits{
			Tier:                   "free",
			MaxDevices:             10,
			MaxMonthlyAppointments: 50,
		}
	}
}
