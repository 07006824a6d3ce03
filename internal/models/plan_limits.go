package models

const (
	PlanFree    = "free"
	PlanStarter = "starter"
	PlanPro     = "pro"
	PlanAgency  = "agency"
)

// PlanLimits describes the outreach allowance of one plan. 0 = unlimited.
type PlanLimits struct {
	DailyConnectionRequests int
	DailyMessages           int
	MonthlyProspectSearches int
	ActiveCampaigns         int
	LinkedAccounts          int
}

func GetPlanLimits(plan string) PlanLimits {
	limits := map[string]PlanLimits{
		PlanFree: {
			DailyConnectionRequests: 10,
			DailyMessages:           20,
			MonthlyProspectSearches: 50,
			ActiveCampaigns:         1,
			LinkedAccounts:          1,
		},
		PlanStarter: {
			DailyConnectionRequests: 40,
			DailyMessages:           100,
			MonthlyProspectSearches: 500,
			ActiveCampaigns:         5,
			LinkedAccounts:          1,
		},
		PlanPro: {
			DailyConnectionRequests: 100,
			DailyMessages:           250,
			MonthlyProspectSearches: 0, // unlimited
			ActiveCampaigns:         0, // unlimited
			LinkedAccounts:          3,
		},
		PlanAgency: {
			DailyConnectionRequests: 100,
			DailyMessages:           250,
			MonthlyProspectSearches: 0,
			ActiveCampaigns:         0,
			LinkedAccounts:          0, // unlimited
		},
	}

	// Default to free if unknown plan
	if l, ok := limits[plan]; ok {
		return l
	}
	return limits[PlanFree]
}

// Reduce halves every bounded limit, keeping at least 1. Unlimited
// limits become the free plan's value.
func (l PlanLimits) Reduce() PlanLimits {
	free := GetPlanLimits(PlanFree)
	half := func(v, fallback int) int {
		if v == 0 {
			return fallback
		}
		if v/2 < 1 {
			return 1
		}
		return v / 2
	}
	return PlanLimits{
		DailyConnectionRequests: half(l.DailyConnectionRequests, free.DailyConnectionRequests),
		DailyMessages:           half(l.DailyMessages, free.DailyMessages),
		MonthlyProspectSearches: half(l.MonthlyProspectSearches, free.MonthlyProspectSearches),
		ActiveCampaigns:         half(l.ActiveCampaigns, free.ActiveCampaigns),
		LinkedAccounts:          half(l.LinkedAccounts, free.LinkedAccounts),
	}
}
