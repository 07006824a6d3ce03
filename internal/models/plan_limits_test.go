package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetPlanLimits_UnknownFallsBackToFree(t *testing.T) {
	assert.Equal(t, GetPlanLimits(PlanFree), GetPlanLimits("enterprise-legacy"))
}

func TestPlanLimits_Reduce(t *testing.T) {
	got := GetPlanLimits(PlanStarter).Reduce()
	assert.Equal(t, PlanLimits{
		DailyConnectionRequests: 20,
		DailyMessages:           50,
		MonthlyProspectSearches: 250,
		ActiveCampaigns:         2,
		LinkedAccounts:          1,
	}, got)
}

func TestPlanLimits_ReduceUnlimitedUsesFree(t *testing.T) {
	free := GetPlanLimits(PlanFree)
	got := GetPlanLimits(PlanAgency).Reduce()
	assert.Equal(t, free.MonthlyProspectSearches, got.MonthlyProspectSearches)
	assert.Equal(t, free.LinkedAccounts, got.LinkedAccounts)
	assert.Equal(t, 50, got.DailyConnectionRequests)
}

func TestUser_EffectivePlan(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.Equal(t, PlanPro, (&User{Plan: PlanPro, SubscriptionExpiresAt: &future}).EffectivePlan(now))
	assert.Equal(t, PlanFree, (&User{Plan: PlanPro, SubscriptionExpiresAt: &past}).EffectivePlan(now))
	assert.Equal(t, PlanFree, (&User{}).EffectivePlan(now))
}
