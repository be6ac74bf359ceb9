package entitlements

import "strings"

type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// Entitlements are the feature/usage limits attached to a plan tier.
// They are always derived from the plan via ForPlan and never stored
// independently.
type Entitlements struct {
	MaxRestaurants         int
	MaxCampaignLinks       int
	MaxMonthlyActions      int
	AnalyticsRetentionDays int
	RemoveBranding         bool
	WeeklyReport           bool
}

// ForPlan is the single source of truth for entitlement values.
func ForPlan(plan Plan) Entitlements {
	switch NormalizePlan(string(plan)) {
	case PlanBusiness:
		return Entitlements{
			MaxRestaurants:         10,
			MaxCampaignLinks:       100,
			MaxMonthlyActions:      50000,
			AnalyticsRetentionDays: 365,
			RemoveBranding:         true,
			WeeklyReport:           true,
		}
	case PlanPro:
		return Entitlements{
			MaxRestaurants:         3,
			MaxCampaignLinks:       25,
			MaxMonthlyActions:      10000,
			AnalyticsRetentionDays: 90,
			RemoveBranding:         true,
			WeeklyReport:           false,
		}
	default:
		return Entitlements{
			MaxRestaurants:         1,
			MaxCampaignLinks:       3,
			MaxMonthlyActions:      500,
			AnalyticsRetentionDays: 14,
			RemoveBranding:         false,
			WeeklyReport:           false,
		}
	}
}

// NormalizePlan maps arbitrary input to a known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPro):
		return PlanPro
	case string(PlanBusiness):
		return PlanBusiness
	default:
		return PlanFree
	}
}

// PlanRank orders plans by tier for best-plan selection.
func PlanRank(plan Plan) int {
	switch NormalizePlan(string(plan)) {
	case PlanBusiness:
		return 2
	case PlanPro:
		return 1
	default:
		return 0
	}
}
