package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forklinehq/forkline/internal/pkg/entitlements"
	"github.com/forklinehq/forkline/internal/pkg/env"
	"github.com/go-playground/validator/v10"
)

// ErrUnresolvedPrice marks a provider price ID with no catalog mapping.
// The reconciler leaves plan and entitlements untouched in that case.
var ErrUnresolvedPrice = errors.New("provider price id not mapped to a plan")

// PriceMapping binds one provider price ID to an internal plan tier.
type PriceMapping struct {
	PriceID  string            `validate:"required"`
	Plan     entitlements.Plan `validate:"required,oneof=pro business"`
	Interval string            `validate:"required,oneof=month year"`
}

// PlanCatalog is the static price-ID -> plan table, loaded once at
// startup. It is the single source of truth for plan resolution;
// entitlement values always come from entitlements.ForPlan.
type PlanCatalog struct {
	byPriceID map[string]PriceMapping
}

// NewPlanCatalog builds and validates a catalog from explicit mappings.
// An empty or invalid mapping set is a configuration error surfaced at
// startup, not at event-processing time.
func NewPlanCatalog(mappings []PriceMapping) (*PlanCatalog, error) {
	if len(mappings) == 0 {
		return nil, errors.New("plan catalog requires at least one price mapping")
	}

	v := validator.New()
	byID := make(map[string]PriceMapping, len(mappings))
	for _, m := range mappings {
		m.PriceID = strings.TrimSpace(m.PriceID)
		if err := v.Struct(m); err != nil {
			return nil, fmt.Errorf("invalid price mapping %q: %w", m.PriceID, err)
		}
		if _, dup := byID[m.PriceID]; dup {
			return nil, fmt.Errorf("duplicate price mapping for %q", m.PriceID)
		}
		byID[m.PriceID] = m
	}
	return &PlanCatalog{byPriceID: byID}, nil
}

// NewPlanCatalogFromEnv loads the four paid price IDs from the
// environment. Every tier must be configured or startup fails.
func NewPlanCatalogFromEnv() (*PlanCatalog, error) {
	entries := []struct {
		envKey   string
		plan     entitlements.Plan
		interval string
	}{
		{envKey: "BILLING_PRICE_PRO_MONTHLY", plan: entitlements.PlanPro, interval: "month"},
		{envKey: "BILLING_PRICE_PRO_ANNUAL", plan: entitlements.PlanPro, interval: "year"},
		{envKey: "BILLING_PRICE_BUSINESS_MONTHLY", plan: entitlements.PlanBusiness, interval: "month"},
		{envKey: "BILLING_PRICE_BUSINESS_ANNUAL", plan: entitlements.PlanBusiness, interval: "year"},
	}

	mappings := make([]PriceMapping, 0, len(entries))
	for _, e := range entries {
		priceID := strings.TrimSpace(env.GetEnv(e.envKey, ""))
		if priceID == "" {
			return nil, fmt.Errorf("%s is not configured", e.envKey)
		}
		mappings = append(mappings, PriceMapping{PriceID: priceID, Plan: e.plan, Interval: e.interval})
	}
	return NewPlanCatalog(mappings)
}

// Resolve maps a provider price ID to its plan tier and entitlements.
func (c *PlanCatalog) Resolve(priceID string) (entitlements.Plan, entitlements.Entitlements, error) {
	m, ok := c.byPriceID[strings.TrimSpace(priceID)]
	if !ok {
		return entitlements.PlanFree, entitlements.ForPlan(entitlements.PlanFree), ErrUnresolvedPrice
	}
	return m.Plan, entitlements.ForPlan(m.Plan), nil
}

// Interval returns the billing interval configured for a price ID.
func (c *PlanCatalog) Interval(priceID string) string {
	if m, ok := c.byPriceID[strings.TrimSpace(priceID)]; ok {
		return m.Interval
	}
	return "unknown"
}
