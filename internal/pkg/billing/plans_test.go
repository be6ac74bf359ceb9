package billing

import (
	"errors"
	"testing"

	"github.com/forklinehq/forkline/internal/pkg/entitlements"
	"github.com/forklinehq/forkline/internal/pkg/env"
)

func testCatalog(t *testing.T) *PlanCatalog {
	t.Helper()
	catalog, err := NewPlanCatalog([]PriceMapping{
		{PriceID: "price_pro_month", Plan: entitlements.PlanPro, Interval: "month"},
		{PriceID: "price_pro_year", Plan: entitlements.PlanPro, Interval: "year"},
		{PriceID: "price_biz_month", Plan: entitlements.PlanBusiness, Interval: "month"},
		{PriceID: "price_biz_year", Plan: entitlements.PlanBusiness, Interval: "year"},
	})
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}
	return catalog
}

func TestPlanCatalogResolve(t *testing.T) {
	catalog := testCatalog(t)

	plan, ents, err := catalog.Resolve("price_biz_month")
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if plan != entitlements.PlanBusiness {
		t.Fatalf("expected business plan, got %q", plan)
	}
	if ents != entitlements.ForPlan(entitlements.PlanBusiness) {
		t.Fatalf("entitlements must come from the plan table, got %+v", ents)
	}
}

func TestPlanCatalogUnresolvedPrice(t *testing.T) {
	catalog := testCatalog(t)

	_, _, err := catalog.Resolve("price_somebody_elses")
	if !errors.Is(err, ErrUnresolvedPrice) {
		t.Fatalf("expected ErrUnresolvedPrice, got %v", err)
	}
}

func TestPlanCatalogRejectsInvalidMappings(t *testing.T) {
	if _, err := NewPlanCatalog(nil); err == nil {
		t.Fatalf("expected empty catalog to fail")
	}
	if _, err := NewPlanCatalog([]PriceMapping{
		{PriceID: "price_1", Plan: entitlements.PlanFree, Interval: "month"},
	}); err == nil {
		t.Fatalf("expected free-tier price mapping to fail validation")
	}
	if _, err := NewPlanCatalog([]PriceMapping{
		{PriceID: "price_1", Plan: entitlements.PlanPro, Interval: "month"},
		{PriceID: "price_1", Plan: entitlements.PlanBusiness, Interval: "month"},
	}); err == nil {
		t.Fatalf("expected duplicate price mapping to fail")
	}
}

func TestNewPlanCatalogFromEnv(t *testing.T) {
	oldEnv := env.Env
	defer func() { env.Env = oldEnv }()

	env.Env = map[string]string{
		"BILLING_PRICE_PRO_MONTHLY":      "price_pm",
		"BILLING_PRICE_PRO_ANNUAL":       "price_pa",
		"BILLING_PRICE_BUSINESS_MONTHLY": "price_bm",
		"BILLING_PRICE_BUSINESS_ANNUAL":  "price_ba",
	}
	catalog, err := NewPlanCatalogFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := catalog.Interval("price_pa"); got != "year" {
		t.Fatalf("expected annual interval, got %q", got)
	}

	env.Env = map[string]string{
		"BILLING_PRICE_PRO_MONTHLY": "price_pm",
	}
	if _, err := NewPlanCatalogFromEnv(); err == nil {
		t.Fatalf("expected missing tier configuration to fail at startup")
	}
}
