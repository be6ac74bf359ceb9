package billing

import (
	"errors"
	"testing"

	"github.com/forklinehq/forkline/app/models"
	"github.com/forklinehq/forkline/internal/pkg/entitlements"
)

func TestResolveSubscriptionByExternalID(t *testing.T) {
	repo := newMemRepo()
	sub := repo.addSubscription(models.Subscription{
		OwnerID:                1,
		ExternalSubscriptionID: "sub_1",
		ExternalCustomerID:     "cus_1",
		Status:                 models.SubscriptionStatusActive,
	})

	got, strategy, err := ResolveSubscription(repo, subscriptionUpdatedEvent("evt", "sub_1", "cus_other", "active", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != sub.ID || strategy != "external-subscription-id" {
		t.Fatalf("expected direct hit, got id=%d via %q", got.ID, strategy)
	}
}

func TestResolveSubscriptionPendingFallbackOnlyForCreationClass(t *testing.T) {
	repo := newMemRepo()
	active := repo.addSubscription(models.Subscription{
		OwnerID:                1,
		ExternalSubscriptionID: "sub_old",
		ExternalCustomerID:     "cus_1",
		Status:                 models.SubscriptionStatusActive,
	})
	pending := repo.addSubscription(models.Subscription{
		OwnerID:            1,
		ExternalCustomerID: "cus_1",
		Status:             models.SubscriptionStatusPending,
	})

	// Creation-class event: the newer pending record wins.
	created := &Event{
		ID:             "evt_c",
		Kind:           KindSubscriptionCreated,
		SubscriptionID: "sub_new",
		CustomerID:     "cus_1",
	}
	got, strategy, err := ResolveSubscription(repo, created)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != pending.ID || strategy != "pending-by-customer" {
		t.Fatalf("expected pending record via pending-by-customer, got id=%d via %q", got.ID, strategy)
	}

	// Update for an unlinked subscription: recency fallback applies and
	// the pending preference does not.
	updated := subscriptionUpdatedEvent("evt_u", "sub_unknown", "cus_1", "active", "")
	got, strategy, err = ResolveSubscription(repo, updated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strategy != "latest-by-customer" {
		t.Fatalf("expected latest-by-customer, got %q", strategy)
	}
	if got.ID != pending.ID {
		// The pending record is also the most recent one here.
		t.Fatalf("expected most recent record %d, got %d", pending.ID, got.ID)
	}
	_ = active
}

func TestResolveSubscriptionRecencyTieBreak(t *testing.T) {
	repo := newMemRepo()
	older := repo.addSubscription(models.Subscription{
		OwnerID:            1,
		ExternalCustomerID: "cus_1",
		Status:             models.SubscriptionStatusCanceled,
		Plan:               string(entitlements.PlanFree),
	})
	newer := repo.addSubscription(models.Subscription{
		OwnerID:            1,
		ExternalCustomerID: "cus_1",
		Status:             models.SubscriptionStatusActive,
		Plan:               string(entitlements.PlanPro),
	})

	got, _, err := ResolveSubscription(repo, subscriptionUpdatedEvent("evt", "sub_x", "cus_1", "active", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("expected most recent subscription %d, got %d", newer.ID, got.ID)
	}
	_ = older
}

func TestResolveSubscriptionMiss(t *testing.T) {
	repo := newMemRepo()

	_, _, err := ResolveSubscription(repo, subscriptionUpdatedEvent("evt", "sub_x", "cus_x", "active", ""))
	if !errors.Is(err, ErrNoLocalSubscription) {
		t.Fatalf("expected ErrNoLocalSubscription, got %v", err)
	}
}

func TestResolveSubscriptionNoKeys(t *testing.T) {
	repo := newMemRepo()
	repo.addSubscription(models.Subscription{
		OwnerID:            1,
		ExternalCustomerID: "cus_1",
		Status:             models.SubscriptionStatusActive,
	})

	_, _, err := ResolveSubscription(repo, &Event{ID: "evt", Kind: KindSubscriptionUpdated})
	if !errors.Is(err, ErrNoLocalSubscription) {
		t.Fatalf("expected miss when the event carries no correlation keys, got %v", err)
	}
}
