package billing

import (
	"strings"

	"github.com/forklinehq/forkline/app/models"
)

// MapStatus translates a provider-side subscription status into the
// local status enum. Pure and total over inputs.
//
// Pending is sticky: while a subscription awaits verification, provider
// events must not promote it. Only the explicit verification transition
// (Service.ApproveVerification) leaves pending.
func MapStatus(providerStatusRaw, currentLocalStatus string) string {
	if currentLocalStatus == models.SubscriptionStatusPending {
		return models.SubscriptionStatusPending
	}

	switch strings.ToLower(strings.TrimSpace(providerStatusRaw)) {
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due", "unpaid":
		return models.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	case "active":
		return models.SubscriptionStatusActive
	default:
		// Never let an unknown provider status blank the record.
		return currentLocalStatus
	}
}
