package billing

import (
	"testing"

	"github.com/forklinehq/forkline/app/models"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		raw     string
		current string
		want    string
	}{
		{raw: "trialing", current: models.SubscriptionStatusActive, want: models.SubscriptionStatusTrialing},
		{raw: "active", current: models.SubscriptionStatusTrialing, want: models.SubscriptionStatusActive},
		{raw: "past_due", current: models.SubscriptionStatusActive, want: models.SubscriptionStatusPastDue},
		{raw: "unpaid", current: models.SubscriptionStatusActive, want: models.SubscriptionStatusPastDue},
		{raw: "canceled", current: models.SubscriptionStatusActive, want: models.SubscriptionStatusCanceled},
		{raw: "incomplete_expired", current: models.SubscriptionStatusTrialing, want: models.SubscriptionStatusCanceled},
		{raw: "ACTIVE", current: models.SubscriptionStatusPastDue, want: models.SubscriptionStatusActive},
	}

	for _, tt := range tests {
		if got := MapStatus(tt.raw, tt.current); got != tt.want {
			t.Fatalf("MapStatus(%q, %q) = %q, want %q", tt.raw, tt.current, got, tt.want)
		}
	}
}

func TestMapStatusPendingIsSticky(t *testing.T) {
	for _, raw := range []string{"trialing", "active", "past_due", "canceled", "whatever", ""} {
		if got := MapStatus(raw, models.SubscriptionStatusPending); got != models.SubscriptionStatusPending {
			t.Fatalf("MapStatus(%q, pending) = %q, expected pending to stick", raw, got)
		}
	}
}

func TestMapStatusUnknownKeepsCurrent(t *testing.T) {
	for _, current := range []string{
		models.SubscriptionStatusActive,
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusCanceled,
	} {
		if got := MapStatus("paused_for_maintenance", current); got != current {
			t.Fatalf("unknown provider status changed local status from %q to %q", current, got)
		}
	}
}
