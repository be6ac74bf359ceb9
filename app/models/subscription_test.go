package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionIsPending(t *testing.T) {
	sub := &Subscription{Status: SubscriptionStatusPending}
	assert.True(t, sub.IsPending())

	for _, status := range []string{
		SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCanceled,
	} {
		sub.Status = status
		assert.False(t, sub.IsPending(), "status %s", status)
	}
}

func TestSubscriptionIsLinked(t *testing.T) {
	sub := &Subscription{}
	assert.False(t, sub.IsLinked())

	sub.ExternalSubscriptionID = "sub_123"
	assert.True(t, sub.IsLinked())
}
