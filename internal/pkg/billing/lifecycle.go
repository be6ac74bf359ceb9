package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forklinehq/forkline/app/models"
	"github.com/forklinehq/forkline/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
)

// ErrNotPending marks a verification attempt on a subscription that
// already left the pending state.
var ErrNotPending = errors.New("subscription is not pending verification")

// StartPendingSubscription creates the local record a paid-plan claim
// produces before any provider event exists. Provider webhooks can only
// ever link to records created here; they never fabricate one.
func (s *Service) StartPendingSubscription(ctx context.Context, ownerID uint, externalCustomerID string) (*models.Subscription, error) {
	_ = ctx
	customerID := strings.TrimSpace(externalCustomerID)
	if ownerID == 0 || customerID == "" {
		return nil, errors.New("owner_id and external_customer_id are required")
	}

	sub := &models.Subscription{
		OwnerID:            ownerID,
		ExternalCustomerID: customerID,
		Status:             models.SubscriptionStatusPending,
		Plan:               string(entitlements.PlanFree),
	}
	if err := s.repo.CreateSubscription(sub); err != nil {
		return nil, err
	}

	log.Infof("[Billing] Created pending subscription %d for owner %d (customer %s)", sub.ID, ownerID, customerID)
	return sub, nil
}

// ApproveVerification is the explicit out-of-band transition that ends
// the sticky pending state after a human has verified the underlying
// account. It is deliberately not reachable from any provider event.
//
// If the provider reports a trial window still in the future the
// subscription moves to trialing and the trial clock starts now; in
// every other case it becomes active.
func (s *Service) ApproveVerification(ctx context.Context, subscriptionUUID string) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByUUID(strings.TrimSpace(subscriptionUUID))
	if err != nil {
		return nil, err
	}
	if !sub.IsPending() {
		return nil, ErrNotPending
	}

	targetStatus := models.SubscriptionStatusActive
	var trialEndsAt *time.Time
	if sub.IsLinked() && s.provider != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, providerFetchTimeout)
		defer cancel()

		detail, err := s.provider.FetchSubscription(fetchCtx, sub.ExternalSubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("provider fetch during verification failed: %w", err)
		}
		if detail.TrialEnd != nil && detail.TrialEnd.After(time.Now()) {
			targetStatus = models.SubscriptionStatusTrialing
			trialEndsAt = detail.TrialEnd
		}
	}

	updated, _, err := s.repo.UpdateSubscription(sub.ID, func(row *models.Subscription) {
		if row.Status != models.SubscriptionStatusPending {
			return
		}
		row.Status = targetStatus
		row.TrialEndsAt = trialEndsAt
	})
	if err != nil {
		return nil, err
	}
	if updated.Status == models.SubscriptionStatusPending {
		// Lost a race with a concurrent verification; nothing to do.
		return updated, nil
	}

	log.Infof("[Billing] Verified subscription %d, now %s", updated.ID, updated.Status)
	return updated, nil
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// RecordWebhookEvent persists webhook payloads idempotently. The second
// delivery of the same provider event ID reports created=false.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}
