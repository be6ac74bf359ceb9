package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/forklinehq/forkline/app/models"
	"github.com/forklinehq/forkline/internal/pkg/billing"
	"github.com/forklinehq/forkline/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

var billingService *billing.Service

// SetupBilling injects the reconciliation service built at startup.
func SetupBilling(svc *billing.Service) {
	billingService = svc
}

// HandleBillingWebhook ingests provider webhook events. The body must
// stay raw and unparsed until the signature is verified.
//
// Responses: 200 for any recognized-or-ignored event (including
// duplicates and resolution misses), 400 for authentication/parsing
// failures, 500 when the reconciliation write fails so the provider
// redelivers.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ev, err := billing.Authenticate(rawBody, signature, secret)
	if err != nil {
		log.Warnf("[Webhook] Rejected delivery: %v", err)
		recordRejectedDelivery(ctx, rawBody, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event"})
	}

	created, stored, err := billingService.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: ev.ID,
		EventType:       ev.TypeRaw,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// A redelivery is only a no-op once the first attempt finished
	// cleanly. After a failed attempt the provider's retry must run
	// reconciliation again; the row-locked apply keeps the replay safe.
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	outcome, procErr := billingService.ProcessEvent(ctx, ev)
	_ = billingService.MarkWebhookProcessed(ctx, stored.ID, procErr)
	if procErr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconciliation_failed"})
	}
	if outcome.Ignored {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true, "reason": outcome.Reason})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "applied": outcome.Applied})
}

// recordRejectedDelivery keeps rejected webhooks in the event table so
// it stays a complete audit trail of everything the provider sent. A
// payload that fails to decode still carried a valid signature.
func recordRejectedDelivery(ctx context.Context, rawBody []byte, authErr error) {
	created, stored, err := billingService.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:       models.BillingProviderStripe,
		PayloadJSON:    string(rawBody),
		SignatureValid: errors.Is(authErr, billing.ErrMalformedPayload),
	})
	if err != nil {
		log.Errorf("[Webhook] Failed to record rejected delivery: %v", err)
		return
	}
	if created {
		_ = billingService.MarkWebhookProcessed(ctx, stored.ID, authErr)
	}
}
