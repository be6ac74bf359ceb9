package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/forklinehq/forkline/app/models"
	"github.com/forklinehq/forkline/internal/pkg/billing"
	"github.com/forklinehq/forkline/internal/pkg/database"
	"github.com/forklinehq/forkline/internal/pkg/env"
	"github.com/forklinehq/forkline/internal/pkg/security"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const claimTokenTTL = 48 * time.Hour

// HandleClaimStart creates the local pending subscription for a paid
// claim, before any provider event exists. Webhook events can only link
// to records created here; the engine never fabricates one. The signed
// claim token in the response is what the owner presents to confirm
// the listing takeover.
func HandleClaimStart(c *fiber.Ctx) error {
	var req struct {
		OwnerID            uint   `json:"owner_id"`
		RestaurantUUID     string `json:"restaurant_uuid"`
		ExternalCustomerID string `json:"external_customer_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if req.RestaurantUUID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_restaurant_uuid"})
	}

	var restaurant models.Restaurant
	if err := database.GetDB().Where("uuid = ?", req.RestaurantUUID).First(&restaurant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "restaurant_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
	}
	if restaurant.IsClaimed() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_claimed"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := billingService.StartPendingSubscription(ctx, req.OwnerID, req.ExternalCustomerID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	token, err := security.GenerateClaimToken(req.OwnerID, restaurant.ID, claimTokenTTL, env.GetEnv("CLAIM_TOKEN_SECRET", ""))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "token_generation_failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"subscription": sub,
		"claim_token":  token,
	})
}

// HandleClaimConfirm finishes a claim: a valid token attaches the owner
// to the listing. Confirming twice with the same token is a no-op.
func HandleClaimConfirm(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	claims, err := security.VerifyClaimToken(req.Token, env.GetEnv("CLAIM_TOKEN_SECRET", ""))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_token"})
	}

	db := database.GetDB()
	var restaurant models.Restaurant
	if err := db.First(&restaurant, claims.RestaurantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "restaurant_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
	}
	if restaurant.IsClaimed() {
		if restaurant.OwnerID != nil && *restaurant.OwnerID == claims.OwnerID {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"restaurant": restaurant})
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_claimed"})
	}

	now := time.Now()
	ownerID := claims.OwnerID
	restaurant.OwnerID = &ownerID
	restaurant.ClaimState = models.ClaimStateClaimed
	restaurant.ClaimedAt = &now
	if err := db.Save(&restaurant).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "claim_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"restaurant": restaurant})
}

// HandleSubscriptionVerify is the explicit verification transition out
// of the pending state. It is an admin operation, deliberately separate
// from the webhook flow: no provider event ever clears pending.
func HandleSubscriptionVerify(c *fiber.Ctx) error {
	subscriptionUUID := strings.TrimSpace(c.Params("uuid"))
	if subscriptionUUID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_subscription_uuid"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sub, err := billingService.ApproveVerification(ctx, subscriptionUUID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subscription_not_found"})
		case errors.Is(err, billing.ErrNotPending):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_pending"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "verification_failed"})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscription": sub})
}
