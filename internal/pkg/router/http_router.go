package router

import (
	"github.com/forklinehq/forkline/app/controllers"
	"github.com/forklinehq/forkline/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
)

type HttpRouter struct{}

func NewHttpRouter() HttpRouter {
	return HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	// Billing provider webhooks (signature-verified in the controller)
	app.Post("/webhooks/billing", controllers.HandleBillingWebhook)

	// Claim flow
	app.Post("/claims/start", controllers.HandleClaimStart)
	app.Post("/claims/confirm", controllers.HandleClaimConfirm)

	// Admin-only verification transition out of pending
	admin := app.Group("/admin", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", ""),
		},
	}))
	admin.Post("/subscriptions/:uuid/verify", controllers.HandleSubscriptionVerify)
}
