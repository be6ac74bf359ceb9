package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/forklinehq/forkline/app/controllers"
	"github.com/forklinehq/forkline/internal/pkg/billing"
	"github.com/forklinehq/forkline/internal/pkg/cache"
	"github.com/forklinehq/forkline/internal/pkg/database"
	"github.com/forklinehq/forkline/internal/pkg/env"
	"github.com/forklinehq/forkline/internal/pkg/mail"
	"github.com/forklinehq/forkline/internal/pkg/notify"
	"github.com/forklinehq/forkline/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// A missing price mapping is a configuration error; fail at startup,
	// not at event-processing time.
	catalog, err := billing.NewPlanCatalogFromEnv()
	if err != nil {
		log.Fatalf("plan catalog: %v", err)
	}

	svc := billing.NewServiceFromDB(
		database.GetDB(),
		billing.NewStripeClientFromEnv(),
		notify.NewDispatcher(mail.SMTPMailer{}),
		catalog,
	)
	controllers.SetupBilling(svc)

	app := fiber.New(fiber.Config{
		AppName: "Forkline",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	return app
}
