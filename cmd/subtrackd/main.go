package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/subtrackd/subtrackd/app/repository"
	"github.com/subtrackd/subtrackd/internal/pkg/cache"
	"github.com/subtrackd/subtrackd/internal/pkg/database"
	"github.com/subtrackd/subtrackd/internal/pkg/env"
	"github.com/subtrackd/subtrackd/internal/pkg/router"
	"github.com/subtrackd/subtrackd/internal/pkg/scheduler"
)

func main() {
	app := NewApplication()

	// Shut down cleanly on SIGINT/SIGTERM so suspended reminder runs are
	// persisted before the process exits.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		scheduler.GetManager().Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())

	// reminder engine: workers, reconciliation sweep, counter flusher
	scheduler.GetManager().Start()

	app := fiber.New(fiber.Config{
		AppName: "Subscription Tracker API",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
