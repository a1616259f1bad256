package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/subtrackd/subtrackd/internal/pkg/scheduler"
)

type HttpRouter struct {
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "Welcome to the Subscription Tracker API"})
	})

	// Liveness probe, also reports whether the reminder engine is running
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "ok",
			"reminder_engine": scheduler.GetManager().IsRunning(),
		})
	})
}
