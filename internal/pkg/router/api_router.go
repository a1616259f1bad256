package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/subtrackd/subtrackd/app/controllers"
	"github.com/subtrackd/subtrackd/internal/pkg/cache"
	"github.com/subtrackd/subtrackd/internal/pkg/env"
	"github.com/subtrackd/subtrackd/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        rateLimitMax(),
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	auth := v1.Group("/auth")
	auth.Post("/sign-up", controllers.HandleSignUp)
	auth.Post("/sign-in", controllers.HandleSignIn)
	auth.Post("/sign-out", middleware.JWTAuthMiddleware(), controllers.HandleSignOut)

	users := v1.Group("/users", middleware.JWTAuthMiddleware())
	users.Get("/", controllers.HandleListUsers)
	users.Get("/:id", controllers.HandleGetUser)
	users.Put("/:id", controllers.HandleUpdateUser)
	users.Delete("/:id", controllers.HandleDeleteUser)

	subs := v1.Group("/subscriptions", middleware.JWTAuthMiddleware())
	subs.Post("/", controllers.HandleCreateSubscription)
	subs.Get("/upcoming-renewals", controllers.HandleUpcomingRenewals)
	subs.Get("/user/:id", controllers.HandleListUserSubscriptions)
	subs.Get("/:id", controllers.HandleGetSubscription)
	subs.Put("/:id", controllers.HandleUpdateSubscription)
	subs.Delete("/:id", controllers.HandleDeleteSubscription)
	subs.Put("/:id/cancel", controllers.HandleCancelSubscription)

	workflows := v1.Group("/workflows", middleware.JWTAuthMiddleware())
	workflows.Post("/subscription/reminder", controllers.HandleTriggerReminderWorkflow)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances. Database 1 keeps limiter keys out of the reminder state in DB 0.
func newLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func rateLimitMax() int {
	if v, err := strconv.Atoi(env.GetEnv("RATE_LIMIT_PER_MINUTE", "60")); err == nil && v > 0 {
		return v
	}
	return 60
}
