package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/subtrackd/subtrackd/app/models"
	"github.com/subtrackd/subtrackd/app/repository"
	"github.com/subtrackd/subtrackd/internal/pkg/database"
	"github.com/subtrackd/subtrackd/internal/pkg/token"
	"github.com/subtrackd/subtrackd/internal/pkg/usercontext"
)

// JWTAuthMiddleware authenticates requests carrying a bearer token and
// attaches the authenticated principal to the request context. Revoked
// (signed-out) tokens are rejected via the blacklist.
func JWTAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := extractBearerToken(c)
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Missing bearer token"})
		}

		db := database.GetDB()
		if db == nil {
			log.Error("auth middleware: database unavailable")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Database unavailable"})
		}

		userID, err := token.Validate(raw)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Invalid or expired token"})
		}

		blacklisted, err := repository.GetGlobalFactory().GetTokenBlacklistRepository().IsBlacklisted(raw, time.Now())
		if err != nil {
			log.Errorf("auth middleware: blacklist lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Token verification failed"})
		}
		if blacklisted {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Token has been revoked"})
		}

		user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unknown user"})
			}
			log.Errorf("auth middleware: user lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Token verification failed"})
		}

		userCtx := usercontext.UserContext{
			UserID:     user.ID,
			Username:   user.Name,
			IsLoggedIn: true,
			IsAdmin:    user.Role == models.ROLE_ADMIN,
		}
		c.Locals(usercontext.KeyUserContext, userCtx)
		c.Locals(usercontext.KeyUserID, user.ID)
		c.Locals(usercontext.KeyUsername, user.Name)
		c.Locals(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)
		c.Locals("TOKEN", raw)

		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
