package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/subtrackd/subtrackd/app/repository"
	"github.com/subtrackd/subtrackd/internal/pkg/usercontext"
)

const (
	defaultUserPageSize = 50
	maxUserPageSize     = 200
)

type updateUserRequest struct {
	Name *string `json:"name"`
}

// HandleListUsers returns a public directory of registered users. Only
// non-sensitive fields are exposed.
func HandleListUsers(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", defaultUserPageSize)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxUserPageSize {
		limit = defaultUserPageSize
	}

	users, err := repository.GetGlobalFactory().GetUserRepository().List(offset, limit)
	if err != nil {
		log.Errorf("list users failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load users"})
	}

	out := make([]fiber.Map, 0, len(users))
	for i := range users {
		out = append(out, fiber.Map{
			"id":         users[i].ID,
			"name":       users[i].Name,
			"created_at": users[i].CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"success": true, "data": out})
}

// HandleGetUser returns the full profile of a single user. Callers may only
// read their own profile.
func HandleGetUser(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid user id"})
	}
	userCtx := usercontext.GetUserContext(c)
	if userCtx.UserID != id && !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "message": "You are not allowed to access this user"})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
		}
		log.Errorf("get user %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load user"})
	}
	return c.JSON(fiber.Map{"success": true, "data": toUserResponse(user)})
}

// HandleUpdateUser updates the caller's own profile. Only the display name is
// mutable here; email and password changes go through dedicated flows.
func HandleUpdateUser(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid user id"})
	}
	userCtx := usercontext.GetUserContext(c)
	if userCtx.UserID != id {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "message": "You are not allowed to modify this user"})
	}

	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
		}
		log.Errorf("update user %d: lookup failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to update user"})
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if len(name) < 3 || len(name) > 50 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Name must be between 3 and 50 characters"})
		}
		user.Name = name
	}

	if err := repo.Update(user); err != nil {
		log.Errorf("update user %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to update user"})
	}
	return c.JSON(fiber.Map{"success": true, "data": toUserResponse(user)})
}

// HandleDeleteUser removes the caller's own account.
func HandleDeleteUser(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid user id"})
	}
	userCtx := usercontext.GetUserContext(c)
	if userCtx.UserID != id && !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "message": "You are not allowed to delete this user"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := repo.GetByID(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
		}
		log.Errorf("delete user %d: lookup failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to delete user"})
	}
	if err := repo.Delete(id); err != nil {
		log.Errorf("delete user %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to delete user"})
	}
	return c.JSON(fiber.Map{"success": true, "message": "User deleted successfully"})
}

// parseIDParam parses the ":id" route parameter as an unsigned integer
func parseIDParam(c *fiber.Ctx) (uint, error) {
	raw := c.Params("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
