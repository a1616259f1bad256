package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/subtrackd/subtrackd/app/models"
	"github.com/subtrackd/subtrackd/app/repository"
	"github.com/subtrackd/subtrackd/internal/pkg/token"
)

var validate = validator.New()

type signUpRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// userResponse is the public projection of a user record. Password hashes
// never leave the service.
type userResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// HandleSignUp registers a new account and returns a fresh bearer token.
func HandleSignUp(c *fiber.Ctx) error {
	var req signUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": validationMessage(err)})
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := userRepo.GetByEmail(req.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "message": "Email is already registered"})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("sign-up: email lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Registration failed"})
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		log.Errorf("sign-up: hashing password failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Registration failed"})
	}
	if err := userRepo.Create(user); err != nil {
		log.Errorf("sign-up: creating user failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Registration failed"})
	}

	signed, _, err := token.Generate(user.ID)
	if err != nil {
		log.Errorf("sign-up: token generation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Registration failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "User created successfully",
		"data": fiber.Map{
			"token": signed,
			"user":  toUserResponse(user),
		},
	})
}

// HandleSignIn authenticates credentials and returns a bearer token.
func HandleSignIn(c *fiber.Ctx) error {
	var req signInRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": validationMessage(err)})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Invalid email or password"})
		}
		log.Errorf("sign-in: user lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Sign in failed"})
	}
	if !user.CheckPassword(req.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Invalid email or password"})
	}

	signed, _, err := token.Generate(user.ID)
	if err != nil {
		log.Errorf("sign-in: token generation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Sign in failed"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "User signed in successfully",
		"data": fiber.Map{
			"token": signed,
			"user":  toUserResponse(user),
		},
	})
}

// HandleSignOut revokes the presented token by blacklisting it until its
// natural expiry. The auth middleware left the raw token in Locals.
func HandleSignOut(c *fiber.Ctx) error {
	raw, _ := c.Locals("TOKEN").(string)
	if raw == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Missing bearer token"})
	}

	expiresAt, err := token.ExpiryOf(raw)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Invalid or expired token"})
	}
	if err := repository.GetGlobalFactory().GetTokenBlacklistRepository().Add(raw, expiresAt); err != nil {
		log.Errorf("sign-out: blacklisting token failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Sign out failed"})
	}

	return c.JSON(fiber.Map{"success": true, "message": "User signed out successfully"})
}

// validationMessage flattens the first validator error into a readable string
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "email":
			return fe.Field() + " must be a valid email address"
		case "min":
			return fe.Field() + " is too short"
		case "max":
			return fe.Field() + " is too long"
		default:
			return fe.Field() + " is invalid"
		}
	}
	return "Invalid request"
}
