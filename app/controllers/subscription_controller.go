package controllers

import (
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/subtrackd/subtrackd/internal/pkg/database"
	"github.com/subtrackd/subtrackd/internal/pkg/scheduler"
	"github.com/subtrackd/subtrackd/internal/pkg/subscription"
	"github.com/subtrackd/subtrackd/internal/pkg/usercontext"
)

var (
	subService     *subscription.Service
	subServiceOnce sync.Once
)

// subscriptionService lazily wires the service against the shared database
// handle and the reminder engine. Tests swap it via SetSubscriptionService.
func subscriptionService() *subscription.Service {
	subServiceOnce.Do(func() {
		if subService == nil {
			subService = subscription.NewServiceFromDB(database.GetDB(), scheduler.GetManager().GetEngine())
		}
	})
	return subService
}

// SetSubscriptionService overrides the wired service instance (tests only)
func SetSubscriptionService(s *subscription.Service) {
	subService = s
}

// HandleCreateSubscription creates a subscription owned by the caller and
// kicks off its reminder workflow.
func HandleCreateSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var in subscription.CreateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	sub, err := subscriptionService().Create(c.UserContext(), userCtx.UserID, in)
	if err != nil {
		return subscriptionError(c, err, "Failed to create subscription")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": sub})
}

// HandleGetSubscription returns a single subscription owned by the caller.
func HandleGetSubscription(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid subscription id"})
	}
	userCtx := usercontext.GetUserContext(c)

	sub, err := subscriptionService().GetByID(c.UserContext(), userCtx.UserID, id)
	if err != nil {
		return subscriptionError(c, err, "Failed to load subscription")
	}
	return c.JSON(fiber.Map{"success": true, "data": sub})
}

// HandleUpdateSubscription applies a partial update to an owned subscription.
func HandleUpdateSubscription(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid subscription id"})
	}
	userCtx := usercontext.GetUserContext(c)

	var in subscription.UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	sub, err := subscriptionService().Update(c.UserContext(), userCtx.UserID, id, in)
	if err != nil {
		return subscriptionError(c, err, "Failed to update subscription")
	}
	return c.JSON(fiber.Map{"success": true, "data": sub})
}

// HandleDeleteSubscription removes an owned subscription and abandons any
// pending reminder run.
func HandleDeleteSubscription(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid subscription id"})
	}
	userCtx := usercontext.GetUserContext(c)

	if err := subscriptionService().Delete(c.UserContext(), userCtx.UserID, id); err != nil {
		return subscriptionError(c, err, "Failed to delete subscription")
	}
	return c.JSON(fiber.Map{"success": true, "message": "Subscription deleted successfully"})
}

// HandleCancelSubscription cancels an owned subscription. Cancelling an
// already cancelled subscription is a no-op and reported as such.
func HandleCancelSubscription(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid subscription id"})
	}
	userCtx := usercontext.GetUserContext(c)

	sub, already, err := subscriptionService().Cancel(c.UserContext(), userCtx.UserID, id)
	if err != nil {
		return subscriptionError(c, err, "Failed to cancel subscription")
	}
	message := "Subscription cancelled successfully"
	if already {
		message = "Subscription was already cancelled"
	}
	return c.JSON(fiber.Map{"success": true, "message": message, "data": sub})
}

// HandleListUserSubscriptions lists all subscriptions of a user. Callers may
// only list their own.
func HandleListUserSubscriptions(c *fiber.Ctx) error {
	userID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid user id"})
	}
	userCtx := usercontext.GetUserContext(c)

	subs, err := subscriptionService().ListByUser(c.UserContext(), userCtx.UserID, userID)
	if err != nil {
		return subscriptionError(c, err, "Failed to load subscriptions")
	}
	return c.JSON(fiber.Map{"success": true, "data": subs})
}

// HandleUpcomingRenewals lists the caller's active subscriptions renewing
// within the requested window (default 7 days).
func HandleUpcomingRenewals(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	days := c.QueryInt("days", 0)

	subs, err := subscriptionService().UpcomingRenewals(c.UserContext(), userCtx.UserID, days)
	if err != nil {
		return subscriptionError(c, err, "Failed to load upcoming renewals")
	}
	return c.JSON(fiber.Map{"success": true, "data": subs})
}

// subscriptionError maps service errors onto HTTP status codes
func subscriptionError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Subscription not found"})
	case errors.Is(err, subscription.ErrNotOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "message": "You are not the owner of this subscription"})
	case subscription.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": err.Error()})
	default:
		log.Errorf("subscription handler: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": fallback})
	}
}
