package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/subtrackd/subtrackd/internal/pkg/scheduler"
)

type reminderTriggerRequest struct {
	SubscriptionID uint `json:"subscription_id"`
}

// HandleTriggerReminderWorkflow starts (or re-arms) the reminder workflow for
// a subscription. Triggering an already running workflow is a no-op, so the
// endpoint is safe to call repeatedly.
func HandleTriggerReminderWorkflow(c *fiber.Ctx) error {
	var req reminderTriggerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}
	if req.SubscriptionID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "subscription_id is required"})
	}

	if err := scheduler.GetManager().GetEngine().Trigger(req.SubscriptionID); err != nil {
		log.Errorf("reminder trigger for subscription %d failed: %v", req.SubscriptionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to trigger reminder workflow"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Reminder workflow triggered",
		"data":    fiber.Map{"subscription_id": req.SubscriptionID},
	})
}
