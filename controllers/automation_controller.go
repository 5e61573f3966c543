package controller

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"followmail/automation"
	"followmail/middleware"
	"followmail/models"
	"followmail/utils"
)

type AutomationController struct {
	DB     *gorm.DB
	Engine *automation.Engine
	Logger *log.Logger
}

func NewAutomationController(db *gorm.DB, engine *automation.Engine, logger *log.Logger) *AutomationController {
	return &AutomationController{
		DB:     db,
		Engine: engine,
		Logger: logger,
	}
}

// HandleAutomation is the lifecycle operation surface. Unrecognized
// actions are rejected before any state is touched.
func (ac *AutomationController) HandleAutomation(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var input struct {
		Action     string                    `json:"action" validate:"required,oneof=start pause resume stop schedule_next"`
		SequenceID uint                      `json:"sequence_id" validate:"required"`
		ContactID  uint                      `json:"contact_id" validate:"required"`
		Settings   models.EnrollmentSettings `json:"settings"`
	}

	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	switch input.Action {
	case "start":
		enrollment, err := ac.Engine.Start(user.ID, input.SequenceID, input.ContactID, input.Settings)
		if err != nil {
			return automationError(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "enrollment": enrollment})

	case "pause":
		enrollment, err := ac.Engine.Pause(user.ID, input.SequenceID, input.ContactID)
		if err != nil {
			return automationError(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "enrollment": enrollment})

	case "resume":
		enrollment, err := ac.Engine.Resume(user.ID, input.SequenceID, input.ContactID)
		if err != nil {
			return automationError(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "enrollment": enrollment})

	case "stop":
		enrollment, err := ac.Engine.Stop(user.ID, input.SequenceID, input.ContactID)
		if err != nil {
			return automationError(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "enrollment": enrollment})

	case "schedule_next":
		result, err := ac.Engine.Advance(user.ID, input.SequenceID, input.ContactID)
		if err != nil {
			return automationError(c, err)
		}
		if result.Completed {
			return c.JSON(fiber.Map{
				"success": true,
				"message": "Sequence completed",
				"result":  result,
			})
		}
		return c.JSON(fiber.Map{"success": true, "result": result})
	}

	// Unreachable; the validator already rejected unknown actions.
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   "Unknown action",
	})
}

// HandleBulkStart enrolls a whole contact list, reporting per-contact
// outcomes instead of failing the batch.
func (ac *AutomationController) HandleBulkStart(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var input struct {
		SequenceID    uint                      `json:"sequence_id" validate:"required"`
		ContactListID uint                      `json:"contact_list_id" validate:"required"`
		Settings      models.EnrollmentSettings `json:"settings"`
	}

	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	result, err := ac.Engine.StartForList(user.ID, input.SequenceID, input.ContactListID, input.Settings)
	if err != nil {
		return automationError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"started": result.Started,
		"failed":  result.Failed,
		"items":   result.Items,
	})
}

// ListEnrollments returns enrollments for a sequence with their
// scheduled emails, optionally narrowed to one contact.
func (ac *AutomationController) ListEnrollments(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	sequenceID, err := strconv.ParseUint(c.Query("sequence_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "sequence_id is required",
		})
	}

	var contactID *uint
	if raw := c.Query("contact_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "contact_id must be numeric",
			})
		}
		contactID = utils.Pointer(uint(parsed))
	}

	enrollments, err := ac.Engine.ListEnrollments(user.ID, uint(sequenceID), contactID)
	if err != nil {
		return automationError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"enrollments": enrollments,
	})
}

// automationError maps engine errors onto HTTP statuses. Every caller
// receives a structured outcome, never a bare failure.
func automationError(c *fiber.Ctx, err error) error {
	var status int
	switch {
	case errors.Is(err, automation.ErrSequenceNotFound),
		errors.Is(err, automation.ErrEnrollmentNotFound),
		errors.Is(err, automation.ErrContactNotFound),
		errors.Is(err, automation.ErrListNotFound),
		errors.Is(err, automation.ErrStepNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, automation.ErrAlreadyEnrolled),
		errors.Is(err, automation.ErrInvalidTransition),
		errors.Is(err, automation.ErrSequenceEmpty):
		status = fiber.StatusBadRequest
	default:
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}
