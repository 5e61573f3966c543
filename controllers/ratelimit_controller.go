package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"followmail/automation"
	"followmail/middleware"
	"followmail/models"
	"followmail/utils"
)

type RateLimitController struct {
	DB      *gorm.DB
	Limiter *automation.Limiter
	Logger  *log.Logger
}

func NewRateLimitController(db *gorm.DB, limiter *automation.Limiter, logger *log.Logger) *RateLimitController {
	return &RateLimitController{
		DB:      db,
		Limiter: limiter,
		Logger:  logger,
	}
}

// CheckRateLimit evaluates whether the user's sender could send
// email_count messages right now. Read-only: quota is consumed when the
// send is recorded, not here.
func (rc *RateLimitController) CheckRateLimit(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var input struct {
		EmailCount int   `json:"email_count" validate:"required,gte=1"`
		SenderID   *uint `json:"sender_id"`
		SequenceID *uint `json:"sequence_id"`
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

	sender, err := rc.resolveSender(user.ID, input.SenderID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "No active sender found",
		})
	}

	result, err := rc.Limiter.Check(sender, &user.Plan, input.EmailCount)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to evaluate rate limits",
		})
	}

	if !result.Allowed {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"allowed":    false,
			"reason":     result.Reason,
			"reset_time": result.ResetTime,
			"limits":     result,
		})
	}

	return c.JSON(fiber.Map{
		"allowed": true,
		"limits": fiber.Map{
			"hourly":  result.Hourly,
			"daily":   result.Daily,
			"monthly": result.Monthly,
		},
	})
}

func (rc *RateLimitController) resolveSender(userID uint, senderID *uint) (*models.Sender, error) {
	var sender models.Sender
	query := rc.DB.Where("user_id = ? AND is_active = ?", userID, true)
	if senderID != nil {
		query = query.Where("id = ?", *senderID)
	}
	if err := query.Order("id").First(&sender).Error; err != nil {
		return nil, err
	}
	return &sender, nil
}
