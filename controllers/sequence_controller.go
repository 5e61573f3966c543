package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"followmail/middleware"
	"followmail/models"
	"followmail/utils"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{DB: db, Logger: logger}
}

type sequenceStepInput struct {
	StepNumber int    `json:"step_number" validate:"required,gte=1"`
	DelayDays  int    `json:"delay_days" validate:"gte=0"`
	DelayHours int    `json:"delay_hours" validate:"gte=0"`
	Subject    string `json:"subject" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

// CreateSequence creates a sequence with its ordered steps. Step
// numbers must be dense 1..N; the engine consumes them strictly in
// order.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var input struct {
		Name        string              `json:"name" validate:"required"`
		Description string              `json:"description"`
		SenderID    uint                `json:"sender_id" validate:"required"`
		Steps       []sequenceStepInput `json:"steps" validate:"required,min=1,dive"`
	}

	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	seen := make(map[int]bool, len(input.Steps))
	for _, step := range input.Steps {
		seen[step.StepNumber] = true
	}
	for n := 1; n <= len(input.Steps); n++ {
		if !seen[n] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Step numbers must be dense 1..N",
			})
		}
	}

	var sender models.Sender
	if err := sc.DB.Where("id = ? AND user_id = ?", input.SenderID, user.ID).First(&sender).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	sequence := models.Sequence{
		UserID:      user.ID,
		SenderID:    input.SenderID,
		Name:        input.Name,
		Description: input.Description,
		Status:      "active",
	}
	for _, step := range input.Steps {
		sequence.Steps = append(sequence.Steps, models.SequenceStep{
			StepNumber: step.StepNumber,
			DelayDays:  step.DelayDays,
			DelayHours: step.DelayHours,
			Subject:    step.Subject,
			Content:    step.Content,
		})
	}

	if err := sc.DB.Create(&sequence).Error; err != nil {
		sc.Logger.Printf("Failed to create sequence: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(sequence)
}

// GetSequences lists the user's sequences with steps.
func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var sequences []models.Sequence
	if err := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_number")
	}).Where("user_id = ?", user.ID).Find(&sequences).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sequences",
		})
	}

	return c.JSON(fiber.Map{"sequences": sequences})
}

// GetSequence returns one sequence with steps.
func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var sequence models.Sequence
	if err := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_number")
	}).Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	return c.JSON(sequence)
}
