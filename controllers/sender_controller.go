package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"followmail/middleware"
	"followmail/models"
	"followmail/utils"
)

type SenderController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSenderController(db *gorm.DB, logger *log.Logger) *SenderController {
	return &SenderController{DB: db, Logger: logger}
}

// CreateSender registers SMTP credentials. The password is encrypted
// before it hits the database and never serialized back out.
func (sc *SenderController) CreateSender(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var input struct {
		Name         string `json:"name" validate:"required"`
		FromEmail    string `json:"from_email" validate:"required,email"`
		FromName     string `json:"from_name" validate:"required"`
		SMTPHost     string `json:"smtp_host" validate:"required"`
		SMTPPort     int    `json:"smtp_port" validate:"required,gte=1,lte=65535"`
		SMTPUsername string `json:"smtp_username" validate:"required"`
		SMTPPassword string `json:"smtp_password" validate:"required"`
		Encryption   string `json:"encryption" validate:"required,oneof=SSL TLS STARTTLS"`
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

	var count int64
	if err := sc.DB.Model(&models.Sender{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check sender quota",
		})
	}
	if count >= int64(user.Plan.MaxSenders) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Sender limit reached for your plan",
		})
	}

	encrypted, err := utils.Encrypt(input.SMTPPassword)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": user.ID,
		}).WithError(err).Error("failed to encrypt SMTP password")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store sender credentials",
		})
	}

	sender := models.Sender{
		UserID:       user.ID,
		Name:         input.Name,
		FromEmail:    input.FromEmail,
		FromName:     input.FromName,
		SMTPHost:     input.SMTPHost,
		SMTPPort:     input.SMTPPort,
		SMTPUsername: input.SMTPUsername,
		SMTPPassword: encrypted,
		Encryption:   input.Encryption,
		IsActive:     true,
	}

	if err := sc.DB.Create(&sender).Error; err != nil {
		sc.Logger.Printf("Failed to create sender: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sender",
		})
	}

	sender.Sanitize()
	return c.Status(fiber.StatusCreated).JSON(sender)
}

// GetSenders lists the user's senders with secrets stripped.
func (sc *SenderController) GetSenders(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var senders []models.Sender
	if err := sc.DB.Where("user_id = ?", user.ID).Order("id").Find(&senders).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch senders",
		})
	}

	for i := range senders {
		senders[i].Sanitize()
	}
	return c.JSON(fiber.Map{"senders": senders})
}
