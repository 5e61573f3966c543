package controller

import (
	"log"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"followmail/middleware"
	"followmail/models"
	"followmail/utils"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, logger *log.Logger) *ContactController {
	return &ContactController{DB: db, Logger: logger}
}

// CreateContact registers a contact, optionally attaching it to a list.
func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var input struct {
		Email         string `json:"email" validate:"required,email"`
		FirstName     string `json:"first_name"`
		LastName      string `json:"last_name"`
		Company       string `json:"company"`
		Position      string `json:"position"`
		ContactListID *uint  `json:"contact_list_id"`
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
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid email address",
		})
	}

	contact := models.Contact{
		UserID:    user.ID,
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Company:   input.Company,
		Position:  input.Position,
		Source:    "api",
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&contact).Error; err != nil {
			return err
		}
		if input.ContactListID == nil {
			return nil
		}

		var list models.ContactList
		if err := tx.Where("id = ? AND user_id = ?", *input.ContactListID, user.ID).First(&list).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.ContactListMembership{
			ContactListID: list.ID,
			ContactID:     contact.ID,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&list).Update("contact_count", gorm.Expr("contact_count + ?", 1)).Error
	})
	if err != nil {
		cc.Logger.Printf("Failed to create contact: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create contact",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(contact)
}

// CreateContactList creates an empty list.
func (cc *ContactController) CreateContactList(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var input struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description"`
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

	list := models.ContactList{
		UserID:      user.ID,
		Name:        input.Name,
		Description: input.Description,
		Source:      "manual",
	}
	if err := cc.DB.Create(&list).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create contact list",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(list)
}

// GetContacts lists the user's contacts.
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var contacts []models.Contact
	if err := cc.DB.Where("user_id = ?", user.ID).Order("id").Find(&contacts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contacts",
		})
	}

	return c.JSON(fiber.Map{"contacts": contacts})
}

// Unsubscribe flags a contact so the executor skips any pending sends.
func (cc *ContactController) Unsubscribe(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	res := cc.DB.Model(&models.Contact{}).
		Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		Update("is_unsubscribed", true)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to unsubscribe contact",
		})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	return c.JSON(fiber.Map{"success": true})
}
