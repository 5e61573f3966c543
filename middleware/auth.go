package middleware

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"followmail/models"
)

// Protected resolves the X-API-Key header to a user (plan preloaded)
// and stores it in locals. Authentication proper (issuing keys, SSO)
// lives upstream; this is only the account boundary for the engine API.
func Protected(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-API-Key")
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key",
			})
		}

		user, err := models.FindUserByAPIKey(db, key)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// CurrentUser returns the authenticated user set by Protected.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}
