package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"followmail/models"
)

// 1x1 transparent GIF served for open tracking
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type TrackingController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTrackingController(db *gorm.DB, logger *log.Logger) *TrackingController {
	return &TrackingController{DB: db, Logger: logger}
}

// TrackOpen marks the delivery-log row opened and serves the pixel.
// Opened rows keep counting toward the sender's usage windows.
func (tc *TrackingController) TrackOpen(c *fiber.Ctx) error {
	messageID := c.Params("messageId")

	if err := tc.DB.Model(&models.EmailLog{}).
		Where("message_id = ? AND status = ?", messageID, models.EmailLogStatusSent).
		Updates(map[string]interface{}{
			"status":    models.EmailLogStatusOpened,
			"opened_at": time.Now(),
		}).Error; err != nil {
		tc.Logger.Printf("Failed to record open for %s: %v", messageID, err)
	}

	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store")
	return c.Send(trackingPixel)
}

// TrackClick marks the delivery-log row clicked and redirects to the
// original URL.
func (tc *TrackingController) TrackClick(c *fiber.Ctx) error {
	messageID := c.Params("messageId")
	target := c.Query("url")

	if err := tc.DB.Model(&models.EmailLog{}).
		Where("message_id = ? AND status IN ?", messageID,
			[]string{models.EmailLogStatusSent, models.EmailLogStatusOpened}).
		Updates(map[string]interface{}{
			"status":     models.EmailLogStatusClicked,
			"clicked_at": time.Now(),
		}).Error; err != nil {
		tc.Logger.Printf("Failed to record click for %s: %v", messageID, err)
	}

	if target == "" {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Redirect(target, fiber.StatusFound)
}
