package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"followmail/automation"
	controller "followmail/controllers"
	"followmail/middleware"
)

// SetupRoutes registers the engine's operation surface.
func SetupRoutes(app *fiber.App, db *gorm.DB, engine *automation.Engine, limiter *automation.Limiter, hub *automation.Hub) {
	automationController := controller.NewAutomationController(db, engine, log.New(os.Stdout, "AUTOMATION: ", log.LstdFlags))
	rateLimitController := controller.NewRateLimitController(db, limiter, log.New(os.Stdout, "RATELIMIT: ", log.LstdFlags))
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	contactController := controller.NewContactController(db, log.New(os.Stdout, "CONTACT: ", log.LstdFlags))
	senderController := controller.NewSenderController(db, log.New(os.Stdout, "SENDER: ", log.LstdFlags))
	trackingController := controller.NewTrackingController(db, log.New(os.Stdout, "TRACKING: ", log.LstdFlags))

	// Public tracking endpoints; these are hit from recipients' mail
	// clients and carry no API key.
	app.Get("/track/open/:messageId/:token", trackingController.TrackOpen)
	app.Get("/track/click/:messageId/:token", trackingController.TrackClick)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(db), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Automation lifecycle surface
	auto := api.Group("/automation", middleware.AutomationRateLimiter())
	auto.Post("/", automationController.HandleAutomation)
	auto.Post("/bulk", automationController.HandleBulkStart)
	auto.Get("/", automationController.ListEnrollments)

	// Rate limit check
	api.Post("/rate-limit-check", rateLimitController.CheckRateLimit)

	// Sequence routes
	sequences := api.Group("/sequences")
	sequences.Post("/", sequenceController.CreateSequence)
	sequences.Get("/", sequenceController.GetSequences)
	sequences.Get("/:id", sequenceController.GetSequence)

	// Contact routes
	contacts := api.Group("/contacts")
	contacts.Post("/", contactController.CreateContact)
	contacts.Get("/", contactController.GetContacts)
	contacts.Post("/lists", contactController.CreateContactList)
	contacts.Post("/:id/unsubscribe", contactController.Unsubscribe)

	// Sender routes
	senders := api.Group("/senders")
	senders.Post("/", senderController.CreateSender)
	senders.Get("/", senderController.GetSenders)

	// Enrollment progress stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/enrollments", websocket.New(controller.EnrollmentProgressWS(hub)))
}
