package automation

import (
	"errors"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"followmail/models"
)

// Email is the transport-level message handed to the Mailer.
type Email struct {
	FromEmail string
	FromName  string
	To        string
	Subject   string
	Body      string
}

// Mailer is the outbound transport. Send returns the provider message
// id when one is available.
type Mailer interface {
	Send(sender *models.Sender, msg Email) (string, error)
}

// Executor delivers due scheduled emails. It only ever moves a row out
// of scheduled state, so calling Deliver twice for the same row (e.g. a
// dispatch-loop retry after a crash) records at most one send.
type Executor struct {
	DB     *gorm.DB
	Mailer Mailer
	Logger *log.Logger

	TrackingBaseURL string

	// Now is the injectable clock for sent timestamps.
	Now func() time.Time
}

func NewExecutor(db *gorm.DB, mailer Mailer, logger *log.Logger, trackingBaseURL string) *Executor {
	return &Executor{
		DB:              db,
		Mailer:          mailer,
		Logger:          logger,
		TrackingBaseURL: trackingBaseURL,
		Now:             time.Now,
	}
}

// Deliver attempts delivery of one scheduled email. reservationID, when
// non-zero, names the queued delivery-log row reserved for this send;
// the executor confirms it to sent or failed. Deliver never advances
// the enrollment - that is the dispatch loop's job after a success.
func (x *Executor) Deliver(scheduledEmailID, reservationID uint) error {
	var email models.ScheduledEmail
	if err := x.DB.First(&email, scheduledEmailID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAlreadyProcessed
		}
		return err
	}

	// Re-check right before sending: pause/stop may have cancelled the
	// row after it was picked up as due.
	if email.Status != models.ScheduledEmailStatusScheduled {
		return ErrAlreadyProcessed
	}

	var contact models.Contact
	if err := x.DB.First(&contact, email.ContactID).Error; err != nil {
		return err
	}
	if !contact.Contactable() {
		return x.suppress(&email, reservationID)
	}

	var sender models.Sender
	if err := x.DB.First(&sender, email.SenderID).Error; err != nil {
		return err
	}

	messageID := uuid.New().String()
	body := email.Content
	if x.TrackingBaseURL != "" {
		body = InjectTracking(body, x.TrackingBaseURL, messageID)
	}

	providerID, sendErr := x.Mailer.Send(&sender, Email{
		FromEmail: sender.FromEmail,
		FromName:  sender.FromName,
		To:        contact.Email,
		Subject:   email.Subject,
		Body:      body,
	})
	if providerID != "" {
		messageID = providerID
	}

	if sendErr != nil {
		return x.recordFailure(&email, &sender, reservationID, sendErr)
	}
	return x.recordSuccess(&email, &sender, &contact, reservationID, messageID)
}

func (x *Executor) recordSuccess(email *models.ScheduledEmail, sender *models.Sender, contact *models.Contact, reservationID uint, messageID string) error {
	now := x.Now()

	res := x.DB.Model(&models.ScheduledEmail{}).
		Where("id = ? AND status = ?", email.ID, models.ScheduledEmailStatusScheduled).
		Updates(map[string]interface{}{
			"status":     models.ScheduledEmailStatusSent,
			"sent_at":    now,
			"message_id": messageID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race against a concurrent dispatch or cancellation.
		// The transport send happened; the reservation stays queued and
		// keeps counting toward usage.
		return ErrAlreadyProcessed
	}

	if err := x.confirmReservation(email, sender, reservationID, models.EmailLogStatusSent, messageID, ""); err != nil {
		x.Logger.Printf("Failed to confirm reservation %d: %v", reservationID, err)
	}

	if err := x.DB.Model(&models.Sender{}).Where("id = ?", sender.ID).
		Updates(map[string]interface{}{
			"sent_today": gorm.Expr("sent_today + ?", 1),
			"total_sent": gorm.Expr("total_sent + ?", 1),
		}).Error; err != nil {
		x.Logger.Printf("Failed to bump sender counters: %v", err)
	}

	if err := x.DB.Model(&models.SequenceStep{}).Where("id = ?", email.StepID).
		Update("sent_count", gorm.Expr("sent_count + ?", 1)).Error; err != nil {
		x.Logger.Printf("Failed to bump step sent count: %v", err)
	}

	if err := x.DB.Model(&models.Contact{}).Where("id = ?", contact.ID).
		Update("last_contact", now).Error; err != nil {
		x.Logger.Printf("Failed to update contact last_contact: %v", err)
	}

	return nil
}

func (x *Executor) recordFailure(email *models.ScheduledEmail, sender *models.Sender, reservationID uint, sendErr error) error {
	logrus.WithFields(logrus.Fields{
		"scheduled_email_id": email.ID,
		"sender_id":          sender.ID,
		"contact_id":         email.ContactID,
	}).WithError(sendErr).Error("email delivery failed")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "send_executor")
		scope.SetExtra("scheduled_email_id", email.ID)
		scope.SetExtra("sender_id", sender.ID)
		sentry.CaptureException(sendErr)
	})

	res := x.DB.Model(&models.ScheduledEmail{}).
		Where("id = ? AND status = ?", email.ID, models.ScheduledEmailStatusScheduled).
		Updates(map[string]interface{}{
			"status":     models.ScheduledEmailStatusFailed,
			"last_error": sendErr.Error(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyProcessed
	}

	if err := x.confirmReservation(email, sender, reservationID, models.EmailLogStatusFailed, "", sendErr.Error()); err != nil {
		x.Logger.Printf("Failed to confirm reservation %d: %v", reservationID, err)
	}

	if err := x.DB.Model(&models.Sender{}).Where("id = ?", sender.ID).
		Updates(map[string]interface{}{
			"failed_sent": gorm.Expr("failed_sent + ?", 1),
			"last_error":  sendErr.Error(),
		}).Error; err != nil {
		x.Logger.Printf("Failed to record sender error: %v", err)
	}

	return &TransportError{Err: sendErr}
}

// suppress cancels a row addressed to a contact who can no longer be
// emailed and releases the reservation.
func (x *Executor) suppress(email *models.ScheduledEmail, reservationID uint) error {
	res := x.DB.Model(&models.ScheduledEmail{}).
		Where("id = ? AND status = ?", email.ID, models.ScheduledEmailStatusScheduled).
		Update("status", models.ScheduledEmailStatusCancelled)
	if res.Error != nil {
		return res.Error
	}
	if reservationID != 0 {
		if err := x.DB.Model(&models.EmailLog{}).Where("id = ?", reservationID).
			Updates(map[string]interface{}{
				"status": models.EmailLogStatusFailed,
				"error":  ErrContactSuppressed.Error(),
			}).Error; err != nil {
			x.Logger.Printf("Failed to release reservation %d: %v", reservationID, err)
		}
	}
	return ErrContactSuppressed
}

// confirmReservation moves the queued reservation row to its terminal
// status, or appends a fresh log row for unreserved sends.
func (x *Executor) confirmReservation(email *models.ScheduledEmail, sender *models.Sender, reservationID uint, status, messageID, sendErr string) error {
	if reservationID != 0 {
		return x.DB.Model(&models.EmailLog{}).Where("id = ?", reservationID).
			Updates(map[string]interface{}{
				"status":             status,
				"message_id":         messageID,
				"error":              sendErr,
				"contact_id":         email.ContactID,
				"scheduled_email_id": email.ID,
			}).Error
	}

	now := x.Now()
	row := models.EmailLog{
		Model:            gorm.Model{CreatedAt: now, UpdatedAt: now},
		UserID:           sender.UserID,
		SenderID:         sender.ID,
		ContactID:        &email.ContactID,
		SequenceID:       &email.SequenceID,
		ScheduledEmailID: &email.ID,
		Status:           status,
		MessageID:        messageID,
		Error:            sendErr,
	}
	return x.DB.Create(&row).Error
}
