package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"followmail/automation"
	"followmail/models"
)

// DispatchWorker is the timer-driven loop that finds due scheduled
// emails, reserves send capacity, hands them to the executor and
// advances the owning enrollments. One row failing never stops the
// rest of the batch.
type DispatchWorker struct {
	DB       *gorm.DB
	Engine   *automation.Engine
	Executor *automation.Executor
	Limiter  *automation.Limiter
	Logger   *log.Logger

	Interval  time.Duration
	BatchSize int

	// Now is the injectable clock used for due-row queries.
	Now func() time.Time
}

func NewDispatchWorker(db *gorm.DB, engine *automation.Engine, executor *automation.Executor, limiter *automation.Limiter, logger *log.Logger) *DispatchWorker {
	return &DispatchWorker{
		DB:        db,
		Engine:    engine,
		Executor:  executor,
		Limiter:   limiter,
		Logger:    logger,
		Interval:  30 * time.Second,
		BatchSize: 100,
		Now:       time.Now,
	}
}

func (dw *DispatchWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	dw.Logger.Println("Dispatch worker started")

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Println("Dispatch worker shutting down...")
			return
		case <-ticker.C:
			dw.ProcessDue()
		}
	}
}

// ProcessDue runs one dispatch pass: deliver due rows, then recover
// enrollments whose step sent but never advanced (e.g. a crash between
// the send and the advance).
func (dw *DispatchWorker) ProcessDue() {
	now := dw.Now()

	var due []models.ScheduledEmail
	if err := dw.DB.Where("status = ? AND scheduled_at <= ?",
		models.ScheduledEmailStatusScheduled, now).
		Order("scheduled_at").Limit(dw.BatchSize).
		Find(&due).Error; err != nil {
		dw.Logger.Printf("Error fetching due emails: %v", err)
		return
	}

	for i := range due {
		dw.processRow(&due[i])
	}

	dw.recoverUnadvanced()
}

func (dw *DispatchWorker) processRow(row *models.ScheduledEmail) {
	var sender models.Sender
	if err := dw.DB.First(&sender, row.SenderID).Error; err != nil {
		dw.Logger.Printf("Sender %d not found for scheduled email %d: %v", row.SenderID, row.ID, err)
		return
	}
	var user models.User
	if err := dw.DB.Preload("Plan").First(&user, sender.UserID).Error; err != nil {
		dw.Logger.Printf("User %d not found for sender %d: %v", sender.UserID, sender.ID, err)
		return
	}

	result, reservations, err := dw.Limiter.CheckAndReserve(&sender, &user.Plan, 1, &row.SequenceID, &row.ID)
	if err != nil {
		dw.Logger.Printf("Rate limit evaluation failed for sender %d: %v", sender.ID, err)
		return
	}
	if !result.Allowed {
		// Leave the row scheduled; it becomes due again after the
		// window resets.
		dw.Logger.Printf("Deferring scheduled email %d: %s (resets %s)",
			row.ID, result.Reason, result.ResetTime.Format(time.RFC3339))
		return
	}

	err = dw.Executor.Deliver(row.ID, reservations[0])
	switch {
	case err == nil:
		dw.advanceIfCurrent(row)

	case errors.Is(err, automation.ErrAlreadyProcessed):
		// Cancelled or picked up concurrently; the recovery pass will
		// advance if the send actually happened.

	case errors.Is(err, automation.ErrContactSuppressed):
		dw.Logger.Printf("Contact %d suppressed; stopping enrollment %d", row.ContactID, row.EnrollmentID)
		if _, stopErr := dw.Engine.Stop(user.ID, row.SequenceID, row.ContactID); stopErr != nil {
			dw.Logger.Printf("Failed to stop enrollment %d: %v", row.EnrollmentID, stopErr)
		}

	default:
		dw.Logger.Printf("Delivery of scheduled email %d failed: %v", row.ID, err)
	}
}

// advanceIfCurrent advances the enrollment only if it is still active
// on the step this row fired for, so re-invoking after a crash or a
// concurrent dispatch cannot double-advance.
func (dw *DispatchWorker) advanceIfCurrent(row *models.ScheduledEmail) {
	var enrollment models.SequenceEnrollment
	if err := dw.DB.First(&enrollment, row.EnrollmentID).Error; err != nil {
		dw.Logger.Printf("Enrollment %d not found: %v", row.EnrollmentID, err)
		return
	}
	if enrollment.Status != models.EnrollmentStatusActive || enrollment.CurrentStep != row.StepNumber {
		return
	}

	result, err := dw.Engine.Advance(enrollment.UserID, row.SequenceID, row.ContactID)
	if err != nil {
		if !errors.Is(err, automation.ErrInvalidTransition) {
			dw.Logger.Printf("Failed to advance enrollment %d: %v", enrollment.ID, err)
		}
		return
	}
	if result.Completed {
		dw.Logger.Printf("Enrollment %d completed after step %d", enrollment.ID, result.StepNumber)
	}
}

// recoverUnadvanced finds sent rows whose enrollment still sits on the
// step that fired and re-invokes advance for them.
func (dw *DispatchWorker) recoverUnadvanced() {
	var stuck []models.ScheduledEmail
	err := dw.DB.
		Joins("JOIN sequence_enrollments ON sequence_enrollments.id = scheduled_emails.enrollment_id").
		Where("scheduled_emails.status = ?", models.ScheduledEmailStatusSent).
		Where("sequence_enrollments.status = ?", models.EnrollmentStatusActive).
		Where("sequence_enrollments.current_step = scheduled_emails.step_number").
		Limit(dw.BatchSize).
		Find(&stuck).Error
	if err != nil {
		dw.Logger.Printf("Error scanning for unadvanced enrollments: %v", err)
		return
	}

	for i := range stuck {
		dw.advanceIfCurrent(&stuck[i])
	}
}
