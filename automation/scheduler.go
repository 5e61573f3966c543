package automation

import (
	"time"

	"gorm.io/gorm"

	"followmail/models"
)

// fireTime computes the wall-clock moment a step should fire. On a
// start or advance the full delay applies; a resume reschedules with
// the hour component only.
func fireTime(now time.Time, step *models.SequenceStep, resumed bool) time.Time {
	delay := time.Duration(step.DelayHours) * time.Hour
	if !resumed {
		delay += time.Duration(step.DelayDays) * 24 * time.Hour
	}
	return now.Add(delay)
}

// scheduleStep materializes a ScheduledEmail row for the step, carrying
// a snapshot of the step's subject and content so later edits to the
// sequence do not change what an already-scheduled email says.
func scheduleStep(tx *gorm.DB, enrollment *models.SequenceEnrollment, seq *models.Sequence, step *models.SequenceStep, fireAt time.Time) error {
	email := models.ScheduledEmail{
		EnrollmentID: enrollment.ID,
		SequenceID:   seq.ID,
		StepID:       step.ID,
		ContactID:    enrollment.ContactID,
		SenderID:     seq.SenderID,
		StepNumber:   step.StepNumber,
		ScheduledAt:  fireAt,
		Subject:      step.Subject,
		Content:      step.Content,
		Status:       models.ScheduledEmailStatusScheduled,
	}
	return tx.Create(&email).Error
}
