package automation

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"followmail/models"
)

// Engine drives enrollment lifecycle transitions. Every operation is a
// guarded transition: callers get an error for an incompatible state
// rather than a silent no-op. Status flips use conditional updates so
// concurrent calls for the same enrollment cannot double-apply.
type Engine struct {
	DB     *gorm.DB
	Logger *log.Logger
	Hub    *Hub

	// Now is the injectable clock used for all delay math.
	Now func() time.Time
}

func NewEngine(db *gorm.DB, logger *log.Logger) *Engine {
	return &Engine{
		DB:     db,
		Logger: logger,
		Now:    time.Now,
	}
}

// AdvanceResult reports the outcome of an Advance call.
type AdvanceResult struct {
	Completed       bool       `json:"completed"`
	StepNumber      int        `json:"step_number"`
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`
}

// BatchItemResult is the per-contact outcome of a list-wide start.
type BatchItemResult struct {
	ContactID uint   `json:"contact_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// BatchResult aggregates a list-wide start.
type BatchResult struct {
	Started int               `json:"started"`
	Failed  int               `json:"failed"`
	Items   []BatchItemResult `json:"items"`
}

// Start enrolls a contact into a sequence at step 1 and schedules the
// first email. A contact with an existing active or paused enrollment
// in the same sequence is rejected.
func (e *Engine) Start(userID, sequenceID, contactID uint, settings models.EnrollmentSettings) (*models.SequenceEnrollment, error) {
	seq, err := e.loadSequence(userID, sequenceID)
	if err != nil {
		return nil, err
	}

	var contact models.Contact
	if err := e.DB.Where("id = ? AND user_id = ?", contactID, userID).First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}

	step := seq.StepByNumber(1)
	if step == nil {
		return nil, ErrSequenceEmpty
	}

	now := e.Now()
	fireAt := fireTime(now, step, false)

	enrollment := models.SequenceEnrollment{
		UserID:          userID,
		SequenceID:      sequenceID,
		ContactID:       contactID,
		CurrentStep:     1,
		Status:          models.EnrollmentStatusActive,
		StartedAt:       now,
		NextScheduledAt: &fireAt,
		Settings:        settings,
	}

	err = e.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.SequenceEnrollment{}).
			Where("sequence_id = ? AND contact_id = ? AND status IN ?",
				sequenceID, contactID,
				[]string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyEnrolled
		}

		if err := tx.Create(&enrollment).Error; err != nil {
			return err
		}
		return scheduleStep(tx, &enrollment, seq, step, fireAt)
	})
	if err != nil {
		return nil, err
	}

	e.publish("enrollment_started", &enrollment)
	return &enrollment, nil
}

// StartForList enrolls every contact of a list, reporting per-contact
// success and failure instead of failing the whole batch.
func (e *Engine) StartForList(userID, sequenceID, listID uint, settings models.EnrollmentSettings) (*BatchResult, error) {
	var list models.ContactList
	if err := e.DB.Where("id = ? AND user_id = ?", listID, userID).First(&list).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListNotFound
		}
		return nil, err
	}

	var contactIDs []uint
	if err := e.DB.Model(&models.ContactListMembership{}).
		Where("contact_list_id = ?", listID).
		Pluck("contact_id", &contactIDs).Error; err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, contactID := range contactIDs {
		item := BatchItemResult{ContactID: contactID, Success: true}
		if _, err := e.Start(userID, sequenceID, contactID, settings); err != nil {
			item.Success = false
			item.Error = err.Error()
			result.Failed++
		} else {
			result.Started++
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// Pause suspends the active enrollment for the pair and cancels every
// pending scheduled email in the same transaction, so a paused status
// can never coexist with an email that still fires.
func (e *Engine) Pause(userID, sequenceID, contactID uint) (*models.SequenceEnrollment, error) {
	enrollment, err := e.currentEnrollment(userID, sequenceID, contactID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, fmt.Errorf("%w: cannot pause %s enrollment", ErrInvalidTransition, enrollment.Status)
	}

	now := e.Now()
	err = e.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SequenceEnrollment{}).
			Where("id = ? AND status = ?", enrollment.ID, models.EnrollmentStatusActive).
			Updates(map[string]interface{}{
				"status":            models.EnrollmentStatusPaused,
				"paused_at":         now,
				"next_scheduled_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return cancelPending(tx, enrollment.ID)
	})
	if err != nil {
		return nil, err
	}

	enrollment.Status = models.EnrollmentStatusPaused
	enrollment.PausedAt = &now
	enrollment.NextScheduledAt = nil
	e.publish("enrollment_paused", enrollment)
	return enrollment, nil
}

// Resume reactivates a paused enrollment and reschedules its current
// step. The new fire time uses only the step's hour delay, matching the
// behavior the rest of the product relies on.
func (e *Engine) Resume(userID, sequenceID, contactID uint) (*models.SequenceEnrollment, error) {
	enrollment, err := e.currentEnrollment(userID, sequenceID, contactID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusPaused {
		return nil, fmt.Errorf("%w: cannot resume %s enrollment", ErrInvalidTransition, enrollment.Status)
	}

	seq, err := e.loadSequence(userID, sequenceID)
	if err != nil {
		return nil, err
	}
	step := seq.StepByNumber(enrollment.CurrentStep)
	if step == nil {
		return nil, ErrStepNotFound
	}

	now := e.Now()
	fireAt := fireTime(now, step, true)

	err = e.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SequenceEnrollment{}).
			Where("id = ? AND status = ?", enrollment.ID, models.EnrollmentStatusPaused).
			Updates(map[string]interface{}{
				"status":            models.EnrollmentStatusActive,
				"paused_at":         nil,
				"next_scheduled_at": fireAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return scheduleStep(tx, enrollment, seq, step, fireAt)
	})
	if err != nil {
		return nil, err
	}

	enrollment.Status = models.EnrollmentStatusActive
	enrollment.PausedAt = nil
	enrollment.NextScheduledAt = &fireAt
	e.publish("enrollment_resumed", enrollment)
	return enrollment, nil
}

// Stop terminates an active or paused enrollment and cancels its
// pending emails. Stopped is terminal.
func (e *Engine) Stop(userID, sequenceID, contactID uint) (*models.SequenceEnrollment, error) {
	enrollment, err := e.currentEnrollment(userID, sequenceID, contactID)
	if err != nil {
		return nil, err
	}
	if enrollment.Terminal() {
		return nil, fmt.Errorf("%w: cannot stop %s enrollment", ErrInvalidTransition, enrollment.Status)
	}

	now := e.Now()
	err = e.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SequenceEnrollment{}).
			Where("id = ? AND status IN ?", enrollment.ID,
				[]string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
			Updates(map[string]interface{}{
				"status":            models.EnrollmentStatusStopped,
				"completed_at":      now,
				"paused_at":         nil,
				"next_scheduled_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return cancelPending(tx, enrollment.ID)
	})
	if err != nil {
		return nil, err
	}

	enrollment.Status = models.EnrollmentStatusStopped
	enrollment.CompletedAt = &now
	enrollment.PausedAt = nil
	enrollment.NextScheduledAt = nil
	e.publish("enrollment_stopped", enrollment)
	return enrollment, nil
}

// Advance moves an active enrollment to its next step, scheduling the
// step's email, or completes the enrollment when no step remains. The
// current step number is part of the update predicate, so re-invoking
// Advance for a step that already advanced is a rejected transition
// rather than a double move.
func (e *Engine) Advance(userID, sequenceID, contactID uint) (*AdvanceResult, error) {
	enrollment, err := e.currentEnrollment(userID, sequenceID, contactID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, fmt.Errorf("%w: cannot advance %s enrollment", ErrInvalidTransition, enrollment.Status)
	}

	seq, err := e.loadSequence(userID, sequenceID)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	nextNumber := enrollment.CurrentStep + 1
	step := seq.StepByNumber(nextNumber)

	if step == nil {
		// Last step already fired: complete.
		res := e.DB.Model(&models.SequenceEnrollment{}).
			Where("id = ? AND status = ? AND current_step = ?",
				enrollment.ID, models.EnrollmentStatusActive, enrollment.CurrentStep).
			Updates(map[string]interface{}{
				"status":            models.EnrollmentStatusCompleted,
				"completed_at":      now,
				"next_scheduled_at": nil,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrInvalidTransition
		}

		enrollment.Status = models.EnrollmentStatusCompleted
		enrollment.CompletedAt = &now
		enrollment.NextScheduledAt = nil
		e.publish("enrollment_completed", enrollment)
		return &AdvanceResult{Completed: true, StepNumber: enrollment.CurrentStep}, nil
	}

	fireAt := fireTime(now, step, false)
	err = e.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SequenceEnrollment{}).
			Where("id = ? AND status = ? AND current_step = ?",
				enrollment.ID, models.EnrollmentStatusActive, enrollment.CurrentStep).
			Updates(map[string]interface{}{
				"current_step":      nextNumber,
				"next_scheduled_at": fireAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return scheduleStep(tx, enrollment, seq, step, fireAt)
	})
	if err != nil {
		return nil, err
	}

	enrollment.CurrentStep = nextNumber
	enrollment.NextScheduledAt = &fireAt
	e.publish("enrollment_advanced", enrollment)
	return &AdvanceResult{StepNumber: nextNumber, NextScheduledAt: &fireAt}, nil
}

// ListEnrollments returns enrollments for a sequence, optionally
// narrowed to one contact, with their scheduled emails.
func (e *Engine) ListEnrollments(userID, sequenceID uint, contactID *uint) ([]models.SequenceEnrollment, error) {
	query := e.DB.Preload("ScheduledEmails").
		Where("user_id = ? AND sequence_id = ?", userID, sequenceID)
	if contactID != nil {
		query = query.Where("contact_id = ?", *contactID)
	}

	var enrollments []models.SequenceEnrollment
	if err := query.Order("id").Find(&enrollments).Error; err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (e *Engine) loadSequence(userID, sequenceID uint) (*models.Sequence, error) {
	var seq models.Sequence
	err := e.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_number")
	}).Where("id = ? AND user_id = ?", sequenceID, userID).First(&seq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSequenceNotFound
		}
		return nil, err
	}
	if len(seq.Steps) == 0 {
		return nil, ErrSequenceEmpty
	}
	return &seq, nil
}

// currentEnrollment fetches the most recent enrollment for the pair.
func (e *Engine) currentEnrollment(userID, sequenceID, contactID uint) (*models.SequenceEnrollment, error) {
	var enrollment models.SequenceEnrollment
	err := e.DB.Where("user_id = ? AND sequence_id = ? AND contact_id = ?",
		userID, sequenceID, contactID).
		Order("id DESC").First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, err
	}
	return &enrollment, nil
}

func cancelPending(tx *gorm.DB, enrollmentID uint) error {
	return tx.Model(&models.ScheduledEmail{}).
		Where("enrollment_id = ? AND status = ?", enrollmentID, models.ScheduledEmailStatusScheduled).
		Update("status", models.ScheduledEmailStatusCancelled).Error
}

func (e *Engine) publish(event string, enrollment *models.SequenceEnrollment) {
	if e.Hub == nil {
		return
	}
	e.Hub.Publish(Event{
		Type:         event,
		EnrollmentID: enrollment.ID,
		SequenceID:   enrollment.SequenceID,
		ContactID:    enrollment.ContactID,
		Status:       enrollment.Status,
		CurrentStep:  enrollment.CurrentStep,
	})
}
