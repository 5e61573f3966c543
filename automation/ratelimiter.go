package automation

import (
	"time"

	"gorm.io/gorm"

	"followmail/models"
)

// Deny reasons, surfaced verbatim to callers together with the moment
// the offending window resets.
const (
	ReasonHourlyExceeded  = "Hourly limit exceeded"
	ReasonDailyExceeded   = "Daily limit exceeded"
	ReasonMonthlyExceeded = "Monthly limit exceeded"
)

// WindowUsage describes one quota window at evaluation time.
type WindowUsage struct {
	Limit     int       `json:"limit"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// RateLimitResult is the outcome of a quota check. When denied, Reason
// and ResetTime name the narrowest exceeded window.
type RateLimitResult struct {
	Allowed   bool       `json:"allowed"`
	Reason    string     `json:"reason,omitempty"`
	ResetTime *time.Time `json:"reset_time,omitempty"`

	Hourly  WindowUsage `json:"hourly"`
	Daily   WindowUsage `json:"daily"`
	Monthly WindowUsage `json:"monthly"`
}

// Limiter gates sends against a plan's hourly, daily and monthly caps.
// Usage is derived from the delivery log, so recording a send and
// consuming quota are the same write.
type Limiter struct {
	DB *gorm.DB

	// Now is the injectable clock used for window math.
	Now func() time.Time
}

func NewLimiter(db *gorm.DB) *Limiter {
	return &Limiter{DB: db, Now: time.Now}
}

// Check evaluates the caps without reserving capacity. Used by the
// rate-limit-check endpoint; usage only moves when a send is recorded.
func (l *Limiter) Check(sender *models.Sender, plan *models.Plan, emailCount int) (*RateLimitResult, error) {
	return l.evaluate(l.DB, sender, plan, emailCount)
}

// CheckAndReserve evaluates the caps and, when allowed, appends
// emailCount queued delivery-log rows inside the same transaction. The
// sender row is locked for the duration, so concurrent reservations for
// one sender serialize and cannot jointly overshoot a cap. Returned
// reservation ids are confirmed (sent/failed) by the executor.
func (l *Limiter) CheckAndReserve(sender *models.Sender, plan *models.Plan, emailCount int, sequenceID, scheduledEmailID *uint) (*RateLimitResult, []uint, error) {
	var result *RateLimitResult
	var reservationIDs []uint

	err := l.DB.Transaction(func(tx *gorm.DB) error {
		// Touch the sender row first: the write takes a row lock for
		// the rest of the transaction, serializing reservations per
		// sender.
		if err := tx.Model(&models.Sender{}).Where("id = ?", sender.ID).
			Update("updated_at", l.Now()).Error; err != nil {
			return err
		}

		r, err := l.evaluate(tx, sender, plan, emailCount)
		if err != nil {
			return err
		}
		result = r
		if !r.Allowed {
			return nil
		}

		now := l.Now()
		for i := 0; i < emailCount; i++ {
			row := models.EmailLog{
				Model:            gorm.Model{CreatedAt: now, UpdatedAt: now},
				UserID:           sender.UserID,
				SenderID:         sender.ID,
				SequenceID:       sequenceID,
				ScheduledEmailID: scheduledEmailID,
				Status:           models.EmailLogStatusQueued,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			reservationIDs = append(reservationIDs, row.ID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, reservationIDs, nil
}

func (l *Limiter) evaluate(db *gorm.DB, sender *models.Sender, plan *models.Plan, emailCount int) (*RateLimitResult, error) {
	now := l.Now()
	hourStart, dayStart, monthStart := windowStarts(now)

	hourUsed, err := l.usageSince(db, sender.ID, hourStart)
	if err != nil {
		return nil, err
	}
	dayUsed, err := l.usageSince(db, sender.ID, dayStart)
	if err != nil {
		return nil, err
	}
	monthUsed, err := l.usageSince(db, sender.ID, monthStart)
	if err != nil {
		return nil, err
	}

	result := &RateLimitResult{
		Allowed: true,
		Hourly:  window(plan.HourlyEmailLimit, hourUsed, hourStart.Add(time.Hour)),
		Daily:   window(plan.DailyEmailLimit, dayUsed, dayStart.AddDate(0, 0, 1)),
		Monthly: window(plan.MonthlyEmailLimit, monthUsed, monthStart.AddDate(0, 1, 0)),
	}

	// Nested windows; narrowest denial wins.
	switch {
	case hourUsed+int64(emailCount) > int64(plan.HourlyEmailLimit):
		result.deny(ReasonHourlyExceeded, result.Hourly.ResetTime)
	case dayUsed+int64(emailCount) > int64(plan.DailyEmailLimit):
		result.deny(ReasonDailyExceeded, result.Daily.ResetTime)
	case monthUsed+int64(emailCount) > int64(plan.MonthlyEmailLimit):
		result.deny(ReasonMonthlyExceeded, result.Monthly.ResetTime)
	}
	return result, nil
}

func (l *Limiter) usageSince(db *gorm.DB, senderID uint, since time.Time) (int64, error) {
	var count int64
	err := db.Model(&models.EmailLog{}).
		Where("sender_id = ? AND created_at >= ? AND status IN ?",
			senderID, since, models.UsageStatuses).
		Count(&count).Error
	return count, err
}

// windowStarts returns the top of the current hour, local midnight and
// the first of the current calendar month.
func windowStarts(now time.Time) (hour, day, month time.Time) {
	loc := now.Location()
	hour = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, loc)
	day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	month = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	return
}

func window(limit int, used int64, reset time.Time) WindowUsage {
	remaining := int64(limit) - used
	if remaining < 0 {
		remaining = 0
	}
	return WindowUsage{Limit: limit, Used: used, Remaining: remaining, ResetTime: reset}
}

func (r *RateLimitResult) deny(reason string, reset time.Time) {
	r.Allowed = false
	r.Reason = reason
	r.ResetTime = &reset
}
