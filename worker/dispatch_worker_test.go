package worker

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"followmail/automation"
	"followmail/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.Migrate(db))
	return db
}

type fakeMailer struct {
	mu   sync.Mutex
	sent int
	fail error
}

func (f *fakeMailer) Send(sender *models.Sender, msg automation.Email) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.sent++
	return fmt.Sprintf("fake-msg-%d", f.sent), nil
}

func (f *fakeMailer) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

type harness struct {
	db      *gorm.DB
	mailer  *fakeMailer
	engine  *automation.Engine
	limiter *automation.Limiter
	worker  *DispatchWorker
	user    models.User
	sender  models.Sender
	contact models.Contact
}

// newHarness wires a full dispatch stack over an in-memory store with a
// frozen clock, plus a user, sender, contact and sequence.
func newHarness(t *testing.T, at time.Time, hourlyLimit int, steps ...models.SequenceStep) (*harness, models.Sequence) {
	t.Helper()

	db := newTestDB(t)

	plan := models.Plan{
		Name:              "basic",
		HourlyEmailLimit:  hourlyLimit,
		DailyEmailLimit:   1000,
		MonthlyEmailLimit: 20000,
		MaxSenders:        3,
	}
	require.NoError(t, db.Create(&plan).Error)

	user := models.User{Name: "Owner", Email: "owner@example.com", PlanID: plan.ID}
	require.NoError(t, db.Create(&user).Error)

	sender := models.Sender{
		UserID:       user.ID,
		Name:         "Primary",
		FromEmail:    "sales@example.com",
		FromName:     "Sales",
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPUsername: "sales@example.com",
		SMTPPassword: "secret",
		Encryption:   "STARTTLS",
		IsActive:     true,
	}
	require.NoError(t, db.Create(&sender).Error)

	contact := models.Contact{UserID: user.ID, Email: "lead@example.org"}
	require.NoError(t, db.Create(&contact).Error)

	sequence := models.Sequence{
		UserID:   user.ID,
		SenderID: sender.ID,
		Name:     "Follow-up",
		Status:   "active",
		Steps:    steps,
	}
	require.NoError(t, db.Create(&sequence).Error)

	logger := log.New(io.Discard, "", 0)
	clock := func() time.Time { return at }

	mailer := &fakeMailer{}
	engine := automation.NewEngine(db, logger)
	engine.Now = clock
	executor := automation.NewExecutor(db, mailer, logger, "")
	executor.Now = clock
	limiter := automation.NewLimiter(db)
	limiter.Now = clock

	worker := NewDispatchWorker(db, engine, executor, limiter, logger)
	worker.Now = clock

	return &harness{
		db:      db,
		mailer:  mailer,
		engine:  engine,
		limiter: limiter,
		worker:  worker,
		user:    user,
		sender:  sender,
		contact: contact,
	}, sequence
}

func zeroDelayStep(number int) models.SequenceStep {
	return models.SequenceStep{
		StepNumber: number,
		Subject:    fmt.Sprintf("Step %d subject", number),
		Content:    fmt.Sprintf("<p>Step %d body</p>", number),
	}
}

func TestProcessDueRunsSequenceToCompletion(t *testing.T) {
	at := time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)
	h, seq := newHarness(t, at, 50, zeroDelayStep(1), zeroDelayStep(2))

	_, err := h.engine.Start(h.user.ID, seq.ID, h.contact.ID, nil)
	require.NoError(t, err)

	// First pass sends step 1 and advances; the step 2 row it schedules
	// is picked up on the next pass.
	h.worker.ProcessDue()
	require.Equal(t, 1, h.mailer.sentCount())

	var enrollment models.SequenceEnrollment
	require.NoError(t, h.db.Where("sequence_id = ?", seq.ID).First(&enrollment).Error)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, 2, enrollment.CurrentStep)

	h.worker.ProcessDue()
	require.Equal(t, 2, h.mailer.sentCount())

	require.NoError(t, h.db.Where("sequence_id = ?", seq.ID).First(&enrollment).Error)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.NotNil(t, enrollment.CompletedAt)

	var sent int64
	require.NoError(t, h.db.Model(&models.ScheduledEmail{}).
		Where("enrollment_id = ? AND status = ?", enrollment.ID, models.ScheduledEmailStatusSent).
		Count(&sent).Error)
	assert.Equal(t, int64(2), sent)

	// A third pass finds nothing to do.
	h.worker.ProcessDue()
	assert.Equal(t, 2, h.mailer.sentCount())
}

func TestProcessDueSkipsFutureRows(t *testing.T) {
	at := time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)
	h, seq := newHarness(t, at, 50, models.SequenceStep{
		StepNumber: 1, DelayDays: 1, Subject: "Later", Content: "<p>Later</p>",
	})

	_, err := h.engine.Start(h.user.ID, seq.ID, h.contact.ID, nil)
	require.NoError(t, err)

	h.worker.ProcessDue()
	assert.Equal(t, 0, h.mailer.sentCount())

	// Once the clock passes the fire time the row goes out.
	later := at.Add(25 * time.Hour)
	h.worker.Now = func() time.Time { return later }
	h.worker.ProcessDue()
	assert.Equal(t, 1, h.mailer.sentCount())
}

func TestProcessDueDefersWhenRateLimited(t *testing.T) {
	at := time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)
	h, seq := newHarness(t, at, 1, zeroDelayStep(1))

	second := models.Contact{UserID: h.user.ID, Email: "second@example.org"}
	require.NoError(t, h.db.Create(&second).Error)

	_, err := h.engine.Start(h.user.ID, seq.ID, h.contact.ID, nil)
	require.NoError(t, err)
	_, err = h.engine.Start(h.user.ID, seq.ID, second.ID, nil)
	require.NoError(t, err)

	h.worker.ProcessDue()
	assert.Equal(t, 1, h.mailer.sentCount())

	var deferred int64
	require.NoError(t, h.db.Model(&models.ScheduledEmail{}).
		Where("sequence_id = ? AND status = ?", seq.ID, models.ScheduledEmailStatusScheduled).
		Count(&deferred).Error)
	assert.Equal(t, int64(1), deferred)

	// After the hour resets, the deferred row is delivered.
	nextHour := at.Add(time.Hour)
	h.worker.Now = func() time.Time { return nextHour }
	h.limiter.Now = h.worker.Now
	h.worker.ProcessDue()
	assert.Equal(t, 2, h.mailer.sentCount())
}

func TestProcessDueStopsSuppressedContacts(t *testing.T) {
	at := time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)
	h, seq := newHarness(t, at, 50, zeroDelayStep(1), zeroDelayStep(2))

	_, err := h.engine.Start(h.user.ID, seq.ID, h.contact.ID, nil)
	require.NoError(t, err)

	require.NoError(t, h.db.Model(&models.Contact{}).Where("id = ?", h.contact.ID).
		Update("is_unsubscribed", true).Error)

	h.worker.ProcessDue()
	assert.Equal(t, 0, h.mailer.sentCount())

	var enrollment models.SequenceEnrollment
	require.NoError(t, h.db.Where("sequence_id = ?", seq.ID).First(&enrollment).Error)
	assert.Equal(t, models.EnrollmentStatusStopped, enrollment.Status)

	var cancelled int64
	require.NoError(t, h.db.Model(&models.ScheduledEmail{}).
		Where("enrollment_id = ? AND status = ?", enrollment.ID, models.ScheduledEmailStatusCancelled).
		Count(&cancelled).Error)
	assert.Equal(t, int64(1), cancelled)
}

func TestRecoverUnadvancedAfterCrash(t *testing.T) {
	at := time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)
	h, seq := newHarness(t, at, 50, zeroDelayStep(1), zeroDelayStep(2))

	_, err := h.engine.Start(h.user.ID, seq.ID, h.contact.ID, nil)
	require.NoError(t, err)

	// Simulate a crash between the send and the advance: the step 1 row
	// is sent but the enrollment still sits on step 1.
	var row models.ScheduledEmail
	require.NoError(t, h.db.Where("sequence_id = ?", seq.ID).First(&row).Error)
	require.NoError(t, h.db.Model(&models.ScheduledEmail{}).Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"status":  models.ScheduledEmailStatusSent,
			"sent_at": at,
		}).Error)

	h.worker.ProcessDue()

	var enrollment models.SequenceEnrollment
	require.NoError(t, h.db.Where("sequence_id = ?", seq.ID).First(&enrollment).Error)
	assert.Equal(t, 2, enrollment.CurrentStep)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)

	// Step 1 was not re-sent; step 2 is now scheduled.
	assert.Equal(t, 0, h.mailer.sentCount())
	var scheduled int64
	require.NoError(t, h.db.Model(&models.ScheduledEmail{}).
		Where("enrollment_id = ? AND status = ? AND step_number = ?",
			enrollment.ID, models.ScheduledEmailStatusScheduled, 2).
		Count(&scheduled).Error)
	assert.Equal(t, int64(1), scheduled)
}

func TestProcessDueContinuesPastFailures(t *testing.T) {
	at := time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)
	h, seq := newHarness(t, at, 50, zeroDelayStep(1))

	second := models.Contact{UserID: h.user.ID, Email: "second@example.org"}
	require.NoError(t, h.db.Create(&second).Error)

	_, err := h.engine.Start(h.user.ID, seq.ID, h.contact.ID, nil)
	require.NoError(t, err)
	_, err = h.engine.Start(h.user.ID, seq.ID, second.ID, nil)
	require.NoError(t, err)

	h.mailer.fail = fmt.Errorf("smtp unreachable")
	h.worker.ProcessDue()

	// Both rows were attempted and both recorded the failure.
	var failed int64
	require.NoError(t, h.db.Model(&models.ScheduledEmail{}).
		Where("sequence_id = ? AND status = ?", seq.ID, models.ScheduledEmailStatusFailed).
		Count(&failed).Error)
	assert.Equal(t, int64(2), failed)

	// Neither enrollment advanced past its failed step.
	var enrollments []models.SequenceEnrollment
	require.NoError(t, h.db.Where("sequence_id = ?", seq.ID).Find(&enrollments).Error)
	require.Len(t, enrollments, 2)
	for _, enrollment := range enrollments {
		assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
		assert.Equal(t, 1, enrollment.CurrentStep)
	}
}
