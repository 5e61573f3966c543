package automation

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

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

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type fixture struct {
	db       *gorm.DB
	plan     models.Plan
	user     models.User
	sender   models.Sender
	contact  models.Contact
	sequence models.Sequence
}

// newFixture seeds a user on the free plan with one sender, one
// contact and a sequence built from the given steps.
func newFixture(t *testing.T, db *gorm.DB, steps ...models.SequenceStep) *fixture {
	t.Helper()

	f := &fixture{db: db}

	f.plan = models.Plan{
		Name:              "free",
		HourlyEmailLimit:  50,
		DailyEmailLimit:   500,
		MonthlyEmailLimit: 5000,
		MaxSenders:        1,
	}
	require.NoError(t, db.Create(&f.plan).Error)

	f.user = models.User{Name: "Test User", Email: "owner@example.com", PlanID: f.plan.ID}
	require.NoError(t, db.Create(&f.user).Error)
	f.user.Plan = f.plan

	f.sender = models.Sender{
		UserID:       f.user.ID,
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
	require.NoError(t, db.Create(&f.sender).Error)

	f.contact = models.Contact{UserID: f.user.ID, Email: "lead@example.org", FirstName: "Lee"}
	require.NoError(t, db.Create(&f.contact).Error)

	f.sequence = models.Sequence{
		UserID:   f.user.ID,
		SenderID: f.sender.ID,
		Name:     "Onboarding follow-up",
		Status:   "active",
		Steps:    steps,
	}
	require.NoError(t, db.Create(&f.sequence).Error)

	return f
}

func step(number, delayDays, delayHours int) models.SequenceStep {
	return models.SequenceStep{
		StepNumber: number,
		DelayDays:  delayDays,
		DelayHours: delayHours,
		Subject:    fmt.Sprintf("Step %d subject", number),
		Content:    fmt.Sprintf("<p>Step %d body</p>", number),
	}
}

func newContact(t *testing.T, f *fixture, email string) models.Contact {
	t.Helper()
	contact := models.Contact{UserID: f.user.ID, Email: email}
	require.NoError(t, f.db.Create(&contact).Error)
	return contact
}

// fakeMailer records sends in memory.
type fakeMailer struct {
	mu   sync.Mutex
	sent []Email
	fail error
}

func (f *fakeMailer) Send(sender *models.Sender, msg Email) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("fake-msg-%d", len(f.sent)), nil
}

func (f *fakeMailer) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
