package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"followmail/models"
)

func newTestLimiter(db *gorm.DB, at time.Time) *Limiter {
	limiter := NewLimiter(db)
	limiter.Now = fixedClock(at)
	return limiter
}

// seedUsage inserts count delivery-log rows for the sender at the given
// creation time.
func seedUsage(t *testing.T, db *gorm.DB, sender *models.Sender, status string, at time.Time, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		row := models.EmailLog{
			Model:    gorm.Model{CreatedAt: at, UpdatedAt: at},
			UserID:   sender.UserID,
			SenderID: sender.ID,
			Status:   status,
		}
		require.NoError(t, db.Create(&row).Error)
	}
}

func TestCheckHourlyBoundary(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db, step(1, 0, 0))

	now := time.Date(2025, 5, 15, 10, 30, 0, 0, time.UTC)
	limiter := newTestLimiter(db, now)

	// 49 of 50 used inside the current hour.
	seedUsage(t, db, &f.sender, models.EmailLogStatusSent, now.Add(-25*time.Minute), 49)

	result, err := limiter.Check(&f.sender, &f.plan, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(49), result.Hourly.Used)
	assert.Equal(t, int64(1), result.Hourly.Remaining)

	result, err = limiter.Check(&f.sender, &f.plan, 2)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, ReasonHourlyExceeded, result.Reason)
	require.NotNil(t, result.ResetTime)
	assert.Equal(t, time.Date(2025, 5, 15, 11, 0, 0, 0, time.UTC), *result.ResetTime)

	// Same boundary through the reserving path.
	result, reservations, err := limiter.CheckAndReserve(&f.sender, &f.plan, 2, nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Empty(t, reservations)

	result, reservations, err = limiter.CheckAndReserve(&f.sender, &f.plan, 1, nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Len(t, reservations, 1)
}

func TestCheckDailyBoundary(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db, step(1, 0, 0))
	f.plan.DailyEmailLimit = 60
	require.NoError(t, db.Save(&f.plan).Error)

	now := time.Date(2025, 5, 15, 10, 30, 0, 0, time.UTC)
	limiter := newTestLimiter(db, now)

	// Usage earlier today, outside the current hour.
	seedUsage(t, db, &f.sender, models.EmailLogStatusSent, now.Add(-8*time.Hour), 55)

	result, err := limiter.Check(&f.sender, &f.plan, 10)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, ReasonDailyExceeded, result.Reason)
	require.NotNil(t, result.ResetTime)
	assert.Equal(t, time.Date(2025, 5, 16, 0, 0, 0, 0, time.UTC), *result.ResetTime)

	// The hourly window is untouched.
	assert.Equal(t, int64(0), result.Hourly.Used)

	result, err = limiter.Check(&f.sender, &f.plan, 5)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestCheckMonthlyBoundary(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db, step(1, 0, 0))
	f.plan.MonthlyEmailLimit = 100
	require.NoError(t, db.Save(&f.plan).Error)

	now := time.Date(2025, 5, 15, 10, 30, 0, 0, time.UTC)
	limiter := newTestLimiter(db, now)

	// Usage earlier in the month, before today.
	seedUsage(t, db, &f.sender, models.EmailLogStatusSent, now.AddDate(0, 0, -10), 98)

	result, err := limiter.Check(&f.sender, &f.plan, 3)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, ReasonMonthlyExceeded, result.Reason)
	require.NotNil(t, result.ResetTime)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *result.ResetTime)

	result, err = limiter.Check(&f.sender, &f.plan, 2)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestFailedSendsDoNotConsumeQuota(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db, step(1, 0, 0))

	now := time.Date(2025, 5, 15, 10, 30, 0, 0, time.UTC)
	limiter := newTestLimiter(db, now)

	seedUsage(t, db, &f.sender, models.EmailLogStatusFailed, now.Add(-10*time.Minute), 30)
	seedUsage(t, db, &f.sender, models.EmailLogStatusBounced, now.Add(-10*time.Minute), 30)

	result, err := limiter.Check(&f.sender, &f.plan, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(0), result.Hourly.Used)
}

func TestCheckAndReserveConsumesQuota(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db, step(1, 0, 0))

	now := time.Date(2025, 5, 15, 10, 30, 0, 0, time.UTC)
	limiter := newTestLimiter(db, now)

	result, reservations, err := limiter.CheckAndReserve(&f.sender, &f.plan, 3, &f.sequence.ID, nil)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	require.Len(t, reservations, 3)

	var rows []models.EmailLog
	require.NoError(t, db.Where("sender_id = ?", f.sender.ID).Find(&rows).Error)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, models.EmailLogStatusQueued, row.Status)
		require.NotNil(t, row.SequenceID)
		assert.Equal(t, f.sequence.ID, *row.SequenceID)
	}

	// Reservations count against subsequent checks immediately.
	followup, err := limiter.Check(&f.sender, &f.plan, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), followup.Hourly.Used)
	assert.Equal(t, int64(47), followup.Hourly.Remaining)
}

func TestCheckAndReserveDeniedLeavesNoRows(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db, step(1, 0, 0))

	now := time.Date(2025, 5, 15, 10, 30, 0, 0, time.UTC)
	limiter := newTestLimiter(db, now)

	seedUsage(t, db, &f.sender, models.EmailLogStatusSent, now.Add(-5*time.Minute), 50)

	result, reservations, err := limiter.CheckAndReserve(&f.sender, &f.plan, 1, nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, ReasonHourlyExceeded, result.Reason)
	assert.Empty(t, reservations)

	var count int64
	require.NoError(t, db.Model(&models.EmailLog{}).
		Where("sender_id = ? AND status = ?", f.sender.ID, models.EmailLogStatusQueued).
		Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestUsageExpiresWithWindow(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db, step(1, 0, 0))

	now := time.Date(2025, 5, 15, 10, 30, 0, 0, time.UTC)

	// Fill the hour, then move the clock past the window boundary.
	seedUsage(t, db, &f.sender, models.EmailLogStatusSent, now.Add(-5*time.Minute), 50)

	limiter := newTestLimiter(db, now)
	result, err := limiter.Check(&f.sender, &f.plan, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	limiter.Now = fixedClock(now.Add(time.Hour))
	result, err = limiter.Check(&f.sender, &f.plan, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(0), result.Hourly.Used)
	assert.Equal(t, int64(50), result.Daily.Used)
}
