package worker

import (
	"log"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"followmail/models"
)

// ResetWorker zeroes the senders' daily counters at midnight. The
// counters are observability only; quota enforcement derives usage
// from the delivery log.
type ResetWorker struct {
	DB     *gorm.DB
	Logger *log.Logger
	cron   *cron.Cron
}

func NewResetWorker(db *gorm.DB, logger *log.Logger) *ResetWorker {
	return &ResetWorker{
		DB:     db,
		Logger: logger,
		cron:   cron.New(),
	}
}

func (rw *ResetWorker) Start() error {
	_, err := rw.cron.AddFunc("0 0 * * *", func() {
		if err := rw.DB.Model(&models.Sender{}).
			Where("sent_today > 0").
			Update("sent_today", 0).
			Error; err != nil {
			rw.Logger.Printf("Failed to reset sender counters: %v", err)
			return
		}
		rw.Logger.Println("Successfully reset sender daily counters")
	})
	if err != nil {
		return err
	}

	rw.cron.Start()
	return nil
}

func (rw *ResetWorker) Stop() {
	rw.cron.Stop()
}
