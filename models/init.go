package models

import "gorm.io/gorm"

// Migrate creates or updates all engine tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Plan{},
		&Sender{},
		&ContactList{},
		&Contact{},
		&ContactListMembership{},
		&Sequence{},
		&SequenceStep{},
		&SequenceEnrollment{},
		&ScheduledEmail{},
		&EmailLog{},
	)
}

// CreateDefaultPlans seeds the four subscription tiers.
func CreateDefaultPlans(db *gorm.DB) error {
	defaultPlans := []Plan{
		{
			Name:              "free",
			Description:       "Free plan for trying out follow-up sequences",
			HourlyEmailLimit:  50,
			DailyEmailLimit:   500,
			MonthlyEmailLimit: 5000,
			MaxSenders:        1,
		},
		{
			Name:              "basic",
			Description:       "Basic plan for small teams",
			HourlyEmailLimit:  100,
			DailyEmailLimit:   1000,
			MonthlyEmailLimit: 20000,
			MaxSenders:        3,
			DisplayPrice:      "$20",
		},
		{
			Name:              "premium",
			Description:       "Premium plan for growing outreach",
			HourlyEmailLimit:  500,
			DailyEmailLimit:   5000,
			MonthlyEmailLimit: 100000,
			MaxSenders:        10,
			DisplayPrice:      "$60",
			IsPopular:         true,
		},
		{
			Name:              "enterprise",
			Description:       "Custom plan for high-volume senders",
			HourlyEmailLimit:  2000,
			DailyEmailLimit:   20000,
			MonthlyEmailLimit: 500000,
			MaxSenders:        50,
			DisplayPrice:      "$200",
			CustomDomain:      true,
		},
	}
	for _, plan := range defaultPlans {
		if err := db.FirstOrCreate(&plan, "name = ?", plan.Name).Error; err != nil {
			return err
		}
	}
	return nil
}
