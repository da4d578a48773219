package models

import (
	"time"

	"gorm.io/gorm"
)

// SettingsID is the primary key of the single FollowUpSettings row.
const SettingsID = 1

// Defaults for a fresh installation.
const (
	DefaultIntervalDays    = 120
	DefaultMessageTemplate = "Hi {client_name}, it has been {days_since_service} days since your last service with {business_name} on {last_service_date}. Reply to book your next visit."
)

// FollowUpSettings holds the business-wide follow-up configuration.
type FollowUpSettings struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	GlobalIntervalDays int    `gorm:"not null" json:"global_interval_days"`
	BusinessName       string `gorm:"size:255" json:"business_name"`
	MessageTemplate    string `gorm:"type:text" json:"message_template"`
}

// LoadSettings returns the singleton row, creating it with defaults when absent.
func LoadSettings(db *gorm.DB, businessName string) (*FollowUpSettings, error) {
	s := FollowUpSettings{
		ID:                 SettingsID,
		GlobalIntervalDays: DefaultIntervalDays,
		BusinessName:       businessName,
		MessageTemplate:    DefaultMessageTemplate,
	}
	if err := db.Where(FollowUpSettings{ID: SettingsID}).FirstOrCreate(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
