package models

import "time"

// FollowUp tracks the WhatsApp reminder schedule of one client.
type FollowUp struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ClientID uint    `gorm:"uniqueIndex;not null" json:"client_id"`
	Client   *Client `gorm:"foreignKey:ClientID" json:"client,omitempty"`

	IsActive         bool       `gorm:"not null" json:"is_active"`
	LastServiceDate  *time.Time `gorm:"type:date" json:"last_service_date,omitempty"`
	IntervalOverride *int       `json:"interval_override,omitempty"`
	NextDueDate      *time.Time `gorm:"type:date;index" json:"next_due_date,omitempty"`
	LastSentAt       *time.Time `json:"last_sent_at,omitempty"`
	LastError        string     `gorm:"type:text" json:"last_error,omitempty"`
	LastErrorAt      *time.Time `json:"last_error_at,omitempty"`

	Logs []MessageLog `gorm:"foreignKey:FollowUpID;constraint:OnDelete:CASCADE" json:"logs,omitempty"`
}

// HasOverride reports whether the client has a personal interval.
func (f *FollowUp) HasOverride() bool {
	return f.IntervalOverride != nil
}

// Failing reports whether the most recent attempt failed.
func (f *FollowUp) Failing() bool {
	return f.LastError != ""
}

// MessageStatus is the outcome recorded for one contact attempt.
type MessageStatus string

const (
	MessageSent   MessageStatus = "sent"
	MessageFailed MessageStatus = "failed"
)

// MessageTrigger records what started a contact attempt.
type MessageTrigger string

const (
	TriggerScheduled MessageTrigger = "scheduled"
	TriggerManual    MessageTrigger = "manual"
)

// MessageLog is an append-only record of a contact attempt. Only Status and
// ErrorMessage change afterwards, through provider status callbacks.
type MessageLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	FollowUpID uint      `gorm:"index;not null" json:"follow_up_id"`
	FollowUp   *FollowUp `gorm:"foreignKey:FollowUpID" json:"follow_up,omitempty"`

	Status       MessageStatus  `gorm:"size:10;not null" json:"status"`
	Trigger      MessageTrigger `gorm:"size:10;not null" json:"trigger"`
	Body         string         `gorm:"type:text" json:"body"`
	ProviderSID  string         `gorm:"column:provider_sid;size:64;index" json:"provider_sid,omitempty"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
}
