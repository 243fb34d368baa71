package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttemptType identifies what kind of interaction a delivery attempt records.
type AttemptType string

const (
	AttemptSMS         AttemptType = "sms"
	AttemptVoice       AttemptType = "voice"
	AttemptFamilySMS   AttemptType = "family_sms"
	AttemptFamilyEmail AttemptType = "family_email"
)

// AttemptStatus is the outcome of a delivery attempt.
type AttemptStatus string

const (
	AttemptSent     AttemptStatus = "sent"
	AttemptReceived AttemptStatus = "received"
	AttemptFailed   AttemptStatus = "failed"
)

// DeliveryAttempt is an append-only audit row for one outbound or inbound interaction.
type DeliveryAttempt struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	CheckinID   string        `gorm:"size:36;index;not null" json:"checkin_id"`
	AttemptType AttemptType   `gorm:"size:16;not null" json:"attempt_type"`
	Status      AttemptStatus `gorm:"size:16;not null" json:"status"`
	ProviderID  string        `gorm:"size:64" json:"provider_id,omitempty"`
	Error       string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (a *DeliveryAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
