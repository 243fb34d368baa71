package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EscalationContact is someone notified when a check-in goes unanswered.
type EscalationContact struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	MonitoredPersonID string    `gorm:"size:36;index;not null" json:"monitored_person_id"`
	Name              string    `gorm:"size:128" json:"name"`
	PhoneE164         string    `gorm:"size:20" json:"phone_e164"`
	Email             string    `gorm:"size:255" json:"email"`
	NotifyOnMiss      bool      `gorm:"not null" json:"notify_on_miss"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (c *EscalationContact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
