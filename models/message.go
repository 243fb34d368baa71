package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message logs a raw inbound or outbound SMS. PersonID is empty for unknown senders.
type Message struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	MonitoredPersonID *string   `gorm:"size:36;index" json:"monitored_person_id"`
	Direction         string    `gorm:"size:3;not null" json:"direction"`
	FromE164          string    `gorm:"size:20" json:"from_e164"`
	ToE164            string    `gorm:"size:20" json:"to_e164"`
	Body              string    `gorm:"type:text" json:"body"`
	ProviderID        string    `gorm:"size:64;index" json:"provider_id"`
	RawPayload        string    `gorm:"type:text" json:"raw_payload"` // JSON
	CreatedAt         time.Time `json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
