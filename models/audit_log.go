package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit actions written by the check-in core.
const (
	ActionCheckinSent       = "checkin_sent"
	ActionTestCheckinSent   = "test_checkin_sent"
	ActionRespondedOK       = "checkin_responded_ok"
	ActionRespondedHelp     = "checkin_responded_help"
	ActionEscalatedMissed   = "checkin_escalated_missed"
	ActionSMSOptOut         = "sms_opt_out"
	ActionSMSUnrecognized   = "sms_unrecognized"
	ActionVoiceUnrecognized = "voice_unrecognized"
	ActionResponseNoPending = "response_without_pending_checkin"
)

// AuditLog is an append-only record of core decisions.
type AuditLog struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	ActorUserID       *string   `gorm:"size:64" json:"actor_user_id"`
	MonitoredPersonID *string   `gorm:"size:36;index" json:"monitored_person_id"`
	Action            string    `gorm:"size:64;index;not null" json:"action"`
	Metadata          string    `gorm:"type:text" json:"metadata"` // JSON object
	CreatedAt         time.Time `json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
