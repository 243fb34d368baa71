package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CheckinStatus is the state of one check-in cycle.
type CheckinStatus string

const (
	StatusPending       CheckinStatus = "pending"
	StatusRespondedOK   CheckinStatus = "responded_ok"
	StatusRespondedHelp CheckinStatus = "responded_help"
	StatusMissed        CheckinStatus = "missed"
)

// Terminal reports whether no further transition is allowed from s.
func (s CheckinStatus) Terminal() bool {
	return s == StatusRespondedOK || s == StatusRespondedHelp || s == StatusMissed
}

// Response types stamped on a check-in when it is answered.
const (
	ResponseSMSYes     = "sms_yes"
	ResponseVoiceOK    = "voice_1_ok"
	ResponseVoiceHelp  = "voice_2_help"
	ResponseChannelSMS = "sms"
	ResponseChannelVoc = "voice"
)

// Check-in sources.
const (
	SourceScheduled = "scheduled"
	SourceTest      = "test"
)

// LocalDayLayout formats the per-person calendar day used as the uniqueness key.
const LocalDayLayout = "2006-01-02"

// Checkin is one scheduled prompt-and-response cycle. The (person, local_day) pair is unique.
type Checkin struct {
	ID                  string        `gorm:"primaryKey;size:36" json:"id"`
	MonitoredPersonID   string        `gorm:"size:36;not null;uniqueIndex:idx_checkins_person_day,priority:1;index:idx_checkins_person_status,priority:1" json:"monitored_person_id"`
	LocalDay            string        `gorm:"size:10;not null;uniqueIndex:idx_checkins_person_day,priority:2" json:"local_day"`
	ScheduledFor        time.Time     `gorm:"not null;index" json:"scheduled_for"`
	Status              CheckinStatus `gorm:"size:16;not null;index:idx_checkins_person_status,priority:2" json:"status"`
	Source              string        `gorm:"size:16;not null" json:"source"`
	RespondedAt         *time.Time    `json:"responded_at"`
	ResponseType        *string       `gorm:"size:32" json:"response_type"`
	Channel             *string       `gorm:"size:8" json:"channel"`
	EscalationClaimedAt *time.Time    `gorm:"index" json:"escalation_claimed_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`

	MonitoredPerson *MonitoredPerson  `gorm:"foreignKey:MonitoredPersonID" json:"-"`
	Attempts        []DeliveryAttempt `gorm:"foreignKey:CheckinID" json:"attempts,omitempty"`
}

// BeforeCreate assigns an id when the caller did not.
func (c *Checkin) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
