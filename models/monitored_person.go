package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel is the preferred way of reaching a monitored person.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
	ChannelBoth  Channel = "both"
)

// Valid reports whether c is one of the known channel preferences.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelVoice, ChannelBoth:
		return true
	}
	return false
}

// WantsSMS is true for sms and both.
func (c Channel) WantsSMS() bool { return c == ChannelSMS || c == ChannelBoth }

// WantsVoice is true for voice and both.
func (c Channel) WantsVoice() bool { return c == ChannelVoice || c == ChannelBoth }

// DefaultWaitMinutes applies when a person has no explicit escalation wait.
const DefaultWaitMinutes = 30

// MonitoredPerson is the individual receiving daily check-ins. Rows are soft-disabled, never deleted.
type MonitoredPerson struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerUserID      string    `gorm:"size:64;index;not null" json:"owner_user_id"`
	Name             string    `gorm:"size:128;not null" json:"name"`
	PhoneE164        string    `gorm:"size:20;index" json:"phone_e164"`
	Timezone         string    `gorm:"size:64;not null" json:"timezone"`
	CheckinTime      string    `gorm:"size:5;not null" json:"checkin_time"` // HH:MM local
	ChannelPref      Channel   `gorm:"size:8;not null" json:"channel_pref"`
	Enabled          bool      `gorm:"not null" json:"enabled"`
	MessagingEnabled bool      `gorm:"not null" json:"messaging_enabled"`
	WaitMinutes      int       `gorm:"not null" json:"wait_minutes"`
	BetaOverride     bool      `gorm:"not null" json:"beta_override"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Contacts []EscalationContact `gorm:"foreignKey:MonitoredPersonID" json:"-"`
}

// BeforeCreate assigns an id when the caller did not.
func (p *MonitoredPerson) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// EffectiveWait returns the escalation wait, falling back to DefaultWaitMinutes.
func (p MonitoredPerson) EffectiveWait() time.Duration {
	m := p.WaitMinutes
	if m <= 0 {
		m = DefaultWaitMinutes
	}
	return time.Duration(m) * time.Minute
}

// Location resolves the person's IANA timezone.
func (p MonitoredPerson) Location() (*time.Location, error) {
	if strings.TrimSpace(p.Timezone) == "" {
		return nil, fmt.Errorf("person %s has no timezone", p.ID)
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("person %s timezone %q: %w", p.ID, p.Timezone, err)
	}
	return loc, nil
}

// ParseClock splits an "HH:MM" check-in time.
func ParseClock(hhmm string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid check-in time %q", hhmm)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid check-in hour in %q", hhmm)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid check-in minute in %q", hhmm)
	}
	return hour, minute, nil
}
