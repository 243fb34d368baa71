// Package store persists monitored persons, check-ins and their audit trail.
//
// The two concurrency guarantees of the check-in core live here: a check-in is claimed
// per (person, local day) through a unique index, and every terminal transition is a
// conditional update on status = 'pending'.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/lifesignal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// GormStore implements all check-in persistence on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// New wraps an opened and migrated gorm DB.
func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *GormStore) DB() *gorm.DB { return s.db }

// ListSchedulable returns persons with both enabled and messaging_enabled set.
func (s *GormStore) ListSchedulable(ctx context.Context) ([]models.MonitoredPerson, error) {
	var persons []models.MonitoredPerson
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND messaging_enabled = ?", true, true).
		Order("id").
		Find(&persons).Error
	if err != nil {
		return nil, fmt.Errorf("list schedulable persons: %w", err)
	}
	return persons, nil
}

// GetPerson loads a person by id.
func (s *GormStore) GetPerson(ctx context.Context, id string) (*models.MonitoredPerson, error) {
	var p models.MonitoredPerson
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person %s: %w", id, err)
	}
	return &p, nil
}

// FindPersonByPhone resolves an inbound sender to a person.
func (s *GormStore) FindPersonByPhone(ctx context.Context, e164 string) (*models.MonitoredPerson, error) {
	var p models.MonitoredPerson
	err := s.db.WithContext(ctx).Where("phone_e164 = ?", e164).Order("created_at").First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find person by phone: %w", err)
	}
	return &p, nil
}

// DisableMessaging records an opt-out. It does not touch existing check-ins.
func (s *GormStore) DisableMessaging(ctx context.Context, personID string) error {
	err := s.db.WithContext(ctx).Model(&models.MonitoredPerson{}).
		Where("id = ?", personID).
		Update("messaging_enabled", false).Error
	if err != nil {
		return fmt.Errorf("disable messaging for %s: %w", personID, err)
	}
	return nil
}

// CheckinExistsForDay is the cheap read that short-circuits most repeated ticks.
// ClaimCheckin remains the authority.
func (s *GormStore) CheckinExistsForDay(ctx context.Context, personID, localDay string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Checkin{}).
		Where("monitored_person_id = ? AND local_day = ?", personID, localDay).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check existing check-in: %w", err)
	}
	return n > 0, nil
}

// ClaimCheckin inserts c unless a check-in for the same (person, local day) exists.
// It reports false, without error, when another writer got there first.
func (s *GormStore) ClaimCheckin(ctx context.Context, c *models.Checkin) (bool, error) {
	c.ScheduledFor = c.ScheduledFor.UTC()
	if c.Status == "" {
		c.Status = models.StatusPending
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "monitored_person_id"}, {Name: "local_day"}},
			DoNothing: true,
		}).
		Create(c)
	if res.Error != nil {
		return false, fmt.Errorf("claim check-in: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// GetCheckin loads a check-in by id.
func (s *GormStore) GetCheckin(ctx context.Context, id string) (*models.Checkin, error) {
	var c models.Checkin
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get check-in %s: %w", id, err)
	}
	return &c, nil
}

// LatestPending returns the most recently scheduled pending check-in of a person.
func (s *GormStore) LatestPending(ctx context.Context, personID string) (*models.Checkin, error) {
	var c models.Checkin
	err := s.db.WithContext(ctx).
		Where("monitored_person_id = ? AND status = ?", personID, models.StatusPending).
		Order("scheduled_for DESC").
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest pending check-in: %w", err)
	}
	return &c, nil
}

// Response describes how a pending check-in was answered.
type Response struct {
	Status       models.CheckinStatus
	ResponseType string
	Channel      string
	At           time.Time
}

// MarkResponded moves a pending check-in to a responded state. A false result means the
// check-in was no longer pending (lost race or duplicate delivery) and nothing changed.
func (s *GormStore) MarkResponded(ctx context.Context, checkinID string, r Response) (bool, error) {
	if r.Status != models.StatusRespondedOK && r.Status != models.StatusRespondedHelp {
		return false, fmt.Errorf("invalid response status %q", r.Status)
	}
	return s.transition(ctx, checkinID, map[string]interface{}{
		"status":        r.Status,
		"responded_at":  r.At.UTC(),
		"response_type": r.ResponseType,
		"channel":       r.Channel,
	})
}

// MarkMissed moves a pending check-in to missed.
func (s *GormStore) MarkMissed(ctx context.Context, checkinID string) (bool, error) {
	return s.transition(ctx, checkinID, map[string]interface{}{"status": models.StatusMissed})
}

func (s *GormStore) transition(ctx context.Context, checkinID string, fields map[string]interface{}) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Checkin{}).
		Where("id = ? AND status = ?", checkinID, models.StatusPending).
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("transition check-in %s: %w", checkinID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListOverdueCandidates returns unclaimed pending check-ins scheduled inside
// [now-lookback, now] with their person preloaded. Per-person wait filtering is left to
// the caller because wait_minutes varies by person.
func (s *GormStore) ListOverdueCandidates(ctx context.Context, now time.Time, lookback time.Duration, limit int) ([]models.Checkin, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []models.Checkin
	err := s.db.WithContext(ctx).
		Preload("MonitoredPerson").
		Where("status = ? AND escalation_claimed_at IS NULL AND scheduled_for >= ? AND scheduled_for <= ?",
			models.StatusPending, now.Add(-lookback).UTC(), now.UTC()).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue check-ins: %w", err)
	}
	return rows, nil
}

// ClaimEscalation marks a pending check-in as being escalated. Only one caller can win.
func (s *GormStore) ClaimEscalation(ctx context.Context, checkinID string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Checkin{}).
		Where("id = ? AND status = ? AND escalation_claimed_at IS NULL", checkinID, models.StatusPending).
		Update("escalation_claimed_at", now.UTC())
	if res.Error != nil {
		return false, fmt.Errorf("claim escalation %s: %w", checkinID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseEscalation clears a claim so a later tick can retry the check-in.
func (s *GormStore) ReleaseEscalation(ctx context.Context, checkinID string) error {
	err := s.db.WithContext(ctx).Model(&models.Checkin{}).
		Where("id = ? AND status = ?", checkinID, models.StatusPending).
		Update("escalation_claimed_at", nil).Error
	if err != nil {
		return fmt.Errorf("release escalation %s: %w", checkinID, err)
	}
	return nil
}

// FinalizeStaleClaims moves check-ins whose escalation was claimed before cutoff but never
// finalized to missed. Contacts are not notified again.
func (s *GormStore) FinalizeStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Checkin{}).
		Where("status = ? AND escalation_claimed_at IS NOT NULL AND escalation_claimed_at <= ?",
			models.StatusPending, cutoff.UTC()).
		Update("status", models.StatusMissed)
	if res.Error != nil {
		return 0, fmt.Errorf("finalize stale escalation claims: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ContactsToNotify returns the notify_on_miss contacts of a person.
func (s *GormStore) ContactsToNotify(ctx context.Context, personID string) ([]models.EscalationContact, error) {
	var contacts []models.EscalationContact
	err := s.db.WithContext(ctx).
		Where("monitored_person_id = ? AND notify_on_miss = ?", personID, true).
		Order("created_at").
		Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("list contacts for %s: %w", personID, err)
	}
	return contacts, nil
}

// AppendAttempt writes one delivery attempt row.
func (s *GormStore) AppendAttempt(ctx context.Context, a *models.DeliveryAttempt) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("append delivery attempt: %w", err)
	}
	return nil
}

// RecordMessage writes a raw SMS log row.
func (s *GormStore) RecordMessage(ctx context.Context, m *models.Message) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// RecordAudit writes an audit event; metadata is stored as a JSON object.
func (s *GormStore) RecordAudit(ctx context.Context, actorID, personID *string, action string, metadata map[string]interface{}) error {
	b, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	entry := models.AuditLog{
		ActorUserID:       actorID,
		MonitoredPersonID: personID,
		Action:            action,
		Metadata:          string(b),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("record audit %s: %w", action, err)
	}
	return nil
}

// ListCheckins returns a person's most recent check-ins with their attempts.
func (s *GormStore) ListCheckins(ctx context.Context, personID string, limit int) ([]models.Checkin, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var rows []models.Checkin
	err := s.db.WithContext(ctx).
		Preload("Attempts", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("monitored_person_id = ?", personID).
		Order("scheduled_for DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list check-ins for %s: %w", personID, err)
	}
	return rows, nil
}

// SubscriptionStatus returns the raw status of an account's subscription, or ErrNotFound.
func (s *GormStore) SubscriptionStatus(ctx context.Context, userID string) (string, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("load subscription for %s: %w", userID, err)
	}
	return sub.Status, nil
}
