// Package storetest opens throwaway in-memory databases for tests.
package storetest

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/lifesignal/models"
)

// NewDB returns a migrated sqlite database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// PersonOption tweaks a seeded person.
type PersonOption func(*models.MonitoredPerson)

// SeedPerson inserts an enabled, messaging-enabled sms person at 09:00 New York time.
func SeedPerson(t testing.TB, db *gorm.DB, opts ...PersonOption) *models.MonitoredPerson {
	t.Helper()
	p := &models.MonitoredPerson{
		OwnerUserID:      "owner-" + uuid.NewString()[:8],
		Name:             "Ada",
		PhoneE164:        "+15550001111",
		Timezone:         "America/New_York",
		CheckinTime:      "09:00",
		ChannelPref:      models.ChannelSMS,
		Enabled:          true,
		MessagingEnabled: true,
		WaitMinutes:      30,
		BetaOverride:     true,
	}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// SeedContact attaches a notify-on-miss contact to a person.
func SeedContact(t testing.TB, db *gorm.DB, personID, phone, email string) *models.EscalationContact {
	t.Helper()
	c := &models.EscalationContact{
		MonitoredPersonID: personID,
		Name:              "Grace",
		PhoneE164:         phone,
		Email:             email,
		NotifyOnMiss:      true,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

// SeedCheckin inserts a check-in row directly for the given local day.
func SeedCheckin(t testing.TB, db *gorm.DB, personID, localDay string, scheduled time.Time, status models.CheckinStatus) *models.Checkin {
	t.Helper()
	c := &models.Checkin{
		MonitoredPersonID: personID,
		LocalDay:          localDay,
		ScheduledFor:      scheduled.UTC(),
		Status:            status,
		Source:            models.SourceScheduled,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}
