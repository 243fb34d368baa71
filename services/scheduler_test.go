package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/lifesignal/gateway"
	"github.com/cppla/lifesignal/models"
	"github.com/cppla/lifesignal/store/storetest"
)

func TestRunTick_SendsDueCheckin(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)

	report, err := h.scheduler(ny(9, 2)).RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeOK, report.Results[0].Outcome)

	rows := h.checkins(t, p.ID)
	require.Len(t, rows, 1)
	c := rows[0]
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Equal(t, "2026-03-10", c.LocalDay)
	assert.Equal(t, models.SourceScheduled, c.Source)
	assert.True(t, c.ScheduledFor.Equal(ny(9, 0)))

	attempts := h.attempts(t, c.ID)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptSMS, attempts[0].AttemptType)
	assert.Equal(t, models.AttemptSent, attempts[0].Status)
	assert.NotEmpty(t, attempts[0].ProviderID)

	require.Len(t, h.gw.texts, 1)
	assert.Equal(t, gateway.CheckinText, h.gw.texts[0].Body)

	var out models.Message
	require.NoError(t, h.db.Where("direction = ?", models.DirectionOut).First(&out).Error)
	assert.Equal(t, attempts[0].ProviderID, out.ProviderID)
	assert.EqualValues(t, 1, h.auditCount(t, models.ActionCheckinSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.checkinsCreated.WithLabelValues(models.SourceScheduled)))
}

func TestRunTick_NotDueCreatesNothing(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)

	for _, at := range []time.Time{ny(8, 59), ny(9, 5), ny(14, 0)} {
		report, err := h.scheduler(at).RunTick(context.Background())
		require.NoError(t, err)
		assert.Empty(t, report.Results)
		assert.Equal(t, 1, report.Evaluated)
	}
	assert.Empty(t, h.checkins(t, p.ID))
	assert.Empty(t, h.gw.texts)
}

func TestRunTick_RepeatedTicksInWindowCreateOneCheckin(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)

	_, err := h.scheduler(ny(9, 0)).RunTick(context.Background())
	require.NoError(t, err)
	report, err := h.scheduler(ny(9, 4)).RunTick(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeSkipped, report.Results[0].Outcome)
	assert.Equal(t, ReasonAlreadyCheckedIn, report.Results[0].Reason)
	assert.Len(t, h.checkins(t, p.ID), 1)
	assert.Len(t, h.gw.texts, 1)
}

func TestRunTick_ConcurrentTicksCreateOneCheckin(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	s := h.scheduler(ny(9, 1))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RunTick(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, h.checkins(t, p.ID), 1)
	assert.Equal(t, 1, h.gw.textsTo(p.PhoneE164))
}

func TestRunTick_OnePersonFailingDoesNotAbortTick(t *testing.T) {
	h := newHarness(t)
	bad := storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.PhoneE164 = "+15550003333" })
	good := storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.PhoneE164 = "+15550004444" })
	h.gw.failTo[bad.PhoneE164] = &gateway.ProviderError{Op: "twilio send sms", StatusCode: 400, Code: 21211, Message: "invalid number"}

	report, err := h.scheduler(ny(9, 0)).RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Count(OutcomeOK))
	assert.Equal(t, 1, report.Count(OutcomeError))

	badRows := h.checkins(t, bad.ID)
	require.Len(t, badRows, 1)
	attempts := h.attempts(t, badRows[0].ID)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptFailed, attempts[0].Status)
	assert.Contains(t, attempts[0].Error, "invalid number")

	assert.Len(t, h.checkins(t, good.ID), 1)
	assert.Equal(t, 1, h.gw.textsTo(good.PhoneE164))
}

func TestRunTick_BothChannelsTextAndCall(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.ChannelPref = models.ChannelBoth })

	_, err := h.scheduler(ny(9, 0)).RunTick(context.Background())
	require.NoError(t, err)

	require.Len(t, h.gw.calls, 1)
	assert.Equal(t, testCallbackURL, h.gw.calls[0].Body)
	assert.Len(t, h.gw.texts, 1)

	rows := h.checkins(t, p.ID)
	require.Len(t, rows, 1)
	assert.Len(t, h.attempts(t, rows[0].ID), 2)
}

func TestRunTick_Eligibility(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.BetaOverride = false })

	report, err := h.scheduler(ny(9, 0)).RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, ReasonIneligible, report.Results[0].Reason)
	assert.Empty(t, h.checkins(t, p.ID))

	require.NoError(t, h.db.Create(&models.Subscription{UserID: p.OwnerUserID, Provider: "paddle", Status: "trialing"}).Error)
	report, err = h.scheduler(ny(9, 1)).RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeOK, report.Results[0].Outcome)
}

func TestRunTick_DisabledOrOptedOutPersonsAreNotScheduled(t *testing.T) {
	h := newHarness(t)
	storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.Enabled = false })
	storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.MessagingEnabled = false; p.PhoneE164 = "+15550005555" })

	report, err := h.scheduler(ny(9, 0)).RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Evaluated)
	assert.Empty(t, h.gw.texts)
}

func TestRunTick_ConfigurationErrorsFailTheTick(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	h.gw.notReady = gateway.ErrNotConfigured

	_, err := h.scheduler(ny(9, 0)).RunTick(context.Background())
	assert.ErrorIs(t, err, gateway.ErrNotConfigured)
	assert.Empty(t, h.checkins(t, p.ID))

	h.gw.notReady = nil
	require.NoError(t, h.db.Model(&models.MonitoredPerson{}).Where("id = ?", p.ID).Update("channel_pref", models.ChannelVoice).Error)
	s := NewScheduler(SchedulerConfig{Now: fixedClock(ny(9, 0))}, h.store, h.gw, NewSubscriptionOracle(h.store), nil, zap.NewNop())
	_, err = s.RunTick(context.Background())
	assert.ErrorIs(t, err, gateway.ErrNotConfigured)
	assert.Empty(t, h.checkins(t, p.ID))
}

func TestRunTick_InvalidTimezoneIsPerPersonError(t *testing.T) {
	h := newHarness(t)
	storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.Timezone = "Nowhere/Land" })
	ok := storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.PhoneE164 = "+15550006666" })

	report, err := h.scheduler(ny(9, 0)).RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(OutcomeError))
	assert.Len(t, h.checkins(t, ok.ID), 1)
}

func TestTriggerTest(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	s := h.scheduler(ny(15, 0))
	ctx := context.Background()

	_, err := s.TriggerTest(ctx, "someone-else", p.ID, models.ChannelSMS)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = s.TriggerTest(ctx, p.OwnerUserID, "missing", models.ChannelSMS)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.TriggerTest(ctx, p.OwnerUserID, p.ID, models.Channel("fax"))
	assert.ErrorIs(t, err, ErrInvalidChannel)

	res, err := s.TriggerTest(ctx, p.OwnerUserID, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.SourceTest, res.Checkin.Source)
	assert.Len(t, res.Attempts, 2)
	require.Len(t, h.gw.texts, 1)
	assert.Equal(t, gateway.TestCheckinText, h.gw.texts[0].Body)
	assert.EqualValues(t, 1, h.auditCount(t, models.ActionTestCheckinSent))

	_, err = s.TriggerTest(ctx, p.OwnerUserID, p.ID, models.ChannelSMS)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestTriggerTest_SharesDailyClaimWithScheduler(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)

	_, err := h.scheduler(ny(8, 0)).TriggerTest(context.Background(), p.OwnerUserID, p.ID, models.ChannelSMS)
	require.NoError(t, err)

	report, err := h.scheduler(ny(9, 0)).RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, ReasonAlreadyCheckedIn, report.Results[0].Reason)
	assert.Len(t, h.checkins(t, p.ID), 1)
}

func TestTriggerTest_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	noPhone := storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.PhoneE164 = "" })
	optedOut := storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.MessagingEnabled = false; p.PhoneE164 = "+15550007777" })
	s := h.scheduler(ny(12, 0))

	_, err := s.TriggerTest(ctx, noPhone.OwnerUserID, noPhone.ID, models.ChannelSMS)
	assert.ErrorIs(t, err, ErrNoPhone)

	_, err = s.TriggerTest(ctx, optedOut.OwnerUserID, optedOut.ID, models.ChannelSMS)
	assert.ErrorIs(t, err, ErrMessagingDisabled)

	h.gw.notReady = gateway.ErrNotConfigured
	_, err = s.TriggerTest(ctx, optedOut.OwnerUserID, optedOut.ID, models.ChannelVoice)
	assert.ErrorIs(t, err, gateway.ErrNotConfigured)
}
