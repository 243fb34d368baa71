package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/lifesignal/models"
	"github.com/cppla/lifesignal/store/storetest"
)

func TestScenario_MissedCheckinEscalates(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	storetest.SeedContact(t, h.db, p.ID, "+15557770001", "")
	storetest.SeedContact(t, h.db, p.ID, "+15557770002", "")

	_, err := h.scheduler(ny(9, 0)).RunTick(context.Background())
	require.NoError(t, err)

	report, err := h.escalations(ny(9, 31), nil).RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, OutcomeOK, res.Outcome)
	require.NotNil(t, res.Contacts)
	assert.Equal(t, 2, *res.Contacts)

	assert.Equal(t, 1, h.gw.textsTo("+15557770001"))
	assert.Equal(t, 1, h.gw.textsTo("+15557770002"))

	rows := h.checkins(t, p.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusMissed, rows[0].Status)
	assert.EqualValues(t, 1, h.auditCount(t, models.ActionEscalatedMissed))

	var audit models.AuditLog
	require.NoError(t, h.db.Where("action = ?", models.ActionEscalatedMissed).First(&audit).Error)
	assert.Contains(t, audit.Metadata, `"contacts_count":2`)

	var family int64
	require.NoError(t, h.db.Model(&models.DeliveryAttempt{}).
		Where("checkin_id = ? AND attempt_type = ?", rows[0].ID, models.AttemptFamilySMS).Count(&family).Error)
	assert.EqualValues(t, 2, family)

	// a later run finds nothing left to do
	report, err = h.escalations(ny(9, 40), nil).RunTick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Equal(t, 1, h.gw.textsTo("+15557770001"))
}

func TestEscalation_WaitsForPersonWindow(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db, func(p *models.MonitoredPerson) { p.WaitMinutes = 60 })
	storetest.SeedContact(t, h.db, p.ID, "+15557770001", "")
	storetest.SeedCheckin(t, h.db, p.ID, "2026-03-10", ny(9, 0), models.StatusPending)

	report, err := h.escalations(ny(9, 59), nil).RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)
	assert.Empty(t, report.Results)
	assert.Zero(t, h.gw.textsTo("+15557770001"))

	report, err = h.escalations(ny(10, 0), nil).RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 1, h.gw.textsTo("+15557770001"))
}

func TestEscalation_IgnoresCheckinsOutsideLookback(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	storetest.SeedContact(t, h.db, p.ID, "+15557770001", "")
	old := storetest.SeedCheckin(t, h.db, p.ID, "2026-03-09", ny(9, 0).Add(-24*time.Hour), models.StatusPending)

	report, err := h.escalations(ny(9, 0), nil).RunTick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Evaluated)
	assert.Zero(t, h.gw.textsTo("+15557770001"))

	got, err := h.store.GetCheckin(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestEscalation_FailedContactStillMarksMissed(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	storetest.SeedContact(t, h.db, p.ID, "+15557770001", "")
	storetest.SeedContact(t, h.db, p.ID, "+15557770002", "")
	c := storetest.SeedCheckin(t, h.db, p.ID, "2026-03-10", ny(9, 0), models.StatusPending)
	h.gw.failTo["+15557770001"] = errors.New("carrier rejected")

	report, err := h.escalations(ny(9, 45), nil).RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeOK, report.Results[0].Outcome)

	got, err := h.store.GetCheckin(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMissed, got.Status)

	statuses := map[models.AttemptStatus]int{}
	for _, a := range h.attempts(t, c.ID) {
		statuses[a.Status]++
	}
	assert.Equal(t, 1, statuses[models.AttemptFailed])
	assert.Equal(t, 1, statuses[models.AttemptSent])
}

func TestEscalation_NoContactsStillMarksMissed(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	c := storetest.SeedCheckin(t, h.db, p.ID, "2026-03-10", ny(9, 0), models.StatusPending)

	report, err := h.escalations(ny(9, 45), nil).RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.NotNil(t, report.Results[0].Contacts)
	assert.Zero(t, *report.Results[0].Contacts)

	got, err := h.store.GetCheckin(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMissed, got.Status)
}

func TestEscalation_EmailsContactsWhenMailerReady(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	storetest.SeedContact(t, h.db, p.ID, "", "grace@example.test")
	c := storetest.SeedCheckin(t, h.db, p.ID, "2026-03-10", ny(9, 0), models.StatusPending)
	mailer := &fakeMailer{}

	_, err := h.escalations(ny(9, 45), mailer).RunTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"grace@example.test"}, mailer.sent)
	attempts := h.attempts(t, c.ID)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptFamilyEmail, attempts[0].AttemptType)
	assert.Equal(t, models.AttemptSent, attempts[0].Status)
}

func TestEscalation_FinalizesStaleClaimWithoutNotifying(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	storetest.SeedContact(t, h.db, p.ID, "+15557770001", "")
	c := storetest.SeedCheckin(t, h.db, p.ID, "2026-03-10", ny(9, 0), models.StatusPending)

	won, err := h.store.ClaimEscalation(context.Background(), c.ID, ny(9, 31))
	require.NoError(t, err)
	require.True(t, won)

	report, err := h.escalations(ny(9, 40), nil).RunTick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	got, err := h.store.GetCheckin(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	_, err = h.escalations(ny(10, 0), nil).RunTick(context.Background())
	require.NoError(t, err)
	got, err = h.store.GetCheckin(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMissed, got.Status)
	assert.Zero(t, h.gw.textsTo("+15557770001"))
}

func TestEscalation_ConcurrentRunsNotifyOnce(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	storetest.SeedContact(t, h.db, p.ID, "+15557770001", "")
	storetest.SeedCheckin(t, h.db, p.ID, "2026-03-10", ny(9, 0), models.StatusPending)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.escalations(ny(9, 45), nil).RunTick(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.gw.textsTo("+15557770001"))
	assert.EqualValues(t, 1, h.auditCount(t, models.ActionEscalatedMissed))
}

func TestEscalation_GatewayNotReadyAbortsTick(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	c := storetest.SeedCheckin(t, h.db, p.ID, "2026-03-10", ny(9, 0), models.StatusPending)
	h.gw.notReady = errors.New("twilio credentials missing")

	_, err := h.escalations(ny(9, 45), nil).RunTick(context.Background())
	require.Error(t, err)

	got, err := h.store.GetCheckin(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

// answerDuringEscalation answers the check-in after contacts are loaded and before the
// runner marks it missed.
type answerDuringEscalation struct {
	EscalationStore
	answer func()
}

func (s *answerDuringEscalation) ContactsToNotify(ctx context.Context, personID string) ([]models.EscalationContact, error) {
	contacts, err := s.EscalationStore.ContactsToNotify(ctx, personID)
	if s.answer != nil {
		s.answer()
		s.answer = nil
	}
	return contacts, err
}

func TestEscalation_ResponseDuringEscalationWins(t *testing.T) {
	h := newHarness(t)
	p := storetest.SeedPerson(t, h.db)
	storetest.SeedContact(t, h.db, p.ID, "+15557770001", "")
	c := storetest.SeedCheckin(t, h.db, p.ID, "2026-03-10", ny(9, 0), models.StatusPending)
	ctx := context.Background()

	var collected InboundResult
	st := &answerDuringEscalation{EscalationStore: h.store, answer: func() {
		res, err := h.collector(ny(9, 31)).HandleSMS(ctx, smsFrom(t, p.PhoneE164, "yes"))
		require.NoError(t, err)
		collected = res
	}}
	runner := func(now time.Time) *EscalationRunner {
		return NewEscalationRunner(EscalationConfig{
			Lookback:        6 * time.Hour,
			ClaimStaleAfter: 15 * time.Minute,
			Now:             fixedClock(now),
		}, st, h.gw, nil, h.metrics, zap.NewNop())
	}

	report, err := runner(ny(9, 31)).RunTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultResponded, collected)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeOK, report.Results[0].Outcome)
	assert.Equal(t, ReasonRespondedFirst, report.Results[0].Reason)

	got, err := h.store.GetCheckin(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRespondedOK, got.Status)
	assert.Zero(t, h.auditCount(t, models.ActionEscalatedMissed))
	assert.Equal(t, 1, h.gw.textsTo("+15557770001"))

	// later ticks neither finalize the answered check-in nor alert again
	report, err = runner(ny(10, 0)).RunTick(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Equal(t, 1, h.gw.textsTo("+15557770001"))
	got, err = h.store.GetCheckin(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRespondedOK, got.Status)
}
