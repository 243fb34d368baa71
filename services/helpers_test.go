package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/lifesignal/gateway"
	"github.com/cppla/lifesignal/models"
	"github.com/cppla/lifesignal/store"
	"github.com/cppla/lifesignal/store/storetest"
)

const testCallbackURL = "https://app.test/api/twilio/voice"

var newYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// ny builds a New York wall-clock instant on 2026-03-10 (EDT).
func ny(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, newYork)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type sentItem struct {
	To   string
	Body string
}

type fakeGateway struct {
	mu       sync.Mutex
	texts    []sentItem
	calls    []sentItem
	failTo   map[string]error
	notReady error
	seq      int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failTo: map[string]error{}}
}

func (g *fakeGateway) Ready() error { return g.notReady }

func (g *fakeGateway) SendText(ctx context.Context, to, body string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failTo[to]; err != nil {
		return "", err
	}
	g.seq++
	g.texts = append(g.texts, sentItem{To: to, Body: body})
	return fmt.Sprintf("SM%04d", g.seq), nil
}

func (g *fakeGateway) PlaceCall(ctx context.Context, to, callbackURL string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failTo[to]; err != nil {
		return "", err
	}
	g.seq++
	g.calls = append(g.calls, sentItem{To: to, Body: callbackURL})
	return fmt.Sprintf("CA%04d", g.seq), nil
}

func (g *fakeGateway) textsTo(to string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.texts {
		if s.To == to {
			n++
		}
	}
	return n
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *fakeMailer) Ready() error { return nil }

func (m *fakeMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

type harness struct {
	db      *gorm.DB
	store   *store.GormStore
	gw      *fakeGateway
	metrics *Metrics
}

func newHarness(t *testing.T) *harness {
	db := storetest.NewDB(t)
	return &harness{
		db:      db,
		store:   store.New(db),
		gw:      newFakeGateway(),
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
}

func (h *harness) scheduler(now time.Time) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Window:           5 * time.Minute,
		VoiceCallbackURL: testCallbackURL,
		FromNumber:       "+15550009999",
		Now:              fixedClock(now),
	}, h.store, h.gw, NewSubscriptionOracle(h.store), h.metrics, zap.NewNop())
}

func (h *harness) collector(now time.Time) *Collector {
	return NewCollector(h.store, h.metrics, zap.NewNop(), fixedClock(now))
}

func (h *harness) escalations(now time.Time, mailer gateway.EmailSender) *EscalationRunner {
	return NewEscalationRunner(EscalationConfig{
		Lookback:        6 * time.Hour,
		ClaimStaleAfter: 15 * time.Minute,
		BatchLimit:      100,
		Now:             fixedClock(now),
	}, h.store, h.gw, mailer, h.metrics, zap.NewNop())
}

func (h *harness) checkins(t *testing.T, personID string) []models.Checkin {
	t.Helper()
	var rows []models.Checkin
	require.NoError(t, h.db.Where("monitored_person_id = ?", personID).Order("scheduled_for").Find(&rows).Error)
	return rows
}

func (h *harness) attempts(t *testing.T, checkinID string) []models.DeliveryAttempt {
	t.Helper()
	var rows []models.DeliveryAttempt
	require.NoError(t, h.db.Where("checkin_id = ?", checkinID).Order("created_at").Find(&rows).Error)
	return rows
}

func (h *harness) auditCount(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}
