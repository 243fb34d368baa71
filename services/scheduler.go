package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/lifesignal/gateway"
	"github.com/cppla/lifesignal/models"
	"github.com/cppla/lifesignal/store"
)

// SchedulerStore is the persistence the scheduler needs.
type SchedulerStore interface {
	ListSchedulable(ctx context.Context) ([]models.MonitoredPerson, error)
	GetPerson(ctx context.Context, id string) (*models.MonitoredPerson, error)
	CheckinExistsForDay(ctx context.Context, personID, localDay string) (bool, error)
	ClaimCheckin(ctx context.Context, c *models.Checkin) (bool, error)
	AppendAttempt(ctx context.Context, a *models.DeliveryAttempt) error
	RecordMessage(ctx context.Context, m *models.Message) error
	RecordAudit(ctx context.Context, actorID, personID *string, action string, metadata map[string]interface{}) error
}

// SchedulerConfig tunes the scheduler. Now defaults to time.Now.
type SchedulerConfig struct {
	Window           time.Duration
	VoiceCallbackURL string
	FromNumber       string
	Now              func() time.Time
}

// Outcome is the per-entity result of a tick.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// Skip reasons reported in tick results.
const (
	ReasonAlreadyCheckedIn = "already_checked_in"
	ReasonIneligible       = "ineligible"
	ReasonClaimedElsewhere = "claimed_elsewhere"
	ReasonRespondedFirst   = "responded_during_escalation"
)

// EntityResult reports what a tick did for one person or check-in.
type EntityResult struct {
	PersonID  string  `json:"person_id"`
	CheckinID string  `json:"checkin_id,omitempty"`
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	Contacts  *int    `json:"contacts,omitempty"`
}

// TickReport is the outcome list of one tick.
type TickReport struct {
	Job       string         `json:"job"`
	StartedAt time.Time      `json:"started_at"`
	Evaluated int            `json:"evaluated"`
	Results   []EntityResult `json:"results"`
}

// Count returns how many results have outcome o.
func (r *TickReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Scheduler creates at most one check-in per person per local day and sends the prompt.
type Scheduler struct {
	cfg     SchedulerConfig
	store   SchedulerStore
	gw      gateway.Gateway
	oracle  EligibilityOracle
	metrics *Metrics
	logger  *zap.Logger
}

func NewScheduler(cfg SchedulerConfig, st SchedulerStore, gw gateway.Gateway, oracle EligibilityOracle, metrics *Metrics, logger *zap.Logger) *Scheduler {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{cfg: cfg, store: st, gw: gw, oracle: oracle, metrics: metrics, logger: logger}
}

// RunTick evaluates every schedulable person once. A returned error means the whole
// tick was refused (configuration or database failure); per-person failures are reported
// in the results instead.
func (s *Scheduler) RunTick(ctx context.Context) (*TickReport, error) {
	start := time.Now()
	now := s.cfg.Now()
	report := &TickReport{Job: "checkins", StartedAt: now.UTC(), Results: []EntityResult{}}
	err := s.runTick(ctx, now, report)
	s.metrics.tick(report.Job, time.Since(start).Seconds(), err != nil)
	if err != nil {
		s.logger.Error("check-in tick failed", zap.Error(err))
		return nil, err
	}
	s.logger.Info("check-in tick finished",
		zap.Int("evaluated", report.Evaluated),
		zap.Int("sent", report.Count(OutcomeOK)),
		zap.Int("skipped", report.Count(OutcomeSkipped)),
		zap.Int("errors", report.Count(OutcomeError)),
	)
	return report, nil
}

func (s *Scheduler) runTick(ctx context.Context, now time.Time, report *TickReport) error {
	if err := s.gw.Ready(); err != nil {
		return fmt.Errorf("check-in tick: %w", err)
	}
	persons, err := s.store.ListSchedulable(ctx)
	if err != nil {
		return fmt.Errorf("check-in tick: %w", err)
	}
	if s.cfg.VoiceCallbackURL == "" {
		for _, p := range persons {
			if channelFor(p.ChannelPref).WantsVoice() {
				return fmt.Errorf("check-in tick: %w: app base url required for voice check-ins", gateway.ErrNotConfigured)
			}
		}
	}

	report.Evaluated = len(persons)
	for _, p := range persons {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res, ok := s.processPerson(ctx, p, now); ok {
			report.Results = append(report.Results, res)
		}
	}
	return nil
}

// processPerson returns ok=false when the person was simply not due.
func (s *Scheduler) processPerson(ctx context.Context, p models.MonitoredPerson, now time.Time) (EntityResult, bool) {
	res := EntityResult{PersonID: p.ID}
	log := s.logger.With(zap.String("person_id", p.ID))

	due, err := EvaluateDue(p, now, s.cfg.Window)
	if err != nil {
		log.Warn("cannot evaluate schedule", zap.Error(err))
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res, true
	}
	if !due.Due {
		return res, false
	}

	eligible, err := personEligible(ctx, s.oracle, p)
	if err != nil {
		log.Error("eligibility lookup failed", zap.Error(err))
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res, true
	}
	if !eligible {
		res.Outcome, res.Reason = OutcomeSkipped, ReasonIneligible
		return res, true
	}
	if p.PhoneE164 == "" {
		res.Outcome, res.Reason = OutcomeError, ErrNoPhone.Error()
		return res, true
	}

	exists, err := s.store.CheckinExistsForDay(ctx, p.ID, due.LocalDay)
	if err != nil {
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res, true
	}
	if exists {
		res.Outcome, res.Reason = OutcomeSkipped, ReasonAlreadyCheckedIn
		return res, true
	}

	checkin := &models.Checkin{
		MonitoredPersonID: p.ID,
		LocalDay:          due.LocalDay,
		ScheduledFor:      due.ScheduledFor.UTC(),
		Status:            models.StatusPending,
		Source:            models.SourceScheduled,
	}
	won, err := s.store.ClaimCheckin(ctx, checkin)
	if err != nil {
		log.Error("claim check-in failed", zap.Error(err))
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res, true
	}
	if !won {
		res.Outcome, res.Reason = OutcomeSkipped, ReasonAlreadyCheckedIn
		return res, true
	}
	s.metrics.checkinCreated(models.SourceScheduled)
	res.CheckinID = checkin.ID

	channel := channelFor(p.ChannelPref)
	attempts := s.dispatch(ctx, p, checkin, channel, gateway.CheckinText, "checkin_sms")
	s.audit(ctx, nil, p.ID, models.ActionCheckinSent, map[string]interface{}{
		"checkin_id":   checkin.ID,
		"channel_pref": string(channel),
		"local_day":    due.LocalDay,
	})

	if failed := failedAttempts(attempts); failed == len(attempts) {
		res.Outcome, res.Reason = OutcomeError, attempts[0].Error
		return res, true
	}
	res.Outcome = OutcomeOK
	log.Info("check-in sent", zap.String("checkin_id", checkin.ID), zap.String("channel", string(channel)))
	return res, true
}

// TestResult is returned by a manual test check-in.
type TestResult struct {
	Checkin  *models.Checkin          `json:"checkin"`
	Attempts []models.DeliveryAttempt `json:"attempts"`
}

// TriggerTest sends an immediate test check-in on behalf of the person's owner. It shares
// the one-per-day claim with scheduled check-ins.
func (s *Scheduler) TriggerTest(ctx context.Context, actorID, personID string, channel models.Channel) (*TestResult, error) {
	if channel == "" {
		channel = models.ChannelBoth
	}
	if !channel.Valid() {
		return nil, ErrInvalidChannel
	}
	p, err := s.store.GetPerson(ctx, personID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.OwnerUserID != actorID {
		return nil, ErrForbidden
	}
	if p.PhoneE164 == "" {
		return nil, ErrNoPhone
	}
	if channel.WantsSMS() && !p.MessagingEnabled {
		return nil, ErrMessagingDisabled
	}
	if err := s.gw.Ready(); err != nil {
		return nil, err
	}
	if channel.WantsVoice() && s.cfg.VoiceCallbackURL == "" {
		return nil, fmt.Errorf("%w: app base url required for voice check-ins", gateway.ErrNotConfigured)
	}

	now := s.cfg.Now()
	day, err := LocalDayOf(*p, now)
	if err != nil {
		return nil, err
	}
	checkin := &models.Checkin{
		MonitoredPersonID: p.ID,
		LocalDay:          day,
		ScheduledFor:      now.UTC(),
		Status:            models.StatusPending,
		Source:            models.SourceTest,
	}
	won, err := s.store.ClaimCheckin(ctx, checkin)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrAlreadyCheckedIn
	}
	s.metrics.checkinCreated(models.SourceTest)

	attempts := s.dispatch(ctx, *p, checkin, channel, gateway.TestCheckinText, "test_checkin_sms")
	s.audit(ctx, &actorID, p.ID, models.ActionTestCheckinSent, map[string]interface{}{
		"checkin_id": checkin.ID,
		"channel":    string(channel),
	})
	return &TestResult{Checkin: checkin, Attempts: attempts}, nil
}

// dispatch sends on every requested channel and records one attempt per send.
// Provider failures are recorded, never returned.
func (s *Scheduler) dispatch(ctx context.Context, p models.MonitoredPerson, c *models.Checkin, channel models.Channel, body, payloadType string) []models.DeliveryAttempt {
	var attempts []models.DeliveryAttempt
	log := s.logger.With(zap.String("person_id", p.ID), zap.String("checkin_id", c.ID))

	if channel.WantsSMS() {
		sid, err := s.gw.SendText(ctx, p.PhoneE164, body)
		attempts = append(attempts, s.recordAttempt(ctx, c.ID, models.AttemptSMS, sid, err))
		if err == nil {
			msg := &models.Message{
				MonitoredPersonID: &p.ID,
				Direction:         models.DirectionOut,
				FromE164:          s.cfg.FromNumber,
				ToE164:            p.PhoneE164,
				Body:              body,
				ProviderID:        sid,
				RawPayload:        fmt.Sprintf(`{"type":%q}`, payloadType),
			}
			if err := s.store.RecordMessage(ctx, msg); err != nil {
				log.Warn("record outbound message failed", zap.Error(err))
			}
		}
	}
	if channel.WantsVoice() {
		sid, err := s.gw.PlaceCall(ctx, p.PhoneE164, s.cfg.VoiceCallbackURL)
		attempts = append(attempts, s.recordAttempt(ctx, c.ID, models.AttemptVoice, sid, err))
	}
	return attempts
}

func (s *Scheduler) recordAttempt(ctx context.Context, checkinID string, t models.AttemptType, providerID string, sendErr error) models.DeliveryAttempt {
	a := newAttempt(checkinID, t, providerID, sendErr)
	if sendErr != nil {
		s.logger.Warn("delivery failed",
			zap.String("checkin_id", checkinID),
			zap.String("attempt_type", string(t)),
			zap.Error(sendErr),
		)
	}
	if err := s.store.AppendAttempt(ctx, &a); err != nil {
		s.logger.Error("append attempt failed", zap.String("checkin_id", checkinID), zap.Error(err))
	}
	s.metrics.delivery(string(t), string(a.Status))
	return a
}

func (s *Scheduler) audit(ctx context.Context, actorID *string, personID, action string, metadata map[string]interface{}) {
	if err := s.store.RecordAudit(ctx, actorID, &personID, action, metadata); err != nil {
		s.logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func newAttempt(checkinID string, t models.AttemptType, providerID string, sendErr error) models.DeliveryAttempt {
	a := models.DeliveryAttempt{
		CheckinID:   checkinID,
		AttemptType: t,
		Status:      models.AttemptSent,
		ProviderID:  providerID,
	}
	if sendErr != nil {
		a.Status = models.AttemptFailed
		a.Error = sendErr.Error()
	}
	return a
}

func failedAttempts(attempts []models.DeliveryAttempt) int {
	n := 0
	for _, a := range attempts {
		if a.Status == models.AttemptFailed {
			n++
		}
	}
	return n
}

// channelFor falls back to sms for unknown preferences.
func channelFor(c models.Channel) models.Channel {
	if c.Valid() {
		return c
	}
	return models.ChannelSMS
}
