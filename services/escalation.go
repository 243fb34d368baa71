package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/lifesignal/gateway"
	"github.com/cppla/lifesignal/models"
)

// EscalationStore is the persistence the escalation runner needs.
type EscalationStore interface {
	ListOverdueCandidates(ctx context.Context, now time.Time, lookback time.Duration, limit int) ([]models.Checkin, error)
	ClaimEscalation(ctx context.Context, checkinID string, now time.Time) (bool, error)
	ReleaseEscalation(ctx context.Context, checkinID string) error
	FinalizeStaleClaims(ctx context.Context, cutoff time.Time) (int64, error)
	ContactsToNotify(ctx context.Context, personID string) ([]models.EscalationContact, error)
	MarkMissed(ctx context.Context, checkinID string) (bool, error)
	AppendAttempt(ctx context.Context, a *models.DeliveryAttempt) error
	RecordAudit(ctx context.Context, actorID, personID *string, action string, metadata map[string]interface{}) error
}

// EscalationConfig tunes the escalation runner.
type EscalationConfig struct {
	Lookback        time.Duration
	ClaimStaleAfter time.Duration
	BatchLimit      int
	Now             func() time.Time
}

// EscalationRunner alerts contacts for unanswered check-ins and marks them missed.
type EscalationRunner struct {
	cfg     EscalationConfig
	store   EscalationStore
	gw      gateway.Gateway
	mailer  gateway.EmailSender
	metrics *Metrics
	logger  *zap.Logger
}

// NewEscalationRunner builds a runner. mailer may be nil to disable email alerts.
func NewEscalationRunner(cfg EscalationConfig, st EscalationStore, gw gateway.Gateway, mailer gateway.EmailSender, metrics *Metrics, logger *zap.Logger) *EscalationRunner {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 6 * time.Hour
	}
	if cfg.ClaimStaleAfter <= 0 {
		cfg.ClaimStaleAfter = 15 * time.Minute
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 500
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &EscalationRunner{cfg: cfg, store: st, gw: gw, mailer: mailer, metrics: metrics, logger: logger}
}

// RunTick escalates every overdue pending check-in inside the lookback window.
func (r *EscalationRunner) RunTick(ctx context.Context) (*TickReport, error) {
	start := time.Now()
	now := r.cfg.Now()
	report := &TickReport{Job: "escalations", StartedAt: now.UTC(), Results: []EntityResult{}}
	err := r.runTick(ctx, now, report)
	r.metrics.tick(report.Job, time.Since(start).Seconds(), err != nil)
	if err != nil {
		r.logger.Error("escalation tick failed", zap.Error(err))
		return nil, err
	}
	r.logger.Info("escalation tick finished",
		zap.Int("candidates", report.Evaluated),
		zap.Int("escalated", report.Count(OutcomeOK)),
		zap.Int("errors", report.Count(OutcomeError)),
	)
	return report, nil
}

func (r *EscalationRunner) runTick(ctx context.Context, now time.Time, report *TickReport) error {
	if err := r.gw.Ready(); err != nil {
		return fmt.Errorf("escalation tick: %w", err)
	}

	finalized, err := r.store.FinalizeStaleClaims(ctx, now.Add(-r.cfg.ClaimStaleAfter))
	if err != nil {
		return fmt.Errorf("escalation tick: %w", err)
	}
	if finalized > 0 {
		r.logger.Warn("finalized interrupted escalations", zap.Int64("count", finalized))
		r.metrics.escalationN("stale_finalized", float64(finalized))
	}

	candidates, err := r.store.ListOverdueCandidates(ctx, now, r.cfg.Lookback, r.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("escalation tick: %w", err)
	}
	report.Evaluated = len(candidates)

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := &candidates[i]
		if c.MonitoredPerson == nil {
			continue
		}
		if now.Sub(c.ScheduledFor) < c.MonitoredPerson.EffectiveWait() {
			continue
		}
		report.Results = append(report.Results, r.escalate(ctx, c, now))
	}
	return nil
}

func (r *EscalationRunner) escalate(ctx context.Context, c *models.Checkin, now time.Time) EntityResult {
	person := c.MonitoredPerson
	res := EntityResult{PersonID: person.ID, CheckinID: c.ID}
	log := r.logger.With(zap.String("person_id", person.ID), zap.String("checkin_id", c.ID))

	won, err := r.store.ClaimEscalation(ctx, c.ID, now)
	if err != nil {
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res
	}
	if !won {
		res.Outcome, res.Reason = OutcomeSkipped, ReasonClaimedElsewhere
		return res
	}

	contacts, err := r.store.ContactsToNotify(ctx, person.ID)
	if err != nil {
		log.Error("load contacts failed, releasing claim", zap.Error(err))
		if rerr := r.store.ReleaseEscalation(ctx, c.ID); rerr != nil {
			log.Error("release escalation failed", zap.Error(rerr))
		}
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res
	}
	count := len(contacts)
	res.Contacts = &count

	notified := r.notifyContacts(ctx, c, person, contacts)

	missed, err := r.store.MarkMissed(ctx, c.ID)
	if err != nil {
		// the claim stays; a later tick finalizes it without notifying again
		log.Error("mark missed failed", zap.Error(err))
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res
	}
	if !missed {
		log.Info("check-in answered while escalating")
		r.metrics.escalation("responded_first")
		res.Outcome, res.Reason = OutcomeOK, ReasonRespondedFirst
		return res
	}

	personID := person.ID
	if err := r.store.RecordAudit(ctx, nil, &personID, models.ActionEscalatedMissed, map[string]interface{}{
		"checkin_id":     c.ID,
		"contacts_count": count,
		"notified":       notified,
	}); err != nil {
		log.Warn("audit write failed", zap.Error(err))
	}
	r.metrics.escalation("missed")
	log.Info("check-in escalated", zap.Int("contacts", count), zap.Int("notified", notified))
	res.Outcome = OutcomeOK
	return res
}

// notifyContacts texts every contact with a phone and emails those with an address when
// email is configured. Each send is independent. It returns the number of successful sends.
func (r *EscalationRunner) notifyContacts(ctx context.Context, c *models.Checkin, person *models.MonitoredPerson, contacts []models.EscalationContact) int {
	body := gateway.AlertText(person.Name)
	emailReady := r.mailer != nil && r.mailer.Ready() == nil
	sent := 0

	for _, contact := range contacts {
		if contact.PhoneE164 != "" {
			sid, err := r.gw.SendText(ctx, contact.PhoneE164, body)
			if r.record(ctx, c.ID, models.AttemptFamilySMS, sid, err) {
				sent++
			}
		}
		if emailReady && contact.Email != "" {
			err := r.mailer.SendEmail(ctx, contact.Email, gateway.AlertSubject, body)
			if r.record(ctx, c.ID, models.AttemptFamilyEmail, "", err) {
				sent++
			}
		}
	}
	return sent
}

func (r *EscalationRunner) record(ctx context.Context, checkinID string, t models.AttemptType, providerID string, sendErr error) bool {
	a := newAttempt(checkinID, t, providerID, sendErr)
	if sendErr != nil {
		r.logger.Warn("contact notification failed",
			zap.String("checkin_id", checkinID),
			zap.String("attempt_type", string(t)),
			zap.Error(sendErr),
		)
	}
	if err := r.store.AppendAttempt(ctx, &a); err != nil {
		r.logger.Error("append attempt failed", zap.String("checkin_id", checkinID), zap.Error(err))
	}
	r.metrics.delivery(string(t), string(a.Status))
	return sendErr == nil
}
