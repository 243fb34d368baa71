package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/lifesignal/models"
	"github.com/cppla/lifesignal/store"
	"github.com/cppla/lifesignal/utils"
)

// CollectorStore is the persistence the collector needs.
type CollectorStore interface {
	FindPersonByPhone(ctx context.Context, e164 string) (*models.MonitoredPerson, error)
	DisableMessaging(ctx context.Context, personID string) error
	LatestPending(ctx context.Context, personID string) (*models.Checkin, error)
	MarkResponded(ctx context.Context, checkinID string, r store.Response) (bool, error)
	AppendAttempt(ctx context.Context, a *models.DeliveryAttempt) error
	RecordMessage(ctx context.Context, m *models.Message) error
	RecordAudit(ctx context.Context, actorID, personID *string, action string, metadata map[string]interface{}) error
}

// InboundResult describes what an inbound event did.
type InboundResult string

const (
	ResultIgnored      InboundResult = "ignored"
	ResultOptedOut     InboundResult = "opted_out"
	ResultResponded    InboundResult = "responded"
	ResultNoPending    InboundResult = "no_pending"
	ResultDuplicate    InboundResult = "duplicate"
	ResultUnrecognized InboundResult = "unrecognized"
)

// Collector turns inbound SMS and keypad answers into check-in transitions.
type Collector struct {
	store   CollectorStore
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewCollector builds a collector; now may be nil.
func NewCollector(st CollectorStore, metrics *Metrics, logger *zap.Logger, now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{store: st, metrics: metrics, logger: logger, now: now}
}

// HandleSMS records the raw message and then acts on it. Unknown senders are ignored.
func (c *Collector) HandleSMS(ctx context.Context, ev SMSReceived) (InboundResult, error) {
	person, lookupErr := c.lookup(ctx, ev.From)

	raw, _ := json.Marshal(ev.Raw)
	msg := &models.Message{
		Direction:  models.DirectionIn,
		FromE164:   ev.From,
		ToE164:     ev.To,
		Body:       utils.SanitizeText(ev.Body),
		ProviderID: ev.MessageSid,
		RawPayload: string(raw),
	}
	if person != nil {
		msg.MonitoredPersonID = &person.ID
	}
	if err := c.store.RecordMessage(ctx, msg); err != nil {
		c.logger.Error("record inbound message failed", zap.String("message_sid", ev.MessageSid), zap.Error(err))
	}
	if lookupErr != nil {
		return "", lookupErr
	}
	if person == nil {
		c.logger.Info("sms from unknown sender ignored", zap.String("message_sid", ev.MessageSid))
		return ResultIgnored, nil
	}

	switch ClassifySMS(ev.Body) {
	case IntentOptOut:
		if err := c.store.DisableMessaging(ctx, person.ID); err != nil {
			return "", err
		}
		c.audit(ctx, person.ID, models.ActionSMSOptOut, map[string]interface{}{"from": ev.From, "body": msg.Body})
		c.logger.Info("person opted out of messaging", zap.String("person_id", person.ID))
		return ResultOptedOut, nil
	case IntentAffirmative:
		return c.respond(ctx, person, response{
			status:       models.StatusRespondedOK,
			responseType: models.ResponseSMSYes,
			channel:      models.ResponseChannelSMS,
			attemptType:  models.AttemptSMS,
			providerID:   ev.MessageSid,
			auditAction:  models.ActionRespondedOK,
			metadata:     map[string]interface{}{"via": "sms", "sid": ev.MessageSid},
		})
	default:
		c.audit(ctx, person.ID, models.ActionSMSUnrecognized, map[string]interface{}{"from": ev.From, "body": msg.Body})
		return ResultUnrecognized, nil
	}
}

// HandleVoiceDigits maps 1 to responded_ok and 2 to responded_help.
func (c *Collector) HandleVoiceDigits(ctx context.Context, ev VoiceDigits) (InboundResult, error) {
	person, err := c.lookup(ctx, ev.From)
	if err != nil {
		return "", err
	}
	if person == nil {
		c.logger.Info("call from unknown number ignored", zap.String("call_sid", ev.CallSid))
		return ResultIgnored, nil
	}

	metadata := map[string]interface{}{"via": "voice", "digits": ev.Digits, "callSid": ev.CallSid}
	r := response{
		channel:     models.ResponseChannelVoc,
		attemptType: models.AttemptVoice,
		providerID:  ev.CallSid,
		metadata:    metadata,
	}
	switch ev.Digits {
	case "1":
		r.status, r.responseType, r.auditAction = models.StatusRespondedOK, models.ResponseVoiceOK, models.ActionRespondedOK
	case "2":
		r.status, r.responseType, r.auditAction = models.StatusRespondedHelp, models.ResponseVoiceHelp, models.ActionRespondedHelp
	default:
		c.audit(ctx, person.ID, models.ActionVoiceUnrecognized, metadata)
		return ResultUnrecognized, nil
	}
	return c.respond(ctx, person, r)
}

type response struct {
	status       models.CheckinStatus
	responseType string
	channel      string
	attemptType  models.AttemptType
	providerID   string
	auditAction  string
	metadata     map[string]interface{}
}

func (c *Collector) respond(ctx context.Context, person *models.MonitoredPerson, r response) (InboundResult, error) {
	log := c.logger.With(zap.String("person_id", person.ID))

	pending, err := c.store.LatestPending(ctx, person.ID)
	if errors.Is(err, store.ErrNotFound) {
		c.audit(ctx, person.ID, models.ActionResponseNoPending, r.metadata)
		log.Info("response without pending check-in", zap.String("response_type", r.responseType))
		return ResultNoPending, nil
	}
	if err != nil {
		return "", err
	}

	won, err := c.store.MarkResponded(ctx, pending.ID, store.Response{
		Status:       r.status,
		ResponseType: r.responseType,
		Channel:      r.channel,
		At:           c.now(),
	})
	if err != nil {
		return "", err
	}
	if !won {
		log.Info("check-in already finalized, response ignored", zap.String("checkin_id", pending.ID))
		return ResultDuplicate, nil
	}

	attempt := models.DeliveryAttempt{
		CheckinID:   pending.ID,
		AttemptType: r.attemptType,
		Status:      models.AttemptReceived,
		ProviderID:  r.providerID,
	}
	if err := c.store.AppendAttempt(ctx, &attempt); err != nil {
		log.Error("append received attempt failed", zap.String("checkin_id", pending.ID), zap.Error(err))
	}
	metadata := map[string]interface{}{"checkin_id": pending.ID}
	for k, v := range r.metadata {
		metadata[k] = v
	}
	c.audit(ctx, person.ID, r.auditAction, metadata)
	c.metrics.response(r.responseType)
	log.Info("check-in answered", zap.String("checkin_id", pending.ID), zap.String("response_type", r.responseType))
	return ResultResponded, nil
}

// lookup returns nil without error when the sender is malformed or unknown.
func (c *Collector) lookup(ctx context.Context, from string) (*models.MonitoredPerson, error) {
	if !ValidE164(from) {
		return nil, nil
	}
	p, err := c.store.FindPersonByPhone(ctx, from)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Collector) audit(ctx context.Context, personID, action string, metadata map[string]interface{}) {
	if err := c.store.RecordAudit(ctx, nil, &personID, action, metadata); err != nil {
		c.logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
