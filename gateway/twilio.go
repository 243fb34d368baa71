package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// TwilioConfig carries the account credentials and transport limits.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
	Timeout    time.Duration
}

// TwilioGateway implements Gateway against the Twilio REST API.
type TwilioGateway struct {
	cfg    TwilioConfig
	http   *resty.Client
	logger *zap.Logger
}

type twilioResource struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// NewTwilioGateway builds a client with a bounded timeout and no retries; a failed send
// is recorded and never retried inside the same tick.
func NewTwilioGateway(cfg TwilioConfig, logger *zap.Logger) *TwilioGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	return &TwilioGateway{cfg: cfg, http: client, logger: logger}
}

// Ready checks credentials without calling the provider.
func (g *TwilioGateway) Ready() error {
	var missing []string
	if g.cfg.AccountSID == "" {
		missing = append(missing, "account sid")
	}
	if g.cfg.AuthToken == "" {
		missing = append(missing, "auth token")
	}
	if g.cfg.FromNumber == "" {
		missing = append(missing, "from number")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing twilio %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	if !strings.HasPrefix(g.cfg.AccountSID, "AC") {
		return fmt.Errorf("%w: twilio account sid must start with AC", ErrNotConfigured)
	}
	return nil
}

// SendText sends one SMS and returns the message sid.
func (g *TwilioGateway) SendText(ctx context.Context, to, body string) (string, error) {
	if err := g.Ready(); err != nil {
		return "", err
	}
	return g.create(ctx, "send sms", "Messages.json", map[string]string{
		"To":   to,
		"From": g.cfg.FromNumber,
		"Body": body,
	})
}

// PlaceCall starts an outbound call whose TwiML is fetched from callbackURL.
func (g *TwilioGateway) PlaceCall(ctx context.Context, to, callbackURL string) (string, error) {
	if err := g.Ready(); err != nil {
		return "", err
	}
	if callbackURL == "" {
		return "", fmt.Errorf("%w: missing app base url for voice callback", ErrNotConfigured)
	}
	return g.create(ctx, "place call", "Calls.json", map[string]string{
		"To":     to,
		"From":   g.cfg.FromNumber,
		"Url":    callbackURL,
		"Method": "POST",
	})
}

func (g *TwilioGateway) create(ctx context.Context, op, resource string, form map[string]string) (string, error) {
	var result twilioResource
	var apiErr twilioError
	resp, err := g.http.R().
		SetContext(ctx).
		SetPathParam("sid", g.cfg.AccountSID).
		SetFormData(form).
		SetResult(&result).
		SetError(&apiErr).
		Post("/2010-04-01/Accounts/{sid}/" + resource)
	if err != nil {
		if isTimeout(err) {
			g.logger.Warn("twilio request timed out", zap.String("op", op), zap.Duration("timeout", g.cfg.Timeout))
			return "", fmt.Errorf("twilio %s: %w", op, ErrTimeout)
		}
		g.logger.Error("twilio request failed", zap.String("op", op), zap.Error(err))
		return "", &ProviderError{Op: "twilio " + op, Message: err.Error()}
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		g.logger.Warn("twilio rejected request",
			zap.String("op", op),
			zap.Int("status_code", resp.StatusCode()),
			zap.Int("code", apiErr.Code),
		)
		return "", &ProviderError{Op: "twilio " + op, StatusCode: resp.StatusCode(), Code: apiErr.Code, Message: msg}
	}
	if result.Sid == "" {
		return "", &ProviderError{Op: "twilio " + op, StatusCode: resp.StatusCode(), Message: "response without sid"}
	}
	return result.Sid, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
