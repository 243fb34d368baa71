// Package gateway talks to the outside world: SMS, voice calls and email.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means credentials or addresses needed for delivery are missing.
	// Callers treat it as a tick-level failure rather than a per-person one.
	ErrNotConfigured = errors.New("delivery gateway not configured")
	// ErrTimeout means the provider did not answer within the configured timeout.
	ErrTimeout = errors.New("provider request timed out")
)

// ProviderError is a rejection reported by the provider itself.
type ProviderError struct {
	Op         string
	StatusCode int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: provider status %d code %d: %s", e.Op, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: provider status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Gateway sends check-in prompts. Both calls return the provider's message or call id.
type Gateway interface {
	SendText(ctx context.Context, to, body string) (string, error)
	PlaceCall(ctx context.Context, to, callbackURL string) (string, error)
	// Ready reports ErrNotConfigured when credentials are missing.
	Ready() error
}

// EmailSender delivers plain text alerts.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	Ready() error
}

// Message bodies sent to monitored persons and their contacts.
const (
	CheckinText     = "LifeSignal check-in: Reply YES if you're okay. Reply STOP to stop."
	TestCheckinText = "LifeSignal TEST: Reply YES if you're okay. (This is a test check-in)"
	alertTextFormat = "LifeSignal alert: No response from %s for today's check-in. Please check in with them."
	AlertSubject    = "LifeSignal alert: missed check-in"
)

// AlertText is the notification sent to escalation contacts.
func AlertText(personName string) string {
	return fmt.Sprintf(alertTextFormat, personName)
}
