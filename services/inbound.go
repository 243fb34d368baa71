package services

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/cppla/lifesignal/utils"
)

var inboundValidate *validator.Validate

func init() {
	inboundValidate = validator.New()
	_ = inboundValidate.RegisterValidation("keypad", validateKeypad)
}

// validateKeypad accepts a single phone keypad key.
func validateKeypad(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 1 {
		return false
	}
	c := s[0]
	return (c >= '0' && c <= '9') || c == '*' || c == '#'
}

// InboundEvent is the closed set of webhook payloads the collector understands.
type InboundEvent interface {
	inbound()
}

// SMSReceived is an inbound text message.
type SMSReceived struct {
	From       string `validate:"required"`
	To         string
	Body       string
	MessageSid string
	Raw        map[string]string
}

// VoiceDigits is a keypad answer collected during a check-in call.
type VoiceDigits struct {
	From    string `validate:"required,e164"`
	CallSid string
	Digits  string `validate:"required,keypad"`
}

// VoicePrompt is a call being answered before any digits were pressed.
type VoicePrompt struct {
	From    string
	CallSid string
}

func (SMSReceived) inbound() {}
func (VoiceDigits) inbound() {}
func (VoicePrompt) inbound() {}

// MaxSMSBodyRunes caps the stored body of an inbound text. Longer bodies are cut, not rejected.
const MaxSMSBodyRunes = 1600

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ParseSMSWebhook maps a form-encoded SMS webhook onto SMSReceived.
func ParseSMSWebhook(form url.Values) (SMSReceived, error) {
	raw := make(map[string]string, len(form))
	for k := range form {
		raw[k] = form.Get(k)
	}
	ev := SMSReceived{
		From:       utils.NormalizeE164(form.Get("From")),
		To:         utils.NormalizeE164(form.Get("To")),
		Body:       truncateRunes(form.Get("Body"), MaxSMSBodyRunes),
		MessageSid: strings.TrimSpace(form.Get("MessageSid")),
		Raw:        raw,
	}
	if err := inboundValidate.Struct(ev); err != nil {
		return SMSReceived{}, fmt.Errorf("invalid sms webhook: %w", err)
	}
	return ev, nil
}

// ParseVoiceWebhook returns VoicePrompt when no digits were sent and VoiceDigits otherwise.
func ParseVoiceWebhook(form url.Values) (InboundEvent, error) {
	from := utils.NormalizeE164(form.Get("From"))
	callSid := strings.TrimSpace(form.Get("CallSid"))
	digits := strings.TrimSpace(form.Get("Digits"))
	if digits == "" {
		return VoicePrompt{From: from, CallSid: callSid}, nil
	}
	ev := VoiceDigits{From: from, CallSid: callSid, Digits: digits}
	if err := inboundValidate.Struct(ev); err != nil {
		return nil, fmt.Errorf("invalid voice webhook: %w", err)
	}
	return ev, nil
}

// ValidE164 reports whether s is a well-formed E.164 number.
func ValidE164(s string) bool {
	return inboundValidate.Var(s, "required,e164") == nil
}

// SMSIntent is the meaning of an inbound text.
type SMSIntent int

const (
	IntentUnrecognized SMSIntent = iota
	IntentAffirmative
	IntentOptOut
)

var (
	optOutWords      = []string{"stop", "unsubscribe", "cancel", "end", "quit"}
	affirmativeWords = []string{"yes", "y", "ok", "i'm ok", "im ok", "i am ok"}
)

// ClassifySMS matches the whole trimmed, lowercased body. Opt-out wins over everything.
func ClassifySMS(body string) SMSIntent {
	b := strings.ToLower(strings.TrimSpace(body))
	for _, w := range optOutWords {
		if b == w {
			return IntentOptOut
		}
	}
	for _, w := range affirmativeWords {
		if b == w {
			return IntentAffirmative
		}
	}
	return IntentUnrecognized
}
