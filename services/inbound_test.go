package services

import (
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySMS(t *testing.T) {
	for _, body := range []string{"yes", "Y", " ok ", "I'm OK", "im ok", "i am ok", "YES"} {
		assert.Equal(t, IntentAffirmative, ClassifySMS(body), body)
	}
	for _, body := range []string{"STOP", "unsubscribe", "Cancel", "end", " quit"} {
		assert.Equal(t, IntentOptOut, ClassifySMS(body), body)
	}
	for _, body := range []string{"", "yes!", "yep", "stop please", "help", "no"} {
		assert.Equal(t, IntentUnrecognized, ClassifySMS(body), body)
	}
}

func TestParseSMSWebhook(t *testing.T) {
	ev, err := ParseSMSWebhook(url.Values{"From": {"+1 555 000 1111"}, "Body": {"yes"}, "MessageSid": {"SM1"}, "NumMedia": {"0"}})
	require.NoError(t, err)
	assert.Equal(t, "+15550001111", ev.From)
	assert.Equal(t, "0", ev.Raw["NumMedia"])

	_, err = ParseSMSWebhook(url.Values{"Body": {"yes"}})
	assert.Error(t, err)
}

func TestParseVoiceWebhook(t *testing.T) {
	ev, err := ParseVoiceWebhook(url.Values{"From": {"+15550001111"}, "CallSid": {"CA1"}})
	require.NoError(t, err)
	assert.IsType(t, VoicePrompt{}, ev)

	ev, err = ParseVoiceWebhook(url.Values{"From": {"+15550001111"}, "CallSid": {"CA1"}, "Digits": {"2"}})
	require.NoError(t, err)
	digits, ok := ev.(VoiceDigits)
	require.True(t, ok)
	assert.Equal(t, "2", digits.Digits)

	_, err = ParseVoiceWebhook(url.Values{"From": {"+15550001111"}, "Digits": {"12"}})
	assert.Error(t, err)

	_, err = ParseVoiceWebhook(url.Values{"From": {"anonymous"}, "Digits": {"1"}})
	assert.Error(t, err)
}

func TestValidE164(t *testing.T) {
	assert.True(t, ValidE164("+15550001111"))
	assert.False(t, ValidE164("5550001111"))
	assert.False(t, ValidE164(""))
}

func TestParseSMSWebhook_TruncatesLongBody(t *testing.T) {
	long := strings.Repeat("é", MaxSMSBodyRunes+400)
	ev, err := ParseSMSWebhook(url.Values{"From": {"+15550001111"}, "Body": {long}})
	require.NoError(t, err)
	assert.Equal(t, MaxSMSBodyRunes, utf8.RuneCountInString(ev.Body))
	assert.True(t, utf8.ValidString(ev.Body))
}
