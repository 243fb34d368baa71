package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, 5*time.Minute, cfg.CheckinWindow())
	assert.Equal(t, 6*time.Hour, cfg.EscalationLookback())
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout())
	assert.Equal(t, "https://api.twilio.com", cfg.TwilioAPIBaseURL)
	assert.Equal(t, "*/5 * * * *", cfg.TriggerCheckinsSpec)
}

func TestLoad_GroupedSections(t *testing.T) {
	path := writeConfig(t, `{
		"app": {"AppPort": "9090", "AppBaseURL": "https://example.test/"},
		"database": {"Driver": "sqlite", "DBName": "lifesignal_test"},
		"twilio": {"AccountSID": "AC123", "AuthToken": "tok", "FromNumber": "+15550000000"},
		"checkin": {"CronSecretToken": "0123456789abc", "WindowMinutes": 10, "EscalationLookbackHours": 12}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "AC123", cfg.TwilioAccountSID)
	assert.Equal(t, 10*time.Minute, cfg.CheckinWindow())
	assert.Equal(t, 12*time.Hour, cfg.EscalationLookback())
	assert.Equal(t, "https://example.test/api/twilio/voice", cfg.VoiceCallbackURL())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"checkin": {"WindowMinutes": 10}}`)
	t.Setenv("CHECKIN_WINDOW_MINUTES", "7")
	t.Setenv("TWILIO_FROM_NUMBER", "+15551112222")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7*time.Minute, cfg.CheckinWindow())
	assert.Equal(t, "+15551112222", cfg.TwilioFromNumber)
	assert.True(t, cfg.TwilioValidateSignature)
}

func TestLoad_InvalidEnvInteger(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT_SEC", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_TIMEOUT_SEC")
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"app": `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	bad := cfg
	bad.CronSecretToken = "short"
	assert.ErrorContains(t, bad.Validate(), "cron secret token")

	bad = cfg
	bad.DBDriver = "oracle"
	assert.ErrorContains(t, bad.Validate(), "unknown database driver")

	bad = cfg
	bad.CheckinWindowMinutes = -1
	assert.ErrorContains(t, bad.Validate(), "window")
}

func TestVoiceCallbackURL_EmptyBase(t *testing.T) {
	assert.Equal(t, "", AppConfig{}.VoiceCallbackURL())
}
