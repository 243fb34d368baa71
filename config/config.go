package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultPath is where Load looks for the JSON config file.
const DefaultPath = "config/config.json"

// AppConfig holds environment driven configuration values.
// Secrets have no defaults in code and must come from the config file or the environment.
type AppConfig struct {
	AppPort        string
	AppName        string
	AppBaseURL     string
	JWTSecret      string
	AllowedOrigins []string
	// Requests per minute per client IP on owner API routes
	RateLimitPerMinute int
	// Gin framework configuration
	GinMode string
	GinPath string

	// Database
	DBDriver    string // mysql | postgres | sqlite
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	// Redis for tick leases and the eligibility cache; empty host disables both
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// SMTP for escalation emails; empty host disables email alerts
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool

	// Twilio delivery gateway
	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioFromNumber        string
	TwilioAPIBaseURL        string
	TwilioValidateSignature bool

	// Check-in core
	CronSecretToken          string
	CheckinWindowMinutes     int
	EscalationLookbackHours  int
	EscalationBatchLimit     int
	EscalationClaimStaleMins int
	ProviderTimeoutSec       int
	EligibilityCacheSec      int
	TickLeaseSec             int

	// External trigger process
	TriggerBaseURL         string
	TriggerCheckinsSpec    string
	TriggerEscalationsSpec string
}

// CheckinWindow is the tolerance window for due-ness; it should equal the polling interval.
func (c AppConfig) CheckinWindow() time.Duration {
	return time.Duration(c.CheckinWindowMinutes) * time.Minute
}

// EscalationLookback bounds how far back the escalation runner scans.
func (c AppConfig) EscalationLookback() time.Duration {
	return time.Duration(c.EscalationLookbackHours) * time.Hour
}

// ProviderTimeout bounds every SMS/voice/email provider call.
func (c AppConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

// VoiceCallbackURL is the URL the voice provider fetches call instructions from.
func (c AppConfig) VoiceCallbackURL() string {
	if c.AppBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.AppBaseURL, "/") + "/api/twilio/voice"
}

// Load reads configuration. Precedence: JSON file -> defaults -> environment overrides.
// A missing file is not an error; malformed JSON is.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	if path == "" {
		path = DefaultPath
	}
	if err := loadJSONConfig(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the check-in core cannot run with.
func (c AppConfig) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.DBDriver))
	}
	if c.CronSecretToken != "" && len(c.CronSecretToken) < 10 {
		errs = append(errs, errors.New("cron secret token must be at least 10 characters"))
	}
	if c.CheckinWindowMinutes <= 0 {
		errs = append(errs, errors.New("check-in window must be positive"))
	}
	if c.EscalationLookbackHours <= 0 {
		errs = append(errs, errors.New("escalation lookback must be positive"))
	}
	if c.ProviderTimeoutSec <= 0 {
		errs = append(errs, errors.New("provider timeout must be positive"))
	}
	return errors.Join(errs...)
}

// loadJSONConfig reads grouped sections from a JSON file into out.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.AppName = getString(app, "AppName")
		out.AppBaseURL = getString(app, "AppBaseURL")
		out.JWTSecret = getString(app, "JWTSecret")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.GinMode = getString(app, "GinMode")
		out.GinPath = getString(app, "GinPath")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if sm, ok := raw["smtp"].(map[string]any); ok {
		out.SMTPHost = getString(sm, "SMTPHost")
		out.SMTPPort = getInt(sm, "SMTPPort")
		out.SMTPUsername = getString(sm, "SMTPUsername")
		out.SMTPPassword = getString(sm, "SMTPPassword")
		out.SMTPFrom = getString(sm, "SMTPFrom")
		out.SMTPFromName = getString(sm, "SMTPFromName")
		out.SMTPTLS = getBool(sm, "SMTPTLS")
	}

	if tw, ok := raw["twilio"].(map[string]any); ok {
		out.TwilioAccountSID = getString(tw, "AccountSID")
		out.TwilioAuthToken = getString(tw, "AuthToken")
		out.TwilioFromNumber = getString(tw, "FromNumber")
		out.TwilioAPIBaseURL = getString(tw, "APIBaseURL")
		out.TwilioValidateSignature = getBool(tw, "ValidateSignature")
	}

	if ck, ok := raw["checkin"].(map[string]any); ok {
		out.CronSecretToken = getString(ck, "CronSecretToken")
		out.CheckinWindowMinutes = getInt(ck, "WindowMinutes")
		out.EscalationLookbackHours = getInt(ck, "EscalationLookbackHours")
		out.EscalationBatchLimit = getInt(ck, "EscalationBatchLimit")
		out.EscalationClaimStaleMins = getInt(ck, "EscalationClaimStaleMinutes")
		out.ProviderTimeoutSec = getInt(ck, "ProviderTimeoutSec")
		out.EligibilityCacheSec = getInt(ck, "EligibilityCacheSec")
		out.TickLeaseSec = getInt(ck, "TickLeaseSec")
	}

	if tr, ok := raw["trigger"].(map[string]any); ok {
		out.TriggerBaseURL = getString(tr, "BaseURL")
		out.TriggerCheckinsSpec = getString(tr, "CheckinsSpec")
		out.TriggerEscalationsSpec = getString(tr, "EscalationsSpec")
	}
	return nil
}

func getString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func getInt(m map[string]any, key string) int {
	switch t := m[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		i, _ := t.Int64()
		return int(i)
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func getStringSlice(m map[string]any, key string) []string {
	arr, ok := m[key].([]any)
	if !ok {
		return nil
	}
	res := make([]string, 0, len(arr))
	for _, it := range arr {
		if s, ok := it.(string); ok {
			res = append(res, s)
		}
	}
	return res
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.AppName == "" {
		c.AppName = "LifeSignal"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "lifesignal"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.TwilioAPIBaseURL == "" {
		c.TwilioAPIBaseURL = "https://api.twilio.com"
	}
	if c.CheckinWindowMinutes == 0 {
		c.CheckinWindowMinutes = 5
	}
	if c.EscalationLookbackHours == 0 {
		c.EscalationLookbackHours = 6
	}
	if c.EscalationBatchLimit == 0 {
		c.EscalationBatchLimit = 500
	}
	if c.EscalationClaimStaleMins == 0 {
		c.EscalationClaimStaleMins = 15
	}
	if c.ProviderTimeoutSec == 0 {
		c.ProviderTimeoutSec = 10
	}
	if c.EligibilityCacheSec == 0 {
		c.EligibilityCacheSec = 300
	}
	if c.TickLeaseSec == 0 {
		c.TickLeaseSec = 240
	}
	if c.TriggerBaseURL == "" {
		c.TriggerBaseURL = "http://127.0.0.1:" + c.AppPort
	}
	if c.TriggerCheckinsSpec == "" {
		c.TriggerCheckinsSpec = "*/5 * * * *"
	}
	if c.TriggerEscalationsSpec == "" {
		c.TriggerEscalationsSpec = "*/5 * * * *"
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) error {
	str := map[string]*string{
		"APP_PORT":                 &c.AppPort,
		"APP_NAME":                 &c.AppName,
		"APP_BASE_URL":             &c.AppBaseURL,
		"JWT_SECRET":               &c.JWTSecret,
		"GIN_MODE":                 &c.GinMode,
		"GIN_PATH":                 &c.GinPath,
		"DB_DRIVER":                &c.DBDriver,
		"DATABASE_URI":             &c.DatabaseURI,
		"DB_HOST":                  &c.DBHost,
		"DB_PORT":                  &c.DBPort,
		"DB_USER":                  &c.DBUser,
		"DB_PASSWORD":              &c.DBPassword,
		"DB_NAME":                  &c.DBName,
		"REDIS_HOST":               &c.RedisHost,
		"REDIS_PASSWORD":           &c.RedisPassword,
		"LOG_LEVEL":                &c.LogLevel,
		"LOG_PATH":                 &c.LogPath,
		"SMTP_HOST":                &c.SMTPHost,
		"SMTP_USERNAME":            &c.SMTPUsername,
		"SMTP_PASSWORD":            &c.SMTPPassword,
		"SMTP_FROM":                &c.SMTPFrom,
		"SMTP_FROM_NAME":           &c.SMTPFromName,
		"TWILIO_ACCOUNT_SID":       &c.TwilioAccountSID,
		"TWILIO_AUTH_TOKEN":        &c.TwilioAuthToken,
		"TWILIO_FROM_NUMBER":       &c.TwilioFromNumber,
		"TWILIO_API_BASE_URL":      &c.TwilioAPIBaseURL,
		"CRON_SECRET_TOKEN":        &c.CronSecretToken,
		"TRIGGER_BASE_URL":         &c.TriggerBaseURL,
		"TRIGGER_CHECKINS_SPEC":    &c.TriggerCheckinsSpec,
		"TRIGGER_ESCALATIONS_SPEC": &c.TriggerEscalationsSpec,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RATE_LIMIT_PER_MINUTE":          &c.RateLimitPerMinute,
		"REDIS_PORT":                     &c.RedisPort,
		"REDIS_DB":                       &c.RedisDB,
		"LOG_MAX_SIZE_MB":                &c.LogMaxSizeMB,
		"LOG_MAX_BACKUPS":                &c.LogMaxBackups,
		"LOG_MAX_AGE_DAYS":               &c.LogMaxAgeDays,
		"SMTP_PORT":                      &c.SMTPPort,
		"CHECKIN_WINDOW_MINUTES":         &c.CheckinWindowMinutes,
		"ESCALATION_LOOKBACK_HOURS":      &c.EscalationLookbackHours,
		"ESCALATION_BATCH_LIMIT":         &c.EscalationBatchLimit,
		"ESCALATION_CLAIM_STALE_MINUTES": &c.EscalationClaimStaleMins,
		"PROVIDER_TIMEOUT_SEC":           &c.ProviderTimeoutSec,
		"ELIGIBILITY_CACHE_SEC":          &c.EligibilityCacheSec,
		"TICK_LEASE_SEC":                 &c.TickLeaseSec,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s=%q: %w", key, v, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"LOG_COMPRESS":              &c.LogCompress,
		"SMTP_TLS":                  &c.SMTPTLS,
		"TWILIO_VALIDATE_SIGNATURE": &c.TwilioValidateSignature,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true"
		}
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	return nil
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
