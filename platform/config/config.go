// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetIPRateLimitPerMinute() int
}

// RedisConfig provides settings for the shared Redis instance.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq job queue.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetJobRetention() time.Duration
}

// AIConfig provides settings for the generative assistant.
type AIConfig interface {
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetAITimeout() time.Duration
	GetAICooldown() time.Duration
	GetAIQuotaCooldown() time.Duration
	IsAIEnabled() bool
}

// WhatsAppConfig provides settings for the WhatsApp bridge.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppTimeout() time.Duration
	GetWhatsAppWebhookSecret() string
}

// HandoffConfig provides settings for authorizing landing page sessions
// on WhatsApp.
type HandoffConfig interface {
	GetWhatsAppVerifyToken() string
	GetWhatsAppAuthTTL() time.Duration
}

// TwilioConfig provides settings for the Twilio WhatsApp gateway.
type TwilioConfig interface {
	GetTwilioAccountSID() string
	GetTwilioAuthToken() string
	GetTwilioWhatsAppFrom() string
	IsTwilioEnabled() bool
}

// SMTPConfig provides settings for outgoing e-mail.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsSMTPEnabled() bool
}

// NotificationConfig provides settings for operator notification.
type NotificationConfig interface {
	GetLawyerPhones() []string
	GetLawyerEmails() []string
	GetNotifyAttempts() int
	GetNotifyBaseBackoff() time.Duration
	GetBreakerThreshold() int
	GetBreakerCooldown() time.Duration
	GetSideEffectTimeout() time.Duration
}

// ConversationConfig provides tunables for the conversation orchestrator.
type ConversationConfig interface {
	GetSessionTTL() time.Duration
	GetStoreTimeout() time.Duration
	GetLockTimeout() time.Duration
	GetRateLimit() int
	GetRateWindow() time.Duration
	GetDuplicateWindow() time.Duration
	GetTimezone() string
	GetWebMinScore() float64
	GetWhatsAppMinScore() float64
	GetWhatsAppMinMessages() int
	GetCaseDetailsMinLength() int
	GetAreaAcceptFreeText() bool
	GetStrictConfirmation() bool
}

// FlowConfig provides settings for loading the questionnaire definition.
type FlowConfig interface {
	GetFlowFile() string
	GetFlowCacheTTL() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	MigrationsEnabled    bool
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	IPRateLimitPerMinute int

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	JobRetention     time.Duration

	GeminiAPIKey     string
	GeminiModel      string
	AIEnabled        bool
	AITimeout        time.Duration
	AICooldown       time.Duration
	AIQuotaCooldown  time.Duration
	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppTimeout  time.Duration
	WebhookSecret    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	LawyerPhones      []string
	LawyerEmails      []string
	NotifyAttempts    int
	NotifyBaseBackoff time.Duration
	BreakerThreshold  int
	BreakerCooldown   time.Duration
	SideEffectTimeout time.Duration

	SessionTTL           time.Duration
	StoreTimeout         time.Duration
	LockTimeout          time.Duration
	RateLimit            int
	RateWindow           time.Duration
	DuplicateWindow      time.Duration
	Timezone             string
	WebMinScore          float64
	WhatsAppMinScore     float64
	WhatsAppMinMessages  int
	CaseDetailsMinLength int
	AreaAcceptFreeText   bool
	StrictConfirmation   bool

	FlowFile     string
	FlowCacheTTL time.Duration

	WhatsAppVerifyToken string
	WhatsAppAuthTTL     time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string         { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool       { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string    { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool     { return c.CORSAllowCreds }
func (c *Config) GetIPRateLimitPerMinute() int { return c.IPRateLimitPerMinute }

// RedisConfig / SchedulerConfig implementation
func (c *Config) GetRedisURL() string            { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool      { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string      { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int       { return c.AsynqConcurrency }
func (c *Config) GetJobRetention() time.Duration { return c.JobRetention }

// AIConfig implementation
func (c *Config) GetGeminiAPIKey() string           { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string            { return c.GeminiModel }
func (c *Config) GetAITimeout() time.Duration       { return c.AITimeout }
func (c *Config) GetAICooldown() time.Duration      { return c.AICooldown }
func (c *Config) GetAIQuotaCooldown() time.Duration { return c.AIQuotaCooldown }
func (c *Config) IsAIEnabled() bool                 { return c.AIEnabled && c.GeminiAPIKey != "" }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string             { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string             { return c.WhatsAppKey }
func (c *Config) GetWhatsAppTimeout() time.Duration { return c.WhatsAppTimeout }
func (c *Config) GetWhatsAppWebhookSecret() string  { return c.WebhookSecret }

// HandoffConfig implementation
func (c *Config) GetWhatsAppVerifyToken() string    { return c.WhatsAppVerifyToken }
func (c *Config) GetWhatsAppAuthTTL() time.Duration { return c.WhatsAppAuthTTL }

// TwilioConfig implementation
func (c *Config) GetTwilioAccountSID() string   { return c.TwilioAccountSID }
func (c *Config) GetTwilioAuthToken() string    { return c.TwilioAuthToken }
func (c *Config) GetTwilioWhatsAppFrom() string { return c.TwilioFrom }
func (c *Config) IsTwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsSMTPEnabled() bool {
	return c.SMTPHost != "" && c.EmailFromAddress != "" && len(c.LawyerEmails) > 0
}

// NotificationConfig implementation
func (c *Config) GetLawyerPhones() []string            { return c.LawyerPhones }
func (c *Config) GetLawyerEmails() []string            { return c.LawyerEmails }
func (c *Config) GetNotifyAttempts() int               { return c.NotifyAttempts }
func (c *Config) GetNotifyBaseBackoff() time.Duration  { return c.NotifyBaseBackoff }
func (c *Config) GetBreakerThreshold() int             { return c.BreakerThreshold }
func (c *Config) GetBreakerCooldown() time.Duration    { return c.BreakerCooldown }
func (c *Config) GetSideEffectTimeout() time.Duration  { return c.SideEffectTimeout }

// ConversationConfig implementation
func (c *Config) GetSessionTTL() time.Duration      { return c.SessionTTL }
func (c *Config) GetStoreTimeout() time.Duration    { return c.StoreTimeout }
func (c *Config) GetLockTimeout() time.Duration     { return c.LockTimeout }
func (c *Config) GetRateLimit() int                 { return c.RateLimit }
func (c *Config) GetRateWindow() time.Duration      { return c.RateWindow }
func (c *Config) GetDuplicateWindow() time.Duration { return c.DuplicateWindow }
func (c *Config) GetTimezone() string               { return c.Timezone }
func (c *Config) GetWebMinScore() float64           { return c.WebMinScore }
func (c *Config) GetWhatsAppMinScore() float64      { return c.WhatsAppMinScore }
func (c *Config) GetWhatsAppMinMessages() int       { return c.WhatsAppMinMessages }
func (c *Config) GetCaseDetailsMinLength() int      { return c.CaseDetailsMinLength }
func (c *Config) GetAreaAcceptFreeText() bool       { return c.AreaAcceptFreeText }
func (c *Config) GetStrictConfirmation() bool       { return c.StrictConfirmation }

// FlowConfig implementation
func (c *Config) GetFlowFile() string              { return c.FlowFile }
func (c *Config) GetFlowCacheTTL() time.Duration { return c.FlowCacheTTL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		MigrationsEnabled:    getBool("DATABASE_MIGRATIONS", true),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       getBool("CORS_ALLOW_CREDENTIALS", false),
		IPRateLimitPerMinute: mustInt(getEnv("IP_RATE_LIMIT_PER_MINUTE", "120")),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: getBool("REDIS_TLS_INSECURE", false),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "intake"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		JobRetention:     mustDuration(getEnv("JOB_RETENTION", "24h")),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		AIEnabled:        getBool("AI_ENABLED", true),
		AITimeout:        mustDuration(getEnv("AI_TIMEOUT", "15s")),
		AICooldown:       mustDuration(getEnv("AI_COOLDOWN", "5m")),
		AIQuotaCooldown:  mustDuration(getEnv("AI_QUOTA_COOLDOWN", "30m")),
		WhatsAppURL:      getEnv("WHATSAPP_BOT_URL", ""),
		WhatsAppKey:      getEnv("WHATSAPP_BOT_KEY", ""),
		WhatsAppTimeout:  mustDuration(getEnv("WHATSAPP_TIMEOUT", "10s")),
		WebhookSecret:    getEnv("WHATSAPP_WEBHOOK_SECRET", ""),
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       getEnv("TWILIO_WHATSAPP_FROM", ""),

		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "m.lima"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		LawyerPhones:      splitCSV(getEnv("LAWYER_PHONES", "")),
		LawyerEmails:      splitCSV(getEnv("LAWYER_EMAILS", "")),
		NotifyAttempts:    mustInt(getEnv("NOTIFY_ATTEMPTS", "3")),
		NotifyBaseBackoff: mustDuration(getEnv("NOTIFY_BASE_BACKOFF", "1s")),
		BreakerThreshold:  mustInt(getEnv("NOTIFY_BREAKER_THRESHOLD", "3")),
		BreakerCooldown:   mustDuration(getEnv("NOTIFY_BREAKER_COOLDOWN", "5m")),
		SideEffectTimeout: mustDuration(getEnv("SIDE_EFFECT_TIMEOUT", "30s")),

		SessionTTL:           mustDuration(getEnv("SESSION_TTL", "24h")),
		StoreTimeout:         mustDuration(getEnv("STORE_TIMEOUT", "3s")),
		LockTimeout:          mustDuration(getEnv("SESSION_LOCK_TIMEOUT", "30s")),
		RateLimit:            mustInt(getEnv("SESSION_RATE_LIMIT", "10")),
		RateWindow:           mustDuration(getEnv("SESSION_RATE_WINDOW", "1m")),
		DuplicateWindow:      mustDuration(getEnv("DUPLICATE_WINDOW", "10s")),
		Timezone:             getEnv("CONVERSATION_TIMEZONE", "America/Sao_Paulo"),
		WebMinScore:          mustFloat(getEnv("QUALIFY_WEB_MIN_SCORE", "0.8")),
		WhatsAppMinScore:     mustFloat(getEnv("QUALIFY_WHATSAPP_MIN_SCORE", "0.7")),
		WhatsAppMinMessages:  mustInt(getEnv("QUALIFY_WHATSAPP_MIN_MESSAGES", "4")),
		CaseDetailsMinLength: mustInt(getEnv("CASE_DETAILS_MIN_LENGTH", "10")),
		AreaAcceptFreeText:   getBool("AREA_ACCEPT_FREE_TEXT", false),
		StrictConfirmation:   getBool("STRICT_CONFIRMATION", false),

		FlowFile:     getEnv("FLOW_FILE", ""),
		FlowCacheTTL: mustDuration(getEnv("FLOW_CACHE_TTL", "5m")),

		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAuthTTL:     mustDuration(getEnv("WHATSAPP_AUTH_TTL", "1h")),
	}

	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.RateLimit < 1 || cfg.RateWindow <= 0 {
		return nil, fmt.Errorf("SESSION_RATE_LIMIT and SESSION_RATE_WINDOW must be positive")
	}
	if cfg.SessionTTL <= 0 || cfg.LockTimeout <= 0 || cfg.StoreTimeout <= 0 {
		return nil, fmt.Errorf("SESSION_TTL, SESSION_LOCK_TIMEOUT and STORE_TIMEOUT must be positive")
	}
	if cfg.WhatsAppAuthTTL <= 0 {
		return nil, fmt.Errorf("WHATSAPP_AUTH_TTL must be positive")
	}
	if cfg.NotifyAttempts < 1 {
		return nil, fmt.Errorf("NOTIFY_ATTEMPTS must be at least 1")
	}
	if cfg.WebMinScore < 0 || cfg.WebMinScore > 1 || cfg.WhatsAppMinScore < 0 || cfg.WhatsAppMinScore > 1 {
		return nil, fmt.Errorf("qualification scores must be between 0 and 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	return strings.EqualFold(raw, "true") || raw == "1"
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return -1
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
