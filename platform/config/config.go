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

// RedisConfig provides Redis connection settings for the send counter
// and the task queue.
type RedisConfig interface {
	GetRedisURL() string
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
}

// SendConfig provides settings for outbound email dispatch.
type SendConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSendFromName() string
	GetSendFromAddress() string
	GetDailySendLimit() int
	IsSendEnabled() bool
}

// IdentityConfig provides the sender identity woven into drafted copy.
type IdentityConfig interface {
	GetCompanyName() string
	GetBrandNames() []string
	GetBookingLink() string
}

// SequenceConfig provides settings for the follow-up sequence.
type SequenceConfig interface {
	GetTimingTablePath() string
	GetSendWindowStart() int
	GetSendWindowEnd() int
	GetSendWeekdaysOnly() bool
	GetLostAfter() time.Duration
}

// SchedulerConfig provides settings for the pipeline orchestrator.
type SchedulerConfig interface {
	GetPollInterval() time.Duration
	GetWorkerCount() int
}

// QueueConfig provides settings for the asynq task queue.
type QueueConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// DraftConfig provides settings for the AI draft provider.
type DraftConfig interface {
	GetGeminiAPIKey() string
	GetDraftModel() string
	GetDraftTimeout() time.Duration
	IsDraftingEnabled() bool
}

// MailboxConfig provides settings for the polled IMAP reply mailbox.
type MailboxConfig interface {
	GetIMAPHost() string
	GetIMAPPort() int
	GetIMAPUsername() string
	GetIMAPPassword() string
	GetIMAPFolder() string
	GetIMAPPollInterval() time.Duration
	IsMailboxEnabled() bool
}

// WebhookConfig provides settings for the inbound reply webhook.
type WebhookConfig interface {
	GetWebhookAPIKey() string
}

// ObjectionConfig provides the objection knowledge base location.
type ObjectionConfig interface {
	GetObjectionKBPath() string
}

// NotificationConfig provides the operator notification target.
type NotificationConfig interface {
	GetNotifyAddress() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env              string
	HTTPAddr         string
	DatabaseURL      string
	RedisURL         string
	JWTAccessSecret  string
	CORSAllowAll     bool
	CORSOrigins      []string
	CORSAllowCreds   bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SendFromName     string
	SendFromAddress  string
	SendEnabled      bool
	DailySendLimit   int
	CompanyName      string
	BrandNames       []string
	BookingLink      string
	TimingTablePath  string
	SendWindowStart  int
	SendWindowEnd    int
	SendWeekdaysOnly bool
	LostAfter        time.Duration
	PollInterval     time.Duration
	WorkerCount      int
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	GeminiAPIKey     string
	DraftModel       string
	DraftTimeout     time.Duration
	IMAPHost         string
	IMAPPort         int
	IMAPUsername     string
	IMAPPassword     string
	IMAPFolder       string
	IMAPPollInterval time.Duration
	WebhookAPIKey    string
	ObjectionKBPath  string
	NotifyAddress    string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string { return c.RedisURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SendConfig implementation
func (c *Config) GetSMTPHost() string        { return c.SMTPHost }
func (c *Config) GetSMTPPort() int           { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string    { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string    { return c.SMTPPassword }
func (c *Config) GetSendFromName() string    { return c.SendFromName }
func (c *Config) GetSendFromAddress() string { return c.SendFromAddress }
func (c *Config) GetDailySendLimit() int     { return c.DailySendLimit }
func (c *Config) IsSendEnabled() bool        { return c.SendEnabled && c.SMTPHost != "" }

// IdentityConfig implementation
func (c *Config) GetCompanyName() string  { return c.CompanyName }
func (c *Config) GetBrandNames() []string { return c.BrandNames }
func (c *Config) GetBookingLink() string  { return c.BookingLink }

// SequenceConfig implementation
func (c *Config) GetTimingTablePath() string  { return c.TimingTablePath }
func (c *Config) GetSendWindowStart() int     { return c.SendWindowStart }
func (c *Config) GetSendWindowEnd() int       { return c.SendWindowEnd }
func (c *Config) GetSendWeekdaysOnly() bool   { return c.SendWeekdaysOnly }
func (c *Config) GetLostAfter() time.Duration { return c.LostAfter }

// SchedulerConfig implementation
func (c *Config) GetPollInterval() time.Duration { return c.PollInterval }
func (c *Config) GetWorkerCount() int            { return c.WorkerCount }

// QueueConfig implementation
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// DraftConfig implementation
func (c *Config) GetGeminiAPIKey() string        { return c.GeminiAPIKey }
func (c *Config) GetDraftModel() string          { return c.DraftModel }
func (c *Config) GetDraftTimeout() time.Duration { return c.DraftTimeout }
func (c *Config) IsDraftingEnabled() bool        { return c.GeminiAPIKey != "" }

// MailboxConfig implementation
func (c *Config) GetIMAPHost() string                { return c.IMAPHost }
func (c *Config) GetIMAPPort() int                   { return c.IMAPPort }
func (c *Config) GetIMAPUsername() string            { return c.IMAPUsername }
func (c *Config) GetIMAPPassword() string            { return c.IMAPPassword }
func (c *Config) GetIMAPFolder() string              { return c.IMAPFolder }
func (c *Config) GetIMAPPollInterval() time.Duration { return c.IMAPPollInterval }
func (c *Config) IsMailboxEnabled() bool             { return c.IMAPHost != "" }

// WebhookConfig implementation
func (c *Config) GetWebhookAPIKey() string { return c.WebhookAPIKey }

// ObjectionConfig implementation
func (c *Config) GetObjectionKBPath() string { return c.ObjectionKBPath }

// NotificationConfig implementation
func (c *Config) GetNotifyAddress() string { return c.NotifyAddress }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	sendEnabled := strings.EqualFold(getEnv("SEND_ENABLED", "true"), "true")

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTAccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:     corsAllowAll,
		CORSOrigins:      corsOrigins,
		CORSAllowCreds:   strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SendFromName:     getEnv("SEND_FROM_NAME", "Outreach"),
		SendFromAddress:  getEnv("SEND_FROM_ADDRESS", ""),
		SendEnabled:      sendEnabled,
		DailySendLimit:   mustInt(getEnv("DAILY_SEND_LIMIT", "200")),
		CompanyName:      getEnv("COMPANY_NAME", ""),
		BrandNames:       splitCSV(getEnv("BRAND_NAMES", "")),
		BookingLink:      getEnv("BOOKING_LINK", ""),
		TimingTablePath:  getEnv("TIMING_TABLE_PATH", ""),
		SendWindowStart:  mustInt(getEnv("SEND_WINDOW_START", "8")),
		SendWindowEnd:    mustInt(getEnv("SEND_WINDOW_END", "18")),
		SendWeekdaysOnly: strings.EqualFold(getEnv("SEND_WEEKDAYS_ONLY", "true"), "true"),
		LostAfter:        mustDuration(getEnv("SEQUENCE_LOST_AFTER", "336h")),
		PollInterval:     mustDuration(getEnv("PIPELINE_POLL_INTERVAL", "30s")),
		WorkerCount:      mustInt(getEnv("PIPELINE_WORKERS", "4")),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE_NAME", "outreach"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		DraftModel:       getEnv("DRAFT_MODEL", "gemini-2.0-flash"),
		DraftTimeout:     mustDuration(getEnv("DRAFT_TIMEOUT", "30s")),
		IMAPHost:         getEnv("IMAP_HOST", ""),
		IMAPPort:         mustInt(getEnv("IMAP_PORT", "993")),
		IMAPUsername:     getEnv("IMAP_USERNAME", ""),
		IMAPPassword:     getEnv("IMAP_PASSWORD", ""),
		IMAPFolder:       getEnv("IMAP_FOLDER", "INBOX"),
		IMAPPollInterval: mustDuration(getEnv("IMAP_POLL_INTERVAL", "60s")),
		WebhookAPIKey:    getEnv("WEBHOOK_API_KEY", ""),
		ObjectionKBPath:  getEnv("OBJECTION_KB_PATH", ""),
		NotifyAddress:    getEnv("NOTIFY_ADDRESS", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if sendEnabled && cfg.SendFromAddress == "" {
		return nil, fmt.Errorf("SEND_FROM_ADDRESS is required when SEND_ENABLED is true")
	}
	if cfg.DailySendLimit <= 0 {
		return nil, fmt.Errorf("DAILY_SEND_LIMIT must be positive")
	}
	if cfg.SendWindowStart < 0 || cfg.SendWindowEnd > 24 || cfg.SendWindowStart >= cfg.SendWindowEnd {
		return nil, fmt.Errorf("send window %d-%d is invalid", cfg.SendWindowStart, cfg.SendWindowEnd)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("PIPELINE_POLL_INTERVAL must be positive")
	}
	if cfg.LostAfter <= 0 {
		return nil, fmt.Errorf("SEQUENCE_LOST_AFTER must be positive")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
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
