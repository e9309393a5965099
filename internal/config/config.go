package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// WhatsApp Cloud API (Meta Graph). Empty token puts the sender in
	// simulated mode: outbound messages are logged, not delivered.
	WhatsAppAPIToken      string `env:"WHATSAPP_API_TOKEN"`
	WhatsAppPhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppVerifyToken   string `env:"WHATSAPP_WEBHOOK_VERIFY_TOKEN"`
	WhatsAppAppSecret     string `env:"WHATSAPP_APP_SECRET"`

	// Telegram operator panel (supergroup with forum topics).
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramGroupChatID int64  `env:"TELEGRAM_GROUP_CHAT_ID"`

	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiModelID string `env:"GEMINI_MODEL_ID" envDefault:"gemini-2.5-flash"`

	// Google Calendar read-only availability source.
	CalendarID          string `env:"GOOGLE_CALENDAR_ID"`
	CalendarClientEmail string `env:"GOOGLE_CALENDAR_CLIENT_EMAIL"`
	CalendarPrivateKey  string `env:"GOOGLE_CALENDAR_PRIVATE_KEY"`
	CalendarTimezone    string `env:"CALENDAR_TIMEZONE" envDefault:"America/Lima"`

	ConversationTTLMinutes    int `env:"CONVERSATION_TTL_MINUTES" envDefault:"720"`
	ConversationSweepMinutes  int `env:"CONVERSATION_STATE_CLEANUP_MINUTES" envDefault:"5"`
	HandoffWindowMinutes      int `env:"HANDOFF_WINDOW_MINUTES" envDefault:"30"`
	HandoffWarningLeadMinutes int `env:"HANDOFF_WARNING_LEAD_MINUTES" envDefault:"5"`
	MessageHistoryMaxMessages int `env:"CONVERSATION_HISTORY_MAX_MESSAGES" envDefault:"20"`
	MessageHistoryRetainDays  int `env:"CONVERSATION_HISTORY_RETAIN_DAYS" envDefault:"7"`
	AvailabilityLookaheadDays int `env:"AVAILABILITY_LOOKAHEAD_DAYS" envDefault:"3"`

	// Admin API bearer token, stored as a bcrypt hash
	// (generate with: go run scripts/hash-token.go <token>).
	AdminTokenHash string `env:"ADMIN_TOKEN_HASH"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) ConversationTTL() time.Duration {
	return time.Duration(c.ConversationTTLMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.ConversationSweepMinutes) * time.Minute
}

func (c *Config) HandoffWindow() time.Duration {
	return time.Duration(c.HandoffWindowMinutes) * time.Minute
}

func (c *Config) HandoffWarningLead() time.Duration {
	return time.Duration(c.HandoffWarningLeadMinutes) * time.Minute
}

func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.MessageHistoryRetainDays) * 24 * time.Hour
}

// CalendarKey returns the service-account private key with the literal \n
// escapes that survive .env files replaced by real newlines.
func (c *Config) CalendarKey() string {
	return strings.ReplaceAll(c.CalendarPrivateKey, `\n`, "\n")
}

func (c *Config) CalendarConfigured() bool {
	return c.CalendarID != "" && c.CalendarClientEmail != "" && c.CalendarPrivateKey != ""
}

func (c *Config) Validate() error {
	if c.ConversationTTLMinutes <= 0 {
		return fmt.Errorf("CONVERSATION_TTL_MINUTES must be positive, got %d", c.ConversationTTLMinutes)
	}
	if c.ConversationSweepMinutes <= 0 {
		return fmt.Errorf("CONVERSATION_STATE_CLEANUP_MINUTES must be positive, got %d", c.ConversationSweepMinutes)
	}
	if c.HandoffWarningLeadMinutes >= c.HandoffWindowMinutes {
		return fmt.Errorf("HANDOFF_WARNING_LEAD_MINUTES (%d) must be shorter than HANDOFF_WINDOW_MINUTES (%d)",
			c.HandoffWarningLeadMinutes, c.HandoffWindowMinutes)
	}

	if c.WhatsAppAPIToken == "" || c.WhatsAppPhoneNumberID == "" {
		log.Warn().Msg("WhatsApp credentials missing: outbound messages will be simulated")
	}
	if c.WhatsAppAppSecret == "" {
		log.Warn().Msg("WHATSAPP_APP_SECRET is empty: webhook signature verification disabled")
	}
	if c.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is empty: reply generator will use fixed fallback replies")
	}
	if !c.CalendarConfigured() {
		log.Warn().Msg("Google Calendar credentials missing: availability falls back to generic hours")
	}
	if c.AdminTokenHash != "" && !strings.HasPrefix(c.AdminTokenHash, "$2a$") &&
		!strings.HasPrefix(c.AdminTokenHash, "$2b$") && !strings.HasPrefix(c.AdminTokenHash, "$2y$") {
		return fmt.Errorf("ADMIN_TOKEN_HASH must be a bcrypt hash (generate with: go run scripts/hash-token.go <token>)")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
