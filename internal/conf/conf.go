package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/usecase"
)

// Supported transports
const (
	TransportTelegram = "telegram"
	TransportFeishu   = "feishu"
)

// Config represents application configuration
type Config struct {
	Transport string `env:"TRANSPORT" envDefault:"telegram"`

	Telegram TelegramConfig
	Feishu   FeishuConfig
	OpenAI   OpenAIConfig
	Bot      BotConfig
	Quota    QuotaConfig
	Schedule ScheduleConfig

	// Messages is the reply and prompt catalog, loaded from YAML
	Messages     *MessagesConfig `env:"-"`
	MessagesPath string          `env:"MESSAGES_CONFIG_PATH"`

	Verbose bool `env:"VERBOSE"`
}

// TelegramConfig contains Telegram configuration
type TelegramConfig struct {
	Token string `env:"TELEGRAM_TOKEN"`
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string `env:"FEISHU_APP_ID"`
	AppSecret string `env:"FEISHU_APP_SECRET"`
}

// OpenAIConfig contains backend configuration
type OpenAIConfig struct {
	APIKey  string        `env:"OPENAI_API_KEY"`
	BaseURL string        `env:"OPENAI_BASE_URL"`
	Model   string        `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	Timeout time.Duration `env:"OPENAI_TIMEOUT" envDefault:"5m"`
}

// BotConfig contains identity and principal configuration
type BotConfig struct {
	Name              string   `env:"BOT_NAME" envDefault:"Матье"`
	AltName           string   `env:"BOT_ALT_NAME" envDefault:"Matie"`
	AdminIDs          []string `env:"ADMIN_IDS" envSeparator:","`
	GoldChatID        string   `env:"GOLD_CHAT_ID"`
	AggregationChatID string   `env:"AGGREGATION_CHAT_ID"`
	Workers           int      `env:"WORKERS" envDefault:"16"`
	ChatLogCapacity   int      `env:"CHATLOG_CAPACITY" envDefault:"10000"`
}

// QuotaConfig contains quota store configuration
type QuotaConfig struct {
	DBPath           string `env:"DB_PATH"`
	DailySharedQuota int    `env:"DAILY_SHARED_QUOTA" envDefault:"400"`
	DefaultUserCap   int    `env:"DEFAULT_USER_CAP" envDefault:"20"`
}

// ScheduleConfig contains background job schedules (cron expressions, empty disables)
type ScheduleConfig struct {
	Prune         string `env:"PRUNE_SCHEDULE"`
	Stats         string `env:"STATS_SCHEDULE"`
	RetentionDays int    `env:"EVENT_RETENTION_DAYS" envDefault:"30"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.normalize()

	messages, err := LoadMessagesConfig(cfg.MessagesPath)
	if err != nil {
		return nil, err
	}
	cfg.Messages = messages
	return cfg, nil
}

func (c *Config) normalize() {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))

	admins := make([]string, 0, len(c.Bot.AdminIDs))
	for _, id := range c.Bot.AdminIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins = append(admins, id)
		}
	}
	c.Bot.AdminIDs = admins

	// Day stats and echoes go to the gold chat unless told otherwise
	if c.Bot.AggregationChatID == "" {
		c.Bot.AggregationChatID = c.Bot.GoldChatID
	}

	if c.Quota.DBPath == "" {
		homeDir, _ := os.UserHomeDir()
		c.Quota.DBPath = filepath.Join(homeDir, ".matiebot", "matie.db")
	}
}

// Principals returns the named groups command allow-lists are built from
func (c *Config) Principals() domain.Principals {
	return domain.Principals{
		Admins:   c.Bot.AdminIDs,
		GoldChat: c.Bot.GoldChatID,
	}
}

// Retention returns how long quota events are kept by the prune job
func (c *ScheduleConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// ToDispatcherConfig converts to dispatcher configuration
func (c *Config) ToDispatcherConfig() usecase.DispatcherConfig {
	return usecase.DispatcherConfig{
		DailySharedQuota:  c.Quota.DailySharedQuota,
		Privileged:        c.Principals().AdminsSet(),
		AggregationChatID: c.Bot.AggregationChatID,
		Texts:             c.messages().DispatcherTexts(),
	}
}

// ToConversationConfig converts to conversation configuration
func (c *Config) ToConversationConfig() usecase.ConversationConfig {
	m := c.messages()
	return usecase.ConversationConfig{
		DefaultPrompt: m.SystemPrompt(c.Bot.Name),
		ResetNotice:   m.Conversation.ResetNotice,
	}
}

func (c *Config) messages() *MessagesConfig {
	if c.Messages == nil {
		return DefaultMessagesConfig()
	}
	return c.Messages
}

// Validate validates the configuration for serving
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportTelegram:
		if c.Telegram.Token == "" {
			return &ConfigError{Field: "TELEGRAM_TOKEN", Message: "required for telegram transport"}
		}
	case TransportFeishu:
		if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
			return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required for feishu transport"}
		}
	default:
		return &ConfigError{Field: "TRANSPORT", Message: fmt.Sprintf("unknown transport %q", c.Transport)}
	}

	if c.OpenAI.APIKey == "" {
		return &ConfigError{Field: "OPENAI_API_KEY", Message: "required"}
	}
	if c.Bot.Name == "" {
		return &ConfigError{Field: "BOT_NAME", Message: "required"}
	}
	return c.ValidateStore()
}

// ValidateStore validates the settings the offline admin commands need
func (c *Config) ValidateStore() error {
	if c.Quota.DailySharedQuota < 0 {
		return &ConfigError{Field: "DAILY_SHARED_QUOTA", Message: "must not be negative"}
	}
	if c.Quota.DefaultUserCap < 0 {
		return &ConfigError{Field: "DEFAULT_USER_CAP", Message: "must not be negative"}
	}
	if c.Bot.Workers <= 0 {
		return &ConfigError{Field: "WORKERS", Message: "must be positive"}
	}

	cron := gronx.New()
	if c.Schedule.Prune != "" && !cron.IsValid(c.Schedule.Prune) {
		return &ConfigError{Field: "PRUNE_SCHEDULE", Message: fmt.Sprintf("invalid cron expression %q", c.Schedule.Prune)}
	}
	if c.Schedule.Stats != "" && !cron.IsValid(c.Schedule.Stats) {
		return &ConfigError{Field: "STATS_SCHEDULE", Message: fmt.Sprintf("invalid cron expression %q", c.Schedule.Stats)}
	}
	if c.Schedule.Prune != "" && c.Schedule.RetentionDays <= 0 {
		return &ConfigError{Field: "EVENT_RETENTION_DAYS", Message: "must be positive when pruning is scheduled"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
