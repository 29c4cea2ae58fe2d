package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DiscordToken  string `mapstructure:"DISCORD_TOKEN"`
	MainChannelID string `mapstructure:"MAIN_CHANNEL_ID"`
	CategoryID    string `mapstructure:"CATEGORY_ID"`
	MasterKeyHex  string `mapstructure:"MASTER_KEY"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`

	MaxSlots               int     `mapstructure:"MAX_SLOTS"`
	ConversationTimeoutSec int     `mapstructure:"CONVERSATION_TIMEOUT"`
	WorkerPoolSize         int     `mapstructure:"WORKER_POOL_SIZE"`
	PollShape              float64 `mapstructure:"POLL_SHAPE"`
	PollScale              float64 `mapstructure:"POLL_SCALE"`
	PollMinSec             float64 `mapstructure:"POLL_MIN"`
	ProviderRatePerSec     float64 `mapstructure:"PROVIDER_RATE_PER_SEC"`
	FinishedDelaySec       int     `mapstructure:"TEARDOWN_DELAY"`
	AbortedDelaySec        int     `mapstructure:"TEARDOWN_DELAY_CANCEL"`

	RailGatewayURL string `mapstructure:"RAIL_GATEWAY_URL"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`

	AdminAddr          string `mapstructure:"ADMIN_ADDR"`
	AdminPasswordHash  string `mapstructure:"ADMIN_PASSWORD_HASH"`
	SessionHashKeyB64  string `mapstructure:"SESSION_HASH_KEY"`
	SessionBlockKeyB64 string `mapstructure:"SESSION_BLOCK_KEY"`

	// decoded from the fields above
	MasterKey       []byte `mapstructure:"-"`
	SessionHashKey  []byte `mapstructure:"-"`
	SessionBlockKey []byte `mapstructure:"-"`
}

func (c Config) ConversationTimeout() time.Duration {
	return time.Duration(c.ConversationTimeoutSec) * time.Second
}

func (c Config) PollMin() time.Duration {
	return time.Duration(c.PollMinSec * float64(time.Second))
}

// FinishedDelay is how long a booking channel stays open after its legs end.
func (c Config) FinishedDelay() time.Duration {
	return time.Duration(c.FinishedDelaySec) * time.Second
}

// AbortedDelay applies after a cancel or timeout.
func (c Config) AbortedDelay() time.Duration {
	return time.Duration(c.AbortedDelaySec) * time.Second
}

func (c Config) IsProduction() bool { return c.Env == "production" }

// FromEnv loads the full server configuration and reports every missing or
// malformed required value.
func FromEnv() (Config, error) {
	cfg, err := load()
	if err != nil {
		return cfg, err
	}
	var errs []error
	if cfg.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required"))
	}
	if err := checkSnowflake("MAIN_CHANNEL_ID", cfg.MainChannelID); err != nil {
		errs = append(errs, err)
	}
	if err := checkSnowflake("CATEGORY_ID", cfg.CategoryID); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, cfg.decodeStorage()...)
	if cfg.AdminAddr != "" {
		errs = append(errs, cfg.decodeAdmin()...)
	}
	if cfg.MaxSlots < 1 {
		errs = append(errs, fmt.Errorf("MAX_SLOTS must be >= 1 (got %d)", cfg.MaxSlots))
	}
	if cfg.ConversationTimeoutSec < 1 {
		errs = append(errs, fmt.Errorf("CONVERSATION_TIMEOUT must be >= 1 (got %d)", cfg.ConversationTimeoutSec))
	}
	if cfg.WorkerPoolSize < 1 {
		errs = append(errs, fmt.Errorf("WORKER_POOL_SIZE must be >= 1 (got %d)", cfg.WorkerPoolSize))
	}
	if cfg.FinishedDelaySec < 0 || cfg.AbortedDelaySec < 0 {
		errs = append(errs, errors.New("TEARDOWN_DELAY and TEARDOWN_DELAY_CANCEL must be >= 0"))
	}
	if cfg.PollShape <= 0 || cfg.PollScale <= 0 || cfg.PollMinSec < 0 {
		errs = append(errs, errors.New("POLL_SHAPE and POLL_SCALE must be > 0, POLL_MIN must be >= 0"))
	}
	return cfg, errors.Join(errs...)
}

// StoreFromEnv loads only what the maintenance commands need: the database
// and the master key.
func StoreFromEnv() (Config, error) {
	cfg, err := load()
	if err != nil {
		return cfg, err
	}
	return cfg, errors.Join(cfg.decodeStorage()...)
}

// ParseMasterKey decodes a 64 character hex string into a 32 byte key.
func ParseMasterKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) != 64 {
		return nil, fmt.Errorf("MASTER_KEY must be 64 hex characters (got %d)", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("MASTER_KEY: %w", err)
	}
	return b, nil
}

func load() (Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	// every key needs a default so Unmarshal sees environment overrides
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DISCORD_TOKEN", "")
	v.SetDefault("MAIN_CHANNEL_ID", "")
	v.SetDefault("CATEGORY_ID", "")
	v.SetDefault("MASTER_KEY", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MAX_SLOTS", 4)
	v.SetDefault("CONVERSATION_TIMEOUT", 300)
	v.SetDefault("WORKER_POOL_SIZE", 8)
	v.SetDefault("POLL_SHAPE", 4.0)
	v.SetDefault("POLL_SCALE", 0.25)
	v.SetDefault("POLL_MIN", 0.5)
	v.SetDefault("PROVIDER_RATE_PER_SEC", 4.0)
	v.SetDefault("TEARDOWN_DELAY", 30)
	v.SetDefault("TEARDOWN_DELAY_CANCEL", 5)
	v.SetDefault("RAIL_GATEWAY_URL", "http://localhost:8090")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("ADMIN_ADDR", "")
	v.SetDefault("ADMIN_PASSWORD_HASH", "")
	v.SetDefault("SESSION_HASH_KEY", "")
	v.SetDefault("SESSION_BLOCK_KEY", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.DiscordToken = strings.TrimSpace(cfg.DiscordToken)
	cfg.MainChannelID = strings.TrimSpace(cfg.MainChannelID)
	cfg.CategoryID = strings.TrimSpace(cfg.CategoryID)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	return cfg, nil
}

func (c *Config) decodeStorage() []error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	key, err := ParseMasterKey(c.MasterKeyHex)
	if err != nil {
		errs = append(errs, err)
	}
	c.MasterKey = key
	return errs
}

func (c *Config) decodeAdmin() []error {
	var errs []error
	if c.AdminPasswordHash == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD_HASH is required when ADMIN_ADDR is set"))
	}
	var err error
	if c.SessionHashKey, err = mustB64("SESSION_HASH_KEY", c.SessionHashKeyB64); err != nil {
		errs = append(errs, err)
	}
	if c.SessionBlockKey, err = mustB64("SESSION_BLOCK_KEY", c.SessionBlockKeyB64); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func checkSnowflake(k, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", k)
	}
	if _, err := strconv.ParseUint(v, 10, 64); err != nil {
		return fmt.Errorf("%s must be a numeric id (got %q)", k, v)
	}
	return nil
}

func mustB64(k, v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, fmt.Errorf("%s is required (base64)", k)
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}
