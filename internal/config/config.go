package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrEmptyBotToken        = errors.New("telegram bot token is required")
	ErrEmptyDBPassword      = errors.New("database password is required")
	ErrNoChannel            = errors.New("channel id is required")
	ErrNoAdmins             = errors.New("at least one admin id is required")
	ErrInvalidMaxViolations = errors.New("max violations must be positive")
)

type Config struct {
	App        AppConfig        `yaml:"app" env-prefix:"APP_"`
	Database   DatabaseConfig   `yaml:"database" env-prefix:"DB_"`
	Bot        BotConfig        `yaml:"bot" env-prefix:"BOT_"`
	Moderation ModerationConfig `yaml:"moderation" env-prefix:"MODERATION_"`
	HTTP       HTTPConfig       `yaml:"http" env-prefix:"HTTP_"`
	NATS       NATSConfig       `yaml:"nats" env-prefix:"NATS_"`
	Redis      RedisConfig      `yaml:"redis" env-prefix:"REDIS_"`
}

type AppConfig struct {
	Name        string `yaml:"name" env:"NAME" env-default:"gatekeeper-bot"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"production"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
}

type DatabaseConfig struct {
	Host           string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PORT" env-default:"5432"`
	User           string `yaml:"user" env:"USER" env-default:"gatekeeper"`
	Password       string `yaml:"password" env:"PASSWORD"`
	Name           string `yaml:"name" env:"NAME" env-default:"gatekeeper"`
	MaxConnections int    `yaml:"max_connections" env:"MAX_CONNECTIONS" env-default:"25"`
	MinConnections int    `yaml:"min_connections" env:"MIN_CONNECTIONS" env-default:"5"`
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

type BotConfig struct {
	Token           string  `yaml:"token" env:"TOKEN"`
	ChannelID       int64   `yaml:"channel_id" env:"CHANNEL_ID"`
	ChannelUsername string  `yaml:"channel_username" env:"CHANNEL_USERNAME"`
	Admins          []int64 `yaml:"admins" env:"ADMINS" env-separator:","`
	WebhookURL      string  `yaml:"webhook_url" env:"WEBHOOK_URL"`
	WebhookSecret   string  `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
}

func (b BotConfig) IsAdmin(userID int64) bool {
	return slices.Contains(b.Admins, userID)
}

// MessageLink points at a channel post. Private channels use the /c/ form.
func (b BotConfig) MessageLink(messageID int) string {
	if name := strings.TrimPrefix(b.ChannelUsername, "@"); name != "" {
		return fmt.Sprintf("https://t.me/%s/%d", name, messageID)
	}
	id := strings.TrimPrefix(strconv.FormatInt(b.ChannelID, 10), "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", id, messageID)
}

type ModerationConfig struct {
	Enabled                   bool   `yaml:"enabled" env:"ENABLED"`
	DeleteServiceMessages     bool   `yaml:"delete_service_messages" env:"DELETE_SERVICE_MESSAGES"`
	DeletePinnedNotifications bool   `yaml:"delete_pinned_notifications" env:"DELETE_PINNED_NOTIFICATIONS"`
	MaxViolations             int    `yaml:"max_violations" env:"MAX_VIOLATIONS" env-default:"20"`
	StopWordsFile             string `yaml:"stop_words_file" env:"STOP_WORDS_FILE" env-default:"stopwords.txt"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"PORT" env-default:"8080"`
	WebhookPath    string        `yaml:"webhook_path" env:"WEBHOOK_PATH" env-default:"/webhook"`
	HealthEndpoint string        `yaml:"health_endpoint" env:"HEALTH_ENDPOINT" env-default:"/healthz"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"10s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"60s"`
}

type NATSConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED" env-default:"false"`
	URL        string `yaml:"url" env:"URL" env-default:"nats://localhost:4222"`
	StreamName string `yaml:"stream_name" env:"STREAM_NAME" env-default:"GATEKEEPER"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Addr     string        `yaml:"addr" env:"ADDR" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB" env-default:"0"`
	DedupTTL time.Duration `yaml:"dedup_ttl" env:"DEDUP_TTL" env-default:"24h"`
}

// Toggles that default to on are seeded here rather than with env-default:
// cleanenv treats a false read from YAML as unset and would apply the default.
func defaults() Config {
	return Config{
		Moderation: ModerationConfig{
			Enabled:                   true,
			DeleteServiceMessages:     true,
			DeletePinnedNotifications: true,
		},
	}
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "configs/config.yaml"
}

// read fills dst from the YAML file when it exists, then from the environment.
func read(path string, dst any) error {
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, dst); err != nil {
			return fmt.Errorf("failed to read config from %s: %w", path, err)
		}
		return nil
	}
	if err := cleanenv.ReadEnv(dst); err != nil {
		return fmt.Errorf("failed to read config from env: %w", err)
	}
	return nil
}

func Load() (*Config, error) {
	cfg := defaults()

	if err := read(configPath(), &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDatabase reads only the database section, for tools that never talk to
// Telegram.
func LoadDatabase() (*DatabaseConfig, error) {
	var cfg struct {
		Database DatabaseConfig `yaml:"database" env-prefix:"DB_"`
	}

	if err := read(configPath(), &cfg); err != nil {
		return nil, err
	}

	return &cfg.Database, nil
}

func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return ErrEmptyBotToken
	}

	if c.Database.Password == "" {
		return ErrEmptyDBPassword
	}

	if c.Bot.ChannelID == 0 {
		return ErrNoChannel
	}

	if len(c.Bot.Admins) == 0 {
		return ErrNoAdmins
	}

	if c.Moderation.MaxViolations < 1 {
		return ErrInvalidMaxViolations
	}

	return nil
}
