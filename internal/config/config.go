package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

		// DeviceAuthRate is the per-IP token rate for device authentication, per second.
		DeviceAuthRate  float64 `yaml:"device_auth_rate"`
		DeviceAuthBurst int     `yaml:"device_auth_burst"`
	} `yaml:"server"`
	Storage struct {
		// Driver is "postgres" or "memory".
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret      string `yaml:"jwt_secret"`
		FingerprintKey string `yaml:"fingerprint_key"`
		ModeratorToken string `yaml:"moderator_token"`
	} `yaml:"auth"`
	Feed struct {
		CandidateLimit int `yaml:"candidate_limit"`
	} `yaml:"feed"`
	Moderation struct {
		CacheSize int           `yaml:"cache_size"`
		CacheTTL  time.Duration `yaml:"cache_ttl"`
		Telegram  struct {
			Enabled         bool   `yaml:"enabled"`
			BotToken        string `yaml:"bot_token"`
			ModeratorChatID int64  `yaml:"moderator_chat_id"`
		} `yaml:"telegram"`
	} `yaml:"moderation"`
	Logging struct {
		Production bool `yaml:"production"`
	} `yaml:"logging"`
}

// Default returns a configuration that runs a single in-memory node.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.DeviceAuthRate = 1
	cfg.Server.DeviceAuthBurst = 5
	cfg.Storage.Driver = "memory"
	cfg.Auth.JWTSecret = "dev-secret-change-in-production"
	cfg.Auth.FingerprintKey = "dev-fingerprint-key"
	cfg.Feed.CandidateLimit = 500
	cfg.Moderation.CacheSize = 10000
	cfg.Moderation.CacheTTL = 30 * time.Second
	return cfg
}

// LoadConfig reads configuration from the specified YAML file on top of the
// defaults, then applies environment overrides. A missing file is not an error
// when configPath is empty.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
		c.Storage.Driver = "postgres"
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("FINGERPRINT_KEY"); v != "" {
		c.Auth.FingerprintKey = v
	}
	if v := os.Getenv("MODERATOR_TOKEN"); v != "" {
		c.Auth.ModeratorToken = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Moderation.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_MODERATOR_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_MODERATOR_CHAT_ID: %w", err)
		}
		c.Moderation.Telegram.ModeratorChatID = id
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.FingerprintKey == "" {
		return errors.New("auth.fingerprint_key is required")
	}
	if c.Moderation.Telegram.Enabled && (c.Moderation.Telegram.BotToken == "" || c.Moderation.Telegram.ModeratorChatID == 0) {
		return errors.New("moderation.telegram needs bot_token and moderator_chat_id when enabled")
	}
	return nil
}
