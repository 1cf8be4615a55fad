package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls runtime behavior for the server, the visitor flow and the
// admin monitor. Every field can be overridden from VALENTINE_* variables.
type Config struct {
	Addr            string        `env:"VALENTINE_ADDR"`
	DataDir         string        `env:"VALENTINE_DATA_DIR"`
	CatalogPath     string        `env:"VALENTINE_CATALOG"`
	SessionDuration time.Duration `env:"VALENTINE_SESSION_DURATION"`
	AdminPassword   string        `env:"VALENTINE_ADMIN_PASSWORD"`
	CORSOrigins     []string      `env:"VALENTINE_CORS_ORIGINS" envSeparator:","`
	JournalPath     string        `env:"VALENTINE_JOURNAL_PATH"`
	LogLevel        string        `env:"VALENTINE_LOG_LEVEL"`
	Media           MediaConfig
	Client          ClientConfig
}

type MediaConfig struct {
	Bucket     string        `env:"VALENTINE_S3_BUCKET"`
	Region     string        `env:"VALENTINE_S3_REGION"`
	Endpoint   string        `env:"VALENTINE_S3_ENDPOINT"`
	AccessKey  string        `env:"VALENTINE_S3_ACCESS_KEY"`
	SecretKey  string        `env:"VALENTINE_S3_SECRET_KEY"`
	PresignTTL time.Duration `env:"VALENTINE_S3_PRESIGN_TTL"`
	BaseURL    string        `env:"VALENTINE_MEDIA_BASE_URL"`
	Dir        string        `env:"VALENTINE_MEDIA_DIR"`
}

type ClientConfig struct {
	APIURL         string `env:"VALENTINE_API_URL"`
	SupportContact string `env:"VALENTINE_SUPPORT_CONTACT"`
	RepairCode     string `env:"VALENTINE_REPAIR_CODE"`
	StatePath      string `env:"VALENTINE_STATE_PATH"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8000",
		CatalogPath:     filepath.Join("puzzles", "catalog.yaml"),
		SessionDuration: 4 * time.Hour,
		AdminPassword:   "saturn-admin",
		CORSOrigins:     []string{"http://localhost:3000"},
		LogLevel:        "info",
		Media: MediaConfig{
			Region:     "eu-central-1",
			PresignTTL: 5 * time.Minute,
			BaseURL:    "/media/",
		},
		Client: ClientConfig{
			APIURL:         "http://localhost:8000/api",
			SupportContact: "+79001234567",
			RepairCode:     "saturn",
		},
	}
}

// Load starts from DefaultConfig, overlays the environment and validates.
// Variables that are not set leave the default in place.
func Load() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("listen address is required")
	}
	if c.SessionDuration <= 0 {
		return fmt.Errorf("invalid session duration %s", c.SessionDuration)
	}
	if strings.TrimSpace(c.AdminPassword) == "" {
		return errors.New("admin password is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Media.PresignTTL <= 0 {
		c.Media.PresignTTL = 5 * time.Minute
	}
	if c.Media.Bucket != "" && c.Media.Region == "" {
		return errors.New("s3 region is required when a bucket is configured")
	}
	if c.Media.BaseURL == "" {
		c.Media.BaseURL = "/media/"
	}
	if _, err := url.Parse(c.Client.APIURL); err != nil || c.Client.APIURL == "" {
		return fmt.Errorf("invalid api url %q", c.Client.APIURL)
	}
	c.Client.APIURL = strings.TrimRight(c.Client.APIURL, "/")
	if strings.TrimSpace(c.Client.RepairCode) == "" {
		return errors.New("repair code is required")
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.New("cannot resolve user home directory")
		}
		c.DataDir = filepath.Join(home, ".local", "share", "valentine")
	}
	if c.Client.StatePath == "" {
		stateHome := os.Getenv("XDG_STATE_HOME")
		if stateHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return errors.New("cannot resolve user home directory")
			}
			stateHome = filepath.Join(home, ".local", "state")
		}
		c.Client.StatePath = filepath.Join(stateHome, "valentine", "identity.json")
	}

	return nil
}

func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "valentine.db")
}
