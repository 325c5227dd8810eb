// Package config loads qabot settings from a YAML file, a .env file and the
// process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks a missing or invalid setting. Features that need the
// setting are disabled; the process keeps running.
var ErrConfiguration = errors.New("configuration error")

// Matching modes for the direct manual lookup
const (
	ModeContainment = "containment"
	ModeEquality    = "equality"
)

const defaultInstructions = `You are a support bot that answers questions using only the manual below.
Answer only from the supplied material. Answer in the same language as the question.
Do not introduce facts that are not in the material. If the material does not cover
the question, say so.`

// Config holds all qabot configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Tables   TablesConfig   `yaml:"tables"`
	Matching MatchingConfig `yaml:"matching"`
	Provider ProviderConfig `yaml:"provider"`
	Sync     SyncConfig     `yaml:"sync"`
	Session  SessionConfig  `yaml:"session"`
	Manual   ManualConfig   `yaml:"manual"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`

	// AdminPassword comes from the environment only
	AdminPassword string `yaml:"-"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type TablesConfig struct {
	Backend    string `yaml:"backend"` // csv or sqlite
	ManualPath string `yaml:"manual_path"`
	FAQPath    string `yaml:"faq_path"`
	LedgerPath string `yaml:"ledger_path"`
	SQLitePath string `yaml:"sqlite_path"`
	Locale     string `yaml:"locale"` // en or ja, used when writing
}

type MatchingConfig struct {
	Mode   string  `yaml:"mode"`
	Fuzzy  bool    `yaml:"fuzzy"`
	Cutoff float64 `yaml:"cutoff"`
}

type ProviderConfig struct {
	Backend           string `yaml:"backend"` // openai or anthropic
	Model             string `yaml:"model"`
	BaseURL           string `yaml:"base_url"`
	Instructions      string `yaml:"instructions"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	APIKey            string `yaml:"-"`
}

type SyncConfig struct {
	Bucket          string `yaml:"bucket"`
	Folder          string `yaml:"folder"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Enabled reports whether remote sync has everything it needs
func (s SyncConfig) Enabled() bool {
	return s.Bucket != "" && s.CredentialsFile != ""
}

type SessionConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type ManualConfig struct {
	Watch bool `yaml:"watch"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TracingConfig struct {
	Stdout bool `yaml:"stdout"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Tables: TablesConfig{
			Backend:    "csv",
			ManualPath: "manual.csv",
			LedgerPath: "questions.csv",
			SQLitePath: "qabot.db",
			Locale:     "en",
		},
		Matching: MatchingConfig{
			Mode:   ModeContainment,
			Fuzzy:  true,
			Cutoff: 0.6,
		},
		Provider: ProviderConfig{
			Backend:      "openai",
			Model:        "gpt-4",
			Instructions: defaultInstructions,
		},
		Sync:    SyncConfig{Folder: "qabot"},
		Session: SessionConfig{IdleTimeout: 2 * time.Hour},
		Manual:  ManualConfig{Watch: true},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path (optional), then .env, then the environment
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// defaults only
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// A missing .env is normal outside development
	_ = godotenv.Load()

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("QABOT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("QABOT_BACKEND"); v != "" {
		cfg.Provider.Backend = v
	}
	if v := os.Getenv("QABOT_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("QABOT_GCS_BUCKET"); v != "" {
		cfg.Sync.Bucket = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.Sync.CredentialsFile = v
	}

	switch cfg.Provider.Backend {
	case "anthropic", "claude":
		cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	default:
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
}

// Validate rejects settings the resolver cannot work with
func (c Config) Validate() error {
	switch c.Matching.Mode {
	case ModeContainment, ModeEquality:
	default:
		return fmt.Errorf("%w: matching.mode must be %q or %q, got %q",
			ErrConfiguration, ModeContainment, ModeEquality, c.Matching.Mode)
	}
	if c.Matching.Cutoff <= 0 || c.Matching.Cutoff > 1 {
		return fmt.Errorf("%w: matching.cutoff must be in (0, 1], got %v", ErrConfiguration, c.Matching.Cutoff)
	}
	switch c.Tables.Backend {
	case "csv", "sqlite":
	default:
		return fmt.Errorf("%w: tables.backend must be csv or sqlite, got %q", ErrConfiguration, c.Tables.Backend)
	}
	switch strings.ToLower(c.Tables.Locale) {
	case "en", "ja":
	default:
		return fmt.Errorf("%w: tables.locale must be en or ja, got %q", ErrConfiguration, c.Tables.Locale)
	}
	return nil
}
