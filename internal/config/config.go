package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds everything the relay needs at startup. Values come from the
// environment (optionally a .env file) and can be overridden by flags.
type Config struct {
	Port        string
	Store       string
	DatabaseURL string
	LogLevel    string

	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	OpenAITemperature float32
	OpenAIMaxTokens   int
	ProviderTimeout   time.Duration
	SystemPrompt      string

	AdminToken string
	SiteURL    string
}

// Load reads .env if present and builds a Config from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from an arbitrary lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	c := &Config{
		Port:          envOr(getenv, "PORT", "8080"),
		Store:         envOr(getenv, "STORE", StorePostgres),
		DatabaseURL:   getenv("DATABASE_URL"),
		LogLevel:      envOr(getenv, "LOG_LEVEL", "info"),
		OpenAIAPIKey:  strings.TrimSpace(getenv("OPENAI_API_KEY")),
		OpenAIModel:   envOr(getenv, "OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: envOr(getenv, "OPENAI_BASE_URL", "https://api.openai.com/v1"),
		SystemPrompt:  getenv("SYSTEM_PROMPT"),
		AdminToken:    strings.TrimSpace(getenv("ADMIN_TOKEN")),
		SiteURL:       envOr(getenv, "SITE_URL", "http://localhost:8080"),

		OpenAITemperature: 0.7,
		OpenAIMaxTokens:   500,
		ProviderTimeout:   2 * time.Minute,
	}

	if v := getenv("OPENAI_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, errors.Wrap(err, "parse OPENAI_TEMPERATURE")
		}
		c.OpenAITemperature = float32(t)
	}
	if v := getenv("OPENAI_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, "parse OPENAI_MAX_TOKENS")
		}
		c.OpenAIMaxTokens = n
	}
	if v := getenv("PROVIDER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.Wrap(err, "parse PROVIDER_TIMEOUT")
		}
		c.ProviderTimeout = d
	}

	return c, nil
}

func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Port, "port", c.Port, "Port to listen on")
	fs.StringVar(&c.Store, "store", c.Store, "Conversation store backend: postgres or memory")
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "Postgres connection string")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.OpenAIModel, "model", c.OpenAIModel, "Chat completion model")
	fs.StringVar(&c.OpenAIBaseURL, "openai-base-url", c.OpenAIBaseURL, "Base URL of the OpenAI-compatible API")
	fs.Float32Var(&c.OpenAITemperature, "temperature", c.OpenAITemperature, "Sampling temperature")
	fs.IntVar(&c.OpenAIMaxTokens, "max-tokens", c.OpenAIMaxTokens, "Maximum completion tokens per reply")
	fs.DurationVar(&c.ProviderTimeout, "provider-timeout", c.ProviderTimeout, "Deadline for one streamed completion, 0 disables it")
	fs.StringVar(&c.SiteURL, "site-url", c.SiteURL, "Public site URL used in the sitemap")
}

func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is not set")
		}
	case StoreMemory:
	default:
		return errors.Errorf("unknown store %q", c.Store)
	}
	// go-openai omits a zero temperature from the request, the provider would
	// then silently apply its own default
	if c.OpenAITemperature <= 0 || c.OpenAITemperature > 2 {
		return errors.Errorf("temperature must be in (0, 2], got %v", c.OpenAITemperature)
	}
	if c.OpenAIMaxTokens <= 0 {
		return errors.Errorf("max tokens must be positive, got %d", c.OpenAIMaxTokens)
	}
	if c.ProviderTimeout < 0 {
		return errors.New("provider timeout must not be negative")
	}
	return nil
}

func envOr(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}
