package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
)

// Config of the service
type Config struct {
	// ListenURL is the address the HTTP server binds to.
	ListenURL string `json:"listen_url" yaml:"listen_url"`
	// PublicURL is used to build the OAuth redirect URL.
	PublicURL string `json:"public_url" yaml:"public_url"`
	// LogLevel is one of TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR|CRITICAL.
	LogLevel string `json:"log_level" yaml:"log_level"`
	// Timezone is the IANA name used to interpret dates given to the assistant,
	// the local zone when empty.
	Timezone string `json:"timezone" yaml:"timezone"`

	Database DatabaseConfig `json:"database" yaml:"database"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Google   GoogleConfig   `json:"google" yaml:"google"`
	ClickUp  ClickUpConfig  `json:"clickup" yaml:"clickup"`
	AI       AIConfig       `json:"ai" yaml:"ai"`
}

// DatabaseConfig for Postgres
type DatabaseConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
	// Migrate applies the schema migrations at start.
	Migrate bool `json:"migrate" yaml:"migrate"`
	// MaxOpenConns limits the pool, 10 when not set.
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`
}

// RedisConfig for the token store.
// When URL is empty, tokens are stored in Google.TokenFile.
type RedisConfig struct {
	URL    string `json:"url" yaml:"url"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

// GoogleConfig specifies the OAuth client and the service account fallback
type GoogleConfig struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	RedirectURL  string `json:"redirect_url" yaml:"redirect_url"`
	TokenFile    string `json:"token_file" yaml:"token_file"`
	CalendarID   string `json:"calendar_id" yaml:"calendar_id"`
	ClientEmail  string `json:"client_email" yaml:"client_email"`
	PrivateKey   string `json:"private_key" yaml:"private_key"`
	SenderEmail  string `json:"sender_email" yaml:"sender_email"`
}

// ClickUpConfig for the task tracker
type ClickUpConfig struct {
	Token   string `json:"token" yaml:"token"`
	SpaceID string `json:"space_id" yaml:"space_id"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// AIConfig specifies the assistant defaults,
// persisted settings take precedence.
type AIConfig struct {
	Provider      string       `json:"provider" yaml:"provider"`
	MaxToolRounds int          `json:"max_tool_rounds" yaml:"max_tool_rounds"`
	Ollama        OllamaConfig `json:"ollama" yaml:"ollama"`
	OpenAI        OpenAIConfig `json:"openai" yaml:"openai"`
}

// OllamaConfig for the local provider
type OllamaConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
}

// OpenAIConfig for the cloud provider
type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

const (
	DefaultListenURL   = ":3000"
	DefaultPublicURL   = "http://localhost:3000"
	DefaultTokenFile   = ".google_tokens.json"
	DefaultCalendarID  = "primary"
	DefaultRedisPrefix = "opsdash"
)

// Load returns the configuration from file,
// the environment variables in values are expanded.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config: %s", file)
		}
	}
	cfg.applyDefaults()
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.ListenURL = values.StringsCoalesce(c.ListenURL, DefaultListenURL)
	c.PublicURL = values.StringsCoalesce(c.PublicURL, DefaultPublicURL)
	c.LogLevel = values.StringsCoalesce(c.LogLevel, "INFO")
	c.Database.MaxOpenConns = values.NumbersCoalesce(c.Database.MaxOpenConns, 10)
	c.Redis.Prefix = values.StringsCoalesce(c.Redis.Prefix, DefaultRedisPrefix)
	c.Google.TokenFile = values.StringsCoalesce(c.Google.TokenFile, DefaultTokenFile)
	c.Google.CalendarID = values.StringsCoalesce(c.Google.CalendarID, DefaultCalendarID)
	c.Google.RedirectURL = values.StringsCoalesce(c.Google.RedirectURL, c.PublicURL+"/api/auth/google/callback")
	c.AI.MaxToolRounds = values.NumbersCoalesce(c.AI.MaxToolRounds, 1)
}

// Location returns the time zone for dates given by users.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timezone: %s", c.Timezone)
	}
	return loc, nil
}
