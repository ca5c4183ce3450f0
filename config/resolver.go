package config

import (
	"context"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash", "config")

// Setting keys persisted in the settings table.
const (
	KeyAIProvider        = "ai_provider"
	KeyOllamaBaseURL     = "ollama_base_url"
	KeyOllamaModel       = "ollama_model"
	KeyOpenAIAPIKey      = "openai_api_key" //nolint:gosec
	KeyOpenAIModel       = "openai_model"
	KeyOpenAIBaseURL     = "openai_base_url"
	KeyGoogleClientEmail = "google_client_email"
	KeyGooglePrivateKey  = "google_private_key" //nolint:gosec
	KeyGmailSenderEmail  = "gmail_sender_email"
	KeyClickUpToken      = "clickup_api_token" //nolint:gosec
	KeyClickUpSpaceID    = "clickup_space_id"
)

// Value sources, in order of precedence.
const (
	SourceSettings = "settings"
	SourceEnv      = "env"
	SourceConfig   = "config"
	SourceDefault  = "default"
)

var envNames = map[string]string{
	KeyAIProvider:        "AI_PROVIDER",
	KeyOllamaBaseURL:     "OLLAMA_BASE_URL",
	KeyOllamaModel:       "OLLAMA_MODEL",
	KeyOpenAIAPIKey:      "OPENAI_API_KEY",
	KeyOpenAIModel:       "OPENAI_MODEL",
	KeyOpenAIBaseURL:     "OPENAI_BASE_URL",
	KeyGoogleClientEmail: "GOOGLE_CLIENT_EMAIL",
	KeyGooglePrivateKey:  "GOOGLE_PRIVATE_KEY",
	KeyGmailSenderEmail:  "GMAIL_SENDER_EMAIL",
	KeyClickUpToken:      "CLICKUP_API_TOKEN",
	KeyClickUpSpaceID:    "CLICKUP_SPACE_ID",
}

var defaults = map[string]string{
	KeyAIProvider:    "ollama",
	KeyOllamaBaseURL: "http://localhost:11434",
	KeyOllamaModel:   "llama3.1:8b",
	KeyOpenAIModel:   "gpt-4o",
}

// EnvName returns the environment variable for the setting key.
func EnvName(key string) string {
	return envNames[key]
}

// SettingsReader provides the persisted settings.
type SettingsReader interface {
	GetSettings(ctx context.Context) (map[string]string, error)
}

// Resolver resolves configuration values with precedence
// settings row > environment > config file > default.
type Resolver struct {
	settings SettingsReader
	cfg      *Config
	getenv   func(string) string
}

// NewResolver returns the resolver, settings may be nil.
func NewResolver(settings SettingsReader, cfg *Config) *Resolver {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Resolver{
		settings: settings,
		cfg:      cfg,
		getenv:   os.Getenv,
	}
}

// Config returns the static configuration.
func (r *Resolver) Config() *Config {
	return r.cfg
}

// Snapshot reads the settings table once.
// Callers take one snapshot per request, so changes apply on the next request.
// A failed read falls back to the environment and the config file.
func (r *Resolver) Snapshot(ctx context.Context) *Values {
	v := &Values{
		getenv: r.getenv,
		static: r.staticValues(),
	}
	if r.settings != nil {
		settings, err := r.settings.GetSettings(ctx)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "settings_unavailable",
				"err", err.Error(),
			)
		}
		v.settings = settings
	}
	return v
}

func (r *Resolver) staticValues() map[string]string {
	c := r.cfg
	return map[string]string{
		KeyAIProvider:        c.AI.Provider,
		KeyOllamaBaseURL:     c.AI.Ollama.BaseURL,
		KeyOllamaModel:       c.AI.Ollama.Model,
		KeyOpenAIAPIKey:      c.AI.OpenAI.APIKey,
		KeyOpenAIModel:       c.AI.OpenAI.Model,
		KeyOpenAIBaseURL:     c.AI.OpenAI.BaseURL,
		KeyGoogleClientEmail: c.Google.ClientEmail,
		KeyGooglePrivateKey:  c.Google.PrivateKey,
		KeyGmailSenderEmail:  c.Google.SenderEmail,
		KeyClickUpToken:      c.ClickUp.Token,
		KeyClickUpSpaceID:    c.ClickUp.SpaceID,
	}
}

// Values is a point in time view of the configuration.
type Values struct {
	settings map[string]string
	static   map[string]string
	getenv   func(string) string
}

// Get returns the value for the key.
func (v *Values) Get(key string) string {
	val, _ := v.Lookup(key)
	return val
}

// Lookup returns the value for the key and its source,
// the source is empty when the key has no value.
func (v *Values) Lookup(key string) (string, string) {
	if val := strings.TrimSpace(v.settings[key]); val != "" {
		return val, SourceSettings
	}
	if name := envNames[key]; name != "" && v.getenv != nil {
		if val := strings.TrimSpace(v.getenv(name)); val != "" {
			return val, SourceEnv
		}
	}
	if val := strings.TrimSpace(v.static[key]); val != "" {
		return val, SourceConfig
	}
	if val := defaults[key]; val != "" {
		return val, SourceDefault
	}
	return "", ""
}

// Setting returns the persisted value only.
func (v *Values) Setting(key string) string {
	return v.settings[key]
}

// SettingKeys returns the sorted keys of the persisted settings.
func (v *Values) SettingKeys() []string {
	return slices.Sorted(maps.Keys(v.settings))
}
