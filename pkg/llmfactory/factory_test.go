package llmfactory_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/config"
	"github.com/effective-security/opsdash/pkg/llmfactory"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/pkg/llms/ollama"
	"github.com/effective-security/opsdash/pkg/llms/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings map[string]string

func (s fakeSettings) GetSettings(_ context.Context) (map[string]string, error) {
	return s, nil
}

type fakeLLM struct {
	provider llms.ProviderType
	model    string
}

func (f *fakeLLM) GetProviderType() llms.ProviderType { return f.provider }
func (f *fakeLLM) GetName() string                    { return f.model }
func (f *fakeLLM) GenerateContent(_ context.Context, _ []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Content: "ok"}, nil
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		config.KeyAIProvider,
		config.KeyOllamaBaseURL,
		config.KeyOllamaModel,
		config.KeyOpenAIAPIKey,
		config.KeyOpenAIModel,
		config.KeyOpenAIBaseURL,
	} {
		t.Setenv(config.EnvName(key), "")
	}
}

func TestResolve(t *testing.T) {
	clearEnv(t)
	ctx := context.Background()

	t.Run("default", func(t *testing.T) {
		v := config.NewResolver(nil, nil).Snapshot(ctx)
		p, err := llmfactory.Resolve("", v)
		require.NoError(t, err)
		assert.Equal(t, llms.ProviderOllama, p.Type)
		require.NotNil(t, p.Local)
		assert.Nil(t, p.Cloud)
		assert.Equal(t, "http://localhost:11434", p.Local.BaseURL)
		assert.Equal(t, "llama3.1:8b", p.Model())
	})

	t.Run("settings", func(t *testing.T) {
		v := config.NewResolver(fakeSettings{
			config.KeyAIProvider:   "openai",
			config.KeyOpenAIAPIKey: "sk-settings",
		}, nil).Snapshot(ctx)
		p, err := llmfactory.Resolve("", v)
		require.NoError(t, err)
		assert.Equal(t, llms.ProviderOpenAI, p.Type)
		require.NotNil(t, p.Cloud)
		assert.Nil(t, p.Local)
		assert.Equal(t, "sk-settings", p.Cloud.APIKey)
		assert.Equal(t, "gpt-4o", p.Model())
	})

	t.Run("request_overrides_settings", func(t *testing.T) {
		v := config.NewResolver(fakeSettings{
			config.KeyAIProvider: "openai",
		}, nil).Snapshot(ctx)
		p, err := llmfactory.Resolve("ollama", v)
		require.NoError(t, err)
		assert.Equal(t, llms.ProviderOllama, p.Type)
	})

	t.Run("settings_override_env", func(t *testing.T) {
		t.Setenv("AI_PROVIDER", "openai")
		t.Setenv("OLLAMA_MODEL", "mistral")

		v := config.NewResolver(fakeSettings{
			config.KeyAIProvider: "ollama",
		}, nil).Snapshot(ctx)
		p, err := llmfactory.Resolve("", v)
		require.NoError(t, err)
		assert.Equal(t, llms.ProviderOllama, p.Type)
		assert.Equal(t, "mistral", p.Model())
	})

	t.Run("env_overrides_config", func(t *testing.T) {
		t.Setenv("AI_PROVIDER", "openai")
		cfg := &config.Config{}
		cfg.AI.Provider = "ollama"
		cfg.AI.OpenAI.Model = "gpt-4o-mini"

		p, err := llmfactory.Resolve("", config.NewResolver(nil, cfg).Snapshot(ctx))
		require.NoError(t, err)
		assert.Equal(t, llms.ProviderOpenAI, p.Type)
		assert.Equal(t, "gpt-4o-mini", p.Model())
	})

	t.Run("invalid_request", func(t *testing.T) {
		v := config.NewResolver(nil, nil).Snapshot(ctx)
		_, err := llmfactory.Resolve("anthropic", v)
		require.Error(t, err)
		assert.True(t, errors.Is(err, llms.ErrUnsupportedProvider))
	})

	t.Run("invalid_stored", func(t *testing.T) {
		v := config.NewResolver(fakeSettings{
			config.KeyAIProvider: "bedrock",
		}, nil).Snapshot(ctx)
		p, err := llmfactory.Resolve("", v)
		require.NoError(t, err)
		assert.Equal(t, llms.ProviderOllama, p.Type)
	})
}

func TestCreateLLM(t *testing.T) {
	clearEnv(t)

	m, err := llmfactory.CreateLLM(&llmfactory.Provider{
		Type:  llms.ProviderOllama,
		Local: &llmfactory.LocalConfig{BaseURL: "http://ollama:11434/", Model: "qwen2.5"},
	})
	require.NoError(t, err)
	ol, ok := m.(*ollama.LLM)
	require.True(t, ok)
	assert.Equal(t, "qwen2.5", ol.GetName())
	assert.Equal(t, "http://ollama:11434", ol.BaseURL())

	m, err = llmfactory.CreateLLM(&llmfactory.Provider{
		Type:  llms.ProviderOpenAI,
		Cloud: &llmfactory.CloudCredentials{APIKey: "sk-test", Model: "gpt-4o-mini"},
	})
	require.NoError(t, err)
	oa, ok := m.(*openai.LLM)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", oa.GetName())
	assert.True(t, oa.HasToken())

	_, err = llmfactory.CreateLLM(&llmfactory.Provider{Type: llms.ProviderOpenAI})
	assert.EqualError(t, err, "cloud credentials are not set")

	_, err = llmfactory.CreateLLM(&llmfactory.Provider{Type: "bedrock"})
	assert.EqualError(t, err, "unsupported provider type: bedrock")
}

func TestFactory(t *testing.T) {
	clearEnv(t)

	llmfactory.NewLLM = func(p *llmfactory.Provider) (llms.Model, error) {
		return &fakeLLM{provider: p.Type, model: p.Model()}, nil
	}
	defer func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	}()

	settings := fakeSettings{
		config.KeyAIProvider:  "openai",
		config.KeyOpenAIModel: "gpt-4.1",
	}
	f := llmfactory.New(config.NewResolver(settings, nil))

	model, p, err := f.Model(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderOpenAI, p.Type)
	fm := model.(*fakeLLM)
	assert.Equal(t, "gpt-4.1", fm.model)

	// settings are read on every call
	settings[config.KeyAIProvider] = "ollama"
	model, p, err = f.Model(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderOllama, p.Type)
	assert.Equal(t, "llama3.1:8b", model.GetName())

	model, _, err = f.Model(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderOpenAI, model.GetProviderType())

	_, _, err = f.Model(context.Background(), "claude")
	assert.EqualError(t, err, `invalid provider. Must be "ollama" or "openai"`)
}
