package llmfactory

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/config"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/pkg/llms/ollama"
	"github.com/effective-security/opsdash/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash/pkg", "llmfactory")

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

// LocalConfig is the configuration of the self-hosted provider.
type LocalConfig struct {
	BaseURL string
	Model   string
}

// CloudCredentials is the configuration of the cloud provider.
type CloudCredentials struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Provider is the selected backend, exactly one of Local or Cloud is set
// according to Type.
type Provider struct {
	Type  llms.ProviderType
	Local *LocalConfig
	Cloud *CloudCredentials
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	if p.Cloud != nil {
		return p.Cloud.Model
	}
	if p.Local != nil {
		return p.Local.Model
	}
	return ""
}

// Resolve returns the provider for the request.
// An explicit but unknown requested provider is an error,
// an unknown stored value falls back to the default provider.
func Resolve(requested string, v *config.Values) (*Provider, error) {
	var typ llms.ProviderType
	if requested != "" {
		t, err := llms.ParseProvider(requested)
		if err != nil {
			return nil, err
		}
		typ = t
	} else {
		name, src := v.Lookup(config.KeyAIProvider)
		t, err := llms.ParseProvider(name)
		if err != nil {
			logger.KV(xlog.WARNING,
				"reason", "invalid_provider",
				"provider", name,
				"source", src,
			)
			t = llms.DefaultProvider
		}
		typ = t
	}

	p := &Provider{Type: typ}
	switch typ {
	case llms.ProviderOpenAI:
		p.Cloud = &CloudCredentials{
			APIKey:  v.Get(config.KeyOpenAIAPIKey),
			Model:   v.Get(config.KeyOpenAIModel),
			BaseURL: v.Get(config.KeyOpenAIBaseURL),
		}
	default:
		p.Local = &LocalConfig{
			BaseURL: v.Get(config.KeyOllamaBaseURL),
			Model:   v.Get(config.KeyOllamaModel),
		}
	}
	return p, nil
}

// CreateLLM builds the model of the provider.
func CreateLLM(p *Provider) (llms.Model, error) {
	switch p.Type {
	case llms.ProviderOpenAI:
		if p.Cloud == nil {
			return nil, errors.New("cloud credentials are not set")
		}
		opts := []openai.Option{
			openai.WithToken(p.Cloud.APIKey),
			openai.WithModel(p.Cloud.Model),
		}
		if p.Cloud.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.Cloud.BaseURL))
		}
		return openai.New(opts...)
	case llms.ProviderOllama:
		if p.Local == nil {
			return nil, errors.New("local provider is not configured")
		}
		return ollama.New(
			ollama.WithBaseURL(p.Local.BaseURL),
			ollama.WithModel(p.Local.Model),
		)
	}
	return nil, errors.Errorf("unsupported provider type: %s", p.Type)
}

// Factory builds the model for a request.
type Factory interface {
	// Model returns the model of the requested provider,
	// or the configured one when requested is empty.
	Model(ctx context.Context, requested string) (llms.Model, *Provider, error)
}

type factory struct {
	resolver *config.Resolver
}

// New creates a new LLM factory
func New(resolver *config.Resolver) Factory {
	return &factory{resolver: resolver}
}

func (f *factory) Model(ctx context.Context, requested string) (llms.Model, *Provider, error) {
	p, err := Resolve(requested, f.resolver.Snapshot(ctx))
	if err != nil {
		return nil, nil, err
	}
	model, err := NewLLM(p)
	if err != nil {
		return nil, nil, err
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"provider", p.Type,
		"model", model.GetName(),
	)
	return model, p, nil
}
