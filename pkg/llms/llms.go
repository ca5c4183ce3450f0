package llms

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderOllama is the local, self-hosted provider.
	ProviderOllama ProviderType = "ollama"
	// ProviderOpenAI is the cloud provider.
	ProviderOpenAI ProviderType = "openai"
)

// DefaultProvider is used when neither the request, the settings
// nor the environment name a provider.
const DefaultProvider = ProviderOllama

// ErrUnsupportedProvider is returned for unknown provider names.
var ErrUnsupportedProvider = errors.New("invalid provider. Must be \"ollama\" or \"openai\"")

// ParseProvider returns the provider type for the name,
// the match is case insensitive.
func ParseProvider(name string) (ProviderType, error) {
	switch ProviderType(strings.ToLower(strings.TrimSpace(name))) {
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	}
	return "", errors.WithStack(ErrUnsupportedProvider)
}

// IsLocal returns true for self-hosted providers.
func (p ProviderType) IsLocal() bool {
	return p == ProviderOllama
}

func (p ProviderType) String() string {
	return string(p)
}

//go:generate mockgen -destination=../../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/effective-security/opsdash/pkg/llms Model

// Model is the uniform chat capability both backends implement.
type Model interface {
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GetName returns the model name used by the provider.
	GetName() string
	// GenerateContent sends the ordered messages, and the tool definitions
	// when WithTools is given, and returns the first choice of the model.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Pinger is implemented by models that can check connectivity
// without generating content.
type Pinger interface {
	Ping(ctx context.Context) error
}
