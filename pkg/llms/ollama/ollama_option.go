package ollama

import (
	"net/http"
	"time"
)

const (
	baseURLEnvVarName = "OLLAMA_BASE_URL"
	modelEnvVarName   = "OLLAMA_MODEL"
)

const (
	// DefaultBaseURL is the address of a local Ollama server.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is the model used when none is configured.
	DefaultModel = "llama3.1:8b"
	// DefaultTimeout is the chat timeout, loading a model on first use
	// can take a couple of minutes.
	DefaultTimeout = 180 * time.Second
	// DefaultPingTimeout is the timeout for listing models.
	DefaultPingTimeout = 5 * time.Second
)

type options struct {
	baseURL     string
	model       string
	timeout     time.Duration
	pingTimeout time.Duration
	httpClient  *http.Client
}

// Option is a functional option for the Ollama client.
type Option func(*options)

// WithBaseURL sets the server address. If not set, the address
// is read from the OLLAMA_BASE_URL environment variable, then DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithModel sets the model. If not set, the model
// is read from the OLLAMA_MODEL environment variable, then DefaultModel.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithTimeout sets the chat timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *options) {
		opts.timeout = timeout
	}
}

// WithPingTimeout sets the timeout used by Ping and ListModels.
func WithPingTimeout(timeout time.Duration) Option {
	return func(opts *options) {
		opts.pingTimeout = timeout
	}
}

// WithHTTPClient sets the HTTP client, its Timeout is overridden by WithTimeout.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}
