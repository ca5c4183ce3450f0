package ollama

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/ollama/ollama/api"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash/pkg/llms", "ollama")

var (
	// ErrModelLoading is returned when the server does not answer in time.
	ErrModelLoading = errors.New("Ollama timed out. The model might be loading into memory (this can take 1-2 mins first time). Please try again.")
	// ErrServiceNotRunning is returned when the server refuses the connection.
	ErrServiceNotRunning = errors.New("Cannot connect to Ollama. Make sure Docker is running and Ollama container is started.")
)

// LLM is the Ollama chat backend.
type LLM struct {
	client     *api.Client
	pingClient *api.Client
	baseURL    string
	model      string
}

var (
	_ llms.Model  = (*LLM)(nil)
	_ llms.Pinger = (*LLM)(nil)
)

// New returns the Ollama backend.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		timeout:     DefaultTimeout,
		pingTimeout: DefaultPingTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	baseURL := values.StringsCoalesce(o.baseURL, os.Getenv(baseURLEnvVarName), DefaultBaseURL)
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid Ollama URL: %s", baseURL)
	}

	chatHTTP := &http.Client{Timeout: o.timeout}
	pingHTTP := &http.Client{Timeout: o.pingTimeout}
	if o.httpClient != nil {
		chatHTTP.Transport = o.httpClient.Transport
		pingHTTP.Transport = o.httpClient.Transport
	}

	return &LLM{
		client:     api.NewClient(u, chatHTTP),
		pingClient: api.NewClient(u, pingHTTP),
		baseURL:    u.String(),
		model:      values.StringsCoalesce(o.model, os.Getenv(modelEnvVarName), DefaultModel),
	}, nil
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOllama
}

// GetName returns the configured model name.
func (o *LLM) GetName() string {
	return o.model
}

// BaseURL returns the server address.
func (o *LLM) BaseURL() string {
	return o.baseURL
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)

	stream := false
	req := &api.ChatRequest{
		Model:    values.StringsCoalesce(opts.Model, o.model),
		Messages: make([]api.Message, 0, len(messages)),
		Stream:   &stream,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	if len(opts.Tools) > 0 {
		tools, err := toTools(opts.Tools)
		if err != nil {
			return nil, err
		}
		req.Tools = tools
	}
	if opts.Temperature > 0 || opts.MaxTokens > 0 {
		req.Options = map[string]any{}
		if opts.Temperature > 0 {
			req.Options["temperature"] = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			req.Options["num_predict"] = opts.MaxTokens
		}
	}

	res := &llms.ContentResponse{Model: req.Model}
	var content strings.Builder
	err := o.client.Chat(ctx, req, func(r api.ChatResponse) error {
		content.WriteString(r.Message.Content)
		for _, tc := range r.Message.ToolCalls {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				return errors.Wrapf(err, "failed to encode arguments of %s", tc.Function.Name)
			}
			res.ToolCalls = append(res.ToolCalls, llms.ToolCall{
				Name:      tc.Function.Name,
				Arguments: string(args),
			})
		}
		if r.Done {
			res.StopReason = r.DoneReason
			if r.Model != "" {
				res.Model = r.Model
			}
		}
		return nil
	})
	if err != nil {
		err = mapError(err)
		logger.ContextKV(ctx, xlog.ERROR,
			"model", req.Model,
			"err", err.Error(),
		)
		return nil, err
	}
	res.Content = content.String()
	return res, nil
}

// Generate sends a single prompt to /api/generate.
func (o *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
	}
	var res strings.Builder
	err := o.client.Generate(ctx, req, func(r api.GenerateResponse) error {
		res.WriteString(r.Response)
		return nil
	})
	if err != nil {
		return "", mapError(err)
	}
	return res.String(), nil
}

// ListModels returns the names of the installed models.
func (o *LLM) ListModels(ctx context.Context) ([]string, error) {
	list, err := o.pingClient.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping checks that the server is reachable.
func (o *LLM) Ping(ctx context.Context) error {
	_, err := o.ListModels(ctx)
	return err
}

// IsModelAvailable returns true if the model is installed,
// the tag may be omitted.
func (o *LLM) IsModelAvailable(ctx context.Context, model string) (bool, error) {
	names, err := o.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == model || strings.HasPrefix(name, model+":") {
			return true, nil
		}
	}
	return false, nil
}

// toTools converts the definitions through their wire form,
// both sides use the same function calling schema.
func toTools(tools []llms.Tool) (api.Tools, error) {
	js, err := json.Marshal(tools)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode tools")
	}
	var res api.Tools
	if err = json.Unmarshal(js, &res); err != nil {
		return nil, errors.Wrap(err, "failed to decode tools")
	}
	return res, nil
}

// mapError converts connectivity failures to actionable errors,
// everything else is returned as is.
func mapError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return errors.WithStack(ErrModelLoading)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return errors.WithStack(ErrServiceNotRunning)
	}
	return err
}
