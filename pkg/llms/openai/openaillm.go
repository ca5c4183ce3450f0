package openai

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/pkg/schema"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash/pkg/llms", "openai")

var (
	// ErrMissingAPIKey is returned before any request when no key is configured.
	ErrMissingAPIKey = errors.New("OpenAI API Key is missing. Please configure it in Settings.")
	// ErrEmptyResponse is returned when the OpenAI API returns no choices.
	ErrEmptyResponse = errors.New("empty response")
)

// APIError is an error reported by the OpenAI API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// LLM is the OpenAI chat backend.
type LLM struct {
	client oai.Client
	model  string
	token  string
}

var (
	_ llms.Model  = (*LLM)(nil)
	_ llms.Pinger = (*LLM)(nil)
)

// New returns the OpenAI backend.
// A missing token is not an error here, calls fail with ErrMissingAPIKey.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	token := values.StringsCoalesce(o.token, os.Getenv(tokenEnvVarName))
	clientOpts := []option.RequestOption{
		option.WithAPIKey(token),
		option.WithRequestTimeout(o.timeout),
		option.WithMaxRetries(0),
	}
	if baseURL := values.StringsCoalesce(o.baseURL, os.Getenv(baseURLEnvVarName)); baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(o.httpClient))
	}

	return &LLM{
		client: oai.NewClient(clientOpts...),
		model:  values.StringsCoalesce(o.model, os.Getenv(modelEnvVarName), DefaultModel),
		token:  token,
	}, nil
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GetName returns the configured model name.
func (o *LLM) GetName() string {
	return o.model
}

// HasToken returns true when an API key is configured.
func (o *LLM) HasToken() bool {
	return o.token != ""
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if o.token == "" {
		return nil, errors.WithStack(ErrMissingAPIKey)
	}
	opts := llms.NewCallOptions(options...)

	params := oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(values.StringsCoalesce(opts.Model, o.model)),
		Messages: toMessages(messages),
	}
	if opts.Temperature > 0 {
		params.Temperature = oai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = oai.Int(int64(opts.MaxTokens))
	}
	if len(opts.Tools) > 0 {
		tools, err := toTools(opts.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = mapError(err)
		logger.ContextKV(ctx, xlog.ERROR,
			"model", params.Model,
			"err", err.Error(),
		)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.WithStack(ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	res := &llms.ContentResponse{
		Content:    choice.Message.Content,
		Model:      resp.Model,
		StopReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		res.ToolCalls = append(res.ToolCalls, llms.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return res, nil
}

// Ping checks the key by listing the models.
func (o *LLM) Ping(ctx context.Context) error {
	if o.token == "" {
		return errors.WithStack(ErrMissingAPIKey)
	}
	_, err := o.client.Models.List(ctx)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func toMessages(messages []llms.Message) []oai.ChatCompletionMessageParamUnion {
	res := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llms.RoleSystem:
			res = append(res, oai.SystemMessage(m.Content))
		case llms.RoleAssistant:
			res = append(res, oai.AssistantMessage(m.Content))
		default:
			res = append(res, oai.UserMessage(m.Content))
		}
	}
	return res
}

func toTools(tools []llms.Tool) ([]oai.ChatCompletionToolUnionParam, error) {
	res := make([]oai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		params, err := schema.ToMap(t.Function.Parameters)
		if err != nil {
			return nil, errors.WithMessagef(err, "tool %s", t.Function.Name)
		}
		res = append(res, oai.ChatCompletionFunctionTool(oai.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: oai.String(t.Function.Description),
			Parameters:  oai.FunctionParameters(params),
		}))
	}
	return res, nil
}

// mapError surfaces the API message instead of the full request dump.
func mapError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = err.Error()
		}
		return &APIError{StatusCode: apiErr.StatusCode, Message: msg}
	}
	return err
}
