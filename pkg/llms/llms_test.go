package llms_test

import (
	"testing"

	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	tcases := []struct {
		in  string
		exp llms.ProviderType
		err string
	}{
		{in: "ollama", exp: llms.ProviderOllama},
		{in: "OpenAI", exp: llms.ProviderOpenAI},
		{in: " openai ", exp: llms.ProviderOpenAI},
		{in: "anthropic", err: `invalid provider. Must be "ollama" or "openai"`},
		{in: "", err: `invalid provider. Must be "ollama" or "openai"`},
	}
	for _, tc := range tcases {
		t.Run(tc.in, func(t *testing.T) {
			p, err := llms.ParseProvider(tc.in)
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.exp, p)
		})
	}

	assert.True(t, llms.ProviderOllama.IsLocal())
	assert.False(t, llms.ProviderOpenAI.IsLocal())
	assert.Equal(t, llms.ProviderOllama, llms.DefaultProvider)
}

func TestParseRole(t *testing.T) {
	r, err := llms.ParseRole("User")
	require.NoError(t, err)
	assert.Equal(t, llms.RoleUser, r)

	_, err = llms.ParseRole("tool")
	assert.EqualError(t, err, `"tool": unexpected role`)
}

func TestMessages(t *testing.T) {
	msgs := []llms.Message{
		llms.SystemMessage("sys"),
		llms.UserMessage("hello"),
		llms.AssistantMessage("hi"),
	}
	assert.Equal(t, llms.RoleSystem, msgs[0].Role)
	assert.Equal(t, llms.RoleUser, msgs[1].Role)
	assert.Equal(t, llms.RoleAssistant, msgs[2].Role)
	assert.Equal(t, uint64(10), llms.CountContentSize(msgs))

	var resp *llms.ContentResponse
	assert.False(t, resp.HasToolCalls())
	resp = &llms.ContentResponse{ToolCalls: []llms.ToolCall{{ID: "1", Name: "get_clients", Arguments: "{}"}}}
	assert.True(t, resp.HasToolCalls())
	assert.Equal(t, "ToolCall: 1 (get_clients), input: {}", resp.ToolCalls[0].String())
}

func TestCallOptions(t *testing.T) {
	tools := []llms.Tool{
		{Type: "function", Function: &llms.FunctionDefinition{Name: "get_clients"}},
	}
	opts := llms.NewCallOptions(
		llms.WithModel("llama3.1:8b"),
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(100),
		llms.WithTools(tools),
	)
	assert.Equal(t, "llama3.1:8b", opts.Model)
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, 100, opts.MaxTokens)
	assert.Equal(t, tools, opts.Tools)

	assert.Empty(t, llms.NewCallOptions().Tools)
}
