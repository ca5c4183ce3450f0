package callbacks_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/assistants"
	"github.com/effective-security/opsdash/callbacks"
	"github.com/effective-security/opsdash/chatmodel"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/tools"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct{}

func (fakeModel) GetProviderType() llms.ProviderType { return llms.ProviderOpenAI }
func (fakeModel) GetName() string                    { return "gpt-4o-mini" }
func (fakeModel) GenerateContent(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

type noArgs struct{}

func newTool() tools.ITool {
	return tools.New("get_clients", "Get clients", func(context.Context, *noArgs) (string, error) {
		return "No clients found.", nil
	})
}

// emit sends one event of each kind.
func emit(cb assistants.Callback, ctx context.Context) {
	tool := newTool()
	cb.OnRunStart(ctx, "list clients")
	cb.OnLLMCallStart(ctx, fakeModel{}, []llms.Message{llms.UserMessage("list clients")})
	cb.OnLLMCallEnd(ctx, fakeModel{}, &llms.ContentResponse{Content: "ok", ToolCalls: []llms.ToolCall{{Name: "get_clients"}}})
	cb.OnToolStart(ctx, tool, "{}")
	cb.OnToolEnd(ctx, tool, "{}", "No clients found.")
	cb.OnToolStart(ctx, tool, "{}")
	cb.OnToolError(ctx, tool, "{}", errors.New("db down"))
	cb.OnToolNotFound(ctx, "get_weather")
	cb.OnRunEnd(ctx, &assistants.Result{RunID: "r1", Content: "No clients yet.", LLMCalls: 2, ToolCalls: []llms.ToolCall{{Name: "get_clients"}}})
	cb.OnRunError(ctx, "list clients", errors.New("test error"))
}

func TestPrinter(t *testing.T) {
	ctx := chatmodel.WithRunContext(context.Background(), chatmodel.NewRunContext("r1", "openai"))

	var buf bytes.Buffer
	emit(callbacks.NewPrinter(&buf, callbacks.ModeVerbose), ctx)

	res := buf.String()
	assert.Contains(t, res, "Run Start: r1\nInput: list clients\n")
	assert.Contains(t, res, "LLM Call: openai/gpt-4o-mini, 1 messages\n")
	assert.Contains(t, res, "LLM Call End: openai/gpt-4o-mini, 1 tool calls\n")
	assert.Contains(t, res, `Tool Calls: [{"name":"get_clients","arguments":""}]`)
	assert.Contains(t, res, "Tool Start: get_clients\nInput: {}\n")
	assert.Contains(t, res, "Tool End: get_clients\nOutput: No clients found.\n")
	assert.Contains(t, res, "Tool Error: get_clients: db down\n")
	assert.Contains(t, res, "Tool Not Found: get_weather\n")
	assert.Contains(t, res, "Run End: r1: 2 LLM calls, 1 tool calls\nNo clients yet.\n")
	assert.Contains(t, res, "Run Error: r1: test error\n")

	buf.Reset()
	emit(callbacks.NewPrinter(&buf, callbacks.ModeDefault), ctx)
	assert.NotContains(t, buf.String(), "Output:")
	assert.NotContains(t, buf.String(), "Tool Calls:")
	assert.NotContains(t, buf.String(), "No clients yet.")
}

func TestFanout(t *testing.T) {
	ctx := chatmodel.WithRunContext(context.Background(), chatmodel.NewRunContext("r2", "openai"))

	var buf1, buf2 bytes.Buffer
	fan := callbacks.NewFanout(callbacks.NewPrinter(&buf1, callbacks.ModeDefault))
	fan.Add(callbacks.NewPrinter(&buf2, callbacks.ModeDefault))
	fan.Add(callbacks.NewNoop())
	fan.Add(callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/opsdash", "callbacks_test")))

	emit(fan, ctx)
	assert.NotEmpty(t, buf1.String())
	assert.Equal(t, buf1.String(), buf2.String())
}

func TestStats(t *testing.T) {
	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := started
	callbacks.TimeNowFn = func() time.Time { return clock }
	defer func() { callbacks.TimeNowFn = time.Now }()

	stats := callbacks.NewStats()
	assert.Nil(t, stats.EndRun(context.Background()))

	// events without a run context are ignored
	emit(stats, context.Background())
	assert.Nil(t, stats.EndRun(context.Background()))

	ctx := chatmodel.WithRunContext(context.Background(), chatmodel.NewRunContext("r3", "openai"))
	tool := newTool()
	stats.OnRunStart(ctx, "list clients")
	stats.OnLLMCallStart(ctx, fakeModel{}, []llms.Message{llms.UserMessage("list clients")})
	stats.OnLLMCallEnd(ctx, fakeModel{}, &llms.ContentResponse{Content: "ok"})
	stats.OnToolStart(ctx, tool, "{}")
	stats.OnToolEnd(ctx, tool, "{}", "No clients found.")
	stats.OnToolStart(ctx, tool, "{}")
	stats.OnToolError(ctx, tool, "{}", errors.New("db down"))
	stats.OnToolNotFound(ctx, "get_weather")
	clock = started.Add(2 * time.Second)
	stats.OnRunEnd(ctx, &assistants.Result{RunID: "r3"})

	s := stats.EndRun(ctx)
	require.NotNil(t, s)
	assert.Equal(t, callbacks.RunStats{
		RunID:              "r3",
		Provider:           "openai",
		Duration:           2 * time.Second,
		LLMCalls:           1,
		LLMBytesOut:        12,
		LLMBytesIn:         2,
		ToolCalls:          2,
		ToolCallsSucceeded: 1,
		ToolCallsFailed:    1,
		ToolNotFound:       1,
	}, *s)
	assert.Nil(t, stats.EndRun(ctx))
}
