package assistants

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash", "assistants")

// DefaultMaxToolRounds is the number of tool rounds of a run.
// With one round a run makes at most two model calls.
const DefaultMaxToolRounds = 1

var (
	// ErrFirstResponse is returned when the first model call fails,
	// or returns neither content nor tool calls.
	// When the call failed, the error text is the provider message.
	ErrFirstResponse = errors.New("Failed to get AI response")
	// ErrFinalResponse is returned when the model call after the tool round fails.
	ErrFinalResponse = errors.New("Failed to get final response")
)

// State of a run.
type State int

// Run states
const (
	StateInit State = iota
	StateAwaitingFirstResponse
	StateAwaitingToolResults
	StateAwaitingFinalResponse
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingFirstResponse:
		return "awaiting_first_response"
	case StateAwaitingToolResults:
		return "awaiting_tool_results"
	case StateAwaitingFinalResponse:
		return "awaiting_final_response"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Result of a run.
type Result struct {
	RunID string `json:"run_id"`
	// Content is the final answer of the model.
	Content string `json:"content"`
	// Provider and Model that produced the answer.
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	// ToolCalls are the calls requested by the model, in order.
	ToolCalls []llms.ToolCall `json:"tool_calls,omitempty"`
	// ToolResults has one entry per tool call.
	ToolResults []string `json:"tool_results,omitempty"`
	// LLMCalls is the number of model calls made.
	LLMCalls int `json:"llm_calls"`
	// Rounds is the number of tool rounds executed.
	Rounds int `json:"rounds"`
}

// UsedTools returns true when the run executed tools.
func (r *Result) UsedTools() bool {
	return r.Rounds > 0
}

// Callback receives the events of a run.
type Callback interface {
	tools.Callback

	OnRunStart(ctx context.Context, input string)
	OnRunEnd(ctx context.Context, result *Result)
	OnRunError(ctx context.Context, input string, err error)
	OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message)
	OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse)
}
