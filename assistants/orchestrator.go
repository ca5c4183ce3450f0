package assistants

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/chatmodel"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/pkg/llmutils"
	"github.com/effective-security/opsdash/pkg/metricskey"
	"github.com/effective-security/opsdash/pkg/prompts"
	"github.com/effective-security/opsdash/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// Orchestrator runs the chat requests against a model with the registered tools.
// It keeps no state between runs and is safe for concurrent use.
type Orchestrator struct {
	cfg      *Config
	executor *tools.Executor
}

// New returns the orchestrator over the tools.
func New(registry *tools.Registry, opts ...Option) *Orchestrator {
	cfg := NewConfig(opts...)
	var cb tools.Callback
	if cfg.Callback != nil {
		cb = cfg.Callback
	}
	return &Orchestrator{
		cfg:      cfg,
		executor: tools.NewExecutor(registry, cb),
	}
}

// Registry returns the tools offered to the model.
func (o *Orchestrator) Registry() *tools.Registry {
	return o.executor.Registry()
}

// SystemPrompt returns the instructions sent as the first message.
func (o *Orchestrator) SystemPrompt() (string, error) {
	return prompts.System(prompts.SystemData{
		Now:   o.cfg.Now().In(o.cfg.Location),
		Tools: o.Registry().Names(),
	})
}

// ToolResultsMessage returns the message that carries the tool results to the model.
func ToolResultsMessage(results []string) llms.Message {
	return llms.UserMessage("Tool results:\n" +
		strings.Join(results, tools.ResultSeparator) +
		"\n\nPlease provide a helpful response based on these results.")
}

// run is the state of a single Run call.
type run struct {
	state    State
	messages []llms.Message
	pending  *llms.ContentResponse
	result   *Result
}

// Run answers the conversation. The messages are sent after the system prompt, in order.
func (o *Orchestrator) Run(ctx context.Context, model llms.Model, messages []llms.Message) (*Result, error) {
	provider := model.GetProviderType().String()
	ctx, rc := chatmodel.EnsureRunContext(ctx, provider)

	started := time.Now()
	defer metricskey.PerfChatRun.MeasureSince(started, provider)

	input := llmutils.LastUserMessage(messages)
	cb := o.cfg.Callback
	if cb != nil {
		cb.OnRunStart(ctx, input)
	}

	res, err := o.run(ctx, model, rc.RunID(), messages)
	if err != nil {
		metricskey.StatsChatRunsFailed.IncrCounter(1, provider)
		if cb != nil {
			cb.OnRunError(ctx, input, err)
		}
		logger.ContextKV(ctx, xlog.ERROR,
			"run_id", rc.RunID(),
			"provider", provider,
			"input", slices.StringUpto(input, 64),
			"err", err.Error(),
		)
		return nil, err
	}

	metricskey.StatsChatRunsSucceeded.IncrCounter(1, provider)
	if cb != nil {
		cb.OnRunEnd(ctx, res)
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"run_id", rc.RunID(),
		"provider", provider,
		"llm_calls", res.LLMCalls,
		"rounds", res.Rounds,
		"tool_calls", len(res.ToolCalls),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, model llms.Model, runID string, messages []llms.Message) (*Result, error) {
	r := &run{
		state: StateInit,
		result: &Result{
			RunID:    runID,
			Provider: model.GetProviderType().String(),
		},
	}

	for {
		switch r.state {
		case StateInit:
			sys, err := o.SystemPrompt()
			if err != nil {
				return nil, err
			}
			r.messages = make([]llms.Message, 0, len(messages)+3)
			r.messages = append(r.messages, llms.SystemMessage(sys))
			r.messages = append(r.messages, messages...)
			r.state = StateAwaitingFirstResponse

		case StateAwaitingFirstResponse:
			resp, err := o.call(ctx, model, r, true)
			if err != nil {
				return nil, errors.Mark(err, ErrFirstResponse)
			}
			if resp.Content == "" && !resp.HasToolCalls() {
				return nil, errors.WithStack(ErrFirstResponse)
			}
			r.next(resp)

		case StateAwaitingToolResults:
			results := o.executor.Execute(ctx, r.pending.ToolCalls)
			r.result.ToolCalls = append(r.result.ToolCalls, r.pending.ToolCalls...)
			r.result.ToolResults = append(r.result.ToolResults, results...)
			r.result.Rounds++

			r.messages = append(r.messages,
				llms.AssistantMessage(r.pending.Content),
				ToolResultsMessage(results),
			)
			r.pending = nil
			r.state = StateAwaitingFinalResponse

		case StateAwaitingFinalResponse:
			offerTools := r.result.Rounds < o.cfg.MaxToolRounds
			resp, err := o.call(ctx, model, r, offerTools)
			if err != nil {
				return nil, errors.WithSecondaryError(errors.WithStack(ErrFinalResponse), err)
			}
			if !offerTools {
				resp.ToolCalls = nil
			}
			if resp.Content == "" && !resp.HasToolCalls() {
				return nil, errors.WithStack(ErrFinalResponse)
			}
			r.next(resp)

		case StateDone:
			return r.result, nil
		}
	}
}

// next moves to the tool round when the model requested tools,
// otherwise the response is final.
func (r *run) next(resp *llms.ContentResponse) {
	if resp.HasToolCalls() {
		r.pending = resp
		r.state = StateAwaitingToolResults
		return
	}
	r.result.Content = resp.Content
	r.result.Model = resp.Model
	r.state = StateDone
}

func (o *Orchestrator) call(ctx context.Context, model llms.Model, r *run, withTools bool) (*llms.ContentResponse, error) {
	provider := model.GetProviderType().String()
	modelName := model.GetName()

	opts := append([]llms.CallOption{}, o.cfg.CallOptions...)
	if withTools && o.Registry().Len() > 0 {
		opts = append(opts, llms.WithTools(o.Registry().Definitions()))
	}

	cb := o.cfg.Callback
	if cb != nil {
		cb.OnLLMCallStart(ctx, model, r.messages)
	}

	bytesSent := llms.CountContentSize(r.messages)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(r.messages)), provider, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), provider, modelName)

	started := time.Now()
	r.result.LLMCalls++
	resp, err := model.GenerateContent(ctx, r.messages, opts...)
	metricskey.PerfLLMCall.MeasureSince(started, provider, modelName)
	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, provider, modelName)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "llm_call_failed",
			"state", r.state.String(),
			"provider", provider,
			"model", modelName,
			"err", err.Error(),
		)
		return nil, err
	}
	if resp == nil {
		resp = &llms.ContentResponse{}
	}

	metricskey.StatsLLMBytesReceived.IncrCounter(float64(len(resp.Content)), provider, modelName)
	if cb != nil {
		cb.OnLLMCallEnd(ctx, model, resp)
	}
	return resp, nil
}
