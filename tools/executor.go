package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/pkg/llmutils"
	"github.com/effective-security/opsdash/pkg/metricskey"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash", "tools")

// ResultSeparator joins the results of a batch.
const ResultSeparator = "\n\n"

// Executor runs the tool calls requested by the model.
type Executor struct {
	registry *Registry
	callback Callback
}

// NewExecutor returns the executor over the registry,
// callback is optional.
func NewExecutor(registry *Registry, callback Callback) *Executor {
	return &Executor{registry: registry, callback: callback}
}

// Registry returns the tools available to the executor.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs the calls sequentially, in order, and returns one result per call.
// A failing call never aborts the batch, its failure is reported as its result.
func (e *Executor) Execute(ctx context.Context, calls []llms.ToolCall) []string {
	results := make([]string, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.ExecuteOne(ctx, call))
	}
	return results
}

// ExecuteOne runs a single call and returns its text result.
func (e *Executor) ExecuteOne(ctx context.Context, call llms.ToolCall) string {
	name := call.Name
	args := ParseArguments(ctx, name, call.Arguments)

	tool, ok := e.registry.Get(name)
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		if e.callback != nil {
			e.callback.OnToolNotFound(ctx, name)
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_not_found",
			"tool", name,
		)
		return "Unknown tool: " + name
	}

	if e.callback != nil {
		e.callback.OnToolStart(ctx, tool, call.Arguments)
	}

	started := time.Now()
	res, err := tool.Call(ctx, args)
	metricskey.PerfToolCall.MeasureSince(started, tool.Name())

	if err != nil {
		if IsValidationError(err) {
			metricskey.StatsToolCallsInvalid.IncrCounter(1, tool.Name())
			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "invalid_arguments",
				"tool", tool.Name(),
				"err", err.Error(),
			)
			res = err.Error()
		} else {
			metricskey.StatsToolCallsFailed.IncrCounter(1, tool.Name())
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "tool_failed",
				"tool", tool.Name(),
				"err", err.Error(),
			)
			res = "Failed to execute " + tool.Name() + ": " + err.Error()
		}
		if e.callback != nil {
			e.callback.OnToolError(ctx, tool, call.Arguments, err)
		}
		return res
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, tool.Name())
	if e.callback != nil {
		e.callback.OnToolEnd(ctx, tool, call.Arguments, res)
	}
	return res
}

// ParseArguments decodes the raw arguments of a call.
// Empty or malformed arguments yield an empty map,
// the malformed ones are logged and counted.
func ParseArguments(ctx context.Context, tool, raw string) map[string]any {
	args := map[string]any{}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return args
	}

	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}
	// local models may wrap the object in text or code fences
	cleaned := llmutils.CleanJSON(llmutils.BytesTrimBackticks([]byte(raw)))
	parsed := map[string]any{}
	if err := json.Unmarshal(cleaned, &parsed); err == nil {
		return parsed
	}

	metricskey.StatsToolArgsMalformed.IncrCounter(1, tool)
	logger.ContextKV(ctx, xlog.WARNING,
		"status", "malformed_arguments",
		"tool", tool,
		"args", slices.StringUpto(raw, 128),
	)
	return map[string]any{}
}
