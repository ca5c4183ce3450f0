package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/opsdash/assistants"
	"github.com/effective-security/opsdash/chatmodel"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/pkg/llmutils"
	"github.com/effective-security/opsdash/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ assistants.Callback = (*Noop)(nil)
	_ assistants.Callback = (*Printer)(nil)
	_ assistants.Callback = (*PackageLogger)(nil)
	_ assistants.Callback = (*Fanout)(nil)
	_ assistants.Callback = (*Stats)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []assistants.Callback
}

func NewFanout(callbacks ...assistants.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback assistants.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnRunStart(ctx context.Context, input string) {
	for _, cb := range l.callbacks {
		cb.OnRunStart(ctx, input)
	}
}

func (l *Fanout) OnRunEnd(ctx context.Context, result *assistants.Result) {
	for _, cb := range l.callbacks {
		cb.OnRunEnd(ctx, result)
	}
}

func (l *Fanout) OnRunError(ctx context.Context, input string, err error) {
	for _, cb := range l.callbacks {
		cb.OnRunError(ctx, input, err)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	for _, cb := range l.callbacks {
		cb.OnLLMCallStart(ctx, llm, messages)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	for _, cb := range l.callbacks {
		cb.OnLLMCallEnd(ctx, llm, resp)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	for _, cb := range l.callbacks {
		cb.OnToolStart(ctx, tool, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	for _, cb := range l.callbacks {
		cb.OnToolEnd(ctx, tool, input, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	for _, cb := range l.callbacks {
		cb.OnToolError(ctx, tool, input, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, tool string) {
	for _, cb := range l.callbacks {
		cb.OnToolNotFound(ctx, tool)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnRunStart(ctx context.Context, input string)                    {}
func (l *Noop) OnRunEnd(ctx context.Context, result *assistants.Result)         {}
func (l *Noop) OnRunError(ctx context.Context, input string, err error)         {}
func (l *Noop) OnToolStart(ctx context.Context, tool tools.ITool, input string) {}
func (l *Noop) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
}
func (l *Noop) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {}
func (l *Noop) OnToolNotFound(ctx context.Context, tool string)                            {}
func (l *Noop) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
}
func (l *Noop) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnRunStart(ctx context.Context, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Run Start: %s\n", chatmodel.GetRunID(ctx))
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnRunEnd(ctx context.Context, result *assistants.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Run End: %s: %d LLM calls, %d tool calls\n", result.RunID, result.LLMCalls, len(result.ToolCalls))
	if l.Mode == ModeVerbose && result.Content != "" {
		fmt.Fprintln(l.Out, result.Content)
	}
}

func (l *Printer) OnRunError(ctx context.Context, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Run Error: %s: %s\n", chatmodel.GetRunID(ctx), err.Error())
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s\n", tool.Name())
	fmt.Fprintf(l.Out, "Input: %s\n", llmutils.OneLine(input))
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s\n", tool.Name())
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s: %s\n", tool.Name(), err.Error())
}

func (l *Printer) OnToolNotFound(ctx context.Context, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", tool)
}

func (l *Printer) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s/%s, %d messages\n", llm.GetProviderType(), llm.GetName(), len(messages))
}

func (l *Printer) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call End: %s/%s, %d tool calls\n", llm.GetProviderType(), llm.GetName(), len(resp.ToolCalls))
	if l.Mode == ModeVerbose && len(resp.ToolCalls) > 0 {
		fmt.Fprintf(l.Out, "Tool Calls: %s\n", llmutils.ToJSON(resp.ToolCalls))
	}
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnRunStart(ctx context.Context, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "run_start",
		"run_id", chatmodel.GetRunID(ctx),
		"input", slices.StringUpto(input, 256),
	)
}

func (l *PackageLogger) OnRunEnd(ctx context.Context, result *assistants.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "run_end",
		"run_id", result.RunID,
		"provider", result.Provider,
		"llm_calls", result.LLMCalls,
		"tool_calls", len(result.ToolCalls),
	)
}

func (l *PackageLogger) OnRunError(ctx context.Context, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "run_error",
		"run_id", chatmodel.GetRunID(ctx),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"run_id", chatmodel.GetRunID(ctx),
		"tool", tool.Name(),
		"input", slices.StringUpto(llmutils.OneLine(input), 256),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"run_id", chatmodel.GetRunID(ctx),
		"tool", tool.Name(),
		"output", slices.StringUpto(output, 256),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"run_id", chatmodel.GetRunID(ctx),
		"tool", tool.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, tool string) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"run_id", chatmodel.GetRunID(ctx),
		"tool", tool,
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"run_id", chatmodel.GetRunID(ctx),
		"provider", llm.GetProviderType(),
		"model", llm.GetName(),
		"messages", len(messages),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"run_id", chatmodel.GetRunID(ctx),
		"provider", llm.GetProviderType(),
		"model", llm.GetName(),
		"tool_calls", len(resp.ToolCalls),
	)
}
