package callbacks

import (
	"context"
	"sync"
	"time"

	"github.com/effective-security/opsdash/assistants"
	"github.com/effective-security/opsdash/chatmodel"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/tools"
)

// TimeNowFn returns the current time.
var TimeNowFn = time.Now

// RunStats are the counters of a run.
type RunStats struct {
	RunID    string
	Provider string
	Failed   bool

	Duration           time.Duration
	LLMCalls           uint32
	LLMBytesOut        uint64
	LLMBytesIn         uint64
	ToolCalls          uint32
	ToolCallsSucceeded uint32
	ToolCallsFailed    uint32
	ToolNotFound       uint32
}

// Stats collects the counters per run ID.
// Runs are removed by EndRun.
type Stats struct {
	runs map[string]*runStats
	lock sync.Mutex
}

type runStats struct {
	stats   RunStats
	started time.Time
}

func NewStats() *Stats {
	return &Stats{
		runs: make(map[string]*runStats),
	}
}

// EndRun returns the counters of the run in the context and forgets it.
func (l *Stats) EndRun(ctx context.Context) *RunStats {
	l.lock.Lock()
	defer l.lock.Unlock()

	id := chatmodel.GetRunID(ctx)
	r := l.runs[id]
	if r == nil {
		return nil
	}
	delete(l.runs, id)
	res := r.stats
	if res.Duration == 0 {
		res.Duration = TimeNowFn().Sub(r.started)
	}
	return &res
}

// update applies fn to the run of the context, the run is started on first use.
func (l *Stats) update(ctx context.Context, fn func(s *RunStats)) {
	l.lock.Lock()
	defer l.lock.Unlock()

	rc := chatmodel.GetRunContext(ctx)
	if rc == nil {
		return
	}
	r := l.runs[rc.RunID()]
	if r == nil {
		r = &runStats{
			stats: RunStats{
				RunID:    rc.RunID(),
				Provider: rc.Provider(),
			},
			started: TimeNowFn(),
		}
		l.runs[rc.RunID()] = r
	}
	fn(&r.stats)
}

func (l *Stats) OnRunStart(ctx context.Context, input string) {
	l.update(ctx, func(*RunStats) {})
}

func (l *Stats) OnRunEnd(ctx context.Context, result *assistants.Result) {
	l.finish(ctx, false)
}

func (l *Stats) OnRunError(ctx context.Context, input string, err error) {
	l.finish(ctx, true)
}

func (l *Stats) finish(ctx context.Context, failed bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if r := l.runs[chatmodel.GetRunID(ctx)]; r != nil {
		r.stats.Failed = failed
		r.stats.Duration = TimeNowFn().Sub(r.started)
	}
}

func (l *Stats) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	l.update(ctx, func(s *RunStats) {
		s.LLMCalls++
		s.LLMBytesOut += llms.CountContentSize(messages)
	})
}

func (l *Stats) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.update(ctx, func(s *RunStats) {
		s.LLMBytesIn += uint64(len(resp.Content))
	})
}

func (l *Stats) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.update(ctx, func(s *RunStats) {
		s.ToolCalls++
	})
}

func (l *Stats) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.update(ctx, func(s *RunStats) {
		s.ToolCallsSucceeded++
	})
}

func (l *Stats) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.update(ctx, func(s *RunStats) {
		s.ToolCallsFailed++
	})
}

func (l *Stats) OnToolNotFound(ctx context.Context, tool string) {
	l.update(ctx, func(s *RunStats) {
		s.ToolNotFound++
	})
}
