package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"provider", "model"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"provider", "model"},
	}

	StatsLLMBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_received",
		Help:         "stats_llm_bytes_received provides total bytes received from LLM",
		RequiredTags: []string{"provider", "model"},
	}

	StatsLLMCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_calls_failed",
		Help:         "stats_llm_calls_failed provides total failed calls to LLM",
		RequiredTags: []string{"provider", "model"},
	}

	StatsChatRunsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chat_runs_succeeded",
		Help:         "stats_chat_runs_succeeded provides total chat runs succeeded",
		RequiredTags: []string{"provider"},
	}

	StatsChatRunsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chat_runs_failed",
		Help:         "stats_chat_runs_failed provides total chat runs failed",
		RequiredTags: []string{"provider"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsInvalid = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_invalid",
		Help:         "stats_tool_calls_invalid provides total tool calls rejected by argument validation",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolArgsMalformed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_args_malformed",
		Help:         "stats_tool_args_malformed provides total tool calls with arguments that are not a JSON object",
		RequiredTags: []string{"tool"},
	}

	StatsSyncRecords = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sync_records",
		Help:         "stats_sync_records provides total records synced from external services",
		RequiredTags: []string{"source"},
	}
)

// Perf
var (
	PerfChatRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_chat_run",
		Help:         "perf_chat_run provides duration of chat run",
		RequiredTags: []string{"provider"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides duration of a single LLM call",
		RequiredTags: []string{"provider", "model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfSync = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_sync",
		Help:         "perf_sync provides duration of a sync run",
		RequiredTags: []string{"source"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfChatRun,
	&PerfLLMCall,
	&PerfSync,
	&PerfToolCall,
	&StatsChatRunsFailed,
	&StatsChatRunsSucceeded,
	&StatsLLMBytesReceived,
	&StatsLLMBytesSent,
	&StatsLLMCallsFailed,
	&StatsLLMMessagesSent,
	&StatsSyncRecords,
	&StatsToolArgsMalformed,
	&StatsToolCallsFailed,
	&StatsToolCallsInvalid,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
