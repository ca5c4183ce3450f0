package llmutils_test

import (
	"strings"
	"testing"

	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_CleanJSON(t *testing.T) {
	llmOutput := "\n```json\n\n{\"status\": \"overdue\"}\n\n```\n\n"
	assert.Equal(t, `{"status": "overdue"}`, string(llmutils.CleanJSON([]byte(llmOutput))))

	llmOutput = "Here you go: {\"limit\": 5} hope it helps"
	assert.Equal(t, `{"limit": 5}`, string(llmutils.CleanJSON([]byte(llmOutput))))

	assert.Equal(t, "no json", string(llmutils.CleanJSON([]byte("no json"))))
}

func Test_TrimBackticks(t *testing.T) {
	expected := `{"city": "Paris"}`
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```json\n\n{\"city\": \"Paris\"}\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks(expected))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```{\"city\": \"Paris\"}\n\n```\n\n"))
}

func Test_Truncate(t *testing.T) {
	assert.Equal(t, "short", llmutils.Truncate("short", 10))
	assert.Equal(t, "abc...", llmutils.Truncate("abcdef", 3))
	assert.Equal(t, "héé...", llmutils.Truncate("hééllo", 3))
	assert.Equal(t, "abc", llmutils.Truncate("abc", 0))

	long := strings.Repeat("x", 1500)
	res := llmutils.Truncate(long, 1000)
	assert.Len(t, res, 1003)
	assert.True(t, strings.HasSuffix(res, "..."))
}

func Test_OneLine(t *testing.T) {
	assert.Equal(t, "a b c", llmutils.OneLine(" a\n\tb   c \n"))
}

func Test_ToJSON(t *testing.T) {
	v := map[string]any{"a": 1}
	assert.Equal(t, `{"a":1}`, llmutils.ToJSON(v))
	assert.Equal(t, "{\n\t\"a\": 1\n}", llmutils.ToJSONIndent(v))
	assert.Equal(t, "a: 1\n", llmutils.ToYAML(v))
}

func Test_LastUserMessage(t *testing.T) {
	msgs := []llms.Message{
		llms.UserMessage("first"),
		llms.AssistantMessage("reply"),
		llms.UserMessage("second"),
		llms.AssistantMessage("reply"),
	}
	assert.Equal(t, "second", llmutils.LastUserMessage(msgs))
	assert.Empty(t, llmutils.LastUserMessage(nil))
}
