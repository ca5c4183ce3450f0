package prompts_test

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/effective-security/opsdash/pkg/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystem(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC is still the previous day in New York
	now := time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC).In(loc)
	s, err := prompts.System(prompts.SystemData{
		Now:   now,
		Tools: []string{"get_clients", "get_invoices"},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(s, "You are an AI assistant for an executive operations dashboard."))
	assert.Contains(t, s, "User: \"Show overdue invoices\" → Call get_invoices with status='overdue'")
	assert.Contains(t, s, "\n\nAvailable tools: get_clients, get_invoices\n\n")
	assert.True(t, strings.HasSuffix(s, "Current date: Tuesday, March 10, 2026 (2026-03-10)"), s)

	s, err = prompts.System(prompts.SystemData{Now: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.NotContains(t, s, "Available tools")
	assert.True(t, strings.HasSuffix(s, "Current date: Monday, January 5, 2026 (2026-01-05)"), s)
}

func TestRender(t *testing.T) {
	tmpl, err := prompts.New("greeting", `Hello {{ .Name | upper }}`)
	require.NoError(t, err)

	s, err := prompts.Render(tmpl, map[string]any{"Name": "john"})
	require.NoError(t, err)
	assert.Equal(t, "Hello JOHN", s)

	_, err = prompts.Render(tmpl, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `map has no entry for key "Name"`)

	_, err = prompts.New("broken", `{{ .Name `)
	require.Error(t, err)
}
