package schema_test

import (
	"reflect"
	"testing"

	"github.com/effective-security/opsdash/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invoiceArgs struct {
	ClientName string  `json:"client_name" jsonschema:"description=Name of the client"`
	Amount     float64 `json:"amount" jsonschema:"description=Invoice amount"`
	Status     string  `json:"status,omitempty" jsonschema:"description=Status filter\\, or all,enum=draft,enum=sent,enum=all"`
	Line       *line   `json:"line,omitempty"`
}

type line struct {
	Title string `json:"title"`
}

func TestFor(t *testing.T) {
	s, err := schema.For(reflect.TypeOf(invoiceArgs{}))
	require.NoError(t, err)
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"client_name", "amount"}, s.Required)

	names := []string{}
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	assert.Equal(t, []string{"client_name", "amount", "status", "line"}, names)

	status, ok := s.Properties.Get("status")
	require.True(t, ok)
	assert.Equal(t, "Status filter, or all", status.Description)
	assert.Equal(t, []any{"draft", "sent", "all"}, status.Enum)

	amount, _ := s.Properties.Get("amount")
	assert.Equal(t, "number", amount.Type)

	ln, _ := s.Properties.Get("line")
	assert.Empty(t, ln.Ref)

	// cached by type, pointer resolves to the same schema
	s2, err := schema.For(reflect.TypeOf(&invoiceArgs{}))
	require.NoError(t, err)
	assert.Same(t, s, s2)

	_, err = schema.For(reflect.TypeOf(""))
	assert.EqualError(t, err, "schema: expected struct, got string")

	assert.Same(t, s, schema.MustFor[invoiceArgs]())
	assert.Panics(t, func() { schema.MustFor[int]() })
}

func TestToMap(t *testing.T) {
	s := schema.MustFor[invoiceArgs]()
	m, err := schema.ToMap(s)
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])
	props := m["properties"].(map[string]any)
	assert.Contains(t, props, "client_name")
	assert.Equal(t, []any{"client_name", "amount"}, m["required"])

	m, err = schema.ToMap(nil)
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])
}

func TestFromAny(t *testing.T) {
	s, err := schema.FromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required": []string{"query"},
	})
	require.NoError(t, err)
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"query"}, s.Required)

	_, err = schema.FromAny(func() {})
	assert.Error(t, err)
}
