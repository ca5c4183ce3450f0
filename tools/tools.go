package tools

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/pkg/llms"
)

// Registry is the ordered set of tools offered to the model.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	tools  []ITool
	byName map[string]ITool
	defs   []llms.Tool
}

// NewRegistry returns the registry of the tools, in the given order.
func NewRegistry(list ...ITool) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]ITool, len(list)),
	}
	for _, t := range list {
		name := t.Name()
		if name == "" {
			return nil, errors.New("tool name is required")
		}
		key := strings.ToLower(name)
		if _, ok := r.byName[key]; ok {
			return nil, errors.Errorf("duplicate tool: %s", name)
		}
		r.byName[key] = t
		r.tools = append(r.tools, t)
		r.defs = append(r.defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        name,
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return r, nil
}

// Get returns the tool by name, the match is case insensitive.
func (r *Registry) Get(name string) (ITool, bool) {
	t, ok := r.byName[strings.ToLower(name)]
	return t, ok
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []ITool {
	return append([]ITool(nil), r.tools...)
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name()
	}
	return names
}

// Definitions returns the tool definitions sent to the model.
// The slice is shared and must not be modified.
func (r *Registry) Definitions() []llms.Tool {
	return r.defs
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
