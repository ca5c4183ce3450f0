package tools

import (
	"context"

	"github.com/invopop/jsonschema"
)

// ITool is a tool for the assistant to interact with the dashboard data and services.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the JSON schema of the arguments.
	Parameters() *jsonschema.Schema

	// Call executes the tool with the decoded arguments and returns the text result.
	// Invalid arguments are reported with a ValidationError.
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Callback receives the tool execution events.
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, input string)
	OnToolEnd(ctx context.Context, tool ITool, input string, output string)
	OnToolError(ctx context.Context, tool ITool, input string, err error)
	OnToolNotFound(ctx context.Context, name string)
}

// Tool is a tool with typed arguments.
type Tool[I any] interface {
	ITool
	Run(context.Context, *I) (string, error)
}
