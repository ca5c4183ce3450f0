package llms

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnexpectedRole is returned when a message role is of an unexpected type.
var ErrUnexpectedRole = errors.New("unexpected role")

// Role is the type of chat message.
type Role string

const (
	// RoleSystem is a message sent by the system.
	RoleSystem Role = "system"
	// RoleUser is a message sent by a human.
	RoleUser Role = "user"
	// RoleAssistant is a message sent by the model.
	RoleAssistant Role = "assistant"
)

// ParseRole validates the role name received from a client.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(s)); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	}
	return "", errors.Wrapf(ErrUnexpectedRole, "%q", s)
}

// Message is one entry of the conversation sent to a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage returns a message with system role.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a message with user role.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns a message with assistant role.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolCall is a call to a tool (as requested by the model) that should be executed.
type ToolCall struct {
	// ID is the identifier of the tool call, empty for providers that do not assign one.
	ID string `json:"id,omitempty"`
	// Name is the name of the function to call.
	Name string `json:"name"`
	// Arguments to pass to the function, as a JSON string.
	Arguments string `json:"arguments"`
}

func (tc ToolCall) String() string {
	return fmt.Sprintf("ToolCall: %s (%s), input: %s", tc.ID, tc.Name, tc.Arguments)
}

// ContentResponse is the response returned by a GenerateContent call.
type ContentResponse struct {
	// Content is the textual content of a response
	Content string `json:"content"`
	// ToolCalls is a list of tool calls the model asks to invoke, in order.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Model is the model name reported by the provider.
	Model string `json:"model,omitempty"`
	// StopReason is the reason the model stopped generating output.
	StopReason string `json:"stop_reason,omitempty"`
}

// HasToolCalls returns true when the model requested tools.
func (r *ContentResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// CountContentSize returns the total size of the message contents.
func CountContentSize(messages []Message) uint64 {
	var size uint64
	for _, m := range messages {
		size += uint64(len(m.Content))
	}
	return size
}
