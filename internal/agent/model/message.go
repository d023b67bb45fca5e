package model

import (
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// Message is an immutable conversation log entry. ID is assigned once at creation
// and never reused; the embedded eino message carries role, content, tool calls
// and the tool_call_id a tool result answers.
type Message struct {
	ID string `json:"id"`
	*schema.Message
}

// NewMessage assigns a fresh id to m. m must not be mutated afterwards.
func NewMessage(m *schema.Message) *Message {
	return &Message{ID: uuid.NewString(), Message: m}
}

func NewUserMessage(content string) *Message {
	return NewMessage(schema.UserMessage(content))
}

func NewAssistantMessage(content string, calls []schema.ToolCall) *Message {
	return NewMessage(schema.AssistantMessage(content, calls))
}

func NewToolMessage(content, toolCallID, toolName string) *Message {
	return NewMessage(schema.ToolMessage(content, toolCallID, schema.WithToolName(toolName)))
}

// Role returns the message role, or "" for a nil message.
func (m *Message) Role() schema.RoleType {
	if m == nil || m.Message == nil {
		return ""
	}
	return m.Message.Role
}

func (m *Message) IsUser() bool { return m.Role() == schema.User }

func (m *Message) IsTool() bool { return m.Role() == schema.Tool }

// IsToolRequest reports whether m is an assistant turn that asks for tools.
func (m *Message) IsToolRequest() bool {
	return m.Role() == schema.Assistant && len(m.Message.ToolCalls) > 0
}

// Schema returns the underlying eino messages of msgs, in order.
func Schema(msgs []*Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.Message == nil {
			continue
		}
		out = append(out, m.Message)
	}
	return out
}
