// Package agent implements the bounded tool-calling loop that turns a
// conversation history into a final assistant reply, routing through the
// email, calendar and document-search tools when the model asks for them.
package agent

import (
	"context"

	"github.com/google/generative-ai-go/genai"

	"minerva-backend/internal/models"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one step of an orchestration run: a history entry, an assistant
// reply (possibly requesting tools), or a batch of tool results. Only the
// final assistant text ever leaves this package; intermediate steps are never
// persisted.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall   // set when Role == RoleAssistant and tools were requested
	ToolResults []ToolResult // set when Role == RoleTool
}

// ToolCall is a model-issued request to execute one named tool.
type ToolCall struct {
	Name string
	Args map[string]any
}

// ToolResult is the textual outcome of one executed tool call.
type ToolResult struct {
	Name    string
	Content string
}

// ModelReply is one language-model response: free text, tool requests, or
// both.
type ModelReply struct {
	Content   string
	ToolCalls []ToolCall
}

// LanguageModel is the stateless model collaborator. Each call receives the
// complete message sequence; the implementation must not retain state between
// calls.
type LanguageModel interface {
	Invoke(ctx context.Context, system string, messages []Message, tools []*genai.FunctionDeclaration) (*ModelReply, error)
}

// historyToMessages converts persisted conversation history into loop
// messages, oldest first.
func historyToMessages(history []models.ChatMessage) []Message {
	msgs := make([]Message, 0, len(history))
	for _, h := range history {
		role := RoleUser
		if h.Role == RoleAssistant {
			role = RoleAssistant
		}
		msgs = append(msgs, Message{Role: role, Content: h.Content})
	}
	return msgs
}
