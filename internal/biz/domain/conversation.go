package domain

import "strings"

// Role represents the author of a conversation turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the running conversation
type Turn struct {
	Role    Role
	Content string
}

// ConversationContext is the accumulated history sent to the chat backend.
// A nil context is uninitialized.
type ConversationContext struct {
	Turns []Turn
}

// NewConversationContext starts a context seeded with a system prompt.
// A blank prompt yields a context without a system message.
func NewConversationContext(systemPrompt string) *ConversationContext {
	c := &ConversationContext{}
	if p := strings.TrimSpace(systemPrompt); p != "" {
		c.Turns = []Turn{{Role: RoleSystem, Content: p}}
	}
	return c
}

// Initialized reports whether the context has been created
func (c *ConversationContext) Initialized() bool {
	return c != nil
}

// SystemPrompt returns the seeding system message, if any
func (c *ConversationContext) SystemPrompt() string {
	if c == nil || len(c.Turns) == 0 || c.Turns[0].Role != RoleSystem {
		return ""
	}
	return c.Turns[0].Content
}

// Append adds a turn to the history
func (c *ConversationContext) Append(role Role, content string) {
	c.Turns = append(c.Turns, Turn{Role: role, Content: content})
}

// Snapshot returns a copy of the turns safe to hand to a backend
func (c *ConversationContext) Snapshot() []Turn {
	out := make([]Turn, len(c.Turns))
	copy(out, c.Turns)
	return out
}

// Truncate drops the turns after n, used to roll back a failed exchange
func (c *ConversationContext) Truncate(n int) {
	if n < len(c.Turns) {
		c.Turns = c.Turns[:n]
	}
}
