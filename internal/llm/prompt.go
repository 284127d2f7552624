package llm

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the full input to an LLM completion call.
type Prompt struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// Add appends a message and returns the prompt for chaining.
func (p *Prompt) Add(role Role, content string) *Prompt {
	p.Messages = append(p.Messages, Message{Role: role, Content: content})
	return p
}

// WireMessages flattens the system prompt and messages into the role/content
// pairs accepted by chat-completions APIs.
func (p *Prompt) WireMessages() []Message {
	out := make([]Message, 0, len(p.Messages)+1)
	if p.SystemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: p.SystemPrompt})
	}
	return append(out, p.Messages...)
}
