package llm

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Provider continues a dialogue. history is ordered oldest first and never
// contains system entries; the system prompt is passed separately.
type Provider interface {
	Name() string
	Reply(ctx context.Context, systemPrompt string, history []Message) (string, error)
	Close() error
}
