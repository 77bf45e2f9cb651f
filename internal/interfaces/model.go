package interfaces

import "context"

// Generator is the minimal LLM adapter surface: prompt in, raw text out.
type Generator interface {
	ID() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// ChatModel is the chat-style call convention some adapters expose
// instead of (or in addition to) Generate.
type ChatModel interface {
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reducible is implemented by CLI-backed adapters that can retry with a
// smaller resource budget after a failure.
type Reducible interface {
	Reduced() Generator
}
