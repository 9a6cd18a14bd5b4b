// Package companion defines the chat provider behind the AI Study Companion.
package companion

import (
	"context"

	"github.com/bjamilk/campusmarket/internal/domain"
)

// Provider is a hosted chat completion service.
type Provider interface {
	// Name identifies the provider in sessions and logs.
	Name() string

	// StartSession opens a conversation primed with systemPrompt.
	StartSession(ctx context.Context, systemPrompt string) (*domain.ChatSession, error)

	// SendMessage sends text in the context of session and returns the reply.
	// The session itself is not modified.
	SendMessage(ctx context.Context, session *domain.ChatSession, text string) (string, error)
}
