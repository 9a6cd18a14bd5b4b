// Package mock provides a canned chat provider for local development.
package mock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bjamilk/campusmarket/internal/domain"
)

// Provider answers every message with a short canned reply.
type Provider struct {
	// Err, when set, is returned from SendMessage.
	Err error
}

// New creates a mock provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) StartSession(_ context.Context, systemPrompt string) (*domain.ChatSession, error) {
	return domain.NewChatSession(p.Name(), systemPrompt, time.Now()), nil
}

func (p *Provider) SendMessage(ctx context.Context, session *domain.ChatSession, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Err != nil {
		return "", p.Err
	}
	turn := len(session.History)/2 + 1
	return fmt.Sprintf("(turn %d) You asked: %q. Let's work through it step by step.", turn, strings.TrimSpace(text)), nil
}
