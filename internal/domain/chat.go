package domain

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

// ErrCompanionUnavailable is returned when no chat provider is configured.
var ErrCompanionUnavailable = &apperrors.AppError{
	Code:    "COMPANION_UNAVAILABLE",
	Message: "AI Study Companion is unavailable",
	Status:  http.StatusServiceUnavailable,
	Err:     apperrors.ErrServiceUnavail,
}

// ChatRole is the author of a chat turn.
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role ChatRole  `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ChatSession is the handle for one conversation with a chat provider. It
// is passed explicitly to every send.
type ChatSession struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	Provider     string        `json:"provider"`
	SystemPrompt string        `json:"-"`
	History      []ChatMessage `json:"history"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActive   time.Time     `json:"last_active"`
}

// NewChatSession creates an empty session for provider.
func NewChatSession(provider, systemPrompt string, now time.Time) *ChatSession {
	now = now.UTC()
	return &ChatSession{
		ID:           uuid.NewString(),
		Provider:     provider,
		SystemPrompt: systemPrompt,
		History:      []ChatMessage{},
		CreatedAt:    now,
		LastActive:   now,
	}
}

// WithExchange returns a copy of s with a user turn and its reply appended.
func (s *ChatSession) WithExchange(userText, reply string, now time.Time) *ChatSession {
	now = now.UTC()
	c := *s
	c.History = append(append([]ChatMessage(nil), s.History...),
		ChatMessage{Role: RoleUser, Text: userText, At: now},
		ChatMessage{Role: RoleModel, Text: reply, At: now},
	)
	c.LastActive = now
	return &c
}
