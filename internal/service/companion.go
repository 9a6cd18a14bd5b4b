package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bjamilk/campusmarket/internal/companion"
	"github.com/bjamilk/campusmarket/internal/domain"
	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

// StudyCompanionPrompt primes every companion session.
const StudyCompanionPrompt = "You are the AI Study Companion for a university campus marketplace. " +
	"Help students understand course material, plan revision and prepare for exams. " +
	"Explain concepts step by step, keep answers concise, and never write graded work for them."

// FallbackReply is returned in place of a reply when the provider fails.
const FallbackReply = "Sorry, I'm having trouble connecting right now. Please try again."

// MaxMessageLength caps a single companion message.
const MaxMessageLength = 4000

// CompanionService manages chat sessions with the study companion.
type CompanionService struct {
	provider companion.Provider
	ttl      time.Duration
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*domain.ChatSession
}

// NewCompanionService creates the service. A nil provider leaves the
// companion unavailable.
func NewCompanionService(provider companion.Provider, ttl time.Duration, metrics *Metrics, logger *slog.Logger) *CompanionService {
	return &CompanionService{
		provider: provider,
		ttl:      ttl,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*domain.ChatSession),
	}
}

// Available reports whether a provider is configured.
func (s *CompanionService) Available() bool {
	return s.provider != nil
}

// StartSession opens a session owned by userID.
func (s *CompanionService) StartSession(ctx context.Context, userID string) (*domain.ChatSession, error) {
	if !s.Available() {
		return nil, domain.ErrCompanionUnavailable
	}
	if userID == "" {
		return nil, apperrors.Unauthorized("caller identity is required")
	}

	session, err := s.provider.StartSession(ctx, StudyCompanionPrompt)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to start companion session",
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		return nil, domain.ErrCompanionUnavailable
	}
	session.OwnerID = userID

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "companion session started",
		slog.String("session_id", session.ID),
		slog.String("provider", session.Provider),
	)
	return session, nil
}

// Send forwards text to the provider and returns its reply. Provider
// failures produce FallbackReply and leave the session unchanged.
func (s *CompanionService) Send(ctx context.Context, sessionID, userID, text string) (string, error) {
	if !s.Available() {
		return "", domain.ErrCompanionUnavailable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.InvalidInput("message must not be empty")
	}
	if len(text) > MaxMessageLength {
		return "", apperrors.InvalidInput("message is too long")
	}

	session, err := s.lookup(sessionID, userID)
	if err != nil {
		return "", err
	}

	reply, err := s.provider.SendMessage(ctx, session, text)
	if err != nil {
		s.metrics.companionMessages.WithLabelValues("fallback").Inc()
		s.logger.WarnContext(ctx, "companion provider failed",
			slog.String("session_id", sessionID),
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		return FallbackReply, nil
	}

	s.mu.Lock()
	if current, ok := s.sessions[sessionID]; ok {
		s.sessions[sessionID] = current.WithExchange(text, reply, s.now())
	}
	s.mu.Unlock()

	s.metrics.companionMessages.WithLabelValues("ok").Inc()
	return reply, nil
}

// Session returns a snapshot of a session owned by userID.
func (s *CompanionService) Session(sessionID, userID string) (*domain.ChatSession, error) {
	if !s.Available() {
		return nil, domain.ErrCompanionUnavailable
	}
	return s.lookup(sessionID, userID)
}

func (s *CompanionService) lookup(sessionID, userID string) (*domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.OwnerID != userID {
		return nil, apperrors.NotFound("chat session", sessionID)
	}
	if s.ttl > 0 && s.now().Sub(session.LastActive) > s.ttl {
		delete(s.sessions, sessionID)
		return nil, apperrors.NotFound("chat session", sessionID)
	}
	return session, nil
}

// Evict drops sessions idle for longer than the TTL and returns how many
// were removed.
func (s *CompanionService) Evict() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, session := range s.sessions {
		if session.LastActive.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RunEviction calls Evict every interval until ctx is done.
func (s *CompanionService) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(); n > 0 {
				s.logger.Debug("evicted idle companion sessions", slog.Int("count", n))
			}
		}
	}
}
