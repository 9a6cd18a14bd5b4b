package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bjamilk/campusmarket/internal/companion"
	"github.com/bjamilk/campusmarket/internal/domain"
	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
	"github.com/bjamilk/campusmarket/pkg/logger"
)

type mockProvider struct {
	mock.Mock
}

var _ companion.Provider = (*mockProvider)(nil)

func (m *mockProvider) Name() string { return "test" }

func (m *mockProvider) StartSession(ctx context.Context, prompt string) (*domain.ChatSession, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatSession), args.Error(1)
}

func (m *mockProvider) SendMessage(ctx context.Context, s *domain.ChatSession, text string) (string, error) {
	args := m.Called(ctx, s, text)
	return args.String(0), args.Error(1)
}

func newTestCompanion(t *testing.T, p companion.Provider) (*CompanionService, *Metrics, *time.Time) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewCompanionService(p, 30*time.Minute, metrics, logger.NewNop())
	now := fixedNow
	svc.now = func() time.Time { return now }
	return svc, metrics, &now
}

func TestCompanion_Unavailable(t *testing.T) {
	svc, _, _ := newTestCompanion(t, nil)
	assert.False(t, svc.Available())

	_, err := svc.StartSession(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrCompanionUnavailable)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)

	_, err = svc.Send(context.Background(), "s", "u1", "hello")
	assert.ErrorIs(t, err, domain.ErrCompanionUnavailable)
}

func TestCompanion_StartAndSend(t *testing.T) {
	p := &mockProvider{}
	session := domain.NewChatSession("test", StudyCompanionPrompt, fixedNow)
	p.On("StartSession", mock.Anything, StudyCompanionPrompt).Return(session, nil)
	p.On("SendMessage", mock.Anything, mock.AnythingOfType("*domain.ChatSession"), "what is entropy?").Return("A measure of disorder.", nil)

	svc, metrics, _ := newTestCompanion(t, p)
	s, err := svc.StartSession(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.OwnerID)

	reply, err := svc.Send(context.Background(), s.ID, "u1", "  what is entropy? ")
	require.NoError(t, err)
	assert.Equal(t, "A measure of disorder.", reply)

	got, err := svc.Session(s.ID, "u1")
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, domain.RoleUser, got.History[0].Role)
	assert.Equal(t, "what is entropy?", got.History[0].Text)
	assert.Equal(t, domain.RoleModel, got.History[1].Role)
	assert.Equal(t, 1.0, counterValue(t, metrics.companionMessages.WithLabelValues("ok")))
}

func TestCompanion_ProviderFailureReturnsApology(t *testing.T) {
	p := &mockProvider{}
	p.On("StartSession", mock.Anything, mock.Anything).Return(domain.NewChatSession("test", StudyCompanionPrompt, fixedNow), nil)
	p.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("connection reset"))

	svc, metrics, _ := newTestCompanion(t, p)
	s, err := svc.StartSession(context.Background(), "u1")
	require.NoError(t, err)

	reply, err := svc.Send(context.Background(), s.ID, "u1", "hello")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)

	got, _ := svc.Session(s.ID, "u1")
	assert.Empty(t, got.History)
	assert.Equal(t, 1.0, counterValue(t, metrics.companionMessages.WithLabelValues("fallback")))
}

func TestCompanion_StartFailureIsUnavailable(t *testing.T) {
	p := &mockProvider{}
	p.On("StartSession", mock.Anything, mock.Anything).Return(nil, errors.New("dns failure"))

	svc, _, _ := newTestCompanion(t, p)
	_, err := svc.StartSession(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrCompanionUnavailable)
}

func TestCompanion_Validation(t *testing.T) {
	p := &mockProvider{}
	p.On("StartSession", mock.Anything, mock.Anything).Return(domain.NewChatSession("test", "", fixedNow), nil)
	svc, _, _ := newTestCompanion(t, p)
	s, _ := svc.StartSession(context.Background(), "u1")

	_, err := svc.Send(context.Background(), s.ID, "u1", "   ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Send(context.Background(), s.ID, "intruder", "hi")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.StartSession(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	p.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompanion_SessionExpiry(t *testing.T) {
	p := &mockProvider{}
	p.On("StartSession", mock.Anything, mock.Anything).Return(domain.NewChatSession("test", "", fixedNow), nil).Once()
	p.On("StartSession", mock.Anything, mock.Anything).Return(domain.NewChatSession("test", "", fixedNow), nil).Once()

	svc, _, now := newTestCompanion(t, p)
	s1, _ := svc.StartSession(context.Background(), "u1")
	s2, _ := svc.StartSession(context.Background(), "u2")
	require.NotEqual(t, s1.ID, s2.ID)

	*now = fixedNow.Add(10 * time.Minute)
	assert.Equal(t, 0, svc.Evict())

	*now = fixedNow.Add(31 * time.Minute)
	_, err := svc.Session(s1.ID, "u1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 1, svc.Evict())
}
