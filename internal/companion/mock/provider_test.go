package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Conversation(t *testing.T) {
	p := New()
	s, err := p.StartSession(context.Background(), "be helpful")
	require.NoError(t, err)
	assert.Equal(t, "mock", s.Provider)
	assert.Equal(t, "be helpful", s.SystemPrompt)

	reply, err := p.SendMessage(context.Background(), s, " what is osmosis? ")
	require.NoError(t, err)
	assert.Contains(t, reply, "(turn 1)")
	assert.Contains(t, reply, `"what is osmosis?"`)

	s = s.WithExchange("what is osmosis?", reply, time.Now())
	reply, err = p.SendMessage(context.Background(), s, "and diffusion?")
	require.NoError(t, err)
	assert.Contains(t, reply, "(turn 2)")
}

func TestProvider_Error(t *testing.T) {
	p := &Provider{Err: errors.New("offline")}
	s, _ := p.StartSession(context.Background(), "")
	_, err := p.SendMessage(context.Background(), s, "hi")
	assert.EqualError(t, err, "offline")
}
