// Package gemini implements companion.Provider on the Gemini generateContent
// REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bjamilk/campusmarket/internal/domain"
	"github.com/bjamilk/campusmarket/pkg/httpclient"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash"
)

// ErrNoAPIKey is returned by New when no API key is configured.
var ErrNoAPIKey = errors.New("gemini: api key is required")

// Doer sends HTTP requests. *httpclient.BreakerClient implements it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds provider settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Provider talks to the hosted model.
type Provider struct {
	client   Doer
	apiKey   string
	endpoint string
	logger   *slog.Logger
}

// New creates a provider. It fails when cfg has no API key.
func New(cfg Config, client Doer, logger *slog.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(cfg.Model))

	return &Provider{
		client:   client,
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		logger:   logger,
	}, nil
}

// NewBreakerClient builds the retrying, circuit-broken HTTP client the
// provider uses in production.
func NewBreakerClient(logger *slog.Logger) *httpclient.BreakerClient {
	return httpclient.NewBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultBreakerConfig("gemini"),
		logger,
	)
}

func (p *Provider) Name() string { return "gemini" }

// StartSession creates a local session handle. The API is stateless so no
// call is made until the first message.
func (p *Provider) StartSession(_ context.Context, systemPrompt string) (*domain.ChatSession, error) {
	return domain.NewChatSession(p.Name(), systemPrompt, time.Now()), nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// SendMessage replays the session history followed by text and returns the
// first candidate's text.
func (p *Provider) SendMessage(ctx context.Context, session *domain.ChatSession, text string) (string, error) {
	body, err := json.Marshal(buildRequest(session, text))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", httpclient.ParseResponseError(resp, "gemini")
	}
	defer func() { _ = resp.Body.Close() }()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	p.logger.DebugContext(ctx, "gemini reply received",
		slog.String("session_id", session.ID),
		slog.Duration("latency", time.Since(start)),
	)
	return replyText(out)
}

func buildRequest(session *domain.ChatSession, text string) generateRequest {
	req := generateRequest{Contents: make([]content, 0, len(session.History)+1)}
	if session.SystemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: session.SystemPrompt}}}
	}
	for _, m := range session.History {
		req.Contents = append(req.Contents, content{Role: string(m.Role), Parts: []part{{Text: m.Text}}})
	}
	req.Contents = append(req.Contents, content{Role: string(domain.RoleUser), Parts: []part{{Text: text}}})
	return req
}

func replyText(out generateResponse) (string, error) {
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty reply (finish reason %s)", out.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}
