package collaborators

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	emptyPromptReply = "No prompt given."
	helpReply        = "I am a placeholder for a language model. What do you need?"
)

// MockGenerator is a deterministic stand-in for a language model
type MockGenerator struct{}

// NewMockGenerator creates a new MockGenerator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate echoes the prompt back
func (g *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		return emptyPromptReply, nil
	}

	lower := strings.ToLower(prompt)
	if strings.Contains(lower, "hilfe") || strings.Contains(lower, "help") {
		return helpReply, nil
	}
	return fmt.Sprintf("[MOCK-LLM]: You asked: '%s'", prompt), nil
}

// GenerateRequest is the body sent to a remote text generation service
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse is the body returned by a remote text generation service
type GenerateResponse struct {
	Text string `json:"text"`
}

// HTTPGenerator calls a remote text generation service at POST <base>/generate
type HTTPGenerator struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPGenerator creates a new HTTPGenerator. Deadlines come from the
// caller's context.
func NewHTTPGenerator(baseURL string, httpClient *http.Client, logger *zap.Logger) *HTTPGenerator {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPGenerator{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Generate sends the prompt and returns the generated text
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var resp GenerateResponse
	if err := postJSON(ctx, g.httpClient, joinURL(g.baseURL, "/generate"), GenerateRequest{Prompt: prompt}, &resp); err != nil {
		g.logger.Warn("text generation failed", zap.Error(err))
		return "", err
	}

	g.logger.Debug("text generated",
		zap.Int("prompt_length", len(prompt)),
		zap.Int("text_length", len(resp.Text)),
	)
	return resp.Text, nil
}
