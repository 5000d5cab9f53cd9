package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/z-lingo/backend/internal/config"
	"github.com/zhouzirui/z-lingo/backend/internal/relay"
)

const maxErrorBody = 4 << 10

// UpstreamError is a non-2xx answer from the model provider.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("model provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("model provider returned status %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the provider's response status.
func (e *UpstreamError) HTTPStatus() int {
	return e.StatusCode
}

// Provider opens streaming chat completions against an OpenAI compatible endpoint.
type Provider struct {
	httpClient  *http.Client
	endpoint    string
	apiKey      string
	temperature *float64
	topP        *float64
	maxTokens   *int
}

// NewProvider creates a provider for cfg. httpClient may be nil.
func NewProvider(cfg config.AIConfig, httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Provider{
		httpClient:  httpClient,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		maxTokens:   cfg.MaxTokens,
	}
}

// Stream sends the conversation and returns the provider's event stream. The
// returned source owns the response body.
func (p *Provider) Stream(ctx context.Context, modelName string, messages []*schema.Message) (*relay.BodySource, error) {
	payload, err := json.Marshal(p.buildRequest(modelName, messages))
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model provider: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeUpstreamError(resp)
	}

	return relay.NewBodySource(resp.Body), nil
}

func (p *Provider) buildRequest(modelName string, messages []*schema.Message) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    modelName,
		Stream:   true,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	if p.temperature != nil {
		req.Temperature = float32(*p.temperature)
	}
	if p.topP != nil {
		req.TopP = float32(*p.topP)
	}
	if p.maxTokens != nil {
		req.MaxTokens = *p.maxTokens
	}
	return req
}

func decodeUpstreamError(resp *http.Response) error {
	upstreamErr := &UpstreamError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return upstreamErr
	}

	var envelope openai.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		upstreamErr.Message = envelope.Error.Message
		return upstreamErr
	}

	upstreamErr.Message = strings.TrimSpace(string(body))
	return upstreamErr
}
