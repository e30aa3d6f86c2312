package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/room302studio/coachartie2-sub006/internal/failover"
)

const (
	openAIDefaultBaseURL  = "https://api.openai.com/v1"
	openAICompletionsPath = "/chat/completions"
)

// OpenAIClient talks to any OpenAI-compatible chat-completions API
// (OpenAI, OpenRouter, Ollama, vLLM, Groq, Together, etc.).
type OpenAIClient struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

type OpenAIOption func(*OpenAIClient)

// WithHTTPClient sets a custom HTTP client (mainly for tests).
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(p *OpenAIClient) { p.client = c }
}

func NewOpenAIClient(baseURL, apiKey, defaultModel string, opts ...OpenAIOption) *OpenAIClient {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	c := &OpenAIClient{
		baseURL:      baseURL,
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// -- wire types --

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message oaiMessage `json:"message"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	wireReq := oaiRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		wireReq.Messages = append(wireReq.Messages, oaiMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+openAICompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading completion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &failover.ProviderError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
			Retryable:  resp.StatusCode == 429 || resp.StatusCode >= 500,
		}
	}

	var wireResp oaiResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, fmt.Errorf("parsing completion response: %w", err)
	}
	if len(wireResp.Choices) == 0 {
		return nil, fmt.Errorf("completion response had no choices")
	}

	return &CompletionResponse{
		ID:      wireResp.ID,
		Model:   wireResp.Model,
		Content: wireResp.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  wireResp.Usage.PromptTokens,
			OutputTokens: wireResp.Usage.CompletionTokens,
		},
	}, nil
}
