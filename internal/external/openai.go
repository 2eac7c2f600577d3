package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"collegeplan/internal/types"
)

// openaiAPIBase is the default chat-completions API base URL.
const openaiAPIBase = "https://api.openai.com/v1"

// OpenAIClientConfig holds the configuration for creating an OpenAIClient.
type OpenAIClientConfig struct {
	APIKey  string
	BaseURL string // Any OpenAI-compatible endpoint; defaults to openaiAPIBase
	Model   string // Used when a request does not name one
	Logger  *slog.Logger
}

// OpenAIClient implements ChatCompleter against an OpenAI-compatible
// /chat/completions endpoint.
type OpenAIClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	model   string
	logger  *slog.Logger
}

// NewOpenAIClient creates an OpenAIClient. Completions are slow, so only
// rate limiting and server errors are retried, once.
func NewOpenAIClient(httpClient *http.Client, cfg OpenAIClientConfig) *OpenAIClient {
	base := NewBaseClient(
		httpClient,
		"openai",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    time.Second,
			MaxWait:    10 * time.Second,
		},
		"CollegePlan/1.0",
		WithUpstreamCode(types.ErrCodeUpstreamLLM),
	)
	return NewOpenAIClientWithBase(base, cfg)
}

// NewOpenAIClientWithBase creates an OpenAIClient with a pre-configured
// BaseClient.
func NewOpenAIClientWithBase(base *BaseClient, cfg OpenAIClientConfig) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openaiAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   cfg.Model,
		logger:  logger,
	}
}

var _ ChatCompleter = (*OpenAIClient)(nil)

type openaiRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends a chat-completions request and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(openaiRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode completion request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "failed to read completion response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr openaiError
		_ = json.Unmarshal(raw, &apiErr)
		c.logger.WarnContext(ctx, "completion request failed",
			"status", resp.StatusCode,
			"error_type", apiErr.Error.Type,
			"error_code", apiErr.Error.Code,
		)
		return "", types.NewAppError(
			types.ErrCodeUpstreamLLM,
			fmt.Sprintf("completion API error (%d): %s", resp.StatusCode, apiErr.Error.Message),
			nil,
		)
	}

	var out openaiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "failed to decode completion response", err)
	}
	if len(out.Choices) == 0 {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "completion response had no choices", nil)
	}

	c.logger.DebugContext(ctx, "completion finished",
		"model", out.Model,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"finish_reason", out.Choices[0].FinishReason,
	)
	return out.Choices[0].Message.Content, nil
}
