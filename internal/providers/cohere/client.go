package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("cohere: api key is required")

// Story generation defaults.
const (
	storyTemperature = 0.7
	storyMaxTokens   = 1500
)

// Options configures the Cohere chat client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the Cohere chat API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// ChatRequest captures a single-turn chat call.
type ChatRequest struct {
	Message     string
	Model       string
	Temperature *float64
	MaxTokens   int
}

// APIError is returned for non-success responses other than rate limiting.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cohere: status %d: %s", e.StatusCode, e.Message)
}

type chatPayload struct {
	Message     string   `json:"message"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Text         string `json:"text"`
	GenerationID string `json:"generation_id"`
	FinishReason string `json:"finish_reason"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.cohere.ai"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "command"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Chat sends one message and returns the model's reply text. A 429 response
// is reported as domain.ErrRateLimited.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", errors.New("cohere: message is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	body, err := json.Marshal(chatPayload{
		Message:     message,
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("cohere: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("cohere: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("cohere: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("cohere: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			msg = detail.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("cohere: %w: %s", domain.ErrRateLimited, msg)
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("cohere: decode response: %w", err)
	}
	c.logger.Debug().
		Str("model", model).
		Str("generation_id", decoded.GenerationID).
		Str("finish_reason", decoded.FinishReason).
		Msg("cohere: chat completed")
	return decoded.Text, nil
}

// GenerateText runs a free-form generation with story defaults.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	temperature := storyTemperature
	return c.Chat(ctx, ChatRequest{
		Message:     prompt,
		Temperature: &temperature,
		MaxTokens:   storyMaxTokens,
	})
}
