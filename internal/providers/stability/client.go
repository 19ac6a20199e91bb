package stability

import (
	"bytes"
	"context"
	"encoding/base64"
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

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("stability: api key is required")
	// ErrNoImage is returned when a successful response carries no artifact.
	ErrNoImage = errors.New("stability: response contained no image")
)

// Fixed generation parameters shared by every page of a storybook.
const (
	DefaultWidth    = 1024
	DefaultHeight   = 1024
	DefaultSteps    = 30
	DefaultCFGScale = 7.0
	DefaultSamples  = 1
)

// Options configures the Stability text-to-image client.
type Options struct {
	APIKey         string
	BaseURL        string
	Engine         string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the Stability text-to-image API.
type Client struct {
	apiKey     string
	baseURL    string
	engine     string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImageRequest captures the inputs of one text-to-image call.
type ImageRequest struct {
	Prompt   string
	Seed     int64
	Width    int
	Height   int
	Steps    int
	CFGScale float64
	Samples  int
}

// APIError is returned for non-success responses.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("stability: status %d: %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("stability: status %d: %s", e.StatusCode, e.Message)
}

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type textToImagePayload struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CFGScale    float64      `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Steps       int          `json:"steps"`
	Samples     int          `json:"samples"`
	Seed        int64        `json:"seed"`
}

type textToImageResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		Seed         int64  `json:"seed"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.stability.ai"
	}
	engine := strings.TrimSpace(opts.Engine)
	if engine == "" {
		engine = "stable-diffusion-xl-1024-v1-0"
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
		engine:     engine,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// GenerateImage renders one image for prompt with the fixed storybook
// parameters and the caller's seed.
func (c *Client) GenerateImage(ctx context.Context, prompt string, seed int64) ([]byte, error) {
	return c.TextToImage(ctx, ImageRequest{
		Prompt:   prompt,
		Seed:     seed,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		Steps:    DefaultSteps,
		CFGScale: DefaultCFGScale,
		Samples:  DefaultSamples,
	})
}

// TextToImage performs one generation call and returns the decoded bytes of
// the first artifact.
func (c *Client) TextToImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("stability: prompt is required")
	}
	payload := textToImagePayload{
		TextPrompts: []textPrompt{{Text: prompt, Weight: 1}},
		CFGScale:    req.CFGScale,
		Height:      req.Height,
		Width:       req.Width,
		Steps:       req.Steps,
		Samples:     req.Samples,
		Seed:        req.Seed,
	}
	if payload.Samples <= 0 {
		payload.Samples = DefaultSamples
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("stability: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/generation/%s/text-to-image", c.baseURL, c.engine)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stability: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stability: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stability: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			apiErr.Name = detail.Name
			apiErr.Message = detail.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %w", domain.ErrRateLimited, apiErr)
		}
		return nil, apiErr
	}

	var decoded textToImageResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("stability: decode response: %w", err)
	}
	if len(decoded.Artifacts) == 0 || decoded.Artifacts[0].Base64 == "" {
		return nil, ErrNoImage
	}
	artifact := decoded.Artifacts[0]
	if artifact.FinishReason == "CONTENT_FILTERED" {
		return nil, fmt.Errorf("stability: image was content filtered")
	}
	data, err := base64.StdEncoding.DecodeString(artifact.Base64)
	if err != nil {
		return nil, fmt.Errorf("stability: decode image: %w", err)
	}
	c.logger.Debug().
		Str("engine", c.engine).
		Int64("seed", artifact.Seed).
		Int("bytes", len(data)).
		Msg("stability: generated image")
	return data, nil
}
