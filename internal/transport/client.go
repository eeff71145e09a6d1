package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/errors"
	"github.com/ensemble-chat/ensemble/internal/logging"
)

// Client is a Responder speaking the OpenAI-compatible chat completions
// streaming protocol: POST /v1/chat/completions with "stream": true,
// response as SSE "data: {json}" lines terminated by "data: [DONE]".
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiters   *LimiterRegistry
	logger     *logging.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the backend root, e.g. "https://gateway.example.com".
	BaseURL string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout bounds the whole streamed call. Zero means no client timeout;
	// cancellation is then entirely caller-driven, matching the engine's
	// no-watchdog policy.
	Timeout time.Duration
	// RequestsPerSecond throttles calls per model. Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the limiter burst size. Defaults to 1 when limiting is on.
	Burst int
	// Logger defaults to a nop logger.
	Logger *logging.Logger
}

// NewClient creates a streaming transport client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.NewConfigError("transport base URL is required", nil).WithField("transport.base_url")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiters:   NewLimiterRegistry(cfg.RequestsPerSecond, cfg.Burst),
		logger:     logger,
	}, nil
}

// chatRequest is the wire request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// streamChunk is one parsed SSE data payload. Chat-completions chunks carry
// either delta content or a final usage block.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64    `json:"prompt_tokens"`
		CompletionTokens int64    `json:"completion_tokens"`
		TotalTokens      int64    `json:"total_tokens"`
		Cost             *float64 `json:"cost"`
	} `json:"usage"`
}

// StreamResponse implements Responder. Model-side failures (HTTP errors,
// malformed chunks, interrupted streams) resolve to (nil, nil) after
// logging; only request construction faults return an error.
func (c *Client) StreamResponse(ctx context.Context, modelID string, input []chat.InputItem, opts CallOptions) (*Response, error) {
	if modelID == "" {
		return nil, errors.NewTransportError("model ID is required", nil)
	}

	if err := c.limiters.Wait(ctx, modelID); err != nil {
		// Canceled while queued for the limiter: a handled failure.
		c.logger.Debug("rate limit wait aborted", "model", modelID, "error", err)
		return nil, nil
	}

	messages := make([]wireMessage, len(input))
	for i, item := range input {
		messages[i] = wireMessage{Role: item.Role, Content: item.Content}
	}

	body, err := json.Marshal(chatRequest{
		Model:       modelID,
		Messages:    messages,
		Stream:      true,
		Temperature: opts.Params.Temperature,
		TopP:        opts.Params.TopP,
		MaxTokens:   opts.Params.MaxTokens,
	})
	if err != nil {
		return nil, errors.NewTransportError("failed to encode request", err).WithModel(modelID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewTransportError("failed to build request", err).WithModel(modelID)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("stream request failed", "model", modelID, "instance", opts.InstanceID, "error", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("stream request rejected",
			"model", modelID,
			"instance", opts.InstanceID,
			"status", resp.StatusCode,
		)
		return nil, nil
	}

	content, usage, err := readSSEStream(resp.Body)
	if err != nil {
		c.logger.Warn("stream interrupted", "model", modelID, "instance", opts.InstanceID, "error", err)
		return nil, nil
	}

	return &Response{Content: content, Usage: usage}, nil
}

// readSSEStream consumes "data: {json}" lines until "data: [DONE]" or EOF,
// accumulating delta content and capturing the final usage block.
func readSSEStream(body io.Reader) (string, *chat.Usage, error) {
	var content strings.Builder
	var usage *chat.Usage

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			return content.String(), usage, nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Skip unparseable keep-alive or vendor extension chunks.
			continue
		}

		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
		}
		if chunk.Usage != nil {
			usage = &chat.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
			if chunk.Usage.Cost != nil {
				usage.Cost = *chunk.Usage.Cost
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("reading stream: %w", err)
	}

	// EOF without [DONE]: treat accumulated content as the full response.
	return content.String(), usage, nil
}
