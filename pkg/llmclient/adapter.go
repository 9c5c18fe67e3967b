// Package llmclient is the single outbound call to the LLM provider:
// schema-bound requests, tolerant JSON parsing of the response, and
// usage telemetry. It owns no retry policy; a failed or timed-out call
// returns an error and the caller (a phase worker) fails the task,
// leaving retries to the orchestrator.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/evoengine/evoengine/pkg/config"
)

// Role constants for chat-completion-style messages.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallInput describes a single outbound request.
type CallInput struct {
	Model    string
	Phase    string // "variator" | "enricher"
	Messages []Message
	// SchemaName and Schema describe the expected JSON shape for native
	// structured-output requests; Schema is a JSON Schema document.
	SchemaName string
	Schema     map[string]any
}

// Usage mirrors the provider's token accounting fields.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CallResult is what the adapter hands back to a phase worker.
type CallResult struct {
	Raw        string
	Parsed     json.RawMessage
	Usage      Usage
	Model      string
	DurationMs int64
}

// Adapter is the single outbound LLM client shared by every phase
// worker. It holds one long-lived HTTP client with a keep-alive
// transport; no other process-wide mutable state is permitted.
type Adapter struct {
	httpClient *http.Client
	cfg        *config.LLMConfig
	apiKey     string
}

// New builds an Adapter from LLM configuration, reading the API key from
// the environment variable the config names.
func New(cfg *config.LLMConfig) *Adapter {
	return &Adapter{
		cfg:    cfg,
		apiKey: os.Getenv(cfg.APIKeyEnv),
		httpClient: &http.Client{
			Timeout: cfg.CallTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	Store          bool           `json:"store"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Call performs one outbound LLM call and returns the tolerantly parsed
// JSON body. A single transport-level retry is permitted internally
// (counts as the same call); there are no retries on 4xx or on parse
// failure, both of which are fatal for the caller's task.
func (a *Adapter) Call(ctx context.Context, in CallInput) (*CallResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()

	req := chatRequest{
		Model:       in.Model,
		Messages:    in.Messages,
		Temperature: 0.7,
		Store:       false,
	}
	if a.cfg.NativeStructuredOutput && in.Schema != nil {
		req.ResponseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   in.SchemaName,
				"schema": in.Schema,
				"strict": true,
			},
		}
	}

	started := time.Now()
	resp, err := a.doRequest(ctx, req)
	if err != nil && !isClientError(err) {
		resp, err = a.doRequest(ctx, req) // one transport-level retry
	}
	if err != nil {
		return nil, fmt.Errorf("llmclient: call failed: %w", err)
	}
	duration := time.Since(started).Milliseconds()

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llmclient: empty choices in response")
	}
	content := resp.Choices[0].Message.Content

	var parsed json.RawMessage
	if a.cfg.NativeStructuredOutput && in.Schema != nil {
		if !json.Valid([]byte(content)) {
			return nil, fmt.Errorf("llmclient: %w: native structured output was not valid JSON", ErrNoValidItems)
		}
		parsed = json.RawMessage(content)
	} else {
		parsed, err = ParseTolerant(content)
		if err != nil {
			return nil, err
		}
	}

	return &CallResult{
		Raw:        content,
		Parsed:     parsed,
		Usage:      resp.Usage,
		Model:      in.Model,
		DurationMs: duration,
	}, nil
}

// clientError marks a 4xx provider response, which the caller must not
// retry.
type clientError struct{ status int }

func (e *clientError) Error() string {
	return fmt.Sprintf("llmclient: provider returned %d (not retried)", e.status)
}

func isClientError(err error) bool {
	_, ok := err.(*clientError)
	return ok
}

func (a *Adapter) doRequest(ctx context.Context, req chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport error: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 && httpResp.StatusCode < 500 {
		return nil, &clientError{status: httpResp.StatusCode}
	}
	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("llmclient: provider returned %d", httpResp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
