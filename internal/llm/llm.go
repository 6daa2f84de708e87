// Package llm is the client for the generative messages endpoint. It owns
// retry policy, backoff, and response-shape normalization.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelanni/mockexam/internal/model"
)

const (
	// DefaultEndpoint is the messages API endpoint.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	// DefaultModel is the fixed model identifier.
	DefaultModel = "claude-3-haiku-20240307"

	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
	defaultAttempts  = 3
	defaultBackoff   = 3 * time.Second
	// generateTimeout bounds one generation exchange. There is no mid-flight
	// abort beyond it: the caller waits for completion or timeout.
	generateTimeout = 180 * time.Second
)

var (
	// ErrNotConfigured means no API credential is present.
	ErrNotConfigured = errors.New("llm: API key not configured")
	// ErrAllAttemptsFailed means every transport attempt failed.
	ErrAllAttemptsFailed = errors.New("llm: all attempts failed")
	// ErrBadFormat means a success response had an unparseable shape.
	ErrBadFormat = errors.New("llm: unexpected response format")
)

// EndpointError is a non-success HTTP status on an otherwise successful
// exchange. Endpoint errors describe the request shape, not a transient
// condition, so they are never retried.
type EndpointError struct {
	Status int
	Body   string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("llm: endpoint returned status %d", e.Status)
}

// Config holds client settings.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	MaxAttempts int
	Backoff     time.Duration
}

// Client sends generation requests with bounded retries and a constant
// backoff between attempts. Retries are sequential; there is no fan-out.
type Client struct {
	cfg   Config
	http  *http.Client
	sleep func(time.Duration)
}

// New creates a Client, filling unset Config fields with defaults.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: generateTimeout},
		sleep: time.Sleep,
	}
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireResponse struct {
	Content json.RawMessage `json:"content"`
	Message string          `json:"message"`
}

// Generate sends the request and returns the generated text.
//
// Transport failures retry up to MaxAttempts with a constant backoff before
// each retry. A non-success status or an unparseable success body is
// terminal within the attempt and returned immediately: only the transport
// is assumed transient.
func (c *Client) Generate(ctx context.Context, req model.GenerationRequest) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("llm: empty message sequence")
	}

	body, err := json.Marshal(buildWireRequest(c.cfg, req))
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.sleep(c.cfg.Backoff)
		}
		text, err := c.attempt(ctx, body)
		if err == nil {
			return text, nil
		}
		var epErr *EndpointError
		if errors.As(err, &epErr) || errors.Is(err, ErrBadFormat) {
			return "", err
		}
		lastErr = err
		slog.Warn("generation attempt failed", "attempt", attempt, "max", c.cfg.MaxAttempts, "error", err)
	}
	return "", fmt.Errorf("%w: %v", ErrAllAttemptsFailed, lastErr)
}

func (c *Client) attempt(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &EndpointError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return parseResponse(respBody)
}

// parseResponse accepts the two documented success shapes: content as a list
// of blocks (first block's text wins) or a single inline message field.
func parseResponse(body []byte) (string, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	if len(wr.Content) > 0 {
		var blocks []contentBlock
		if err := json.Unmarshal(wr.Content, &blocks); err == nil && len(blocks) > 0 {
			return blocks[0].Text, nil
		}
		var inline string
		if err := json.Unmarshal(wr.Content, &inline); err == nil && inline != "" {
			return inline, nil
		}
	}
	if wr.Message != "" {
		return wr.Message, nil
	}
	return "", ErrBadFormat
}

func buildWireRequest(cfg Config, req model.GenerationRequest) wireRequest {
	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return wireRequest{
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		System:    req.System,
		Messages:  msgs,
	}
}
