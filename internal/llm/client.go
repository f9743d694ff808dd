package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

const (
	// maxResponseBytes caps how much of a completion body is read.
	maxResponseBytes = 8 << 20
	// maxErrorBody caps the body excerpt kept on a StatusError.
	maxErrorBody = 512
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body sent to the completion endpoint.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// Client sends single-turn prompts to one configured endpoint.
// It is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
// The caller is then responsible for timeout and TLS settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for per-call debug logs.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient validates cfg and builds a client with its own transport.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Auth == nil {
		cfg.Auth = NoAuth{}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 64
	if !cfg.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per project
	}

	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the resolved configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Complete sends prompt as a single user message and returns the model text.
// Errors are *TransportError, *StatusError or *ResponseError.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(ChatRequest{
		Model:       c.cfg.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	reqID := ulid.Make().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	c.cfg.Auth.Apply(req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("completion request failed",
			"llm_request_id", reqID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("completion request finished",
		"llm_request_id", reqID,
		"status", resp.StatusCode,
		"auth", c.cfg.Auth.Kind(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: excerpt(body)}
	}
	return ExtractContent(body)
}

// ExtractContent pulls the completion text out of a response body.
// Order: choices[0].message.content, then a top-level content field,
// then the raw body text.
func ExtractContent(body []byte) (string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return "", &ResponseError{Reason: "body is not a JSON object", Err: err}
	}

	if raw, ok := top["choices"]; ok {
		var choices []struct {
			Message *struct {
				Content *string `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal(raw, &choices); err != nil {
			return "", &ResponseError{Reason: "choices is not an array", Err: err}
		}
		if len(choices) > 0 {
			first := choices[0]
			if first.Message == nil || first.Message.Content == nil {
				return "", &ResponseError{Reason: "choices[0] has no message.content"}
			}
			return *first.Message.Content, nil
		}
	}

	if raw, ok := top["content"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
		return compactJSON(raw), nil
	}

	return string(body), nil
}

// excerpt trims body to at most maxErrorBody bytes without splitting a rune.
func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
