// Package provider implements the AI synthesis provider client contract.
// Only the client side is in scope; the provider's internals are an external
// collaborator.
package provider

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

	"github.com/ticketwise/enhancer/internal/core"
	apperrors "github.com/ticketwise/enhancer/internal/errors"
)

const maxResponseBodyBytes = 64 * 1024

// Options configures the HTTP provider client.
type Options struct {
	BaseURL    string // Required: synthesis endpoint
	APIKey     string
	HTTPClient *http.Client
	// Timeout bounds each synthesis call. Defaults to 20s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client calls an external synthesis service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

var _ core.SynthesisProvider = (*Client)(nil)

// NewClient constructs a provider client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("provider base URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		http:    hc,
		timeout: timeout,
		logger:  logger,
	}, nil
}

type synthesisPayload struct {
	CorrelationID string                     `json:"correlation_id"`
	MaxWords      int                        `json:"max_words"`
	Context       map[string]json.RawMessage `json:"context"`
}

type synthesisReply struct {
	Text string `json:"text"`
}

// Synthesize posts the successful context entries to the provider and
// returns the recommendation text. All failure modes, timeouts, rate limits,
// auth errors, map to transient provider errors; the synthesizer absorbs
// them and falls back.
func (c *Client) Synthesize(ctx context.Context, req core.SynthesisRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := synthesisPayload{
		CorrelationID: req.CorrelationID,
		MaxWords:      req.MaxWords,
		Context:       make(map[string]json.RawMessage),
	}
	for name, res := range req.Bundle.Nodes {
		if res.Success {
			payload.Context[name] = res.Data
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal synthesis payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeTransientProvider, "synthesis call failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeTransientProvider, "read synthesis response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.TransientProviderf("synthesis returned status %d", resp.StatusCode)
	}

	var reply synthesisReply
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeTransientProvider, "decode synthesis response")
	}
	return reply.Text, nil
}
