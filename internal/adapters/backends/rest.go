package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
	apperrors "github.com/ticketwise/enhancer/internal/errors"
)

const maxErrorBodyBytes = 8 * 1024

// RESTOptions configures the token-authenticated REST adapter.
type RESTOptions struct {
	HTTPClient *http.Client
	// Timeout bounds each update call. Defaults to 15s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// RESTAdapter posts enhancements to a ticketing system's comment endpoint
// using a static bearer token from the tenant's credentials.
type RESTAdapter struct {
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

var _ core.TicketBackendAdapter = (*RESTAdapter)(nil)

// NewRESTAdapter constructs the generic REST adapter.
func NewRESTAdapter(opts RESTOptions) *RESTAdapter {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RESTAdapter{http: hc, timeout: timeout, logger: logger}
}

// Type reports the backend type this adapter serves.
func (a *RESTAdapter) Type() model.BackendType {
	return model.BackendTypeREST
}

// UpdateTicket appends the enhancement as a comment on the external ticket.
func (a *RESTAdapter) UpdateTicket(ctx context.Context, p core.UpdateTicketParams) (core.UpdateResult, error) {
	if p.Credentials.BaseURL == "" {
		return core.UpdateResult{}, apperrors.PermanentAdapter("backend base URL is not configured")
	}
	if p.Credentials.APIToken == "" {
		return core.UpdateResult{}, apperrors.PermanentAdapter("backend API token is not configured")
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.Credentials.APIToken)
	return doUpdate(ctx, a.http, a.timeout, header, p)
}

type commentPayload struct {
	Body    string   `json:"body"`
	Source  string   `json:"source"`
	Mode    string   `json:"mode"`
	Sources []string `json:"context_sources,omitempty"`
}

// doUpdate performs the shared request/response cycle for REST-shaped
// backends. Status codes are classified into the retry taxonomy: 429 and 5xx
// are transient, all other non-2xx responses are permanent.
func doUpdate(
	ctx context.Context,
	client *http.Client,
	timeout time.Duration,
	header http.Header,
	p core.UpdateTicketParams,
) (core.UpdateResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint, err := ticketCommentURL(p.Credentials.BaseURL, p.ExternalTicketID)
	if err != nil {
		return core.UpdateResult{}, apperrors.Wrap(err, apperrors.ErrCodePermanentAdapter, "build ticket URL")
	}

	body, err := json.Marshal(commentPayload{
		Body:    p.Enhancement.Text,
		Source:  "enhancer",
		Mode:    string(p.Enhancement.Mode),
		Sources: p.Enhancement.Sources,
	})
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("marshal comment payload: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("build update request: %w", err)
	}
	req.Header = header.Clone()
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return core.UpdateResult{}, apperrors.Wrap(err, apperrors.ErrCodeTransientProvider, "ticket update call failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	// Drain so the transport can reuse the connection.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	result := core.UpdateResult{HTTPStatus: resp.StatusCode}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return result, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return result, apperrors.TransientProviderf("backend returned status %d", resp.StatusCode)
	default:
		return result, apperrors.PermanentAdapterf(
			"backend rejected update with status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
}

func ticketCommentURL(baseURL, ticketID string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	return base.JoinPath("tickets", url.PathEscape(ticketID), "comments").String(), nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
