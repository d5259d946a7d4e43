package backends

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
	apperrors "github.com/ticketwise/enhancer/internal/errors"
)

// OAuthOptions configures the OAuth2 client-credentials REST adapter.
type OAuthOptions struct {
	HTTPClient *http.Client
	// Timeout bounds each update call. Defaults to 15s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// OAuthAdapter posts enhancements like RESTAdapter but authenticates with the
// OAuth2 client-credentials grant. Token sources are cached per tenant
// credential set so access tokens are reused until expiry.
type OAuthAdapter struct {
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	sources map[sourceKey]oauth2.TokenSource
}

type sourceKey struct {
	tokenURL string
	clientID string
}

var _ core.TicketBackendAdapter = (*OAuthAdapter)(nil)

// NewOAuthAdapter constructs the OAuth2 REST adapter.
func NewOAuthAdapter(opts OAuthOptions) *OAuthAdapter {
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
	return &OAuthAdapter{
		http:    hc,
		timeout: timeout,
		logger:  logger,
		sources: make(map[sourceKey]oauth2.TokenSource),
	}
}

// Type reports the backend type this adapter serves.
func (a *OAuthAdapter) Type() model.BackendType {
	return model.BackendTypeOAuthREST
}

// UpdateTicket appends the enhancement as a comment on the external ticket.
func (a *OAuthAdapter) UpdateTicket(ctx context.Context, p core.UpdateTicketParams) (core.UpdateResult, error) {
	creds := p.Credentials
	if creds.BaseURL == "" {
		return core.UpdateResult{}, apperrors.PermanentAdapter("backend base URL is not configured")
	}
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.TokenURL == "" {
		return core.UpdateResult{}, apperrors.PermanentAdapter("oauth credentials are incomplete")
	}

	token, err := a.tokenFor(ctx, creds)
	if err != nil {
		// Token endpoint failures are usually recoverable; the backend stays
		// authoritative on bad credentials via a later 401.
		return core.UpdateResult{}, apperrors.Wrap(err, apperrors.ErrCodeTransientProvider, "fetch oauth token")
	}

	header := http.Header{}
	token.SetAuthHeader(&http.Request{Header: header})
	return doUpdate(ctx, a.http, a.timeout, header, p)
}

func (a *OAuthAdapter) tokenFor(ctx context.Context, creds model.BackendCredentials) (*oauth2.Token, error) {
	key := sourceKey{tokenURL: creds.TokenURL, clientID: creds.ClientID}

	a.mu.Lock()
	source, ok := a.sources[key]
	if !ok {
		cfg := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
		}
		// Detached context: the cached source outlives any single request.
		source = cfg.TokenSource(context.WithoutCancel(ctx))
		a.sources[key] = source
	}
	a.mu.Unlock()

	return source.Token()
}
