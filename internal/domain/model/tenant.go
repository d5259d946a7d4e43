package model

import (
	"errors"
	"strings"
	"time"
)

// BackendType selects which outbound updater adapter a tenant uses.
type BackendType string

const (
	// BackendTypeREST is the generic token-authenticated REST backend.
	BackendTypeREST BackendType = "rest"
	// BackendTypeOAuthREST is the OAuth2 client-credentials REST backend.
	BackendTypeOAuthREST BackendType = "oauth_rest"
)

// Valid returns true if the BackendType is one the adapter registry can serve.
func (b BackendType) Valid() bool {
	return b == BackendTypeREST || b == BackendTypeOAuthREST
}

// TenantPreferences control synthesis output per tenant.
type TenantPreferences struct {
	// MaxOutputWords caps the enhancement length. Zero means the configured
	// engine default applies.
	MaxOutputWords int `json:"max_output_words"`

	// AISynthesisEnabled disables the AI provider entirely when false,
	// forcing the deterministic formatter.
	AISynthesisEnabled bool `json:"ai_synthesis_enabled"`
}

// BackendCredentials are the decrypted credentials for a tenant's ticketing
// backend. Values are opaque to the core and interpreted by adapters.
type BackendCredentials struct {
	BaseURL      string `json:"base_url"`
	APIToken     string `json:"api_token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	TokenURL     string `json:"token_url,omitempty"`
}

// Tenant is the isolation boundary. Tenants are provisioned externally and
// read-only to the orchestration core.
type Tenant struct {
	ID            string            `json:"id"             db:"id"`
	Name          string            `json:"name"           db:"name"`
	BackendType   BackendType       `json:"backend_type"   db:"backend_type"`
	Active        bool              `json:"active"         db:"active"`
	SigningSecret string            `json:"-"              db:"signing_secret"`
	Credentials   BackendCredentials `json:"-"`
	Preferences   TenantPreferences `json:"preferences"    db:"preferences"`
	// TicketIDExpr is a JMESPath expression extracting the external ticket id
	// from this backend's webhook payload shape.
	TicketIDExpr string    `json:"ticket_id_expr" db:"ticket_id_expr"`
	CreatedAt    time.Time `json:"created_at"     db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"     db:"updated_at"`
}

// Validate checks the invariants the orchestration core relies on.
func (t *Tenant) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("tenant id is required")
	}
	if !t.BackendType.Valid() {
		return errors.New("unknown backend type")
	}
	if strings.TrimSpace(t.SigningSecret) == "" {
		return errors.New("signing secret is required")
	}
	return nil
}
