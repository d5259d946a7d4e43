package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ticketwise/enhancer/internal/data/cryptoutil"
	"github.com/ticketwise/enhancer/internal/domain/model"
	apperrors "github.com/ticketwise/enhancer/internal/errors"
)

// TenantRepo reads tenant records. Tenants are provisioned by an external
// process; the orchestration core only ever reads them.
type TenantRepo struct {
	DB        *sql.DB
	encryptor cryptoutil.Encryptor
}

// NewTenantRepo creates a TenantRepo. A nil encryptor falls back to the noop
// encryptor, which only decodes noop-prefixed credential blobs.
func NewTenantRepo(db *sql.DB, enc cryptoutil.Encryptor) *TenantRepo {
	if enc == nil {
		enc = cryptoutil.NoopEncryptor{}
	}
	return &TenantRepo{DB: db, encryptor: enc}
}

// GetByID fetches a tenant and decrypts its backend credentials.
func (r *TenantRepo) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, name, backend_type, active, signing_secret, credentials,
		       preferences, ticket_id_expr, created_at, updated_at
		FROM tenants
		WHERE id = $1`, id)

	var t model.Tenant
	var credBlob string
	var prefs []byte
	err := row.Scan(
		&t.ID, &t.Name, &t.BackendType, &t.Active, &t.SigningSecret,
		&credBlob, &prefs, &t.TicketIDExpr, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("tenant %s not found", id)
		}
		return nil, MapDBError(err)
	}

	if len(prefs) > 0 {
		if unmarshalErr := json.Unmarshal(prefs, &t.Preferences); unmarshalErr != nil {
			return nil, fmt.Errorf("decode tenant preferences: %w", unmarshalErr)
		}
	}

	if credBlob != "" {
		plain, decErr := r.encryptor.Decrypt(credBlob)
		if decErr != nil {
			return nil, fmt.Errorf("decrypt tenant credentials: %w", decErr)
		}
		if unmarshalErr := json.Unmarshal(plain, &t.Credentials); unmarshalErr != nil {
			return nil, fmt.Errorf("decode tenant credentials: %w", unmarshalErr)
		}
	}

	return &t, nil
}
