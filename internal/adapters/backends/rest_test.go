package backends

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
	apperrors "github.com/ticketwise/enhancer/internal/errors"
)

func restParams(baseURL string) core.UpdateTicketParams {
	return core.UpdateTicketParams{
		Credentials: model.BackendCredentials{
			BaseURL:  baseURL,
			APIToken: "api-token",
		},
		ExternalTicketID: "TCK-42",
		Enhancement: model.Enhancement{
			Text:    "Recommended remediation steps.",
			Mode:    model.SynthesisModeAI,
			Sources: []string{"docs", "monitoring"},
		},
	}
}

func TestRESTAdapter_PostsCommentWithAuth(t *testing.T) {
	var got struct {
		path    string
		auth    string
		payload commentPayload
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got.payload))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	adapter := NewRESTAdapter(RESTOptions{HTTPClient: srv.Client()})

	result, err := adapter.UpdateTicket(context.Background(), restParams(srv.URL))

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result.HTTPStatus)
	assert.Equal(t, "/tickets/TCK-42/comments", got.path)
	assert.Equal(t, "Bearer api-token", got.auth)
	assert.Equal(t, "Recommended remediation steps.", got.payload.Body)
	assert.Equal(t, "enhancer", got.payload.Source)
	assert.Equal(t, "ai", got.payload.Mode)
	assert.Equal(t, []string{"docs", "monitoring"}, got.payload.Sources)
}

func TestRESTAdapter_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
		permanent bool
	}{
		{"rate limited", http.StatusTooManyRequests, true, false},
		{"server error", http.StatusInternalServerError, true, false},
		{"bad gateway", http.StatusBadGateway, true, false},
		{"bad request", http.StatusBadRequest, false, true},
		{"unauthorized", http.StatusUnauthorized, false, true},
		{"gone ticket", http.StatusNotFound, false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "backend says no", tc.status)
			}))
			defer srv.Close()

			adapter := NewRESTAdapter(RESTOptions{HTTPClient: srv.Client()})

			result, err := adapter.UpdateTicket(context.Background(), restParams(srv.URL))

			require.Error(t, err)
			assert.Equal(t, tc.status, result.HTTPStatus)
			assert.Equal(t, tc.transient, apperrors.IsTransientProvider(err))
			assert.Equal(t, tc.permanent, apperrors.IsPermanentAdapter(err))
			assert.Equal(t, tc.transient, apperrors.Retryable(err))
		})
	}
}

func TestRESTAdapter_ConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	adapter := NewRESTAdapter(RESTOptions{})

	_, err := adapter.UpdateTicket(context.Background(), restParams(srv.URL))

	require.Error(t, err)
	assert.True(t, apperrors.IsTransientProvider(err))
}

func TestRESTAdapter_MissingCredentialsArePermanent(t *testing.T) {
	adapter := NewRESTAdapter(RESTOptions{})

	p := restParams("https://tickets.example.com")
	p.Credentials.BaseURL = ""
	_, err := adapter.UpdateTicket(context.Background(), p)
	require.Error(t, err)
	assert.True(t, apperrors.IsPermanentAdapter(err))

	p = restParams("https://tickets.example.com")
	p.Credentials.APIToken = ""
	_, err = adapter.UpdateTicket(context.Background(), p)
	require.Error(t, err)
	assert.True(t, apperrors.IsPermanentAdapter(err))
}

func TestRESTAdapter_EscapesTicketID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewRESTAdapter(RESTOptions{HTTPClient: srv.Client()})

	p := restParams(srv.URL)
	p.ExternalTicketID = "PROJ/123"
	_, err := adapter.UpdateTicket(context.Background(), p)

	require.NoError(t, err)
	assert.Equal(t, "/tickets/PROJ%2F123/comments", gotPath)
}

func TestRegistry_ResolvesByBackendType(t *testing.T) {
	rest := NewRESTAdapter(RESTOptions{})
	registry := NewRegistry(rest)

	resolved, err := registry.Resolve(model.BackendTypeREST)
	require.NoError(t, err)
	assert.Same(t, rest, resolved)

	_, err = registry.Resolve(model.BackendType("ftp"))
	require.Error(t, err)
	assert.True(t, apperrors.IsPermanentAdapter(err))
}
