// Package contextnodes provides the built-in context gathering nodes: the
// tenant-scoped similar-ticket lookup plus generic HTTP lookups used for
// documentation search, inventory cross-reference, and monitoring fetch.
package contextnodes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ticketwise/enhancer/internal/core"
)

const maxNodeBodyBytes = 256 * 1024

// SimilarTicketsNode surfaces the tenant's recent completed enhancements so
// the synthesis provider can reference prior resolutions.
type SimilarTicketsNode struct {
	History core.HistoryRepository
	// Limit bounds how many rows are returned. Defaults to 5.
	Limit int
}

var _ core.ContextNode = (*SimilarTicketsNode)(nil)

// Name returns the node name.
func (n *SimilarTicketsNode) Name() string { return "similar_tickets" }

// Fetch queries recent completed history rows within the tenant's scope.
func (n *SimilarTicketsNode) Fetch(ctx context.Context, req core.ContextRequest) (json.RawMessage, error) {
	limit := n.Limit
	if limit <= 0 {
		limit = 5
	}
	histories, err := n.History.FindSimilar(ctx, req.TenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("find similar tickets: %w", err)
	}

	type entry struct {
		CorrelationID  string `json:"correlation_id"`
		SynthesisMode  string `json:"synthesis_mode"`
		CompletedAt    string `json:"completed_at"`
		NodesSucceeded int    `json:"nodes_succeeded"`
	}
	entries := make([]entry, 0, len(histories))
	for _, h := range histories {
		e := entry{
			CorrelationID:  h.CorrelationID,
			SynthesisMode:  string(h.SynthesisMode),
			NodesSucceeded: h.ContextNodesSucceeded,
		}
		if h.CompletedAt != nil {
			e.CompletedAt = h.CompletedAt.UTC().Format(time.RFC3339)
		}
		entries = append(entries, e)
	}
	return json.Marshal(entries)
}

// HTTPLookupNode is a generic GET lookup against an external source of
// context (documentation index, asset inventory, monitoring facade). The
// ticket id and tenant id are passed as query parameters; the response body
// is returned verbatim as the node's data.
type HTTPLookupNode struct {
	NodeName string
	BaseURL  string
	APIToken string
	Client   *http.Client
}

var _ core.ContextNode = (*HTTPLookupNode)(nil)

// NewHTTPLookupNode builds a lookup node. An empty base URL is allowed at
// construction; Fetch reports it as a node failure so the bundle records the
// misconfiguration without affecting siblings.
func NewHTTPLookupNode(name, baseURL, apiToken string, client *http.Client) *HTTPLookupNode {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPLookupNode{NodeName: name, BaseURL: baseURL, APIToken: apiToken, Client: client}
}

// Name returns the node name.
func (n *HTTPLookupNode) Name() string { return n.NodeName }

// Fetch performs the lookup. Timeouts come from the gatherer's per-node
// context; any non-200 response is a node failure.
func (n *HTTPLookupNode) Fetch(ctx context.Context, req core.ContextRequest) (json.RawMessage, error) {
	if strings.TrimSpace(n.BaseURL) == "" {
		return nil, fmt.Errorf("node %s has no source URL configured", n.NodeName)
	}
	u, err := url.Parse(n.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse node URL: %w", err)
	}
	q := u.Query()
	q.Set("ticket_id", req.ExternalTicketID)
	q.Set("tenant_id", req.TenantID)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if n.APIToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+n.APIToken)
	}

	resp, err := n.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", n.NodeName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxNodeBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read lookup response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup %s returned status %d", n.NodeName, resp.StatusCode)
	}
	if !json.Valid(body) {
		// Wrap non-JSON sources so the bundle stays a JSON document.
		return json.Marshal(map[string]string{"text": string(body)})
	}
	return json.RawMessage(body), nil
}
