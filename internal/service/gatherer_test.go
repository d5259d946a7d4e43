package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketwise/enhancer/internal/core"
)

func staticNode(name string, data json.RawMessage) core.ContextNode {
	return NodeFunc{
		NodeName: name,
		Fn: func(ctx context.Context, req core.ContextRequest) (json.RawMessage, error) {
			return data, nil
		},
	}
}

func failingNode(name string, err error) core.ContextNode {
	return NodeFunc{
		NodeName: name,
		Fn: func(ctx context.Context, req core.ContextRequest) (json.RawMessage, error) {
			return nil, err
		},
	}
}

// hangingNode blocks until its context is done.
func hangingNode(name string) core.ContextNode {
	return NodeFunc{
		NodeName: name,
		Fn: func(ctx context.Context, req core.ContextRequest) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

func testGatherRequest() core.ContextRequest {
	return core.ContextRequest{
		CorrelationID:    "corr-1",
		TenantID:         "tenant-1",
		ExternalTicketID: "TCK-42",
	}
}

func TestGatherer_MergesAllSuccessfulNodes(t *testing.T) {
	g := NewGatherer(GathererOptions{
		Nodes: []core.ContextNode{
			staticNode("docs", json.RawMessage(`{"a":1}`)),
			staticNode("inventory", json.RawMessage(`{"b":2}`)),
		},
	})

	bundle := g.Gather(context.Background(), testGatherRequest())

	require.Len(t, bundle.Nodes, 2)
	assert.True(t, bundle.Nodes["docs"].Success)
	assert.JSONEq(t, `{"a":1}`, string(bundle.Nodes["docs"].Data))
	assert.True(t, bundle.Nodes["inventory"].Success)

	succeeded, failed := bundle.Counts()
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 0, failed)
}

func TestGatherer_NodeFailureIsolatedFromSiblings(t *testing.T) {
	g := NewGatherer(GathererOptions{
		Nodes: []core.ContextNode{
			staticNode("docs", json.RawMessage(`{"a":1}`)),
			failingNode("inventory", errors.New("upstream 500")),
		},
	})

	bundle := g.Gather(context.Background(), testGatherRequest())

	require.Len(t, bundle.Nodes, 2)
	assert.True(t, bundle.Nodes["docs"].Success)
	assert.False(t, bundle.Nodes["inventory"].Success)
	assert.Equal(t, "upstream 500", bundle.Nodes["inventory"].Error)
}

func TestGatherer_HangingNodeRecordedAsTimeout(t *testing.T) {
	g := NewGatherer(GathererOptions{
		Nodes: []core.ContextNode{
			staticNode("docs", json.RawMessage(`{"a":1}`)),
			hangingNode("monitoring"),
		},
		NodeTimeout:       20 * time.Millisecond,
		AggregateDeadline: time.Second,
	})

	start := time.Now()
	bundle := g.Gather(context.Background(), testGatherRequest())
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 500*time.Millisecond, "node timeout must not consume the aggregate deadline")
	assert.True(t, bundle.Nodes["docs"].Success)
	assert.False(t, bundle.Nodes["monitoring"].Success)
	assert.Equal(t, "timeout", bundle.Nodes["monitoring"].Error)
}

func TestGatherer_AggregateDeadlineFinalizesPendingSlots(t *testing.T) {
	g := NewGatherer(GathererOptions{
		Nodes: []core.ContextNode{
			staticNode("docs", json.RawMessage(`{"a":1}`)),
			hangingNode("slow"),
		},
		NodeTimeout:       time.Minute,
		AggregateDeadline: 30 * time.Millisecond,
	})

	bundle := g.Gather(context.Background(), testGatherRequest())

	require.Len(t, bundle.Nodes, 2)
	assert.True(t, bundle.Nodes["docs"].Success)
	assert.Equal(t, "timeout", bundle.Nodes["slow"].Error)
}

func TestGatherer_ZeroSuccessBundleIsValid(t *testing.T) {
	g := NewGatherer(GathererOptions{
		Nodes: []core.ContextNode{
			failingNode("docs", errors.New("boom")),
			failingNode("inventory", errors.New("boom")),
		},
	})

	bundle := g.Gather(context.Background(), testGatherRequest())

	succeeded, failed := bundle.Counts()
	assert.Equal(t, 0, succeeded)
	assert.Equal(t, 2, failed)
	assert.Empty(t, bundle.Succeeded())
}

func TestGatherer_NoNodesReturnsEmptyBundle(t *testing.T) {
	g := NewGatherer(GathererOptions{})

	bundle := g.Gather(context.Background(), testGatherRequest())

	require.NotNil(t, bundle)
	assert.Empty(t, bundle.Nodes)
}
