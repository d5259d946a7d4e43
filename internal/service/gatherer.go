package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
)

const (
	defaultNodeTimeout       = 8 * time.Second
	defaultAggregateDeadline = 30 * time.Second
	errTimeout               = "timeout"
)

// GathererOptions groups dependencies for the Gatherer.
type GathererOptions struct {
	Nodes []core.ContextNode // Required: the K independent lookup operations

	// NodeTimeout bounds each node's Fetch independently. Defaults to 8s.
	NodeTimeout time.Duration
	// AggregateDeadline bounds the whole gather. Node timeouts are
	// independent sub-timeouts nested inside it. Defaults to 30s.
	AggregateDeadline time.Duration
	Logger            *slog.Logger
}

// Gatherer runs the configured context nodes concurrently and merges their
// results into a ContextBundle. Failures are isolated per node: one node
// failing or hanging never delays or cancels its siblings, and a bundle with
// zero successful nodes is a valid result.
type Gatherer struct {
	nodes             []core.ContextNode
	nodeTimeout       time.Duration
	aggregateDeadline time.Duration
	logger            *slog.Logger
}

// NewGatherer constructs a Gatherer.
func NewGatherer(opts GathererOptions) *Gatherer {
	nodeTimeout := opts.NodeTimeout
	if nodeTimeout <= 0 {
		nodeTimeout = defaultNodeTimeout
	}
	aggregate := opts.AggregateDeadline
	if aggregate <= 0 {
		aggregate = defaultAggregateDeadline
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatherer{
		nodes:             opts.Nodes,
		nodeTimeout:       nodeTimeout,
		aggregateDeadline: aggregate,
		logger:            logger,
	}
}

type nodeOutcome struct {
	name   string
	result model.NodeResult
}

// Gather runs all nodes against a shared deadline and returns the finalized
// bundle. It never returns an error: each node's slot records either data or
// the failure reason, and slots still pending when the aggregate deadline
// elapses are recorded as timeouts. Late results are discarded.
func (g *Gatherer) Gather(ctx context.Context, req core.ContextRequest) *model.ContextBundle {
	bundle := model.NewContextBundle(len(g.nodes))
	if len(g.nodes) == 0 {
		return bundle
	}

	aggCtx, cancel := context.WithTimeout(ctx, g.aggregateDeadline)
	defer cancel()

	// Buffered so abandoned nodes can still send without leaking goroutines.
	results := make(chan nodeOutcome, len(g.nodes))

	for _, node := range g.nodes {
		go g.runNode(aggCtx, node, req, results)
	}

	for pending := len(g.nodes); pending > 0; pending-- {
		select {
		case out := <-results:
			// Each slot is written exactly once: runNode sends one outcome
			// per node and names are unique.
			bundle.Nodes[out.name] = out.result
		case <-aggCtx.Done():
			g.finalizePending(bundle)
			g.logGathered(ctx, req.CorrelationID, bundle)
			return bundle
		}
	}

	g.logGathered(ctx, req.CorrelationID, bundle)
	return bundle
}

// runNode executes one node under its own timeout nested in the aggregate
// deadline and reports a single outcome.
func (g *Gatherer) runNode(ctx context.Context, node core.ContextNode, req core.ContextRequest, out chan<- nodeOutcome) {
	nodeCtx, cancel := context.WithTimeout(ctx, g.nodeTimeout)
	defer cancel()

	data, err := node.Fetch(nodeCtx, req)
	switch {
	case err == nil:
		out <- nodeOutcome{name: node.Name(), result: model.NodeResult{Success: true, Data: data}}
	case nodeCtx.Err() != nil:
		out <- nodeOutcome{name: node.Name(), result: model.NodeResult{Success: false, Error: errTimeout}}
	default:
		out <- nodeOutcome{name: node.Name(), result: model.NodeResult{Success: false, Error: err.Error()}}
	}
}

// finalizePending marks every node without a slot as timed out. Called when
// the aggregate deadline elapses; the bundle is complete immediately after.
func (g *Gatherer) finalizePending(bundle *model.ContextBundle) {
	for _, node := range g.nodes {
		if _, ok := bundle.Nodes[node.Name()]; !ok {
			bundle.Nodes[node.Name()] = model.NodeResult{Success: false, Error: errTimeout}
		}
	}
}

func (g *Gatherer) logGathered(ctx context.Context, correlationID string, bundle *model.ContextBundle) {
	succeeded, failed := bundle.Counts()
	g.logger.InfoContext(ctx, "context gathered",
		"correlation_id", correlationID,
		"nodes_succeeded", succeeded,
		"nodes_failed", failed)
}

// NodeFunc adapts a function to the ContextNode interface.
type NodeFunc struct {
	NodeName string
	Fn       func(ctx context.Context, req core.ContextRequest) (json.RawMessage, error)
}

// Name returns the node name.
func (n NodeFunc) Name() string { return n.NodeName }

// Fetch invokes the wrapped function.
func (n NodeFunc) Fetch(ctx context.Context, req core.ContextRequest) (json.RawMessage, error) {
	return n.Fn(ctx, req)
}
