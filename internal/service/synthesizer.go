package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
)

const (
	defaultMaxWords = 500

	fallbackDisclaimer = "AI synthesis was unavailable; the following is an " +
		"automated summary of the context gathered for this ticket."
)

// SynthesizerOptions groups dependencies for the Synthesizer.
type SynthesizerOptions struct {
	Provider core.SynthesisProvider // Optional: nil forces the fallback formatter
	Breaker  *CircuitBreaker        // Optional: defaults to a fresh breaker
	// DefaultMaxWords applies when tenant preferences carry no cap.
	DefaultMaxWords int
	Logger          *slog.Logger
}

// Synthesizer turns a ContextBundle into a bounded Enhancement. It never
// fails: provider errors are absorbed locally, counted against the circuit
// breaker, and answered with the deterministic fallback formatter.
type Synthesizer struct {
	provider core.SynthesisProvider
	breaker  *CircuitBreaker
	maxWords int
	logger   *slog.Logger
}

// NewSynthesizer constructs a Synthesizer.
func NewSynthesizer(opts SynthesizerOptions) *Synthesizer {
	breaker := opts.Breaker
	if breaker == nil {
		breaker = NewCircuitBreaker(BreakerOptions{})
	}
	maxWords := opts.DefaultMaxWords
	if maxWords <= 0 {
		maxWords = defaultMaxWords
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		provider: opts.Provider,
		breaker:  breaker,
		maxWords: maxWords,
		logger:   logger,
	}
}

// Synthesize produces an Enhancement from the bundle under the tenant's
// preferences. The AI path is taken only when the tenant allows it, a
// provider is configured, and the breaker admits the call; every other path
// lands on the fallback formatter, which cannot fail.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	correlationID string,
	bundle *model.ContextBundle,
	prefs model.TenantPreferences,
) model.Enhancement {
	maxWords := prefs.MaxOutputWords
	if maxWords <= 0 {
		maxWords = s.maxWords
	}

	if prefs.AISynthesisEnabled && s.provider != nil {
		if enh, ok := s.tryProvider(ctx, correlationID, bundle, maxWords); ok {
			return enh
		}
	}

	return s.fallback(bundle, maxWords)
}

func (s *Synthesizer) tryProvider(
	ctx context.Context,
	correlationID string,
	bundle *model.ContextBundle,
	maxWords int,
) (model.Enhancement, bool) {
	if !s.breaker.Allow() {
		s.logger.DebugContext(ctx, "breaker open, skipping provider",
			"correlation_id", correlationID)
		return model.Enhancement{}, false
	}

	text, err := s.provider.Synthesize(ctx, core.SynthesisRequest{
		CorrelationID: correlationID,
		Bundle:        bundle,
		MaxWords:      maxWords,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		s.breaker.RecordFailure()
		s.logger.WarnContext(ctx, "provider synthesis failed, falling back",
			"correlation_id", correlationID, "error", err)
		return model.Enhancement{}, false
	}
	s.breaker.RecordSuccess()

	text = capWords(text, maxWords)
	sources := sortedSources(bundle)
	return model.Enhancement{
		Text:      text,
		Mode:      model.SynthesisModeAI,
		Sources:   sources,
		WordCount: len(strings.Fields(text)),
	}, true
}

// fallback deterministically concatenates the bundle's successful entries.
// No external calls: this path always succeeds, so the pipeline always
// produces some enhancement.
func (s *Synthesizer) fallback(bundle *model.ContextBundle, maxWords int) model.Enhancement {
	var b strings.Builder
	b.WriteString(fallbackDisclaimer)
	b.WriteString("\n")

	sources := sortedSources(bundle)
	if len(sources) == 0 {
		b.WriteString("\nNo supporting context could be gathered for this ticket.")
	}
	for _, name := range sources {
		res := bundle.Nodes[name]
		b.WriteString(fmt.Sprintf("\n[%s]\n%s\n", name, renderNodeData(res.Data)))
	}

	text := capWords(b.String(), maxWords)
	return model.Enhancement{
		Text:      text,
		Mode:      model.SynthesisModeFallback,
		Sources:   sources,
		WordCount: len(strings.Fields(text)),
	}
}

func renderNodeData(data json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		return asString
	}
	return string(data)
}

func sortedSources(bundle *model.ContextBundle) []string {
	sources := bundle.Succeeded()
	sort.Strings(sources)
	return sources
}

// capWords truncates text to at most max words, preserving word boundaries.
func capWords(text string, max int) string {
	words := strings.Fields(text)
	if len(words) <= max {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:max], " ")
}
