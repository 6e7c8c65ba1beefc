// Package synthesis turns routed evidence into the final grounded answer.
//
// The synthesizer enforces the grounding contract: refusal decisions are
// honored unconditionally, answers may cite only evidence that was actually
// supplied, and a grounding violation is retried exactly once before the
// answer degrades to an explicit insufficiency acknowledgment.
package synthesis

import (
	"context"
	"log/slog"

	"github.com/folio0/folio/internal/agents"
	"github.com/folio0/folio/internal/config"
	"github.com/folio0/folio/internal/evidence"
	"github.com/folio0/folio/internal/orchestrator"
)

const (
	// NoEvidenceMessage is returned when every invoked agent came back empty.
	NoEvidenceMessage = "I don't have any information about that in the material available to me."

	// InsufficientEvidenceMessage is the degraded answer after a repeated
	// grounding violation.
	InsufficientEvidenceMessage = "I can't give a reliably sourced answer to that with the material available to me."
)

// Answer is the final user-facing output of a turn.
type Answer struct {
	Text string `json:"text"`
	// Citations lists the evidence chunk ids the answer relies on. Empty
	// when Refused is set or no evidence was available.
	Citations []string `json:"citations"`
	Refused   bool     `json:"refused"`
}

// Draft is one generation attempt before grounding verification.
type Draft struct {
	Text      string
	Citations []string
}

// Stats reports what grounding enforcement did during one Synthesize call,
// for trace emission.
type Stats struct {
	// GroundingViolations counts drafts rejected by the citation check.
	GroundingViolations int
}

// Generator produces a draft answer from the query and the merged evidence.
// strict is set on the retry after a grounding violation and tells the
// generator to restrict itself to verbatim-supported claims.
type Generator interface {
	Generate(ctx context.Context, query string, chunks []evidence.Chunk, strict bool) (Draft, error)
}

// Synthesizer applies the grounding policy around a Generator.
type Synthesizer struct {
	gen     Generator
	refusal string
	logger  *slog.Logger
}

// New creates a synthesizer. refusalMessage is the canonical refusal text.
func New(gen Generator, refusalMessage string, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{gen: gen, refusal: refusalMessage, logger: logger}
}

// Synthesize produces the turn's answer from the routing decision and the
// agent bundles, plus the enforcement stats for tracing. It returns an error
// only when the context is done; every model-side failure degrades to a
// well-defined answer instead.
func (s *Synthesizer) Synthesize(ctx context.Context, query orchestrator.Query, decision orchestrator.Decision, bundles []agents.Bundle) (Answer, Stats, error) {
	var stats Stats

	if decision.Action == orchestrator.ActionRefuse {
		return Answer{Text: s.refusal, Refused: true}, stats, nil
	}

	merged := s.merge(decision, bundles)
	if len(merged) == 0 {
		return Answer{Text: NoEvidenceMessage}, stats, nil
	}

	known := make(map[string]struct{}, len(merged))
	for _, c := range merged {
		known[c.ID] = struct{}{}
	}

	// One initial attempt plus the fixed number of grounding retries.
	for attempt := 0; attempt <= config.GroundingRetryLimit; attempt++ {
		strict := attempt > 0
		draft, err := s.gen.Generate(ctx, query.Text, merged, strict)
		if err != nil {
			if ctx.Err() != nil {
				return Answer{}, stats, ctx.Err()
			}
			s.logger.Warn("answer generation failed", "attempt", attempt, "error", err)
			continue
		}

		if bad, ok := verifyGrounding(draft, known); !ok {
			stats.GroundingViolations++
			s.logger.Warn("grounding violation",
				"attempt", attempt, "citation", bad, "evidence", len(merged))
			continue
		}
		return Answer{Text: draft.Text, Citations: draft.Citations}, stats, nil
	}

	return Answer{Text: InsufficientEvidenceMessage}, stats, nil
}

// merge combines the decision's cached evidence (bypass path) with the agent
// bundles, dedupes across agents keeping the best rerank score, and restores
// the deterministic ordering.
func (s *Synthesizer) merge(decision orchestrator.Decision, bundles []agents.Bundle) []evidence.Chunk {
	var merged []evidence.Chunk
	if decision.Action == orchestrator.ActionBypass {
		merged = append(merged, decision.Cached...)
	}
	for _, b := range bundles {
		merged = append(merged, b.Chunks...)
	}
	merged = evidence.Dedupe(merged)
	evidence.SortRanked(merged)
	return merged
}

// verifyGrounding checks the draft against the grounding contract: every
// cited id must exist in the supplied evidence, and a factual draft over
// non-empty evidence must cite something. It returns the offending citation
// when a dangling reference caused the failure.
func verifyGrounding(draft Draft, known map[string]struct{}) (string, bool) {
	if len(draft.Citations) == 0 && len(known) > 0 {
		return "", false
	}
	for _, id := range draft.Citations {
		if _, ok := known[id]; !ok {
			return id, false
		}
	}
	return "", true
}
