// Package retrieval implements the two-stage retrieval and reranking engine.
//
// Stage one fetches a candidate superset (topK x multiplier) from an
// evidence adapter by similarity. Stage two reranks (query, chunk) pairs
// with a cross-encoding Scorer. The final ordering is deterministic:
// rerank score desc, similarity desc, source id asc, chunk id asc.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/folio0/folio/internal/evidence"
)

// Scorer assigns a relevance score to each (query, text) pair.
// Scores are on an arbitrary scale; only their ordering matters.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Engine turns a sub-query into a ranked, deduplicated chunk list.
// Safe for concurrent use.
type Engine struct {
	scorer      Scorer
	multiplier  int
	tokenBudget int
	logger      *slog.Logger
}

// NewEngine creates an engine. multiplier is the candidate superset factor M;
// tokenBudget caps chunk length before scoring.
func NewEngine(scorer Scorer, multiplier, tokenBudget int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return &Engine{
		scorer:      scorer,
		multiplier:  multiplier,
		tokenBudget: tokenBudget,
		logger:      logger,
	}
}

// Search retrieves up to topK chunks for subQuery from the adapter.
// An empty result is a valid outcome. If the scorer fails, ordering degrades
// to first-stage similarity rather than failing the search.
func (e *Engine) Search(ctx context.Context, subQuery string, adapter evidence.Adapter, topK int) ([]evidence.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	candidates, err := adapter.Query(ctx, subQuery, topK*e.multiplier)
	if err != nil {
		return nil, fmt.Errorf("adapter %s: %w", adapter.Name(), err)
	}
	candidates = evidence.Dedupe(candidates)
	if len(candidates) == 0 {
		return nil, nil
	}

	// Cap chunk length before scoring. Truncation happens at sentence
	// boundaries, never mid-token.
	texts := make([]string, len(candidates))
	for i := range candidates {
		candidates[i].Text = TruncateAtSentence(candidates[i].Text, e.tokenBudget)
		texts[i] = candidates[i].Text
	}

	scores, err := e.scorer.Score(ctx, subQuery, texts)
	switch {
	case err != nil:
		e.logger.Warn("rerank failed, falling back to similarity order",
			"adapter", adapter.Name(), "error", err)
	case len(scores) != len(candidates):
		e.logger.Warn("rerank returned wrong score count, falling back to similarity order",
			"adapter", adapter.Name(), "want", len(candidates), "got", len(scores))
	default:
		for i := range candidates {
			candidates[i].Rerank = scores[i]
			candidates[i].Reranked = true
		}
	}

	evidence.SortRanked(candidates)

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}
