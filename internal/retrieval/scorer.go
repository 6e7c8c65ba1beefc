package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

const rerankSystemPrompt = `You are a relevance scorer. Given a query and a numbered list of passages,
score each passage for how well it answers the query, from 0.0 (irrelevant)
to 1.0 (directly answers). Return exactly one score per passage, in order.`

// rerankOutput is the schema-constrained scorer response.
type rerankOutput struct {
	Scores []float64 `json:"scores"`
}

// ModelScorer is a cross-encoding relevance scorer backed by a Genkit model.
// One generation call scores all candidate passages for a query.
type ModelScorer struct {
	g     *genkit.Genkit
	model string
}

// NewModelScorer creates a scorer using the provider-qualified model name.
func NewModelScorer(g *genkit.Genkit, model string) *ModelScorer {
	return &ModelScorer{g: g, model: model}
}

// Score implements Scorer.
func (s *ModelScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nPassages:\n", query)
	for i, t := range texts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}

	resp, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.model),
		ai.WithSystem(rerankSystemPrompt),
		ai.WithPrompt(b.String()),
		ai.WithOutputType(rerankOutput{}),
	)
	if err != nil {
		return nil, fmt.Errorf("rerank generation: %w", err)
	}

	var out rerankOutput
	if err := resp.Output(&out); err != nil {
		return nil, fmt.Errorf("parsing rerank output: %w", err)
	}
	if len(out.Scores) != len(texts) {
		return nil, fmt.Errorf("rerank returned %d scores for %d passages", len(out.Scores), len(texts))
	}
	return out.Scores, nil
}
