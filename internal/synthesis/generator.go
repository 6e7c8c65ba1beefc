package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/folio0/folio/internal/evidence"
)

const answerSystemPrompt = `You answer questions about %s on their behalf, in the third person,
using ONLY the numbered evidence passages provided. Rules:

- Every factual claim must come from the evidence. Do not use outside
  knowledge and do not speculate.
- List in "citations" the id of every passage you relied on. Cite only ids
  that appear in the evidence. If the evidence does not cover the question,
  say so plainly and cite nothing.
- Keep the answer concise and conversational.`

const strictSuffix = `

Your previous draft cited material that was not in the evidence. This time,
state only what a passage says near-verbatim, and double-check that every
citation id is copied exactly from the evidence list.`

// answerOutput is the schema-constrained generation result.
type answerOutput struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
}

// ModelGenerator drafts grounded answers with a Genkit model.
type ModelGenerator struct {
	g       *genkit.Genkit
	model   string
	profile string
}

// NewModelGenerator creates a generator bound to a provider-qualified model
// name. profileName names the individual the assistant represents.
func NewModelGenerator(g *genkit.Genkit, model, profileName string) *ModelGenerator {
	return &ModelGenerator{g: g, model: model, profile: profileName}
}

// Generate implements Generator.
func (m *ModelGenerator) Generate(ctx context.Context, query string, chunks []evidence.Chunk, strict bool) (Draft, error) {
	system := fmt.Sprintf(answerSystemPrompt, m.profile)
	if strict {
		system += strictSuffix
	}

	var b strings.Builder
	b.WriteString("Evidence:\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, "[id=%s source=%s] %s\n", c.ID, c.SourceID, c.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", query)

	resp, err := genkit.Generate(ctx, m.g,
		ai.WithModelName(m.model),
		ai.WithSystem(system),
		ai.WithPrompt(b.String()),
		ai.WithOutputType(answerOutput{}),
	)
	if err != nil {
		return Draft{}, fmt.Errorf("answer generation: %w", err)
	}

	var out answerOutput
	if err := resp.Output(&out); err != nil {
		return Draft{}, fmt.Errorf("parsing answer output: %w", err)
	}
	return Draft{Text: out.Answer, Citations: out.Citations}, nil
}
