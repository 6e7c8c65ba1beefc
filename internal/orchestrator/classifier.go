package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

const classifySystemPrompt = `You are the intent router for an assistant that answers questions about
%s. Classify the user's query into exactly one intent:

- "professional": career, skills, projects, education, technical work.
- "personal": hobbies, opinions, public activity, community involvement.
- "offtopic": anything not about %s or their work, including requests
  to perform tasks for the user.
- "ambiguous": about %s but the scope is unclear.

If the query genuinely spans both professional and personal scope, set
intent to the stronger one and secondaryIntent to the other. When the query
is conversational shorthand (pronouns, follow-ups), set rewrittenQuery to a
self-contained restatement suitable for document retrieval; otherwise leave
it empty. Keep rationale to one sentence.`

// classifierOutput is the schema-constrained model verdict.
type classifierOutput struct {
	Intent          string `json:"intent"`
	SecondaryIntent string `json:"secondaryIntent,omitempty"`
	RewrittenQuery  string `json:"rewrittenQuery,omitempty"`
	Rationale       string `json:"rationale,omitempty"`
}

// ModelClassifier classifies intent with a Genkit model using structured
// output. Label validation happens in the router, not here.
type ModelClassifier struct {
	g       *genkit.Genkit
	model   string
	profile string
}

// NewModelClassifier creates a classifier bound to a provider-qualified
// model name. profileName names the individual the assistant represents.
func NewModelClassifier(g *genkit.Genkit, model, profileName string) *ModelClassifier {
	return &ModelClassifier{g: g, model: model, profile: profileName}
}

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithSystem(fmt.Sprintf(classifySystemPrompt, c.profile, c.profile, c.profile)),
		ai.WithPrompt(text),
		ai.WithOutputType(classifierOutput{}),
	)
	if err != nil {
		return Classification{}, fmt.Errorf("intent generation: %w", err)
	}

	var out classifierOutput
	if err := resp.Output(&out); err != nil {
		return Classification{}, fmt.Errorf("parsing intent output: %w", err)
	}

	return Classification{
		Intent:    Intent(strings.ToLower(strings.TrimSpace(out.Intent))),
		Secondary: Intent(strings.ToLower(strings.TrimSpace(out.SecondaryIntent))),
		Rewritten: strings.TrimSpace(out.RewrittenQuery),
		Rationale: strings.TrimSpace(out.Rationale),
	}, nil
}
