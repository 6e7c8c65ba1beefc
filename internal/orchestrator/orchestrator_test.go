package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio0/folio/internal/agents"
	"github.com/folio0/folio/internal/evidence"
	"github.com/folio0/folio/internal/log"
)

type fakeClassifier struct {
	cls   Classification
	err   error
	delay time.Duration
}

func (f *fakeClassifier) Classify(ctx context.Context, _ string) (Classification, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Classification{}, ctx.Err()
		}
	}
	return f.cls, f.err
}

func newTestRouter(c Classifier) *Router {
	return NewRouter(c, 2, time.Second, log.NewNop())
}

func turnWith(intent Intent, chunks ...evidence.Chunk) Turn {
	return Turn{Intent: intent, Evidence: chunks, At: time.Now()}
}

func TestRoute_OfftopicRefusesBeforeAgents(t *testing.T) {
	offtopic := []string{
		"Can you help me write my homework?",
		"What's the weather tomorrow?",
		"Translate this paragraph to French.",
		"Write me a poem about the sea.",
	}
	r := newTestRouter(&fakeClassifier{cls: Classification{Intent: IntentOfftopic}})

	for _, q := range offtopic {
		d := r.Route(context.Background(), Query{Text: q}, nil)
		assert.Equal(t, ActionRefuse, d.Action, "query %q", q)
		assert.Equal(t, IntentOfftopic, d.Intent)
		assert.Empty(t, d.Agents, "refusal must not select agents")
		assert.Empty(t, d.Cached)
	}
}

func TestRoute_ProfessionalSelectsProfessionalAgent(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{Intent: IntentProfessional}})

	d := r.Route(context.Background(), Query{Text: "What are his technical skills?"}, nil)

	assert.Equal(t, ActionInvoke, d.Action)
	assert.Equal(t, IntentProfessional, d.Intent)
	assert.Equal(t, []agents.Kind{agents.KindProfessional}, d.Agents)
}

func TestRoute_PersonalSelectsPersonaAgent(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{Intent: IntentPersonal}})

	d := r.Route(context.Background(), Query{Text: "What does he do outside work?"}, nil)

	assert.Equal(t, ActionInvoke, d.Action)
	assert.Equal(t, []agents.Kind{agents.KindPersona}, d.Agents)
}

func TestRoute_TieInvokesBothAgents(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{
		Intent:    IntentProfessional,
		Secondary: IntentPersonal,
	}})

	d := r.Route(context.Background(), Query{Text: "Tell me about him."}, nil)

	assert.Equal(t, ActionInvoke, d.Action)
	assert.ElementsMatch(t, []agents.Kind{agents.KindProfessional, agents.KindPersona}, d.Agents)
}

func TestRoute_AmbiguousDefaultsToProfessional(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{Intent: IntentAmbiguous}})

	d := r.Route(context.Background(), Query{Text: "What about databases?"}, nil)

	assert.Equal(t, IntentProfessional, d.Intent)
	assert.Equal(t, []agents.Kind{agents.KindProfessional}, d.Agents)
}

func TestRoute_AmbiguousFollowsRecentPersonalScope(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{Intent: IntentAmbiguous}})
	window := []Turn{turnWith(IntentProfessional), turnWith(IntentPersonal)}

	d := r.Route(context.Background(), Query{Text: "And what else?"}, window)

	assert.Equal(t, IntentPersonal, d.Intent)
	assert.Equal(t, []agents.Kind{agents.KindPersona}, d.Agents)
}

func TestRoute_ClassifierErrorDegradesToAmbiguousDefault(t *testing.T) {
	r := newTestRouter(&fakeClassifier{err: errors.New("model unavailable")})

	d := r.Route(context.Background(), Query{Text: "skills?"}, nil)

	assert.Equal(t, ActionInvoke, d.Action)
	assert.Equal(t, IntentProfessional, d.Intent, "error degrades to the ambiguous default")
}

func TestRoute_ClassifierTimeoutDegrades(t *testing.T) {
	slow := &fakeClassifier{delay: 200 * time.Millisecond, cls: Classification{Intent: IntentOfftopic}}
	r := NewRouter(slow, 2, 10*time.Millisecond, log.NewNop())

	d := r.Route(context.Background(), Query{Text: "skills?"}, nil)

	assert.Equal(t, ActionInvoke, d.Action, "timeout must not refuse or fail the turn")
	assert.Equal(t, IntentProfessional, d.Intent)
}

func TestRoute_UnknownLabelDegrades(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{Intent: Intent("gossip")}})

	d := r.Route(context.Background(), Query{Text: "skills?"}, nil)

	assert.Equal(t, IntentProfessional, d.Intent)
}

func TestRoute_BypassReusesRecentEvidence(t *testing.T) {
	cached := evidence.Chunk{ID: "c1", SourceID: "resume", Text: "Go, Postgres"}
	r := newTestRouter(&fakeClassifier{cls: Classification{Intent: IntentProfessional}})
	window := []Turn{turnWith(IntentProfessional, cached)}

	d := r.Route(context.Background(), Query{Text: "Which languages again?"}, window)

	assert.Equal(t, ActionBypass, d.Action)
	require.Len(t, d.Cached, 1)
	assert.Equal(t, "c1", d.Cached[0].ID)
	assert.Empty(t, d.Agents, "bypass must not invoke agents")
}

func TestRoute_BypassRequiresMatchingIntent(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{Intent: IntentPersonal}})
	window := []Turn{turnWith(IntentProfessional, evidence.Chunk{ID: "c1"})}

	d := r.Route(context.Background(), Query{Text: "hobbies?"}, window)

	assert.Equal(t, ActionInvoke, d.Action)
}

func TestRoute_BypassRequiresEvidence(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{Intent: IntentProfessional}})
	window := []Turn{turnWith(IntentProfessional)}

	d := r.Route(context.Background(), Query{Text: "skills?"}, window)

	assert.Equal(t, ActionInvoke, d.Action)
}

func TestRoute_BypassHonorsRecencyWindow(t *testing.T) {
	cached := evidence.Chunk{ID: "old"}
	r := NewRouter(&fakeClassifier{cls: Classification{Intent: IntentProfessional}},
		1, time.Second, log.NewNop())
	window := []Turn{
		turnWith(IntentProfessional, cached),
		turnWith(IntentPersonal),
	}

	d := r.Route(context.Background(), Query{Text: "skills?"}, window)

	assert.Equal(t, ActionInvoke, d.Action,
		"evidence older than the recency window must not short-circuit retrieval")
}

func TestRoute_TieSkipsBypass(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{
		Intent:    IntentProfessional,
		Secondary: IntentPersonal,
	}})
	window := []Turn{turnWith(IntentProfessional, evidence.Chunk{ID: "c1"})}

	d := r.Route(context.Background(), Query{Text: "tell me about him"}, window)

	assert.Equal(t, ActionInvoke, d.Action,
		"one cached scope cannot satisfy a query spanning both scopes")
	assert.Len(t, d.Agents, 2)
}

func TestRoute_RewrittenQueryPropagates(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{
		Intent:    IntentProfessional,
		Rewritten: "technical skills and languages",
	}})

	d := r.Route(context.Background(), Query{Text: "what about those?"}, nil)

	assert.Equal(t, "technical skills and languages", d.Rewritten)
}

func TestRoute_RewrittenDefaultsToOriginal(t *testing.T) {
	r := newTestRouter(&fakeClassifier{cls: Classification{Intent: IntentProfessional}})

	d := r.Route(context.Background(), Query{Text: "What are his skills?"}, nil)

	assert.Equal(t, "What are his skills?", d.Rewritten)
}
