// Package orchestrator routes each query before any retrieval happens.
//
// The router classifies intent into a closed set, applies the off-topic
// refusal gate, checks whether recent session evidence already covers the
// query, and selects the retrieval agents to invoke. Routing only reads the
// session window; it never writes to it.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/folio0/folio/internal/agents"
	"github.com/folio0/folio/internal/evidence"
)

// Intent is a classified query intent. The set is closed.
type Intent string

const (
	IntentProfessional Intent = "professional"
	IntentPersonal     Intent = "personal"
	IntentOfftopic     Intent = "offtopic"
	IntentAmbiguous    Intent = "ambiguous"
)

// parseIntent maps a classifier label onto the closed intent set.
func parseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentProfessional, IntentPersonal, IntentOfftopic, IntentAmbiguous:
		return Intent(s), true
	}
	return "", false
}

// Action is the routing outcome for a turn.
type Action string

const (
	// ActionInvoke runs the selected retrieval agents.
	ActionInvoke Action = "invoke"
	// ActionBypass skips retrieval and reuses cached session evidence.
	ActionBypass Action = "bypass"
	// ActionRefuse short-circuits the turn with the canonical refusal.
	ActionRefuse Action = "refuse"
)

// Query is one immutable user query within a session.
type Query struct {
	Text      string
	SessionID string
	Turn      int
}

// Turn is the router's read-only view of one past session turn.
type Turn struct {
	Intent   Intent
	Evidence []evidence.Chunk
	At       time.Time
}

// Decision is the routing outcome, created once per query and discarded
// after the turn.
type Decision struct {
	Action Action
	Intent Intent
	// Agents lists the agent kinds to invoke; empty unless Action is invoke.
	Agents []agents.Kind
	// Cached carries the reused evidence when Action is bypass.
	Cached []evidence.Chunk
	// Rewritten is the retrieval-friendly restatement of the query, equal
	// to the original text when the classifier offered none.
	Rewritten string
	Rationale string
}

// Classification is the raw classifier verdict before routing policy runs.
type Classification struct {
	Intent Intent
	// Secondary is set when the classifier could not separate professional
	// from personal scope; routing then invokes both agents.
	Secondary Intent
	Rewritten string
	Rationale string
}

// Classifier produces a Classification for a query text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Router applies routing policy on top of the classifier.
type Router struct {
	classifier      Classifier
	recencyTurns    int
	classifyTimeout time.Duration
	logger          *slog.Logger
}

// NewRouter creates a router. recencyTurns bounds how far back the
// context-sufficiency check looks; classifyTimeout caps the classifier call.
func NewRouter(classifier Classifier, recencyTurns int, classifyTimeout time.Duration, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		classifier:      classifier,
		recencyTurns:    recencyTurns,
		classifyTimeout: classifyTimeout,
		logger:          logger,
	}
}

// Route decides how the turn proceeds. It never fails: classifier errors,
// timeouts and malformed labels all degrade to the ambiguous default.
func (r *Router) Route(ctx context.Context, query Query, window []Turn) Decision {
	cls := r.classify(ctx, query.Text)

	rewritten := cls.Rewritten
	if rewritten == "" {
		rewritten = query.Text
	}

	// Off-topic is a hard gate: no agent runs, no evidence is consulted.
	if cls.Intent == IntentOfftopic {
		return Decision{
			Action:    ActionRefuse,
			Intent:    IntentOfftopic,
			Rewritten: rewritten,
			Rationale: cls.Rationale,
		}
	}

	intent := cls.Intent
	if intent == IntentAmbiguous {
		intent = r.resolveAmbiguous(window)
	}

	tie := cls.Secondary != "" && cls.Secondary != intent

	// Reuse recent evidence when a past turn of the same scope already
	// retrieved it. A tie spans both scopes, so one cached scope is not
	// sufficient there.
	if !tie {
		if cached, ok := r.recentEvidence(window, intent); ok {
			return Decision{
				Action:    ActionBypass,
				Intent:    intent,
				Cached:    cached,
				Rewritten: rewritten,
				Rationale: cls.Rationale,
			}
		}
	}

	kinds := []agents.Kind{kindFor(intent)}
	if tie {
		kinds = []agents.Kind{agents.KindProfessional, agents.KindPersona}
	}

	return Decision{
		Action:    ActionInvoke,
		Intent:    intent,
		Agents:    kinds,
		Rewritten: rewritten,
		Rationale: cls.Rationale,
	}
}

// classify runs the classifier under its own deadline and normalizes every
// failure mode to the ambiguous verdict.
func (r *Router) classify(ctx context.Context, text string) Classification {
	cctx := ctx
	if r.classifyTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.classifyTimeout)
		defer cancel()
	}

	cls, err := r.classifier.Classify(cctx, text)
	if err != nil {
		r.logger.Warn("intent classification failed, defaulting to ambiguous", "error", err)
		return Classification{Intent: IntentAmbiguous}
	}
	if _, ok := parseIntent(string(cls.Intent)); !ok {
		r.logger.Warn("classifier returned unknown intent, defaulting to ambiguous",
			"intent", string(cls.Intent))
		return Classification{Intent: IntentAmbiguous, Rewritten: cls.Rewritten}
	}
	if cls.Secondary != "" {
		if _, ok := parseIntent(string(cls.Secondary)); !ok {
			cls.Secondary = ""
		}
	}
	return cls
}

// resolveAmbiguous defaults ambiguous queries to professional scope unless
// the most recent turn was personal, in which case the conversation is
// presumed to continue in that scope.
func (r *Router) resolveAmbiguous(window []Turn) Intent {
	if len(window) > 0 && window[len(window)-1].Intent == IntentPersonal {
		return IntentPersonal
	}
	return IntentProfessional
}

// recentEvidence scans the newest recencyTurns window entries for one that
// matches the intent and carries evidence.
func (r *Router) recentEvidence(window []Turn, intent Intent) ([]evidence.Chunk, bool) {
	for i, seen := len(window)-1, 0; i >= 0 && seen < r.recencyTurns; i, seen = i-1, seen+1 {
		if window[i].Intent == intent && len(window[i].Evidence) > 0 {
			return window[i].Evidence, true
		}
	}
	return nil, false
}

func kindFor(intent Intent) agents.Kind {
	if intent == IntentPersonal {
		return agents.KindPersona
	}
	return agents.KindProfessional
}
