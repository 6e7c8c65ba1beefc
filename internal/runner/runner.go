// Package runner executes one conversational turn end to end: routing,
// agent fan-out, synthesis, session bookkeeping and trace emission.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/folio0/folio/internal/agents"
	"github.com/folio0/folio/internal/evidence"
	"github.com/folio0/folio/internal/observability"
	"github.com/folio0/folio/internal/orchestrator"
	"github.com/folio0/folio/internal/session"
	"github.com/folio0/folio/internal/synthesis"
)

// ErrTurnUnavailable reports that the turn exceeded its deadline. The
// session is left exactly as it was before the turn.
var ErrTurnUnavailable = errors.New("turn deadline exceeded")

// UnavailableMessage is the user-facing text for a timed-out turn.
const UnavailableMessage = "Sorry, I couldn't answer that in time. Please try again."

// Router decides how a turn proceeds. Satisfied by *orchestrator.Router.
type Router interface {
	Route(ctx context.Context, query orchestrator.Query, window []orchestrator.Turn) orchestrator.Decision
}

// Synthesizer produces the final answer and the grounding-enforcement stats.
// Satisfied by *synthesis.Synthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query orchestrator.Query, decision orchestrator.Decision, bundles []agents.Bundle) (synthesis.Answer, synthesis.Stats, error)
}

// TraceEmitter exports per-turn traces. Satisfied by *observability.Emitter.
type TraceEmitter interface {
	EmitTurn(ctx context.Context, t observability.TurnTrace)
}

// Runner drives the turn pipeline. Safe for concurrent use; turns within
// one session serialize on the session store.
type Runner struct {
	router   Router
	synth    Synthesizer
	agents   map[agents.Kind]agents.Agent
	sessions *session.Store
	emitter  TraceEmitter

	agentTimeout time.Duration
	turnTimeout  time.Duration
	logger       *slog.Logger
}

// New creates a runner. registry maps each agent kind the router may select
// to its implementation.
func New(router Router, synth Synthesizer, registry map[agents.Kind]agents.Agent,
	sessions *session.Store, emitter TraceEmitter,
	agentTimeout, turnTimeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		router:       router,
		synth:        synth,
		agents:       registry,
		sessions:     sessions,
		emitter:      emitter,
		agentTimeout: agentTimeout,
		turnTimeout:  turnTimeout,
		logger:       logger,
	}
}

// Process runs one turn for the session. On success the turn is appended to
// the session window and traced. A turn that misses its deadline returns
// ErrTurnUnavailable and leaves the session untouched.
func (r *Runner) Process(ctx context.Context, sessionID, text string) (synthesis.Answer, error) {
	release := r.sessions.BeginTurn(sessionID)
	defer release()

	started := time.Now()
	window := r.sessions.Window(sessionID)
	query := orchestrator.Query{Text: text, SessionID: sessionID, Turn: len(window)}

	tctx := ctx
	if r.turnTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, r.turnTimeout)
		defer cancel()
	}

	var stages stageTimings

	routeStart := time.Now()
	decision := r.router.Route(tctx, query, routingView(window))
	stages.route = time.Since(routeStart)
	if err := tctx.Err(); err != nil {
		return synthesis.Answer{}, fmt.Errorf("%w: routing: %v", ErrTurnUnavailable, err)
	}

	retrievalStart := time.Now()
	bundles := r.fanOut(tctx, decision)
	stages.retrieval = time.Since(retrievalStart)
	if err := tctx.Err(); err != nil {
		return synthesis.Answer{}, fmt.Errorf("%w: retrieval: %v", ErrTurnUnavailable, err)
	}

	synthStart := time.Now()
	answer, stats, err := r.synth.Synthesize(tctx, query, decision, bundles)
	stages.synthesis = time.Since(synthStart)
	if err != nil {
		if tctx.Err() != nil {
			return synthesis.Answer{}, fmt.Errorf("%w: synthesis: %v", ErrTurnUnavailable, tctx.Err())
		}
		return synthesis.Answer{}, fmt.Errorf("synthesis: %w", err)
	}

	used := turnEvidence(decision, bundles)
	r.sessions.Append(sessionID, session.TurnRecord{
		Query:    text,
		Intent:   decision.Intent,
		Action:   decision.Action,
		Answer:   answer,
		Evidence: used,
		At:       time.Now(),
	})

	r.emitTrace(ctx, query, decision, bundles, answer, stats, len(used), stages, time.Since(started))
	return answer, nil
}

// stageTimings holds per-stage latencies for the turn trace.
type stageTimings struct {
	route     time.Duration
	retrieval time.Duration
	synthesis time.Duration
}

// fanOut runs the selected agents in parallel, each under its own timeout.
// A timed-out or failing agent contributes the explicit empty bundle; the
// other agents are unaffected.
func (r *Runner) fanOut(ctx context.Context, decision orchestrator.Decision) []agents.Bundle {
	if decision.Action != orchestrator.ActionInvoke || len(decision.Agents) == 0 {
		return nil
	}

	bundles := make([]agents.Bundle, len(decision.Agents))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range decision.Agents {
		g.Go(func() error {
			agent, ok := r.agents[kind]
			if !ok {
				r.logger.Error("no agent registered for kind", "kind", string(kind))
				bundles[i] = agents.EmptyBundle(kind)
				return nil
			}

			actx := gctx
			if r.agentTimeout > 0 {
				var cancel context.CancelFunc
				actx, cancel = context.WithTimeout(gctx, r.agentTimeout)
				defer cancel()
			}

			bundle, err := agent.Retrieve(actx, decision.Rewritten)
			if err != nil {
				r.logger.Warn("agent retrieval failed, using empty bundle",
					"kind", string(kind), "error", err)
				bundle = agents.EmptyBundle(kind)
			}
			bundles[i] = bundle
			return nil
		})
	}
	// Fan-in barrier: synthesis starts only after every agent resolved.
	_ = g.Wait()
	return bundles
}

// turnEvidence is the evidence set the turn actually put in front of
// synthesis, recorded for the context-sufficiency check on later turns.
func turnEvidence(decision orchestrator.Decision, bundles []agents.Bundle) []evidence.Chunk {
	var out []evidence.Chunk
	if decision.Action == orchestrator.ActionBypass {
		out = append(out, decision.Cached...)
	}
	for _, b := range bundles {
		out = append(out, b.Chunks...)
	}
	out = evidence.Dedupe(out)
	evidence.SortRanked(out)
	return out
}

func (r *Runner) emitTrace(ctx context.Context, query orchestrator.Query,
	decision orchestrator.Decision, bundles []agents.Bundle, answer synthesis.Answer,
	stats synthesis.Stats, evidenceCount int, stages stageTimings, took time.Duration) {
	if r.emitter == nil {
		return
	}
	invoked := make([]string, len(decision.Agents))
	for i, k := range decision.Agents {
		invoked[i] = string(k)
	}
	summaries := make([]observability.BundleTrace, len(bundles))
	for i, b := range bundles {
		summaries[i] = observability.BundleTrace{
			Kind:       string(b.Kind),
			Chunks:     len(b.Chunks),
			Confidence: string(b.Confidence),
		}
	}
	// Emission outlives the turn deadline; it is best-effort either way.
	r.emitter.EmitTurn(context.WithoutCancel(ctx), observability.TurnTrace{
		SessionID:           query.SessionID,
		Turn:                query.Turn,
		Intent:              string(decision.Intent),
		Action:              string(decision.Action),
		AgentsInvoked:       invoked,
		Bundles:             summaries,
		EvidenceCount:       evidenceCount,
		Citations:           len(answer.Citations),
		Refused:             answer.Refused,
		GroundingViolations: stats.GroundingViolations,
		RouteDuration:       stages.route,
		RetrievalDuration:   stages.retrieval,
		SynthesisDuration:   stages.synthesis,
		Duration:            took,
	})
}

// routingView projects session records onto the router's read-only view.
func routingView(window []session.TurnRecord) []orchestrator.Turn {
	if len(window) == 0 {
		return nil
	}
	out := make([]orchestrator.Turn, len(window))
	for i, rec := range window {
		out[i] = orchestrator.Turn{Intent: rec.Intent, Evidence: rec.Evidence, At: rec.At}
	}
	return out
}
