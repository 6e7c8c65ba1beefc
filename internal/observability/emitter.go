package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BundleTrace summarizes one agent's evidence bundle for the trace sink.
type BundleTrace struct {
	Kind       string
	Chunks     int
	Confidence string
}

// TurnTrace is the per-turn record exported to the trace sink.
type TurnTrace struct {
	SessionID     string
	Turn          int
	Intent        string
	Action        string
	AgentsInvoked []string
	Bundles       []BundleTrace
	EvidenceCount int
	Citations     int
	Refused       bool

	// GroundingViolations counts drafts the citation check rejected.
	GroundingViolations int

	// Per-stage latency plus the whole-turn duration.
	RouteDuration     time.Duration
	RetrievalDuration time.Duration
	SynthesisDuration time.Duration
	Duration          time.Duration
}

// Emitter exports turn traces and user feedback. All emission is
// best-effort: failures are logged at debug level and otherwise ignored.
type Emitter struct {
	tracer trace.Tracer
	logger *slog.Logger
}

// NewEmitter creates an emitter over a tracer. A noop tracer makes every
// emission a cheap no-op.
func NewEmitter(tracer trace.Tracer, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{tracer: tracer, logger: logger}
}

// EmitTurn records one completed turn as a span.
func (e *Emitter) EmitTurn(ctx context.Context, t TurnTrace) {
	attrs := []attribute.KeyValue{
		attribute.String("session.id", t.SessionID),
		attribute.Int("session.turn", t.Turn),
		attribute.String("route.intent", t.Intent),
		attribute.String("route.action", t.Action),
		attribute.StringSlice("agents.invoked", t.AgentsInvoked),
		attribute.Int("evidence.count", t.EvidenceCount),
		attribute.Int("answer.citations", t.Citations),
		attribute.Bool("answer.refused", t.Refused),
		attribute.Int("grounding.violations", t.GroundingViolations),
		attribute.Int64("stage.route_ms", t.RouteDuration.Milliseconds()),
		attribute.Int64("stage.retrieval_ms", t.RetrievalDuration.Milliseconds()),
		attribute.Int64("stage.synthesis_ms", t.SynthesisDuration.Milliseconds()),
	}
	for _, b := range t.Bundles {
		attrs = append(attrs,
			attribute.Int("bundle."+b.Kind+".chunks", b.Chunks),
			attribute.String("bundle."+b.Kind+".confidence", b.Confidence))
	}

	start := time.Now().Add(-t.Duration)
	_, span := e.tracer.Start(ctx, "folio.turn",
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...))
	span.End()
	e.logger.Debug("turn trace emitted", "session", t.SessionID, "turn", t.Turn)
}

// EmitFeedback records a user feedback verdict against a session. Feedback
// only reaches the trace sink; it never feeds back into routing or
// grounding.
func (e *Emitter) EmitFeedback(ctx context.Context, sessionID, verdict string) {
	_, span := e.tracer.Start(ctx, "folio.feedback",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("feedback.verdict", verdict),
		))
	span.End()
	e.logger.Debug("feedback emitted", "session", sessionID, "verdict", verdict)
}
