package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/folio0/folio/internal/log"
)

func TestSetup_NoEndpointDisablesTracing(t *testing.T) {
	tracer, shutdown, err := Setup(context.Background(), Config{}, log.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tracer)

	// Emission against the noop tracer must be safe.
	e := NewEmitter(tracer, log.NewNop())
	e.EmitTurn(context.Background(), TurnTrace{SessionID: "s", Turn: 1})
	e.EmitFeedback(context.Background(), "s", "helpful")

	assert.NoError(t, shutdown(context.Background()))
}

func TestEmitTurn_RecordsSpanAttributes(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e := NewEmitter(tp.Tracer("test"), log.NewNop())
	e.EmitTurn(context.Background(), TurnTrace{
		SessionID:     "sess-1",
		Turn:          3,
		Intent:        "professional",
		Action:        "invoke",
		AgentsInvoked: []string{"professional", "persona"},
		Bundles: []BundleTrace{
			{Kind: "professional", Chunks: 4, Confidence: "high"},
			{Kind: "persona", Chunks: 0, Confidence: "low"},
		},
		EvidenceCount:       4,
		Citations:           2,
		GroundingViolations: 1,
		RouteDuration:       5 * time.Millisecond,
		RetrievalDuration:   20 * time.Millisecond,
		SynthesisDuration:   25 * time.Millisecond,
		Duration:            50 * time.Millisecond,
	})

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "folio.turn", spans[0].Name())

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "sess-1", attrs["session.id"])
	assert.Equal(t, int64(3), attrs["session.turn"])
	assert.Equal(t, "invoke", attrs["route.action"])
	assert.Equal(t, false, attrs["answer.refused"])
	assert.Equal(t, int64(1), attrs["grounding.violations"])
	assert.Equal(t, int64(5), attrs["stage.route_ms"])
	assert.Equal(t, int64(20), attrs["stage.retrieval_ms"])
	assert.Equal(t, int64(25), attrs["stage.synthesis_ms"])
	assert.Equal(t, int64(4), attrs["bundle.professional.chunks"])
	assert.Equal(t, "high", attrs["bundle.professional.confidence"])
	assert.Equal(t, int64(0), attrs["bundle.persona.chunks"])
	assert.Equal(t, "low", attrs["bundle.persona.confidence"])
}

func TestEmitFeedback_RecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e := NewEmitter(tp.Tracer("test"), log.NewNop())
	e.EmitFeedback(context.Background(), "sess-2", "unhelpful")

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "folio.feedback", spans[0].Name())
}
