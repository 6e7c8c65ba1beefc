package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio0/folio/internal/evidence"
	"github.com/folio0/folio/internal/log"
)

// fakeAdapter returns a fixed chunk list.
type fakeAdapter struct {
	name    string
	chunks  []evidence.Chunk
	err     error
	lastTop int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Query(_ context.Context, _ string, topK int) ([]evidence.Chunk, error) {
	f.lastTop = topK
	if f.err != nil {
		return nil, f.err
	}
	if len(f.chunks) > topK {
		return append([]evidence.Chunk(nil), f.chunks[:topK]...), nil
	}
	return append([]evidence.Chunk(nil), f.chunks...), nil
}

// fakeScorer scores by a fixed map from text to score.
type fakeScorer struct {
	scores map[string]float64
	err    error
	calls  int
}

func (f *fakeScorer) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(texts))
	for i, t := range texts {
		out[i] = f.scores[t]
	}
	return out, nil
}

func chunk(id, source string, offset int, text string, sim float64) evidence.Chunk {
	return evidence.Chunk{ID: id, SourceID: source, Offset: offset, Text: text, Similarity: sim}
}

func TestEngine_Search_RerankOrdering(t *testing.T) {
	adapter := &fakeAdapter{name: "vector/professional", chunks: []evidence.Chunk{
		chunk("a", "doc1", 0, "alpha", 0.9),
		chunk("b", "doc2", 0, "beta", 0.8),
		chunk("c", "doc3", 0, "gamma", 0.7),
	}}
	scorer := &fakeScorer{scores: map[string]float64{"alpha": 0.1, "beta": 0.9, "gamma": 0.5}}
	e := NewEngine(scorer, 4, 0, log.NewNop())

	got, err := e.Search(context.Background(), "query", adapter, 2)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID, "highest rerank first")
	assert.Equal(t, "c", got[1].ID)
	assert.True(t, got[0].Reranked)
	assert.Equal(t, 8, adapter.lastTop, "first stage should fetch topK*M candidates")
}

func TestEngine_Search_Deterministic(t *testing.T) {
	adapter := &fakeAdapter{name: "vector/professional", chunks: []evidence.Chunk{
		// Identical rerank and similarity scores: tie-break by source id, then id.
		chunk("z", "doc2", 0, "same", 0.5),
		chunk("a", "doc1", 0, "same2", 0.5),
		chunk("b", "doc1", 1, "same3", 0.5),
	}}
	scorer := &fakeScorer{scores: map[string]float64{"same": 0.7, "same2": 0.7, "same3": 0.7}}
	e := NewEngine(scorer, 2, 0, log.NewNop())

	first, err := e.Search(context.Background(), "query", adapter, 3)
	require.NoError(t, err)
	second, err := e.Search(context.Background(), "query", adapter, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical inputs must yield identical ordering")
	assert.Equal(t, "a", first[0].ID)
	assert.Equal(t, "b", first[1].ID)
	assert.Equal(t, "z", first[2].ID)
}

func TestEngine_Search_EmptyCandidates(t *testing.T) {
	adapter := &fakeAdapter{name: "feed"}
	scorer := &fakeScorer{}
	e := NewEngine(scorer, 3, 0, log.NewNop())

	got, err := e.Search(context.Background(), "query", adapter, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, scorer.calls, "scorer must not run on an empty candidate set")
}

func TestEngine_Search_ScorerFailureDegradesToSimilarity(t *testing.T) {
	adapter := &fakeAdapter{name: "vector/persona", chunks: []evidence.Chunk{
		chunk("low", "doc1", 0, "x", 0.2),
		chunk("high", "doc2", 0, "y", 0.9),
	}}
	scorer := &fakeScorer{err: errors.New("model unavailable")}
	e := NewEngine(scorer, 2, 0, log.NewNop())

	got, err := e.Search(context.Background(), "query", adapter, 2)
	require.NoError(t, err, "scorer failure must not fail the search")

	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].ID)
	assert.False(t, got[0].Reranked)
}

func TestEngine_Search_AdapterErrorPropagates(t *testing.T) {
	adapter := &fakeAdapter{name: "github", err: errors.New("rate limited")}
	e := NewEngine(&fakeScorer{}, 2, 0, log.NewNop())

	_, err := e.Search(context.Background(), "query", adapter, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github")
}

func TestEngine_Search_DeduplicatesBySourceOffset(t *testing.T) {
	adapter := &fakeAdapter{name: "vector/professional", chunks: []evidence.Chunk{
		chunk("a", "doc1", 0, "text", 0.5),
		chunk("a2", "doc1", 0, "text", 0.6),
	}}
	scorer := &fakeScorer{scores: map[string]float64{"text": 0.5}}
	e := NewEngine(scorer, 2, 0, log.NewNop())

	got, err := e.Search(context.Background(), "query", adapter, 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestEngine_Search_ZeroTopK(t *testing.T) {
	e := NewEngine(&fakeScorer{}, 2, 0, log.NewNop())
	got, err := e.Search(context.Background(), "query", &fakeAdapter{name: "x"}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTruncateAtSentence_UnderBudget(t *testing.T) {
	text := "Short sentence."
	assert.Equal(t, text, TruncateAtSentence(text, 100))
}

func TestTruncateAtSentence_CutsAtBoundary(t *testing.T) {
	text := "First sentence about Go. Second sentence about databases. Third sentence about testing."
	out := TruncateAtSentence(text, countTokens("First sentence about Go. Second sentence about databases."))

	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "."), "must end at a sentence boundary, got %q", out)
	assert.Contains(t, out, "First sentence")
	assert.NotContains(t, out, "Third sentence")
}

func TestTruncateAtSentence_FirstSentenceAlwaysKept(t *testing.T) {
	text := "This single opening sentence is longer than any reasonable tiny budget would ever allow. Tail."
	out := TruncateAtSentence(text, 3)

	assert.Contains(t, out, "opening sentence", "first sentence is kept whole")
	assert.NotContains(t, out, "Tail")
}

func TestTruncateAtSentence_DisabledBudget(t *testing.T) {
	text := strings.Repeat("Sentence here. ", 100)
	assert.Equal(t, text, TruncateAtSentence(text, 0))
}
