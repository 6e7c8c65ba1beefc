// Package evidence defines the retrievable evidence model and the adapters
// that produce it.
//
// A Chunk is one unit of source text with provenance and scoring. Adapters
// wrap concrete evidence providers (the pgvector index, GitHub repository
// metadata, a public-activity feed) behind one capability interface so the
// orchestration layer never dispatches on concrete types.
package evidence

import (
	"context"
	"sort"
)

// Scope labels which profile domain an indexed chunk belongs to.
const (
	ScopeProfessional = "professional"
	ScopePersona      = "persona"
)

// Chunk is a retrievable unit of source text. Immutable once produced by an
// adapter; rerank scores are attached by the retrieval engine on copies.
type Chunk struct {
	// ID uniquely identifies the chunk within its source.
	ID string

	// SourceID identifies the originating document or record.
	SourceID string

	// Offset is the chunk position within the source document.
	// (SourceID, Offset) is the deduplication key.
	Offset int

	// Text is the chunk content.
	Text string

	// Similarity is the first-stage similarity score (higher is better).
	Similarity float64

	// Rerank is the second-stage cross-encoder score. Valid only when
	// Reranked is true.
	Rerank   float64
	Reranked bool

	// Provenance names the adapter that produced the chunk.
	Provenance string
}

// Key returns the deduplication key for the chunk.
func (c Chunk) Key() ChunkKey {
	return ChunkKey{SourceID: c.SourceID, Offset: c.Offset}
}

// ChunkKey identifies a chunk by source and offset, across adapters.
type ChunkKey struct {
	SourceID string
	Offset   int
}

// Adapter is the uniform query interface over an evidence provider.
// Implementations must treat an empty result as a normal outcome, never an
// error, and must be safe for concurrent use.
type Adapter interface {
	// Name is the provenance tag stamped on returned chunks.
	Name() string

	// Query returns up to topK chunks relevant to subQuery, ordered by
	// descending similarity.
	Query(ctx context.Context, subQuery string, topK int) ([]Chunk, error)
}

// Dedupe removes duplicate chunks by (SourceID, Offset), keeping the chunk
// with the highest rerank score (or, if neither is reranked, the highest
// similarity). Input order is preserved for the surviving chunks.
func Dedupe(chunks []Chunk) []Chunk {
	seen := make(map[ChunkKey]int, len(chunks))
	out := make([]Chunk, 0, len(chunks))

	for _, c := range chunks {
		idx, ok := seen[c.Key()]
		if !ok {
			seen[c.Key()] = len(out)
			out = append(out, c)
			continue
		}
		if better(c, out[idx]) {
			out[idx] = c
		}
	}
	return out
}

// SortRanked orders chunks deterministically: rerank score desc (when both
// sides carry one), similarity desc, SourceID asc, ID asc. Every ranked
// chunk list in the pipeline uses this ordering.
func SortRanked(chunks []Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.Reranked && b.Reranked && a.Rerank != b.Rerank {
			return a.Rerank > b.Rerank
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.ID < b.ID
	})
}

func better(a, b Chunk) bool {
	switch {
	case a.Reranked && b.Reranked:
		return a.Rerank > b.Rerank
	case a.Reranked != b.Reranked:
		return a.Reranked
	default:
		return a.Similarity > b.Similarity
	}
}
