// Package agents provides the specialized retrieval agents.
//
// Agent kinds form a closed set: adding a kind is a compile-time change, not
// runtime plugin loading. Every agent consumes the retrieval engine through
// the same capability interface and returns a structured, source-attributed
// evidence bundle. Agents never fail a turn: no evidence, adapter outages
// and timeouts all degrade to an empty, low-confidence bundle.
package agents

import (
	"context"

	"github.com/folio0/folio/internal/evidence"
)

// Kind identifies a retrieval agent variant.
type Kind string

const (
	// KindProfessional retrieves professional/technical evidence
	// (resume, project docs, repository metadata).
	KindProfessional Kind = "professional"

	// KindPersona retrieves personal/public-activity evidence
	// (posts, talks, community activity).
	KindPersona Kind = "persona"
)

// Confidence is the coarse quality signal a bundle carries to synthesis.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Bundle is the ordered, deduplicated evidence set one agent produced for
// one query. Chunks are unique by (SourceID, Offset) and ordered by
// descending rerank score.
type Bundle struct {
	Kind       Kind
	Chunks     []evidence.Chunk
	Confidence Confidence
}

// Empty reports whether the bundle carries no evidence.
func (b Bundle) Empty() bool {
	return len(b.Chunks) == 0
}

// EmptyBundle returns the explicit no-evidence bundle for a kind.
func EmptyBundle(kind Kind) Bundle {
	return Bundle{Kind: kind, Confidence: ConfidenceLow}
}

// Agent is the capability interface all retrieval agent variants implement.
type Agent interface {
	Kind() Kind
	// Retrieve gathers evidence for the query. It returns an empty
	// low-confidence bundle, not an error, when nothing qualifies;
	// errors are reserved for failures of the agent itself.
	Retrieve(ctx context.Context, query string) (Bundle, error)
}

// newBundle assembles a bundle from merged adapter results: dedupes,
// restores descending rerank order, truncates to the budget and derives the
// confidence signal.
func newBundle(kind Kind, chunks []evidence.Chunk, budget int) Bundle {
	chunks = evidence.Dedupe(chunks)
	evidence.SortRanked(chunks)
	if budget > 0 && len(chunks) > budget {
		chunks = chunks[:budget]
	}

	if len(chunks) == 0 {
		return EmptyBundle(kind)
	}
	return Bundle{Kind: kind, Chunks: chunks, Confidence: ConfidenceHigh}
}
