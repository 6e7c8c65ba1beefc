package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// VectorDimension is the embedding dimension of the evidence index.
// gemini-embedding-001 supports truncation to 768 dimensions; the pgvector
// schema in db/migrations uses the same value.
const VectorDimension = 768

// ErrUnknownScope indicates a scope outside {professional, persona}.
var ErrUnknownScope = errors.New("unknown evidence scope")

// PgxQuerier is the subset of pgxpool.Pool the vector adapter needs.
// Interface defined by the consumer for testability.
type PgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// VectorStore queries the pgvector evidence index by cosine similarity.
// The index is read-only from the pipeline's perspective; indexing happens
// offline (db/migrations defines the schema, an external producer fills it).
//
// VectorStore is safe for concurrent use.
type VectorStore struct {
	db       PgxQuerier
	embedder ai.Embedder
	scope    string
	logger   *slog.Logger
}

// NewVectorStore creates a vector adapter bound to one scope.
func NewVectorStore(db PgxQuerier, embedder ai.Embedder, scope string, logger *slog.Logger) (*VectorStore, error) {
	if scope != ScopeProfessional && scope != ScopePersona {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStore{db: db, embedder: embedder, scope: scope, logger: logger}, nil
}

// Name implements Adapter.
func (s *VectorStore) Name() string {
	return "vector/" + s.scope
}

const searchChunksSQL = `
SELECT id, source_id, chunk_offset, content,
       1 - (embedding <=> $1) AS similarity
FROM evidence_chunks
WHERE scope = $2
ORDER BY embedding <=> $1
LIMIT $3`

// Query embeds subQuery and runs a cosine similarity search over the scope's
// chunks. An empty result set is a normal outcome.
func (s *VectorStore) Query(ctx context.Context, subQuery string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(subQuery, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned for query")
	}

	vec := pgvector.NewVector(resp.Embeddings[0].Embedding)

	rows, err := s.db.Query(ctx, searchChunksSQL, vec, s.scope, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.SourceID, &c.Offset, &c.Text, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		c.Provenance = s.Name()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk rows: %w", err)
	}

	s.logger.Debug("vector search complete", "scope", s.scope, "top_k", topK, "hits", len(chunks))
	return chunks, nil
}
