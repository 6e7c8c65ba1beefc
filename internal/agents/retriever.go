package agents

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/folio0/folio/internal/evidence"
)

// Searcher is the retrieval-engine capability the agents consume.
// Satisfied by *retrieval.Engine.
type Searcher interface {
	Search(ctx context.Context, subQuery string, adapter evidence.Adapter, topK int) ([]evidence.Chunk, error)
}

// retriever is the shared implementation behind both agent kinds: each kind
// is the same retrieval loop bound to a different adapter subset and budget.
type retriever struct {
	kind     Kind
	engine   Searcher
	adapters []evidence.Adapter
	topK     int
	logger   *slog.Logger
}

// NewProfessional creates the professional-evidence agent. Adapters should
// cover resume/project material and repository metadata.
func NewProfessional(engine Searcher, adapters []evidence.Adapter, topK int, logger *slog.Logger) Agent {
	return newRetriever(KindProfessional, engine, adapters, topK, logger)
}

// NewPersona creates the personal/public-activity agent.
func NewPersona(engine Searcher, adapters []evidence.Adapter, topK int, logger *slog.Logger) Agent {
	return newRetriever(KindPersona, engine, adapters, topK, logger)
}

func newRetriever(kind Kind, engine Searcher, adapters []evidence.Adapter, topK int, logger *slog.Logger) *retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &retriever{
		kind:     kind,
		engine:   engine,
		adapters: adapters,
		topK:     topK,
		logger:   logger.With("agent", string(kind)),
	}
}

// Kind implements Agent.
func (r *retriever) Kind() Kind {
	return r.kind
}

// Retrieve queries every bound adapter concurrently, merges the results and
// truncates to the agent's budget. A failing adapter is isolated: its error
// is logged and the remaining adapters still contribute. Only when every
// adapter fails or returns nothing does the agent return the explicit empty
// bundle — still not an error.
func (r *retriever) Retrieve(ctx context.Context, query string) (Bundle, error) {
	if len(r.adapters) == 0 {
		return EmptyBundle(r.kind), nil
	}

	var (
		mu     sync.Mutex
		merged []evidence.Chunk
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range r.adapters {
		g.Go(func() error {
			chunks, err := r.engine.Search(gctx, query, adapter, r.topK)
			if err != nil {
				// Adapter outage is isolated to this source.
				r.logger.Warn("evidence source failed", "source", adapter.Name(), "error", err)
				return nil
			}
			mu.Lock()
			merged = append(merged, chunks...)
			mu.Unlock()
			return nil
		})
	}
	// Goroutines never return errors; Wait is a fan-in barrier.
	_ = g.Wait()

	bundle := newBundle(r.kind, merged, r.topK)
	r.logger.Debug("retrieval complete",
		"chunks", len(bundle.Chunks), "confidence", string(bundle.Confidence))
	return bundle, nil
}
