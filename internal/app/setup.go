package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/folio0/folio/db"
	"github.com/folio0/folio/internal/agents"
	"github.com/folio0/folio/internal/config"
	"github.com/folio0/folio/internal/evidence"
	"github.com/folio0/folio/internal/observability"
	"github.com/folio0/folio/internal/orchestrator"
	"github.com/folio0/folio/internal/retrieval"
	"github.com/folio0/folio/internal/runner"
	"github.com/folio0/folio/internal/session"
	"github.com/folio0/folio/internal/synthesis"
)

// Setup creates and initializes the application.
// On failure, everything already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	tracer, otelShutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
		Insecure:    true,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelShutdown = otelShutdown
	a.Emitter = observability.NewEmitter(tracer, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	professionalAdapters, personaAdapters, err := provideAdapters(a, embedder)
	if err != nil {
		return nil, err
	}

	scorer := retrieval.NewModelScorer(g, cfg.RerankModel)
	engine := retrieval.NewEngine(scorer,
		cfg.Retrieval.CandidateMultiplier, cfg.Retrieval.ChunkTokenBudget, logger)

	professional := agents.NewProfessional(engine, professionalAdapters,
		cfg.Retrieval.TopKProfessional, logger)
	persona := agents.NewPersona(engine, personaAdapters,
		cfg.Retrieval.TopKPersona, logger)
	registry := map[agents.Kind]agents.Agent{
		agents.KindProfessional: professional,
		agents.KindPersona:      persona,
	}

	classifier := orchestrator.NewModelClassifier(g, cfg.ClassifierModel, cfg.ProfileName)
	router := orchestrator.NewRouter(classifier,
		cfg.Session.RecencyTurns, cfg.Timeouts.Classify, logger)

	generator := synthesis.NewModelGenerator(g, cfg.ModelName, cfg.ProfileName)
	synthesizer := synthesis.New(generator, cfg.RefusalMessage, logger)

	a.Sessions = session.New(cfg.Session.Window, cfg.Session.TTL, logger)

	a.Runner = runner.New(router, synthesizer, registry, a.Sessions, a.Emitter,
		cfg.Timeouts.Agent, cfg.Timeouts.Turn, logger)

	return a, nil
}

// provideGenkit initializes Genkit with the GoogleAI plugin. The plugin
// reads GEMINI_API_KEY from the environment.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideAdapters builds the evidence adapters for each agent. The pgvector
// stores are always on; GitHub and the activity feed are enabled by their
// config sections.
func provideAdapters(a *App, embedder ai.Embedder) (professional, persona []evidence.Adapter, err error) {
	cfg := a.Config

	profStore, err := evidence.NewVectorStore(a.DBPool, embedder, evidence.ScopeProfessional, a.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("professional vector store: %w", err)
	}
	professional = append(professional, profStore)

	personaStore, err := evidence.NewVectorStore(a.DBPool, embedder, evidence.ScopePersona, a.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("persona vector store: %w", err)
	}
	persona = append(persona, personaStore)

	if cfg.GitHub.Owner != "" {
		professional = append(professional,
			evidence.NewGitHubRepos(cfg.GitHub.Owner, cfg.GitHub.Token, a.Logger))
	}
	if cfg.Feed.BaseURL != "" {
		persona = append(persona,
			evidence.NewFeed(cfg.Feed.BaseURL, cfg.Feed.APIKey, cfg.Feed.RPS, a.Logger))
	}
	return professional, persona, nil
}
