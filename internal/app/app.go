// Package app provides application initialization and dependency wiring.
//
// App is the container holding every long-lived component: configuration,
// Genkit, the database pool, the session store and the turn runner. Setup
// builds the whole graph; Close releases it in reverse order.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/folio0/folio/internal/config"
	"github.com/folio0/folio/internal/observability"
	"github.com/folio0/folio/internal/runner"
	"github.com/folio0/folio/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool
	Sessions *session.Store
	Emitter  *observability.Emitter

	// Runner drives one conversational turn end to end.
	Runner *runner.Runner

	otelShutdown func(context.Context) error
}

// Close releases all resources. Safe to call after a partial Setup.
func (a *App) Close() error {
	a.logger().Info("shutting down")

	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.logger().Debug("database pool closed")
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.logger().Warn("shutting down tracer provider", "error", err)
		}
	}
	return nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
