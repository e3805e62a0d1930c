// Package app provides application-level wiring and dependency injection
// for the markbind server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"markbind/internal/api"
	"markbind/internal/binding"
	"markbind/internal/compiler"
	"markbind/internal/config"
	"markbind/internal/db/repository"
	"markbind/internal/middleware"
	"markbind/internal/reconcile"
	"markbind/internal/service/document"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// Services groups the services the router and seeding need.
type Services struct {
	Documents *document.DocumentService
}

// App holds the fully-wired application.
type App struct {
	Services Services
	Router   http.Handler
}

// New wires the repository, binding engine, services and router from deps.
// Demo seeding failures are logged, not returned.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg

	binder, err := binding.NewBinder(
		reconcile.New(deps.Logger.With("component", "reconcile")),
		compiler.Compile,
		compiler.AggregateOps,
		deps.Logger.With("component", "binder"),
	)
	if err != nil {
		return nil, fmt.Errorf("binder: %w", err)
	}

	docs := document.NewDocumentService(
		repository.NewDocumentRepo(deps.WriteDB, deps.ReadDB),
		binder,
		deps.Logger.With("component", "documents"),
	)

	if cfg.SeedDemo {
		if err := seedDemo(ctx, docs, deps.Logger); err != nil {
			deps.Logger.Warn("seed demo document failed", "error", err)
		}
	}

	router, err := api.NewRouter(ctx, api.NewHandler(docs, deps.Logger.With("component", "api")), api.RouterConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BindingRateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	return &App{
		Services: Services{Documents: docs},
		Router:   router,
	}, nil
}
