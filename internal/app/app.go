// Package app assembles the application: configuration, tracing, database,
// AI provider, and the engine built on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkbase/inkbase/db"
	"github.com/inkbase/inkbase/internal/chunker"
	"github.com/inkbase/inkbase/internal/config"
	"github.com/inkbase/inkbase/internal/database"
	"github.com/inkbase/inkbase/internal/embedder"
	"github.com/inkbase/inkbase/internal/engine"
	"github.com/inkbase/inkbase/internal/index"
	"github.com/inkbase/inkbase/internal/observability"
	"github.com/inkbase/inkbase/internal/research"
)

// App is the assembled application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit     *genkit.Genkit
	Embedder   *embedder.Client
	DBPool     *pgxpool.Pool
	Index      *index.Postgres
	Engine     *engine.Engine
	Summarizer *research.Summarizer
	Fetcher    *research.PageFetcher

	otelCleanup func()
}

// Setup creates and initializes the application. Call Close to release the
// resources it acquires.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
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

	// Tracing first so Genkit's TracerProvider carries the exporter.
	a.otelCleanup = provideOtelCleanup(ctx, cfg)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	emb := provideEmbedder(g, cfg)
	if emb == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder.New(emb, embedder.Config{
		Dimension:         cfg.EmbedderDimension,
		RequestsPerSecond: cfg.EmbedRPS,
	}, logger)

	a.Index = index.NewPostgres(pool, logger)

	eng, err := engine.New(g, a.Embedder, a.Index, engine.Config{
		Collection:   cfg.Collection,
		ModelName:    qualifiedModelName(cfg),
		TopK:         cfg.TopK,
		ContextRunes: cfg.ContextRunes,
		Chunking: chunker.Config{
			MaxRunes:     cfg.ChunkRunes,
			OverlapRunes: cfg.OverlapRunes,
		},
		LockDir: cfg.LockDir,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.Engine = eng

	a.Summarizer = research.NewSummarizer(g, qualifiedModelName(cfg), logger)
	a.Fetcher = research.NewPageFetcher(nil, logger)

	return a, nil
}

// Close releases all resources held by the App. Safe to call on a partially
// initialized App.
func (a *App) Close() error {
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// provideOtelCleanup sets up trace export before Genkit initialization so
// the TracerProvider is ready when the first span starts.
func provideOtelCleanup(ctx context.Context, cfg *config.Config) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}
	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "inkbase",
	})
	if err != nil || shutdown == nil {
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return database.NewPool(ctx, cfg.PostgresConnectionString())
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery, models are registered explicitly.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit", "provider", "ollama",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit", "provider", "openai", "model", cfg.ModelName)

	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit", "provider", "gemini", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Ollama embedders are keyed by server address.
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// qualifiedModelName returns the model reference in provider/name form.
func qualifiedModelName(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderOllama:
		return "ollama/" + cfg.ModelName
	case config.ProviderOpenAI:
		return "openai/" + cfg.ModelName
	default:
		return "googleai/" + cfg.ModelName
	}
}
