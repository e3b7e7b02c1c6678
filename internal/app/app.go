// Package app assembles the service: configuration, persistence, the
// model provider, and the turn orchestrator.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/relaychat/relay/db"
	"github.com/relaychat/relay/internal/catalog"
	"github.com/relaychat/relay/internal/chat"
	"github.com/relaychat/relay/internal/config"
	"github.com/relaychat/relay/internal/conversation"
	"github.com/relaychat/relay/internal/log"
	"github.com/relaychat/relay/internal/observability"
	"github.com/relaychat/relay/internal/prefs"
	"github.com/relaychat/relay/internal/toolset"
)

// Generation throttle defaults. Burst can be tuned per deployment via
// SetupOptions; the sustained rate is deliberately modest because each
// generation holds a model stream open.
const (
	defaultRateLimit = rate.Limit(5)
	defaultRateBurst = 10
)

// App holds the initialized service components. Call Close to release.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Genkit       *genkit.Genkit
	Pool         *pgxpool.Pool
	Store        *conversation.Store
	Prefs        *prefs.Store
	Registry     *catalog.Registry
	Orchestrator *chat.Orchestrator

	otelShutdown func(context.Context) error
}

// SetupOptions tune Setup beyond the config file.
type SetupOptions struct {
	// RateBurst overrides the generation limiter burst; 0 keeps the
	// default.
	RateBurst int
}

// Setup creates and initializes the application.
// On error, everything already initialized is released.
func Setup(ctx context.Context, cfg *config.Config, opts SetupOptions) (_ *App, retErr error) {
	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: true})
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup after failed setup", "error", err)
			}
		}
	}()

	shutdown, err := observability.Setup(ctx, cfg.Otel, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelShutdown = shutdown

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	a.Pool = pool
	a.Store = conversation.New(pool, logger.With("component", "conversation"))

	a.Registry = catalog.New(cfg)

	defaults := make([]string, 0, len(a.Registry.All()))
	for _, e := range a.Registry.All() {
		defaults = append(defaults, e.ID)
	}
	prefStore, err := prefs.Open(cfg.PrefsDBPath, defaults, logger.With("component", "prefs"))
	if err != nil {
		return nil, fmt.Errorf("opening preference store: %w", err)
	}
	a.Prefs = prefStore

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	burst := opts.RateBurst
	if burst <= 0 {
		burst = defaultRateBurst
	}

	a.Orchestrator = chat.New(chat.Config{
		Genkit:        g,
		Gateway:       a.Store,
		Provisioner:   toolset.New(g, a.Registry, logger.With("component", "toolset")),
		Titler:        chat.NewTitler(g, cfg.FullTitleModelName(), logger.With("component", "title")),
		Logger:        logger.With("component", "chat"),
		Model:         cfg.FullModelName(),
		ResolveModel:  cfg.Qualify,
		MaxTurns:      cfg.MaxTurns,
		GenerateLimit: rate.NewLimiter(defaultRateLimit, burst),
	})

	return a, nil
}

// Close releases the application's resources.
func (a *App) Close() error {
	var errs []error
	if a.Prefs != nil {
		if err := a.Prefs.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// provideGenkit initializes Genkit with the configured model provider.
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
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}
