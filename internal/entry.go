// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/analyzer"
	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/bot"
	"github.com/starford/ansuz/internal/capture"
	"github.com/starford/ansuz/internal/catalog"
	"github.com/starford/ansuz/internal/curator"
	"github.com/starford/ansuz/internal/filing"
	"github.com/starford/ansuz/internal/learner"
	"github.com/starford/ansuz/internal/ledger"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/sched"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/statestore"
	"github.com/starford/ansuz/internal/storage"
)

// Stack holds the wired curator subsystems shared by the server, the CLI
// one-shot commands, and the MCP server.
type Stack struct {
	Config  *Config
	Logger  *slog.Logger
	Store   storage.Provider
	DB      *catalog.DB
	Broker  *sse.Broker // nil when events are disabled
	Service *curator.Service
}

// NewStack builds the curator service over the configured vault.
// withEvents controls whether an SSE broker is attached.
func NewStack(cfg *Config, logger *slog.Logger, withEvents bool) (*Stack, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	if err := os.MkdirAll(cfg.State.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	lrn, err := learner.New(statestore.NewJSONFile(cfg.State.LearnerPath()))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init learner: %w", err)
	}
	led, err := ledger.New(statestore.NewJSONFile(cfg.State.LedgerPath()), store)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	engine := filing.NewEngine(store, curator.LearnerHints(lrn), led, cfg.Vault.Inbox, logger)
	capSvc := capture.NewService(store, cfg.Vault.Inbox, logger)

	var an *analyzer.Analyzer
	if cfg.Analyzer.Enabled() {
		clientCfg := openai.DefaultConfig(cfg.Analyzer.APIKey)
		if cfg.Analyzer.BaseURL != "" {
			clientCfg.BaseURL = cfg.Analyzer.BaseURL
		}
		an = analyzer.New(openai.NewClientWithConfig(clientCfg), store, db,
			analyzer.Config{Inbox: cfg.Vault.Inbox, Model: cfg.Analyzer.Model}, logger)
	}

	var broker *sse.Broker
	if withEvents {
		broker = sse.NewBroker(2 * time.Second)
	}

	svc := curator.NewService(capSvc, engine, led, lrn, an, db, broker, store, cfg.Vault.Inbox, logger)
	return &Stack{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		DB:      db,
		Broker:  broker,
		Service: svc,
	}, nil
}

// Close releases the stack's resources.
func (s *Stack) Close() {
	if s.Broker != nil {
		s.Broker.Close()
	}
	_ = s.DB.Close()
}

// NewLogger builds the JSON logger and installs it as the slog default.
func NewLogger(cfg *Config, w *os.File) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// Run starts the full application: HTTP API with SSE, vault watcher, and
// optionally the Telegram bot and the curation scheduler.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := NewLogger(cfg, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.Bool("analyzer", cfg.Analyzer.Enabled()),
		slog.Bool("telegram", cfg.Telegram.Enabled()),
		slog.Bool("schedule", cfg.Schedule.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	stack, err := NewStack(cfg, logger, true)
	if err != nil {
		return err
	}
	defer stack.Close()

	// Bring the catalog up to date before serving.
	if err := catalog.Sync(stack.DB, stack.Store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(stack.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, stack.Broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the catalog in step with out-of-band vault edits.
	g.Go(func() error {
		err := catalog.Watch(gCtx, stack.DB, stack.Store, cfg.Vault.Path, logger, func(kind, path string) {
			stack.Broker.PublishNoteEvent(kind, path)
		})
		if err != nil {
			logger.Warn("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if cfg.Telegram.Enabled() {
		tgBot, err := bot.New(bot.Config{
			Token:        cfg.Telegram.Token,
			AllowedChats: cfg.Telegram.AllowedChats,
		}, stack.Service, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return tgBot.Run(gCtx) })
	}

	if cfg.Schedule.Enabled {
		scheduler := sched.New(sched.Config{
			Spec:          cfg.Schedule.Spec,
			Limit:         cfg.Filing.Limit,
			MinConfidence: cfg.Filing.MinConfidence,
		}, stack.Service, logger)
		g.Go(func() error { return scheduler.Run(gCtx) })
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the curator tools over MCP stdio. Logs go to stderr so
// stdout stays clean for the protocol.
func RunMCP(cfg *Config) error {
	logger := NewLogger(cfg, os.Stderr)

	stack, err := NewStack(cfg, logger, false)
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := catalog.Sync(stack.DB, stack.Store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return mcpserver.New(stack.Service).ServeStdio()
}
