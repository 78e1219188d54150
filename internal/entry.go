// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/kbtree/internal/api"
	"github.com/starford/kbtree/internal/index"
	"github.com/starford/kbtree/internal/mcpserver"
	"github.com/starford/kbtree/internal/reconcile"
	"github.com/starford/kbtree/internal/sse"
	"github.com/starford/kbtree/internal/storage"
	"github.com/starford/kbtree/internal/treeservice"
)

// stack is everything the entry points share.
type stack struct {
	cfg     *Config
	version string
	logger  *slog.Logger
	db      *index.DB
	content *storage.FS
	engine  *reconcile.Engine
	svc     *treeservice.Service
	closers []io.Closer
}

func (rt *stack) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].Close()
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOut: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger, teeing to a rotating file when one is
// configured.
func newLogger(cfg *ApplicationConfig, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer
	if cfg.LogFile.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
		}
		out = io.MultiWriter(out, lj)
		closer = lj
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel})), closer
}

// bootstrap opens the store and content root and builds the engine.
// hooks are registered as commit hooks.
func bootstrap(app *application, hooks ...func(*reconcile.Report)) (*stack, error) {
	cfg := app.config
	rt := &stack{cfg: cfg, version: app.version}

	logger, logCloser := newLogger(&cfg.App, app.logOut)
	if logCloser != nil {
		rt.closers = append(rt.closers, logCloser)
	}
	slog.SetDefault(logger)
	rt.logger = logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_path", cfg.Content.Path),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("log_level", cfg.App.LogLevel.String()))

	content, err := storage.NewFS(cfg.Content.Path,
		storage.WithExtensions(cfg.Content.Extensions...),
		storage.WithLogger(logger))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init content root: %w", err)
	}
	rt.content = content

	db, err := index.Open(cfg.Database.Options())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, db)

	engineOpts := []reconcile.Option{
		reconcile.WithRootAlias(cfg.Content.Title),
		reconcile.WithWalkTimeout(cfg.Sync.WalkTimeout),
		reconcile.WithWorkers(cfg.Sync.Workers),
	}
	for _, h := range hooks {
		engineOpts = append(engineOpts, reconcile.WithOnCommit(h))
	}
	rt.engine = reconcile.New(db, content, logger, engineOpts...)
	rt.svc = treeservice.NewService(db)
	return rt, nil
}

// initialSync runs the startup pass. A failure is logged, not fatal: the
// store keeps serving its last committed state.
func (rt *stack) initialSync(ctx context.Context) {
	if _, err := rt.engine.Sync(ctx); err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := bootstrap(app, broker.PublishCommit)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.cfg, rt.logger

	rt.initialSync(ctx)

	apiRouter := api.NewRouter(api.RouterConfig{
		Service:     rt.svc,
		Syncer:      rt.engine,
		Mover:       rt.engine,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
	})

	// Build chi router.
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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Sync.Watch {
		g.Go(func() error {
			if err := reconcile.Watch(gCtx, rt.engine, rt.content.Root(), cfg.Sync.Debounce, logger); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if cfg.Sync.Interval > 0 {
		g.Go(func() error {
			reconcile.RunPeriodic(gCtx, rt.engine, cfg.Sync.Interval, logger)
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so background loops stop with the server.
var errShutdown = errors.New("shutdown")

// RunSync runs a single reconciliation pass and returns its report.
func RunSync(ctx context.Context, opts ...Option) (*reconcile.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := bootstrap(app)
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.engine.Sync(ctx)
}

// RunMCP syncs once and then serves the MCP tools on stdio. Logs must not
// go to stdout in this mode.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	rt, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.initialSync(ctx)
	if rt.cfg.Sync.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := reconcile.Watch(watchCtx, rt.engine, rt.content.Root(), rt.cfg.Sync.Debounce, rt.logger); err != nil {
				rt.logger.Error("watcher failed", slog.String("error", err.Error()))
			}
		}()
	}

	srv := mcpserver.New(rt.svc, rt.engine, rt.version)
	return srv.ServeStdio()
}
