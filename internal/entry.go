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

	"github.com/starford/bitkeep/internal/api"
	"github.com/starford/bitkeep/internal/client"
	"github.com/starford/bitkeep/internal/manager"
	"github.com/starford/bitkeep/internal/mcpserver"
	"github.com/starford/bitkeep/internal/models"
	"github.com/starford/bitkeep/internal/registry"
	"github.com/starford/bitkeep/internal/replica"
	"github.com/starford/bitkeep/internal/sse"
	"github.com/starford/bitkeep/internal/store"
	"github.com/starford/bitkeep/internal/typedefs"
	"github.com/starford/bitkeep/internal/ws"
)

var errConfigRequired = errors.New("config is required")

var _ mcpserver.Store = (*client.Client)(nil)

// newLogger builds the JSON logger. With a log file configured, records are
// written to base and to a rotating file.
func newLogger(cfg *Config, base io.Writer) (*slog.Logger, func()) {
	out := base
	closeFn := func() {}
	if cfg.App.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.App.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		out = io.MultiWriter(base, rotator)
		closeFn = func() { _ = rotator.Close() }
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	return logger, closeFn
}

// syncTypes applies the built-in type directory once. It returns nil when no
// directory is configured.
func syncTypes(ctx context.Context, cfg TypesConfig, m *manager.Manager, logger *slog.Logger) (*typedefs.Syncer, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create types dir: %w", err)
	}
	dir, err := typedefs.NewDir(cfg.Path)
	if err != nil {
		return nil, err
	}
	syncer := typedefs.NewSyncer(dir, m, logger)
	if _, err := syncer.Sync(ctx); err != nil {
		logger.Warn("initial type sync failed", slog.String("error", err.Error()))
	}
	return syncer, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog := newLogger(cfg, os.Stdout)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("types_path", cfg.Types.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	reg := registry.New(logger)
	defer reg.Close()

	mgr := manager.New(db, manager.WithPublisher(reg), manager.WithLogger(logger))

	syncer, err := syncTypes(ctx, cfg.Types, mgr, logger)
	if err != nil {
		return err
	}

	apiRouter := api.NewRouter(mgr, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      sse.NewHandler(reg, cfg.Broadcast.Buffer, cfg.Broadcast.Keepalive, logger),
		Socket:      ws.NewHandler(reg, cfg.Broadcast.Buffer, cfg.App.HTTP.Origins, logger),
		UploadDir:   cfg.App.Attachments,
	})

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.View(r.Context(), func(*store.Tx) error { return nil }); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if syncer != nil && cfg.Types.Watch {
		g.Go(func() error {
			if err := typedefs.Watch(gCtx, syncer); err != nil {
				logger.Warn("type watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr since stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog := newLogger(cfg, os.Stderr)
	defer closeLog()
	slog.SetDefault(logger)

	st, closeStore, err := mcpStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(st).ServeStdio()
}

// mcpStore picks the store behind the MCP tools. With client.server set, tools
// talk to that server so its manager stays the only writer and every write is
// broadcast. Without it they open the database directly and nothing is
// broadcast.
func mcpStore(ctx context.Context, cfg *Config, logger *slog.Logger) (mcpserver.Store, func(), error) {
	if cfg.Client.Server != "" {
		cl, err := client.New(cfg.Client.Server,
			client.WithToken(cfg.Client.Token),
			client.WithHTTPClient(&http.Client{Timeout: cfg.Client.Timeout}),
			client.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("MCP tools use remote server", slog.String("server", cfg.Client.Server))
		return cl, func() {}, nil
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	mgr := manager.New(db, manager.WithLogger(logger))
	if _, err := syncTypes(ctx, cfg.Types, mgr, logger); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Warn("MCP tools use the local database; writes are not broadcast",
		slog.String("sqlite_path", cfg.SQLite.Path))
	return mgr, func() { db.Close() }, nil
}

// Tail connects to a running server, loads a replica session and prints one
// line per broadcast until ctx ends.
func Tail(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	out := app.out
	if out == nil {
		out = os.Stdout
	}

	logger, closeLog := newLogger(cfg, os.Stderr)
	defer closeLog()

	cl, err := client.New(cfg.Client.Server,
		client.WithToken(cfg.Client.Token),
		client.WithHTTPClient(&http.Client{Timeout: cfg.Client.Timeout}),
		client.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	session := replica.NewSession(cl, replica.WithLogger(logger), replica.WithTimeout(cfg.Client.Timeout))
	if err := session.Load(ctx); err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	fmt.Fprintf(out, "loaded %d bit types, %d bits, %d collections\n",
		len(session.Types.All()), len(session.Bits.Items()), len(session.Collections.Items()))

	return cl.Listen(ctx, func(channel string, payload []byte) {
		if err := session.Apply(channel, payload); err != nil {
			logger.Warn("tail: apply failed", slog.String("channel", channel), slog.String("error", err.Error()))
			return
		}
		var n int
		switch channel {
		case models.ChannelBitTypes:
			n = len(session.Types.All())
		case models.ChannelBits:
			n = len(session.Bits.Items())
		case models.ChannelCollections:
			n = len(session.Collections.Items())
		}
		fmt.Fprintf(out, "%s %s %d\n", time.Now().Format(time.RFC3339), channel, n)
	})
}
