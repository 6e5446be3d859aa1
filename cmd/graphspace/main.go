package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/graphspace/internal/actions"
	"github.com/rendis/graphspace/internal/layout"
	"github.com/rendis/graphspace/internal/logging"
	"github.com/rendis/graphspace/internal/panel"
	"github.com/rendis/graphspace/internal/scheduler"
	"github.com/rendis/graphspace/internal/store"
	"github.com/rendis/graphspace/internal/telemetry"
	"github.com/rendis/graphspace/internal/workspace"
	"github.com/rendis/graphspace/pkg/mcp"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		printVersion()
		return
	}
	os.Exit(realMain())
}

func realMain() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file if present.
	_ = godotenv.Load()

	cfg := loadConfig()
	// Stdout carries the MCP stdio transport, so logs go to stderr.
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal error", slog.Any("error", err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if !cfg.Panel && !cfg.Stdio {
		return errors.New("nothing to serve: enable the panel or the stdio transport")
	}
	logger.Info("graphspace starting", slog.String("version", version), slog.String("db", cfg.DBPath))

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		ServiceName:    "graphspace",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ws, err := workspace.New(ctx, workspace.Options{
		Store:        st,
		LayoutEngine: layout.NewLocalEngine(placerFor(cfg.LayoutEngine)),
		LayoutRate:   cfg.LayoutRate,
		AutoLayout:   cfg.AutoLayout,
		Sources: actions.SourceConfig{
			Roots:     cfg.Roots,
			AllowHTTP: cfg.AllowHTTP,
			MaxSize:   cfg.MaxGraphSize,
		},
		Logger:   logger,
		PoolSize: cfg.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	defer ws.Close()

	if cfg.Graph != "" {
		if err := loadInitialGraph(ctx, ws, cfg.Graph); err != nil {
			logger.Warn("initial graph not loaded", slog.String("path", cfg.Graph), slog.Any("error", err))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Autosave != "" {
		saver, err := scheduler.NewAutosaver(ws.Graph(), st, scheduler.Config{
			Cron: cfg.Autosave,
			Keep: cfg.SnapshotKeep,
		}, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return saver.Run(gctx) })
	}

	if cfg.Panel {
		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           panel.NewPanelServer(panel.PanelDeps{Workspace: ws, Logger: logger}).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("panel listening", slog.String("addr", cfg.ListenAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("panel: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Stdio {
		mcpSrv := mcp.NewGraphspaceServer(mcp.GraphspaceServerDeps{
			Workspace: ws,
			Logger:    logger,
			Version:   version,
		})
		g.Go(func() error {
			// The client closing stdin ends the session and the process.
			defer cancel()
			if err := mcpSrv.Serve(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("graphspace stopped")
	return err
}

func placerFor(name string) layout.Placer {
	if name == "circle" {
		return layout.CirclePlacer{}
	}
	return layout.GraphvizPlacer{}
}

func loadInitialGraph(ctx context.Context, ws *workspace.Workspace, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return ws.LoadGraph(ctx, filepath.Base(path), string(data))
}
