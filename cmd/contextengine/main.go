// Command contextengine runs the context assembly engine: it wires the
// record store gateway, entity extractor, edge builder, graph loader, path
// finder, trigger matcher, and context assembler into the event loop, then
// blocks serving the SSE change stream until signaled to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/contextengine/pkg/assembler"
	"github.com/codeready-toolchain/contextengine/pkg/breadcrumbstore"
	"github.com/codeready-toolchain/contextengine/pkg/config"
	"github.com/codeready-toolchain/contextengine/pkg/dashboardpush"
	"github.com/codeready-toolchain/contextengine/pkg/database"
	"github.com/codeready-toolchain/contextengine/pkg/debugapi"
	"github.com/codeready-toolchain/contextengine/pkg/entities"
	"github.com/codeready-toolchain/contextengine/pkg/eventloop"
	"github.com/codeready-toolchain/contextengine/pkg/graphbuilder"
	"github.com/codeready-toolchain/contextengine/pkg/pathfinder"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	logger := slog.Default()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		logger.Info("loaded environment", "path", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	operationalPath := filepath.Join(*configDir, "operational.yaml")
	cfg, err := config.Load(operationalPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	logger.Info("connected to database")

	store := breadcrumbstore.New(dbClient.Pool(), cfg.OwnerID)

	if err := store.LoadBlacklist(ctx); err != nil {
		logger.Error("failed to load blacklist at startup", "error", err)
		os.Exit(1)
	}
	if cfg.Operational.BlacklistRefreshInterval > 0 {
		go runBlacklistRefresh(ctx, store, cfg.Operational.BlacklistRefreshInterval, logger)
	}

	edgeBuilder := graphbuilder.New(dbClient.Pool())
	subgraphLoader := graphbuilder.NewLoader(dbClient.Pool())
	finder := pathfinder.New()

	asm := assembler.New(store, subgraphLoader, finder, logger.Info)

	var hub *dashboardpush.Hub
	if cfg.Operational.DashboardPushEnabled {
		hub = dashboardpush.New(5*time.Second, logger)
		asm.SetPublishNotifier(hub.NotifyPublish)
	}

	streamURL := cfg.RCRTAPIURL + "/events/stream"
	bearerToken := getEnv("RCRT_API_TOKEN", "")
	loop := eventloop.New(streamURL, bearerToken, http.DefaultClient, store, edgeBuilder, asm, entities.Keywords, logger)

	runStartupBackfill(ctx, store, cfg.Operational.BackfillBatchSize, logger)

	var debugServer *debugapi.Server
	if cfg.Operational.DebugListenAddr != "" {
		// The dashboard push websocket upgrade endpoint (GET /dashboard/stream)
		// is mounted on this same echo instance when a hub is configured,
		// mirroring the teacher's single-echo-instance-per-process convention
		// (pkg/api/server.go wiring one HTTP server for both API and websocket
		// routes). If DebugListenAddr is empty, dashboard push has no HTTP
		// surface to serve on and effectively stays disabled regardless of
		// DashboardPushEnabled.
		// hub is only handed through as a non-nil interface value when it's
		// actually configured: passing a nil *dashboardpush.Hub directly
		// would make the debugapi.DashboardHub interface value itself
		// non-nil (a typed nil), breaking its own "hub == nil" check.
		var dashboardHub debugapi.DashboardHub
		if hub != nil {
			dashboardHub = hub
		}
		debugServer = debugapi.New(dbClient, store, loop, func(ctx context.Context) error {
			return eventloop.Backfill(ctx, store, entities.Keywords, cfg.Operational.BackfillBatchSize, logger)
		}, dashboardHub, subgraphLoader)
		go func() {
			logger.Info("debug/admin server listening", "addr", cfg.Operational.DebugListenAddr)
			if err := debugServer.Start(cfg.Operational.DebugListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("debug/admin server stopped", "error", err)
			}
		}()
	}

	if hub != nil {
		logger.Info("dashboard push enabled", "route", "/dashboard/stream")
	}

	logger.Info("starting event loop", "stream_url", streamURL)
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("event loop exited with error", "error", err)
	}

	if debugServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := debugServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("debug/admin server shutdown error", "error", err)
		}
	}
	logger.Info("context engine stopped")
}

// runBlacklistRefresh periodically reloads the blacklist on a ticker. A
// refresh failure is logged and the previous snapshot keeps serving (§4.1
// "the core does not mandate a refresh cadence" — this is an optional,
// off-by-default extension).
func runBlacklistRefresh(ctx context.Context, store *breadcrumbstore.Gateway, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.RefreshBlacklist(ctx); err != nil {
				logger.Error("blacklist refresh failed, keeping previous snapshot", "error", err)
			}
		}
	}
}

// runStartupBackfill runs the resumable entity backfill (§4.8) once before
// the event loop starts taking live traffic.
func runStartupBackfill(ctx context.Context, store *breadcrumbstore.Gateway, maxRecords int, logger *slog.Logger) {
	if err := eventloop.Backfill(ctx, store, entities.Keywords, maxRecords, logger); err != nil {
		logger.Error("startup entity backfill failed", "error", err)
	}
}
