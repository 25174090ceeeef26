// Package app is the composition root: it wires the playlist store, the
// upstream client pool, the byte streamer, one supervisor per configured
// channel, and the HTTP servers into a single runnable process.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/arung-agamani/denpa-stream/internal/auth"
	"github.com/arung-agamani/denpa-stream/internal/config"
	"github.com/arung-agamani/denpa-stream/internal/debug"
	"github.com/arung-agamani/denpa-stream/internal/httpapi"
	"github.com/arung-agamani/denpa-stream/internal/playlist"
	"github.com/arung-agamani/denpa-stream/internal/procreg"
	"github.com/arung-agamani/denpa-stream/internal/supervisor"
	"github.com/arung-agamani/denpa-stream/internal/upstream"
)

// ClientFactory builds an authenticated upstream.Client for a bot token.
// There is no MTProto/Telegram client library in the retrieved example
// pack (see DESIGN.md), so the real implementation is supplied by the
// caller of New. main.go is that caller; its factories return an error,
// since no chat-protocol SDK is wired into this build.
type ClientFactory func(token string) (upstream.Client, error)

// App holds every composed component and runs them to completion.
type App struct {
	cfg *config.Config

	store    playlist.Store
	pool     *upstream.Pool
	workers  map[int]upstream.Client
	streamer *upstream.ByteStreamer
	registry *procreg.Registry

	managers    []*playlist.Manager
	supervisors []*supervisor.Supervisor

	httpServer  *httpapi.Server
	debugServer *debug.Server
}

// New builds the Store from cfg.StoreBackend, the client pool from
// newMain/newHelper/newWorker, a Manager+Supervisor per configured
// channel, and the public HTTP server. Each Manager is built here, which
// runs its first-run scan if needed and starts its AutoChecker goroutine;
// the client pool, supervisors and HTTP servers are not started.
func New(ctx context.Context, cfg *config.Config, newMain, newHelper ClientFactory, newWorker func(id int, token string) (upstream.Client, error)) (*App, error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("app: build store: %w", err)
	}

	mainClient, err := newMain(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("app: build main client: %w", err)
	}
	helperClient, err := newHelper(cfg.HelperBotToken)
	if err != nil {
		return nil, fmt.Errorf("app: build helper client: %w", err)
	}

	pool := upstream.NewPool(mainClient, helperClient, cfg.ClientStartTimeout)

	workers := make(map[int]upstream.Client, len(cfg.MultiTokens))
	for id, token := range cfg.MultiTokens {
		client, err := newWorker(id, token)
		if err != nil {
			slog.Warn("app: skipping worker that failed to build", "worker", id, "error", err)
			continue
		}
		workers[id] = client
	}

	registry := procreg.NewRegistry()
	streamer := upstream.NewByteStreamer(helperClient)

	managers := make([]*playlist.Manager, 0, len(cfg.StreamChannels))
	supervisors := make([]*supervisor.Supervisor, 0, len(cfg.StreamChannels))
	for i, chatID := range cfg.StreamChannels {
		streamName := fmt.Sprintf("stream%d", i+1)

		mgrOpts := playlist.Options{
			AutoChecker:      true,
			CheckInterval:    cfg.AutoCheckerInterval,
			AutoCheckerDelay: cfg.AutoCheckerStartDelay,
		}
		mgr := playlist.NewManager(chatID, store, helperClient, mgrOpts)
		if err := mgr.Build(ctx, mgrOpts); err != nil {
			return nil, fmt.Errorf("app: build playlist manager for chat %d: %w", chatID, err)
		}

		sup := supervisor.New(supervisor.Config{
			StreamName:   streamName,
			HLSRoot:      cfg.HLSDir,
			Manager:      mgr,
			Pool:         pool,
			Streamer:     streamer,
			Registry:     registry,
			StuckTimeout: cfg.StreamStuckTimeout,
			InnerBackoff: cfg.InnerLoopBackoff,
			OuterBackoff: cfg.StreamRestartDelay,
		})
		managers = append(managers, mgr)
		supervisors = append(supervisors, sup)
	}

	router, err := httpapi.NewRouter(cfg.HLSDir, ".", cfg.LogFile, cfg.StreamChannels)
	if err != nil {
		return nil, fmt.Errorf("app: build router: %w", err)
	}
	httpServer := httpapi.NewServer(":"+cfg.Port, router)

	var debugServer *debug.Server
	if cfg.DebugMode {
		a := auth.New(auth.Config{Token: cfg.BotToken})
		workerIDs := make([]int, 0, len(workers))
		for id := range workers {
			workerIDs = append(workerIDs, id)
		}
		debugServer = debug.NewServer(cfg.DebugAddr, a, registry, pool, workerIDs)
	}

	return &App{
		cfg:         cfg,
		store:       store,
		pool:        pool,
		workers:     workers,
		streamer:    streamer,
		registry:    registry,
		managers:    managers,
		supervisors: supervisors,
		httpServer:  httpServer,
		debugServer: debugServer,
	}, nil
}

// Run starts the client pool, every supervisor, and the HTTP server(s),
// blocking until ctx is cancelled, then tears everything down: the HLS
// tree is wiped, every spawned encoder process is force-stopped within
// its grace timeout.
func (a *App) Run(ctx context.Context) error {
	if err := supervisor.CleanTree(a.cfg.HLSDir); err != nil {
		slog.Warn("app: failed to clean hls tree on startup", "error", err)
	}

	if err := a.pool.Start(ctx, a.workers); err != nil {
		return fmt.Errorf("app: start client pool: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.httpServer.Start(gctx) })
	if a.debugServer != nil {
		g.Go(func() error { return a.debugServer.Start(gctx) })
	}

	for _, sup := range a.supervisors {
		sup := sup
		g.Go(func() error {
			sup.Run(gctx)
			return nil
		})
	}

	err := g.Wait()

	for _, mgr := range a.managers {
		mgr.Stop()
	}
	a.registry.ShutdownAll(context.Background(), a.cfg.EncoderGraceTimeout)
	a.streamer.Stop()
	if serr := a.pool.Stop(context.Background()); serr != nil {
		slog.Warn("app: error stopping client pool", "error", serr)
	}
	if cerr := supervisor.CleanTree(a.cfg.HLSDir); cerr != nil {
		slog.Warn("app: failed to clean hls tree on shutdown", "error", cerr)
	}

	return err
}

func buildStore(ctx context.Context, cfg *config.Config) (playlist.Store, error) {
	switch cfg.StoreBackend {
	case "mongo":
		return playlist.NewMongoStore(ctx, cfg.DatabaseURL, cfg.MongoDatabase)
	case "postgres-text":
		return playlist.NewPGTextStore(ctx, cfg.PostgresURL)
	case "postgres-array":
		return playlist.NewPGArrayStore(ctx, cfg.PostgresURL)
	case "json", "":
		return playlist.NewJSONStore(cfg.JSONStorePath)
	default:
		return nil, fmt.Errorf("app: unknown store backend %q", cfg.StoreBackend)
	}
}
