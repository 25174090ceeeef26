package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arung-agamani/denpa-stream/internal/app"
	"github.com/arung-agamani/denpa-stream/internal/config"
	"github.com/arung-agamani/denpa-stream/internal/upstream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()

	slog.Info("starting streaming service",
		"port", cfg.Port,
		"channels", len(cfg.StreamChannels),
		"store_backend", cfg.StoreBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	application, err := app.New(ctx, cfg, newMTProtoClient(cfg), newMTProtoClient(cfg), newWorkerClient(cfg))
	if err != nil {
		slog.Error("failed to compose application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("application exited with error", "error", err)
		os.Exit(1)
	}

	slog.Info("streaming service stopped")
}

// newMTProtoClient returns an app.ClientFactory bound to the given
// process config. There is no MTProto/Telegram client library in the
// retrieved example pack (see DESIGN.md's "explicit capability set"
// notes on internal/upstream.Client), so this factory is the seam a real
// deployment fills in with whatever chat-protocol SDK it vendors; until
// then it fails fast with a descriptive error rather than silently
// no-op'ing.
func newMTProtoClient(cfg *config.Config) app.ClientFactory {
	return func(token string) (upstream.Client, error) {
		return nil, &unwiredClientError{token: token}
	}
}

func newWorkerClient(cfg *config.Config) func(id int, token string) (upstream.Client, error) {
	return func(id int, token string) (upstream.Client, error) {
		return nil, &unwiredClientError{token: token}
	}
}

// unwiredClientError reports that no concrete upstream.Client
// implementation has been wired into this build.
type unwiredClientError struct {
	token string
}

func (e *unwiredClientError) Error() string {
	return "no upstream chat-protocol client implementation is wired into this build"
}
