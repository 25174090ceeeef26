// Package supervisor drives one continuously-running HLS stream for a
// single channel: pulling videos from a playlist.Manager, fetching and
// cleaning their bytes, segmenting them to disk, and restarting on error.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/arung-agamani/denpa-stream/internal/pipeline/cleaner"
	"github.com/arung-agamani/denpa-stream/internal/pipeline/segmenter"
	"github.com/arung-agamani/denpa-stream/internal/playlist"
	"github.com/arung-agamani/denpa-stream/internal/procreg"
	"github.com/arung-agamani/denpa-stream/internal/upstream"
	"github.com/arung-agamani/denpa-stream/internal/xerrors"
)

// errStuck is returned internally when the watchdog fires, so the outer
// loop can distinguish it from an ordinary inner error and apply the
// longer restart backoff.
var errStuck = errors.New("supervisor: stream stuck")

// Config bundles a Supervisor's fixed dependencies and tunables.
type Config struct {
	StreamName string
	HLSRoot    string

	Manager  *playlist.Manager
	Pool     *upstream.Pool
	Streamer *upstream.ByteStreamer
	Registry *procreg.Registry

	StuckTimeout  time.Duration
	InnerBackoff  time.Duration
	OuterBackoff  time.Duration
	EmptyPollWait time.Duration
}

// Supervisor runs the restart-on-error loop of spec §4.G for one channel.
type Supervisor struct {
	cfg Config
	dir string
}

// New constructs a Supervisor from cfg, defaulting any unset durations.
func New(cfg Config) *Supervisor {
	if cfg.StuckTimeout <= 0 {
		cfg.StuckTimeout = 20 * time.Second
	}
	if cfg.InnerBackoff <= 0 {
		cfg.InnerBackoff = 3 * time.Second
	}
	if cfg.OuterBackoff <= 0 {
		cfg.OuterBackoff = 5 * time.Second
	}
	if cfg.EmptyPollWait <= 0 {
		cfg.EmptyPollWait = 5 * time.Second
	}
	return &Supervisor{
		cfg: cfg,
		dir: filepath.Join(cfg.HLSRoot, cfg.StreamName),
	}
}

// Dir returns the stream's HLS output directory.
func (s *Supervisor) Dir() string { return s.dir }

// Run blocks until ctx is cancelled, restarting the inner streaming loop
// on error with the configured backoff.
func (s *Supervisor) Run(ctx context.Context) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		slog.Error("supervisor: cannot create hls dir", "stream", s.cfg.StreamName, "error", err)
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.runInner(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		delay := s.cfg.InnerBackoff
		if errors.Is(err, errStuck) {
			delay = s.cfg.OuterBackoff
		}
		slog.Error("supervisor: inner loop exited, restarting", "stream", s.cfg.StreamName, "error", err, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// runInner is the playlist iterator: pull the next video, stream + clean
// + segment it, repeat. It never returns nil: it returns context.Canceled
// when ctx is cancelled, and any other error is one the outer loop
// restarts from.
func (s *Supervisor) runInner(ctx context.Context) error {
	var currentID *int64

	for {
		if ctx.Err() != nil {
			return context.Canceled
		}

		nextID, ok := s.cfg.Manager.NextVideo(currentID)
		if !ok {
			select {
			case <-time.After(s.cfg.EmptyPollWait):
				continue
			case <-ctx.Done():
				return context.Canceled
			}
		}

		id := nextID
		currentID = &id

		if err := s.cfg.Manager.SetLastStarted(ctx, id); err != nil {
			slog.Warn("supervisor: set_last_started failed", "stream", s.cfg.StreamName, "video", id, "error", err)
		}

		err := s.runOne(ctx, id)
		switch {
		case err == nil:
			if cerr := s.cfg.Manager.SetLastCompleted(ctx, id); cerr != nil {
				slog.Warn("supervisor: set_last_completed failed", "stream", s.cfg.StreamName, "video", id, "error", cerr)
			}
			slog.Info("supervisor: finished video", "stream", s.cfg.StreamName, "video", id)
			continue

		case xerrors.IsNotFound(err):
			slog.Warn("supervisor: video not found, removing", "stream", s.cfg.StreamName, "video", id)
			if rerr := s.cfg.Manager.RemoveVideo(ctx, id); rerr != nil {
				slog.Warn("supervisor: remove_video failed", "stream", s.cfg.StreamName, "video", id, "error", rerr)
			}
			currentID = nil
			continue

		case errors.Is(err, context.Canceled):
			return context.Canceled

		default:
			return err
		}
	}
}

// runOne streams, cleans, and segments a single video, preparing the
// byte source and cleaner lazily — the cleaner's ffmpeg process is
// spawned but its stdout is not drained until the segmenter is handed the
// channel, matching the original generator's prepare-then-yield ordering.
func (s *Supervisor) runOne(ctx context.Context, videoID int64) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chatID := s.cfg.Manager.ChatID()

	desc, err := s.cfg.Streamer.GetFileProperties(attemptCtx, chatID, videoID)
	if err != nil {
		return err
	}

	workerID := s.cfg.Pool.Choose()
	s.cfg.Pool.Acquire(workerID)
	defer s.cfg.Pool.Release(workerID)

	partCount := upstream.PartCount(desc.FileSize)
	lastCut := upstream.LastCut(desc.FileSize)
	rawSource := s.cfg.Streamer.YieldFile(attemptCtx, desc, 0, 0, lastCut, partCount)

	tsSource := cleaner.Run(attemptCtx, s.cfg.Registry, rawSource, s.cfg.StreamName)

	activity := segmenter.NewLastActivity()
	watchdogDone := make(chan struct{})
	go s.watchdog(attemptCtx, cancel, activity, watchdogDone)
	defer close(watchdogDone)

	segErr := segmenter.Run(attemptCtx, s.cfg.Registry, tsSource, s.dir, s.cfg.StreamName, activity)
	if segErr != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
		// Our own watchdog cancelled this attempt, not the parent context.
		return errStuck
	}
	return segErr
}

// watchdog cancels cancel if activity goes stale for longer than
// StuckTimeout, so a wedged upstream fetch or encoder never hangs the
// stream forever.
func (s *Supervisor) watchdog(ctx context.Context, cancel context.CancelFunc, activity *segmenter.LastActivity, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if activity.Since() > s.cfg.StuckTimeout {
				slog.Warn("supervisor: stream stuck, cancelling attempt", "stream", s.cfg.StreamName)
				cancel()
				return
			}
		}
	}
}

// CleanTree removes every entry under hlsRoot, per spec §4.G's
// clean-on-startup-and-shutdown rule. Missing directories are not an
// error.
func CleanTree(hlsRoot string) error {
	entries, err := os.ReadDir(hlsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(hlsRoot, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
