package playlist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/arung-agamani/denpa-stream/internal/xerrors"
)

// Scanner is the subset of upstream.Client the Playlist Manager needs to
// discover video messages in a channel. It is satisfied by the real
// upstream client and, in tests, by a hand-written fake.
type Scanner interface {
	// ScanRecentVideos walks a window of up to limit messages — the most
	// recent ones when startFrom == 0, otherwise IDs from startFrom upward —
	// and returns the IDs of the video messages in it. Order is not relied
	// on: the manager only uses the set and its max.
	ScanRecentVideos(ctx context.Context, chatID int64, startFrom int64, limit int) ([]int64, error)
	// ChannelDisplayName best-effort resolves a human-readable name.
	ChannelDisplayName(ctx context.Context, chatID int64) string
}

// globalScanGate serializes all first-run and incremental scans across
// every channel so concurrent Managers never hammer the upstream at once.
// This is the process-wide single-permit gate named in spec §4.D/§5.
var globalScanGate = semaphore.NewWeighted(1)

// The Manager only bounds window size and does not pace a scan: any pause
// between messages is up to the Scanner implementation. internal/upstream
// declares ScanRecentVideos on its Client interface but contains no
// implementation of it, so this module itself adds no scan pacing.
const (
	firstRunScanLimit    = 2000
	incrementalScanLimit = 500
)

// Manager owns the in-memory playlist state for one channel, persists
// mutations through a Store, and runs an AutoChecker for incremental
// discovery.
type Manager struct {
	mu sync.RWMutex

	chatID  int64
	store   Store
	scanner Scanner

	checkInterval time.Duration
	startDelay    time.Duration

	rec *Record

	checker *AutoChecker
}

// Options configures a Manager's construction, mirroring spec §4.D's
// {auto_checker, check_interval_seconds, reverse, preloaded?} flags.
type Options struct {
	AutoChecker         bool
	CheckInterval       time.Duration
	AutoCheckerDelay    time.Duration
	Reverse             bool
	Preloaded           *Record
}

// NewManager constructs a Manager for chatID. Call Build to populate its
// state before using it.
func NewManager(chatID int64, store Store, scanner Scanner, opts Options) *Manager {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 120 * time.Second
	}
	if opts.AutoCheckerDelay <= 0 {
		opts.AutoCheckerDelay = 30 * time.Second
	}
	return &Manager{
		chatID:        chatID,
		store:         store,
		scanner:       scanner,
		checkInterval: opts.CheckInterval,
		startDelay:    opts.AutoCheckerDelay,
	}
}

// Build resolves the manager's initial state: adopt a preloaded record,
// else load from the store, else perform a first-run scan. If
// opts.AutoChecker is set, schedules the AutoChecker: immediately for a
// preloaded record, otherwise after the start delay given to NewManager
// (opts.AutoCheckerDelay passed to Build is not consulted).
func (m *Manager) Build(ctx context.Context, opts Options) error {
	displayName := m.scanner.ChannelDisplayName(ctx, m.chatID)

	if opts.Preloaded != nil {
		m.mu.Lock()
		m.rec = opts.Preloaded.Clone()
		m.mu.Unlock()
		if opts.AutoChecker {
			m.scheduleChecker(0)
		}
		return nil
	}

	rec, err := m.store.Load(ctx, m.chatID)
	if err == nil {
		m.mu.Lock()
		m.rec = rec
		m.mu.Unlock()
		if opts.AutoChecker {
			m.scheduleChecker(m.startDelay)
		}
		return nil
	}
	if err != ErrNotExist {
		return err
	}

	// First-run scan.
	ids, scanErr := m.scanWithRetry(ctx, 0, firstRunScanLimit)
	if scanErr != nil {
		return scanErr
	}

	if err := m.store.AppendNew(ctx, m.chatID, ids, opts.Reverse, displayName); err != nil {
		return err
	}
	rec, err = m.store.Load(ctx, m.chatID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.rec = rec
	m.mu.Unlock()

	if opts.AutoChecker {
		m.scheduleChecker(m.startDelay)
	}
	return nil
}

// scanWithRetry performs one globally-serialized scan window, retrying
// once after a RateLimited signal's wait+1 seconds; any other error aborts
// the scan.
func (m *Manager) scanWithRetry(ctx context.Context, startFrom int64, limit int) ([]int64, error) {
	if err := globalScanGate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer globalScanGate.Release(1)

	ids, err := m.scanner.ScanRecentVideos(ctx, m.chatID, startFrom, limit)
	if rl, ok := xerrors.AsRateLimited(err); ok {
		select {
		case <-time.After(time.Duration(rl.WaitSeconds+1) * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return m.scanner.ScanRecentVideos(ctx, m.chatID, startFrom, limit)
	}
	return ids, err
}

// scheduleChecker creates and starts the AutoChecker after delay.
func (m *Manager) scheduleChecker(delay time.Duration) {
	m.mu.Lock()
	if m.checker != nil {
		m.mu.Unlock()
		return
	}
	checker := NewAutoChecker(m.checkInterval, delay, m.checkForUpdates)
	m.checker = checker
	m.mu.Unlock()

	go checker.Start(context.Background())
}

// checkForUpdates performs the incremental discovery scan starting at
// latest_id+1, spanning up to 500 additional IDs, appending any new video
// IDs found.
func (m *Manager) checkForUpdates(ctx context.Context) {
	m.mu.RLock()
	if m.rec == nil {
		m.mu.RUnlock()
		return
	}
	startFrom := m.rec.LatestID + 1
	m.mu.RUnlock()

	ids, err := m.scanWithRetry(ctx, startFrom, incrementalScanLimit)
	if err != nil {
		slog.Warn("playlist manager: incremental scan failed", "chat_id", m.chatID, "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	if err := m.store.AppendNew(ctx, m.chatID, ids, m.currentReverse(), ""); err != nil {
		slog.Warn("playlist manager: append_new failed", "chat_id", m.chatID, "error", err)
		return
	}

	rec, err := m.store.Load(ctx, m.chatID)
	if err != nil {
		slog.Warn("playlist manager: reload after append_new failed", "chat_id", m.chatID, "error", err)
		return
	}
	m.mu.Lock()
	m.rec = rec
	m.mu.Unlock()
}

func (m *Manager) currentReverse() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec == nil {
		return false
	}
	return m.rec.Reverse
}

// NextVideo selects the next ID to play given the currently-playing ID
// (or nil for "nothing playing yet").
func (m *Manager) NextVideo(currentID *int64) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.rec == nil || len(m.rec.Playlist) == 0 {
		return 0, false
	}
	list := m.rec.Playlist

	if currentID == nil {
		if m.rec.LastStartedID != nil {
			if idx := indexOf(list, *m.rec.LastStartedID); idx >= 0 {
				return list[idx], true
			}
		}
		if m.rec.LastCompletedID != nil {
			if idx := indexOf(list, *m.rec.LastCompletedID); idx >= 0 {
				return list[(idx+1)%len(list)], true
			}
		}
		return list[0], true
	}

	idx := indexOf(list, *currentID)
	if idx < 0 {
		return list[0], true
	}
	return list[(idx+1)%len(list)], true
}

func indexOf(list []int64, v int64) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

// RemoveVideo removes id from the in-memory list (nullifying matching
// markers) and persists the change.
func (m *Manager) RemoveVideo(ctx context.Context, id int64) error {
	m.mu.Lock()
	if m.rec != nil {
		removeFromRecord(m.rec, id)
	}
	m.mu.Unlock()

	return m.store.RemoveVideo(ctx, m.chatID, id)
}

// SetLastStarted persists last_started_id and updates in-memory state.
func (m *Manager) SetLastStarted(ctx context.Context, id int64) error {
	m.mu.Lock()
	if m.rec != nil {
		v := id
		m.rec.LastStartedID = &v
	}
	m.mu.Unlock()
	return m.store.SetLastStarted(ctx, m.chatID, id)
}

// SetLastCompleted persists last_completed_id and updates in-memory state.
func (m *Manager) SetLastCompleted(ctx context.Context, id int64) error {
	m.mu.Lock()
	if m.rec != nil {
		v := id
		m.rec.LastCompletedID = &v
	}
	m.mu.Unlock()
	return m.store.SetLastCompleted(ctx, m.chatID, id)
}

// GetPlaylist returns the in-memory list, reversed iff reverse is set.
func (m *Manager) GetPlaylist() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec == nil {
		return nil
	}
	return orderedView(m.rec.Playlist, m.rec.Reverse)
}

// ChatID returns the channel this manager serves.
func (m *Manager) ChatID() int64 { return m.chatID }

// Stop cancels the scheduled auto-checker task(s) and drains them.
func (m *Manager) Stop() {
	m.mu.Lock()
	checker := m.checker
	m.mu.Unlock()
	if checker != nil {
		checker.Stop()
	}
}
