package playlist

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *JSONStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playlists.json")
	s, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	return s
}

// Scenario 1: append + persist.
func TestJSONStoreAppendAndPersist(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.AppendNew(ctx, 42, []int64{10, 20, 30}, false, "chan"); err != nil {
		t.Fatalf("AppendNew: %v", err)
	}

	rec, err := s.Load(ctx, 42)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	wantPlaylist := []int64{10, 20, 30}
	if !int64SliceEqual(rec.Playlist, wantPlaylist) {
		t.Fatalf("playlist = %v, want %v", rec.Playlist, wantPlaylist)
	}
	if rec.LatestID != 30 {
		t.Fatalf("latest_id = %d, want 30", rec.LatestID)
	}
	if rec.Reverse {
		t.Fatalf("reverse = true, want false")
	}
	if rec.LastStartedID != nil || rec.LastCompletedID != nil {
		t.Fatalf("expected nil markers, got started=%v completed=%v", rec.LastStartedID, rec.LastCompletedID)
	}

	// Reload: a fresh store pointed at the same file sees the identical
	// record (round-trip save -> load).
	reloaded, err := NewJSONStore(s.path)
	if err != nil {
		t.Fatalf("NewJSONStore reload: %v", err)
	}
	rec2, err := reloaded.Load(ctx, 42)
	if err != nil {
		t.Fatalf("Load after reload: %v", err)
	}
	if !int64SliceEqual(rec2.Playlist, wantPlaylist) || rec2.LatestID != 30 {
		t.Fatalf("reloaded record mismatch: %+v", rec2)
	}
}

// Scenario 2: idempotent append with overlap.
func TestJSONStoreAppendOverlap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.AppendNew(ctx, 1, []int64{1, 2, 3}, false, "c"); err != nil {
		t.Fatalf("AppendNew: %v", err)
	}
	if err := s.AppendNew(ctx, 1, []int64{2, 3, 4, 5}, false, ""); err != nil {
		t.Fatalf("AppendNew overlap: %v", err)
	}

	rec, err := s.Load(ctx, 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []int64{1, 2, 3, 4, 5}
	if !int64SliceEqual(rec.Playlist, want) {
		t.Fatalf("playlist = %v, want %v", rec.Playlist, want)
	}
	if rec.LatestID != 5 {
		t.Fatalf("latest_id = %d, want 5", rec.LatestID)
	}
}

// append_new(X); append_new(X) is idempotent.
func TestJSONStoreAppendExactRepeat(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ids := []int64{7, 8, 9}
	if err := s.AppendNew(ctx, 5, ids, false, "c"); err != nil {
		t.Fatalf("first AppendNew: %v", err)
	}
	if err := s.AppendNew(ctx, 5, ids, false, "c"); err != nil {
		t.Fatalf("second AppendNew: %v", err)
	}

	rec, err := s.Load(ctx, 5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !int64SliceEqual(rec.Playlist, ids) {
		t.Fatalf("playlist = %v, want %v (no duplicates)", rec.Playlist, ids)
	}
}

// Scenario 3: reverse view leaves storage order untouched.
func TestJSONStoreReverseView(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.AppendNew(ctx, 9, []int64{10, 20, 30}, true, "c"); err != nil {
		t.Fatalf("AppendNew: %v", err)
	}

	view, err := s.GetPlaylist(ctx, 9)
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	wantView := []int64{30, 20, 10}
	if !int64SliceEqual(view, wantView) {
		t.Fatalf("view = %v, want %v", view, wantView)
	}

	rec, err := s.Load(ctx, 9)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	wantStorage := []int64{10, 20, 30}
	if !int64SliceEqual(rec.Playlist, wantStorage) {
		t.Fatalf("storage order mutated: %v, want %v", rec.Playlist, wantStorage)
	}
}

// remove_video clears both the playlist entry and any matching marker
// (invariant 3 of spec §8).
func TestJSONStoreRemoveVideoClearsMarkers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.AppendNew(ctx, 3, []int64{1, 2, 3}, false, "c"); err != nil {
		t.Fatalf("AppendNew: %v", err)
	}
	if err := s.SetLastStarted(ctx, 3, 2); err != nil {
		t.Fatalf("SetLastStarted: %v", err)
	}
	if err := s.SetLastCompleted(ctx, 3, 2); err != nil {
		t.Fatalf("SetLastCompleted: %v", err)
	}

	if err := s.RemoveVideo(ctx, 3, 2); err != nil {
		t.Fatalf("RemoveVideo: %v", err)
	}

	rec, err := s.Load(ctx, 3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if int64SliceContains(rec.Playlist, 2) {
		t.Fatalf("playlist still contains removed id: %v", rec.Playlist)
	}
	if rec.LastStartedID != nil {
		t.Fatalf("last_started_id not cleared: %v", *rec.LastStartedID)
	}
	if rec.LastCompletedID != nil {
		t.Fatalf("last_completed_id not cleared: %v", *rec.LastCompletedID)
	}
}

func TestJSONStoreLoadAbsentReturnsErrNotExist(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Load(ctx, 404); err != ErrNotExist {
		t.Fatalf("Load on absent record = %v, want ErrNotExist", err)
	}
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func int64SliceContains(s []int64, v int64) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
