package playlist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// storeFactory builds a fresh Store instance for one conformance run.
type storeFactory struct {
	name string
	new  func(t *testing.T) Store
}

// conformanceFactories always includes the JSON backend (no external infra
// needed) and adds the Postgres/Mongo backends only when a live connection
// string is supplied via environment, the same opt-in pattern this pack's
// OAuth e2e suites use for credentials that can't be faked locally.
func conformanceFactories(t *testing.T) []storeFactory {
	t.Helper()
	factories := []storeFactory{
		{name: "json", new: func(t *testing.T) Store {
			path := filepath.Join(t.TempDir(), "playlists.json")
			s, err := NewJSONStore(path)
			if err != nil {
				t.Fatalf("NewJSONStore: %v", err)
			}
			return s
		}},
	}

	if dsn := os.Getenv("TEST_POSTGRES_URL"); dsn != "" {
		factories = append(factories,
			storeFactory{name: "postgres-text", new: func(t *testing.T) Store {
				s, err := NewPGTextStore(context.Background(), dsn)
				if err != nil {
					t.Fatalf("NewPGTextStore: %v", err)
				}
				return s
			}},
			storeFactory{name: "postgres-array", new: func(t *testing.T) Store {
				s, err := NewPGArrayStore(context.Background(), dsn)
				if err != nil {
					t.Fatalf("NewPGArrayStore: %v", err)
				}
				return s
			}},
		)
	} else {
		t.Log("TEST_POSTGRES_URL not set, skipping postgres-text/postgres-array conformance")
	}

	if dsn := os.Getenv("TEST_MONGO_URL"); dsn != "" {
		factories = append(factories, storeFactory{name: "mongo", new: func(t *testing.T) Store {
			s, err := NewMongoStore(context.Background(), dsn, "denpa_stream_test")
			if err != nil {
				t.Fatalf("NewMongoStore: %v", err)
			}
			return s
		}})
	} else {
		t.Log("TEST_MONGO_URL not set, skipping mongo conformance")
	}

	return factories
}

// TestStoreConformance runs the same black-box scenario against every
// configured Store backend so behavioral parity — round-trip, idempotent
// append, reverse view, marker-clearing on removal — is checked identically
// across all of them, not just JSONStore.
func TestStoreConformance(t *testing.T) {
	for _, f := range conformanceFactories(t) {
		f := f
		t.Run(f.name, func(t *testing.T) {
			store := f.new(t)
			// A fresh chatID per run avoids collisions when pointed at a
			// persistent external database across repeated test runs.
			chatID := -time.Now().UnixNano()
			checkStoreConformance(t, store, chatID)
		})
	}
}

func checkStoreConformance(t *testing.T, store Store, chatID int64) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Load(ctx, chatID); err != ErrNotExist {
		t.Fatalf("Load on absent record = %v, want ErrNotExist", err)
	}

	if err := store.AppendNew(ctx, chatID, []int64{3, 1, 2}, false, "chan-a"); err != nil {
		t.Fatalf("AppendNew: %v", err)
	}
	pl, err := store.GetPlaylist(ctx, chatID)
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if !int64SliceEqual(pl, []int64{1, 2, 3}) {
		t.Fatalf("GetPlaylist after first append = %v, want [1 2 3]", pl)
	}

	// Overlapping append: only previously-unseen IDs are merged in, in
	// ascending order, appended after the existing entries.
	if err := store.AppendNew(ctx, chatID, []int64{2, 4, 5}, false, ""); err != nil {
		t.Fatalf("AppendNew overlap: %v", err)
	}
	pl, err = store.GetPlaylist(ctx, chatID)
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if !int64SliceEqual(pl, []int64{1, 2, 3, 4, 5}) {
		t.Fatalf("GetPlaylist after overlap append = %v, want [1 2 3 4 5]", pl)
	}

	// Idempotent repeat: re-appending the same ids changes nothing.
	if err := store.AppendNew(ctx, chatID, []int64{1, 2, 3, 4, 5}, false, ""); err != nil {
		t.Fatalf("AppendNew repeat: %v", err)
	}
	pl, err = store.GetPlaylist(ctx, chatID)
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if !int64SliceEqual(pl, []int64{1, 2, 3, 4, 5}) {
		t.Fatalf("GetPlaylist after idempotent repeat = %v, want unchanged", pl)
	}

	// The reverse flag flips the returned view without touching storage
	// order underneath.
	if err := store.AppendNew(ctx, chatID, nil, true, ""); err != nil {
		t.Fatalf("AppendNew reverse flag: %v", err)
	}
	pl, err = store.GetPlaylist(ctx, chatID)
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if !int64SliceEqual(pl, []int64{5, 4, 3, 2, 1}) {
		t.Fatalf("GetPlaylist reversed = %v, want [5 4 3 2 1]", pl)
	}

	if err := store.SetLastStarted(ctx, chatID, 3); err != nil {
		t.Fatalf("SetLastStarted: %v", err)
	}
	if err := store.SetLastCompleted(ctx, chatID, 2); err != nil {
		t.Fatalf("SetLastCompleted: %v", err)
	}
	rec, err := store.Load(ctx, chatID)
	if err != nil {
		t.Fatalf("Load after markers: %v", err)
	}
	if rec.LastStartedID == nil || *rec.LastStartedID != 3 {
		t.Fatalf("LastStartedID = %v, want 3", rec.LastStartedID)
	}
	if rec.LastCompletedID == nil || *rec.LastCompletedID != 2 {
		t.Fatalf("LastCompletedID = %v, want 2", rec.LastCompletedID)
	}

	// Removing the video last_started_id points at clears that marker but
	// leaves an unrelated marker alone.
	if err := store.RemoveVideo(ctx, chatID, 3); err != nil {
		t.Fatalf("RemoveVideo: %v", err)
	}
	rec, err = store.Load(ctx, chatID)
	if err != nil {
		t.Fatalf("Load after RemoveVideo: %v", err)
	}
	if int64SliceContains(rec.Playlist, 3) {
		t.Fatalf("Playlist still contains removed id 3: %v", rec.Playlist)
	}
	if rec.LastStartedID != nil {
		t.Fatalf("LastStartedID = %v after removing the video it pointed to, want nil", rec.LastStartedID)
	}
	if rec.LastCompletedID == nil || *rec.LastCompletedID != 2 {
		t.Fatalf("LastCompletedID = %v, want unaffected 2", rec.LastCompletedID)
	}
}

// TestPGTextListEncodeDecodeRoundTrip exercises PGTextStore's private
// comma-joined encoding directly, independent of a live Postgres connection,
// so the text backend's codec gets coverage even when TEST_POSTGRES_URL
// isn't set.
func TestPGTextListEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]int64{
		nil,
		{},
		{1},
		{1, 2, 3},
		{5, 4, 3, 2, 1},
	}
	for _, ids := range cases {
		encoded := encodeTextList(ids)
		decoded := decodeTextList(encoded)
		if len(ids) == 0 {
			if len(decoded) != 0 {
				t.Fatalf("decodeTextList(encodeTextList(%v)) = %v, want empty", ids, decoded)
			}
			continue
		}
		if !int64SliceEqual(decoded, ids) {
			t.Fatalf("decodeTextList(encodeTextList(%v)) = %v, want %v", ids, decoded, ids)
		}
	}
}

func TestPGTextListDecodeEmptyString(t *testing.T) {
	if got := decodeTextList(""); got != nil {
		t.Fatalf("decodeTextList(\"\") = %v, want nil", got)
	}
}
