// Package playlist implements the durable per-channel playlist state
// (the Store interface and its backends) and the Playlist Manager that
// builds, discovers, and serves playback order from it.
package playlist

import (
	"context"
	"errors"
	"time"
)

// ErrNotExist is returned by Load when no record exists yet for a channel.
var ErrNotExist = errors.New("playlist: record does not exist")

// Record is the durable per-channel playlist state. Playlist is stored
// oldest-first with no duplicates; Reverse only affects the view returned
// by GetPlaylist, never the stored order.
type Record struct {
	ChatID          int64   `json:"chat_id"`
	Playlist        []int64 `json:"playlist"`
	LatestID        int64   `json:"latest_id"`
	Reverse         bool    `json:"reverse"`
	LastStartedID   *int64  `json:"last_started_id"`
	LastCompletedID *int64  `json:"last_completed_id"`
	ChannelName     string  `json:"channel_name"`
	UpdatedAt       int64   `json:"updated_at"`
}

// Clone returns a deep copy of the record so callers can safely mutate the
// result of Load without racing the store's internal state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Playlist = append([]int64(nil), r.Playlist...)
	if r.LastStartedID != nil {
		v := *r.LastStartedID
		cp.LastStartedID = &v
	}
	if r.LastCompletedID != nil {
		v := *r.LastCompletedID
		cp.LastCompletedID = &v
	}
	return &cp
}

// orderedView returns ids in storage order, or reversed when reverse is
// true. The input slice is never mutated.
func orderedView(ids []int64, reverse bool) []int64 {
	if !reverse {
		return append([]int64(nil), ids...)
	}
	out := make([]int64, len(ids))
	for i, v := range ids {
		out[len(ids)-1-i] = v
	}
	return out
}

// Store is the durable per-channel playlist backend contract. All four
// concrete backends (JSON file, document store, relational text-list,
// relational native array) must behave identically with respect to these
// six operations; any may fail with a storage-unavailable error.
type Store interface {
	// Load returns the record for chatID, or ErrNotExist if absent.
	Load(ctx context.Context, chatID int64) (*Record, error)

	// AppendNew union-merges ids into the stored playlist: existing order
	// is preserved, only previously absent IDs are appended, in ascending
	// order. latest_id becomes max(old latest_id, max(ids)). reverse and
	// channelName are applied unconditionally on this call (channelName
	// only when non-empty). Creates the record if absent.
	AppendNew(ctx context.Context, chatID int64, ids []int64, reverse bool, channelName string) error

	// RemoveVideo removes id from the stored sequence and nulls any marker
	// (last_started_id / last_completed_id) equal to id. Bumps updated_at
	// when anything was removed or cleared.
	RemoveVideo(ctx context.Context, chatID int64, id int64) error

	// SetLastStarted upserts last_started_id.
	SetLastStarted(ctx context.Context, chatID int64, id int64) error

	// SetLastCompleted upserts last_completed_id.
	SetLastCompleted(ctx context.Context, chatID int64, id int64) error

	// GetPlaylist returns the playlist in storage order, reversed iff the
	// record's reverse flag is set.
	GetPlaylist(ctx context.Context, chatID int64) ([]int64, error)
}

func nowUnix() int64 {
	return time.Now().Unix()
}

// mergeAppend implements the union-merge described on AppendNew: existing
// order preserved, newly-seen IDs appended in ascending order, latest_id
// advanced to the overall max.
func mergeAppend(rec *Record, ids []int64) {
	if len(ids) == 0 {
		return
	}

	seen := make(map[int64]struct{}, len(rec.Playlist))
	for _, v := range rec.Playlist {
		seen[v] = struct{}{}
	}

	fresh := make([]int64, 0, len(ids))
	maxThisCall := int64(0)
	for _, v := range ids {
		if v > maxThisCall {
			maxThisCall = v
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		fresh = append(fresh, v)
	}
	sortInt64s(fresh)

	rec.Playlist = append(rec.Playlist, fresh...)
	if maxThisCall > rec.LatestID {
		rec.LatestID = maxThisCall
	}
}

// sortInt64s is a small insertion sort. Windows merged here are bounded
// (spec caps incremental scans at 500 IDs), so this avoids pulling in
// sort.Slice's reflection overhead for a handful of elements.
func sortInt64s(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// removeFromRecord removes id from rec.Playlist and nulls matching
// markers, returning whether anything changed.
func removeFromRecord(rec *Record, id int64) bool {
	idx := -1
	for i, v := range rec.Playlist {
		if v == id {
			idx = i
			break
		}
	}
	changed := false
	if idx >= 0 {
		rec.Playlist = append(rec.Playlist[:idx], rec.Playlist[idx+1:]...)
		changed = true
	}
	if rec.LastStartedID != nil && *rec.LastStartedID == id {
		rec.LastStartedID = nil
		changed = true
	}
	if rec.LastCompletedID != nil && *rec.LastCompletedID == id {
		rec.LastCompletedID = nil
		changed = true
	}
	return changed
}
