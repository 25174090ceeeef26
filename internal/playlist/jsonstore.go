package playlist

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/arung-agamani/denpa-stream/internal/xerrors"
)

// jsonFileData is the on-disk shape of the JSON backend: a single object
// keyed "channel_<chat_id>", matching the original implementation's layout.
type jsonFileData map[string]*Record

// JSONStore is the local-file Store backend. It serializes writes through
// an in-process mutex and persists via temp-file-then-rename so a crash
// mid-write never leaves a partial playlists.json on disk.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

// NewJSONStore creates a JSONStore backed by the file at path, creating its
// parent directory if necessary.
func NewJSONStore(path string) (*JSONStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xerrors.NewStorageUnavailable(err)
		}
	}
	return &JSONStore{path: path}, nil
}

func channelKey(chatID int64) string {
	return "channel_" + strconv.FormatInt(chatID, 10)
}

func (s *JSONStore) loadAll() (jsonFileData, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return jsonFileData{}, nil
	}
	if err != nil {
		return nil, xerrors.NewStorageUnavailable(err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return jsonFileData{}, nil
	}
	var all jsonFileData
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, xerrors.NewStorageUnavailable(err)
	}
	if all == nil {
		all = jsonFileData{}
	}
	return all, nil
}

func (s *JSONStore) saveAll(all jsonFileData) error {
	buf, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return xerrors.NewStorageUnavailable(err)
	}

	dir := filepath.Dir(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "playlists-*.json.tmp")
	if err != nil {
		return xerrors.NewStorageUnavailable(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return xerrors.NewStorageUnavailable(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return xerrors.NewStorageUnavailable(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return xerrors.NewStorageUnavailable(err)
	}
	return nil
}

func (s *JSONStore) Load(ctx context.Context, chatID int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	rec, ok := all[channelKey(chatID)]
	if !ok {
		return nil, ErrNotExist
	}
	return rec.Clone(), nil
}

func (s *JSONStore) AppendNew(ctx context.Context, chatID int64, ids []int64, reverse bool, channelName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}

	key := channelKey(chatID)
	rec, ok := all[key]
	if !ok {
		rec = &Record{ChatID: chatID, Playlist: []int64{}}
	} else {
		rec = rec.Clone()
	}

	mergeAppend(rec, ids)
	rec.Reverse = reverse
	if channelName != "" {
		rec.ChannelName = channelName
	}
	rec.UpdatedAt = nowUnix()

	all[key] = rec
	return s.saveAll(all)
}

func (s *JSONStore) RemoveVideo(ctx context.Context, chatID int64, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}
	key := channelKey(chatID)
	rec, ok := all[key]
	if !ok {
		return nil
	}
	rec = rec.Clone()
	if removeFromRecord(rec, id) {
		rec.UpdatedAt = nowUnix()
	}
	all[key] = rec
	return s.saveAll(all)
}

func (s *JSONStore) SetLastStarted(ctx context.Context, chatID int64, id int64) error {
	return s.setMarker(chatID, func(rec *Record) { rec.LastStartedID = &id })
}

func (s *JSONStore) SetLastCompleted(ctx context.Context, chatID int64, id int64) error {
	return s.setMarker(chatID, func(rec *Record) { rec.LastCompletedID = &id })
}

func (s *JSONStore) setMarker(chatID int64, apply func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}
	key := channelKey(chatID)
	rec, ok := all[key]
	if !ok {
		rec = &Record{ChatID: chatID, Playlist: []int64{}}
	} else {
		rec = rec.Clone()
	}
	apply(rec)
	rec.UpdatedAt = nowUnix()
	all[key] = rec
	return s.saveAll(all)
}

func (s *JSONStore) GetPlaylist(ctx context.Context, chatID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	rec, ok := all[channelKey(chatID)]
	if !ok {
		return nil, ErrNotExist
	}
	return orderedView(rec.Playlist, rec.Reverse), nil
}

var _ Store = (*JSONStore)(nil)
