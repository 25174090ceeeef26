package playlist

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arung-agamani/denpa-stream/internal/xerrors"
)

// PGTextStore is the relational Store backend that encodes the playlist as
// a comma-joined TEXT column rather than a native array type.
type PGTextStore struct {
	pool *pgxpool.Pool
}

const pgTextSchema = `
CREATE TABLE IF NOT EXISTS playlists (
	chat_id BIGINT PRIMARY KEY,
	playlist TEXT NOT NULL DEFAULT '',
	latest_id BIGINT NOT NULL DEFAULT 0,
	last_started_id BIGINT,
	last_completed_id BIGINT,
	reverse BOOLEAN NOT NULL DEFAULT false,
	channel_name TEXT NOT NULL DEFAULT '',
	updated_at BIGINT NOT NULL DEFAULT 0
)`

// NewPGTextStore connects to dsn, ensures the playlists table exists, and
// returns a PGTextStore.
func NewPGTextStore(ctx context.Context, dsn string) (*PGTextStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, xerrors.NewStorageUnavailable(err)
	}
	if _, err := pool.Exec(ctx, pgTextSchema); err != nil {
		return nil, xerrors.NewStorageUnavailable(err)
	}
	return &PGTextStore{pool: pool}, nil
}

func encodeTextList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, v := range ids {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

func decodeTextList(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err == nil {
			out = append(out, v)
		}
	}
	return out
}

func (s *PGTextStore) fetch(ctx context.Context, chatID int64) (*Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT chat_id, playlist, latest_id, last_started_id, last_completed_id, reverse, channel_name, updated_at FROM playlists WHERE chat_id = $1`, chatID)

	var rec Record
	var playlistText string
	if err := row.Scan(&rec.ChatID, &playlistText, &rec.LatestID, &rec.LastStartedID, &rec.LastCompletedID, &rec.Reverse, &rec.ChannelName, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotExist
		}
		return nil, xerrors.NewStorageUnavailable(err)
	}
	rec.Playlist = decodeTextList(playlistText)
	return &rec, nil
}

func (s *PGTextStore) upsert(ctx context.Context, rec *Record) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO playlists (chat_id, playlist, latest_id, last_started_id, last_completed_id, reverse, channel_name, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (chat_id) DO UPDATE SET
	playlist = EXCLUDED.playlist,
	latest_id = EXCLUDED.latest_id,
	last_started_id = EXCLUDED.last_started_id,
	last_completed_id = EXCLUDED.last_completed_id,
	reverse = EXCLUDED.reverse,
	channel_name = EXCLUDED.channel_name,
	updated_at = EXCLUDED.updated_at
`, rec.ChatID, encodeTextList(rec.Playlist), rec.LatestID, rec.LastStartedID, rec.LastCompletedID, rec.Reverse, rec.ChannelName, rec.UpdatedAt)
	if err != nil {
		return xerrors.NewStorageUnavailable(err)
	}
	return nil
}

func (s *PGTextStore) Load(ctx context.Context, chatID int64) (*Record, error) {
	return s.fetch(ctx, chatID)
}

func (s *PGTextStore) AppendNew(ctx context.Context, chatID int64, ids []int64, reverse bool, channelName string) error {
	rec, err := s.fetch(ctx, chatID)
	if err == ErrNotExist {
		rec = &Record{ChatID: chatID, Playlist: []int64{}}
	} else if err != nil {
		return err
	}
	mergeAppend(rec, ids)
	rec.Reverse = reverse
	if channelName != "" {
		rec.ChannelName = channelName
	}
	rec.UpdatedAt = nowUnix()
	return s.upsert(ctx, rec)
}

func (s *PGTextStore) RemoveVideo(ctx context.Context, chatID int64, id int64) error {
	rec, err := s.fetch(ctx, chatID)
	if err == ErrNotExist {
		return nil
	}
	if err != nil {
		return err
	}
	if removeFromRecord(rec, id) {
		rec.UpdatedAt = nowUnix()
	}
	return s.upsert(ctx, rec)
}

func (s *PGTextStore) SetLastStarted(ctx context.Context, chatID int64, id int64) error {
	return s.setMarker(ctx, chatID, func(rec *Record) { rec.LastStartedID = &id })
}

func (s *PGTextStore) SetLastCompleted(ctx context.Context, chatID int64, id int64) error {
	return s.setMarker(ctx, chatID, func(rec *Record) { rec.LastCompletedID = &id })
}

func (s *PGTextStore) setMarker(ctx context.Context, chatID int64, apply func(*Record)) error {
	rec, err := s.fetch(ctx, chatID)
	if err == ErrNotExist {
		rec = &Record{ChatID: chatID, Playlist: []int64{}}
	} else if err != nil {
		return err
	}
	apply(rec)
	rec.UpdatedAt = nowUnix()
	return s.upsert(ctx, rec)
}

func (s *PGTextStore) GetPlaylist(ctx context.Context, chatID int64) ([]int64, error) {
	rec, err := s.fetch(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return orderedView(rec.Playlist, rec.Reverse), nil
}

var _ Store = (*PGTextStore)(nil)
