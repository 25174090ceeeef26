package playlist

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/arung-agamani/denpa-stream/internal/xerrors"
)

// mongoDoc is the document shape stored in the "playlists" collection,
// keyed by _id = chat_id.
type mongoDoc struct {
	ID              int64   `bson:"_id"`
	Playlist        []int64 `bson:"playlist"`
	LatestID        int64   `bson:"latest_id"`
	Reverse         bool    `bson:"reverse"`
	LastStartedID   *int64  `bson:"last_started_id"`
	LastCompletedID *int64  `bson:"last_completed_id"`
	ChannelName     string  `bson:"channel_name"`
	UpdatedAt       int64   `bson:"updated_at"`
}

func (d *mongoDoc) toRecord() *Record {
	return &Record{
		ChatID:          d.ID,
		Playlist:        append([]int64(nil), d.Playlist...),
		LatestID:        d.LatestID,
		Reverse:         d.Reverse,
		LastStartedID:   d.LastStartedID,
		LastCompletedID: d.LastCompletedID,
		ChannelName:     d.ChannelName,
		UpdatedAt:       d.UpdatedAt,
	}
}

func recordToMongoDoc(rec *Record) *mongoDoc {
	return &mongoDoc{
		ID:              rec.ChatID,
		Playlist:        append([]int64(nil), rec.Playlist...),
		LatestID:        rec.LatestID,
		Reverse:         rec.Reverse,
		LastStartedID:   rec.LastStartedID,
		LastCompletedID: rec.LastCompletedID,
		ChannelName:     rec.ChannelName,
		UpdatedAt:       rec.UpdatedAt,
	}
}

// MongoStore is the document-store Store backend, one document per
// chat_id in a "playlists" collection.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore connects to dsn and returns a MongoStore using the given
// database name.
func NewMongoStore(ctx context.Context, dsn, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, xerrors.NewStorageUnavailable(err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, xerrors.NewStorageUnavailable(err)
	}
	return &MongoStore{coll: client.Database(database).Collection("playlists")}, nil
}

func (s *MongoStore) fetch(ctx context.Context, chatID int64) (*mongoDoc, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": chatID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, xerrors.NewStorageUnavailable(err)
	}
	return &doc, nil
}

func (s *MongoStore) upsert(ctx context.Context, doc *mongoDoc) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return xerrors.NewStorageUnavailable(err)
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, chatID int64) (*Record, error) {
	doc, err := s.fetch(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return doc.toRecord(), nil
}

func (s *MongoStore) AppendNew(ctx context.Context, chatID int64, ids []int64, reverse bool, channelName string) error {
	doc, err := s.fetch(ctx, chatID)
	if err != nil && err != ErrNotExist {
		return err
	}
	var rec *Record
	if err == ErrNotExist {
		rec = &Record{ChatID: chatID, Playlist: []int64{}}
	} else {
		rec = doc.toRecord()
	}

	mergeAppend(rec, ids)
	rec.Reverse = reverse
	if channelName != "" {
		rec.ChannelName = channelName
	}
	rec.UpdatedAt = nowUnix()

	return s.upsert(ctx, recordToMongoDoc(rec))
}

func (s *MongoStore) RemoveVideo(ctx context.Context, chatID int64, id int64) error {
	doc, err := s.fetch(ctx, chatID)
	if err == ErrNotExist {
		return nil
	}
	if err != nil {
		return err
	}
	rec := doc.toRecord()
	if removeFromRecord(rec, id) {
		rec.UpdatedAt = nowUnix()
	}
	return s.upsert(ctx, recordToMongoDoc(rec))
}

func (s *MongoStore) SetLastStarted(ctx context.Context, chatID int64, id int64) error {
	return s.setMarker(ctx, chatID, func(rec *Record) { rec.LastStartedID = &id })
}

func (s *MongoStore) SetLastCompleted(ctx context.Context, chatID int64, id int64) error {
	return s.setMarker(ctx, chatID, func(rec *Record) { rec.LastCompletedID = &id })
}

func (s *MongoStore) setMarker(ctx context.Context, chatID int64, apply func(*Record)) error {
	doc, err := s.fetch(ctx, chatID)
	var rec *Record
	if err == ErrNotExist {
		rec = &Record{ChatID: chatID, Playlist: []int64{}}
	} else if err != nil {
		return err
	} else {
		rec = doc.toRecord()
	}
	apply(rec)
	rec.UpdatedAt = nowUnix()
	return s.upsert(ctx, recordToMongoDoc(rec))
}

func (s *MongoStore) GetPlaylist(ctx context.Context, chatID int64) ([]int64, error) {
	doc, err := s.fetch(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return orderedView(doc.Playlist, doc.Reverse), nil
}

var _ Store = (*MongoStore)(nil)
