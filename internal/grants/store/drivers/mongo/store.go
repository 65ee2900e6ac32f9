package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	grantsCollection      = "persisted_grants"
	deviceCodesCollection = "device_codes"

	connectTimeout = 10 * time.Second
	migrateTimeout = 30 * time.Second
)

// Store keeps grants and device codes as documents, one collection per kind.
// Grant keys and device codes are used as _id so lookups and batch deletes hit
// the primary index.
type Store struct {
	client      *mongo.Client
	database    *mongo.Database
	grants      *mongo.Collection
	deviceCodes *mongo.Collection
}

// Connect dials uri and verifies the connection before returning.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return NewStore(client, dbName), nil
}

// NewStore wraps an already connected client.
func NewStore(client *mongo.Client, dbName string) *Store {
	database := client.Database(dbName)
	return &Store{
		client:      client,
		database:    database,
		grants:      database.Collection(grantsCollection),
		deviceCodes: database.Collection(deviceCodesCollection),
	}
}

func (s *Store) Grants() store.Grants           { return &grantsRepo{coll: s.grants} }
func (s *Store) DeviceCodes() store.DeviceCodes { return &deviceCodesRepo{coll: s.deviceCodes} }

// ApplyMigrations creates the indexes the queries rely on. CreateMany is a
// no-op for indexes that already exist with the same definition.
func (s *Store) ApplyMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	_, err := s.grants.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "expiration", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "subject_id", Value: 1}, {Key: "client_id", Value: 1}, {Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "subject_id", Value: 1}, {Key: "session_id", Value: 1}, {Key: "type", Value: 1}}},
	})
	if err != nil {
		return err
	}

	_, err = s.deviceCodes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "expiration", Value: 1}, {Key: "_id", Value: 1}}},
	})
	return err
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func mapNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

// BSON datetimes carry milliseconds. Expirations are rounded up on write and
// the cutoff down on query so a record is never selected early.
const precision = time.Millisecond

type idDocument struct {
	ID string `bson:"_id"`
}

// findExpiredIDs returns up to limit _ids whose expiration is at or before now.
func findExpiredIDs(ctx context.Context, coll *mongo.Collection, now time.Time, limit int) ([]string, error) {
	if err := store.CheckBatchSize(limit); err != nil {
		return nil, err
	}

	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "expiration", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := coll.Find(ctx, bson.M{"expiration": bson.M{"$lte": store.FloorTime(now, precision)}}, opts)
	if err != nil {
		return nil, err
	}

	var docs []idDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// deleteIDs removes the documents with the given _ids in one round trip.
func deleteIDs(ctx context.Context, coll *mongo.Collection, ids []string) (int, error) {
	ids = store.CompactKeys(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
