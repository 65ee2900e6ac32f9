package mongo

import (
	"context"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type grantDocument struct {
	Key          string     `bson:"_id"`
	Type         string     `bson:"type"`
	SubjectID    string     `bson:"subject_id"`
	SessionID    string     `bson:"session_id"`
	ClientID     string     `bson:"client_id"`
	Description  string     `bson:"description,omitempty"`
	CreationTime time.Time  `bson:"creation_time"`
	Expiration   *time.Time `bson:"expiration,omitempty"`
	ConsumedTime *time.Time `bson:"consumed_time,omitempty"`
	Data         string     `bson:"data"`
}

func newGrantDocument(g domain.Grant) grantDocument {
	return grantDocument{
		Key:          g.Key,
		Type:         g.Type,
		SubjectID:    g.SubjectID,
		SessionID:    g.SessionID,
		ClientID:     g.ClientID,
		Description:  g.Description,
		CreationTime: g.CreationTime,
		Expiration:   store.CeilTimePtr(g.Expiration, precision),
		ConsumedTime: g.ConsumedTime,
		Data:         g.Data,
	}
}

func (d grantDocument) toDomain() domain.Grant {
	return domain.Grant{
		Key:          d.Key,
		Type:         d.Type,
		SubjectID:    d.SubjectID,
		SessionID:    d.SessionID,
		ClientID:     d.ClientID,
		Description:  d.Description,
		CreationTime: d.CreationTime.UTC(),
		Expiration:   d.Expiration,
		ConsumedTime: d.ConsumedTime,
		Data:         d.Data,
	}
}

type grantsRepo struct {
	coll *mongo.Collection
}

func (r *grantsRepo) StoreGrant(ctx context.Context, g domain.Grant) error {
	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": g.Key},
		newGrantDocument(g),
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *grantsRepo) GetGrant(ctx context.Context, key string) (domain.Grant, error) {
	var doc grantDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		return domain.Grant{}, mapNotFound(err)
	}
	return doc.toDomain(), nil
}

func (r *grantsRepo) ListGrants(ctx context.Context, f domain.GrantFilter) ([]domain.Grant, error) {
	filter, err := filterDocument(f)
	if err != nil {
		return nil, err
	}

	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []grantDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]domain.Grant, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *grantsRepo) RemoveGrant(ctx context.Context, key string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (r *grantsRepo) RemoveGrants(ctx context.Context, f domain.GrantFilter) (int, error) {
	filter, err := filterDocument(f)
	if err != nil {
		return 0, err
	}

	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (r *grantsRepo) FindExpiredGrants(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	return findExpiredIDs(ctx, r.coll, now, batchSize)
}

func (r *grantsRepo) DeleteGrants(ctx context.Context, keys []string) (int, error) {
	return deleteIDs(ctx, r.coll, keys)
}

func filterDocument(f domain.GrantFilter) (bson.M, error) {
	if f.IsEmpty() {
		return nil, store.ErrEmptyFilter
	}

	filter := bson.M{}
	if f.SubjectID != "" {
		filter["subject_id"] = f.SubjectID
	}
	if f.SessionID != "" {
		filter["session_id"] = f.SessionID
	}
	if f.ClientID != "" {
		filter["client_id"] = f.ClientID
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	return filter, nil
}
