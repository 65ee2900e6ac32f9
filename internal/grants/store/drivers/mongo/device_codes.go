package mongo

import (
	"context"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type deviceCodeDocument struct {
	DeviceCode   string    `bson:"_id"`
	UserCode     string    `bson:"user_code"`
	SubjectID    string    `bson:"subject_id"`
	SessionID    string    `bson:"session_id"`
	ClientID     string    `bson:"client_id"`
	Description  string    `bson:"description,omitempty"`
	CreationTime time.Time `bson:"creation_time"`
	Expiration   time.Time `bson:"expiration"`
	Data         string    `bson:"data"`
}

func (d deviceCodeDocument) toDomain() domain.DeviceCode {
	return domain.DeviceCode{
		DeviceCode:   d.DeviceCode,
		UserCode:     d.UserCode,
		SubjectID:    d.SubjectID,
		SessionID:    d.SessionID,
		ClientID:     d.ClientID,
		Description:  d.Description,
		CreationTime: d.CreationTime.UTC(),
		Expiration:   d.Expiration.UTC(),
		Data:         d.Data,
	}
}

type deviceCodesRepo struct {
	coll *mongo.Collection
}

func (r *deviceCodesRepo) StoreDeviceCode(ctx context.Context, dc domain.DeviceCode) error {
	_, err := r.coll.InsertOne(ctx, deviceCodeDocument{
		DeviceCode:   dc.DeviceCode,
		UserCode:     dc.UserCode,
		SubjectID:    dc.SubjectID,
		SessionID:    dc.SessionID,
		ClientID:     dc.ClientID,
		Description:  dc.Description,
		CreationTime: dc.CreationTime,
		Expiration:   store.CeilTime(dc.Expiration, precision),
		Data:         dc.Data,
	})
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *deviceCodesRepo) FindByDeviceCode(ctx context.Context, deviceCode string) (domain.DeviceCode, error) {
	return r.findOne(ctx, bson.M{"_id": deviceCode})
}

func (r *deviceCodesRepo) FindByUserCode(ctx context.Context, userCode string) (domain.DeviceCode, error) {
	return r.findOne(ctx, bson.M{"user_code": userCode})
}

func (r *deviceCodesRepo) findOne(ctx context.Context, filter bson.M) (domain.DeviceCode, error) {
	var doc deviceCodeDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.DeviceCode{}, mapNotFound(err)
	}
	return doc.toDomain(), nil
}

func (r *deviceCodesRepo) UpdateByUserCode(ctx context.Context, userCode, subjectID, data string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"user_code": userCode},
		bson.M{"$set": bson.M{"subject_id": subjectID, "data": data}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *deviceCodesRepo) RemoveByDeviceCode(ctx context.Context, deviceCode string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": deviceCode})
	return err
}

func (r *deviceCodesRepo) FindExpiredDeviceCodes(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	return findExpiredIDs(ctx, r.coll, now, batchSize)
}

func (r *deviceCodesRepo) DeleteDeviceCodes(ctx context.Context, deviceCodes []string) (int, error) {
	return deleteIDs(ctx, r.coll, deviceCodes)
}
