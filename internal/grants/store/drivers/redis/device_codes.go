package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/redis/go-redis/v9"
)

type deviceCodeRecord struct {
	DeviceCode   string    `json:"device_code"`
	UserCode     string    `json:"user_code"`
	SubjectID    string    `json:"subject_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	ClientID     string    `json:"client_id"`
	Description  string    `json:"description,omitempty"`
	CreationTime time.Time `json:"creation_time"`
	Expiration   time.Time `json:"expiration"`
	Data         string    `json:"data"`
}

type deviceCodesRepo struct {
	s *Store
}

func (r *deviceCodesRepo) StoreDeviceCode(ctx context.Context, dc domain.DeviceCode) error {
	raw, err := json.Marshal(deviceCodeRecord(dc))
	if err != nil {
		return err
	}

	deviceKey := r.s.deviceKey(dc.DeviceCode)
	userKey := r.s.userCodeKey(dc.UserCode)

	return r.s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, deviceKey, userKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, deviceKey, raw, 0)
			p.Set(ctx, userKey, dc.DeviceCode, 0)
			p.ZAdd(ctx, r.s.deviceExpiryKey(), redis.Z{Score: expiryScore(dc.Expiration), Member: dc.DeviceCode})
			return nil
		})
		return err
	}, deviceKey, userKey)
}

func (r *deviceCodesRepo) FindByDeviceCode(ctx context.Context, deviceCode string) (domain.DeviceCode, error) {
	rec, err := getJSON[deviceCodeRecord](ctx, r.s.rdb, r.s.deviceKey(deviceCode))
	if err != nil {
		return domain.DeviceCode{}, err
	}
	return domain.DeviceCode(rec), nil
}

func (r *deviceCodesRepo) FindByUserCode(ctx context.Context, userCode string) (domain.DeviceCode, error) {
	deviceCode, err := r.s.rdb.Get(ctx, r.s.userCodeKey(userCode)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.DeviceCode{}, store.ErrNotFound
	}
	if err != nil {
		return domain.DeviceCode{}, err
	}
	return r.FindByDeviceCode(ctx, deviceCode)
}

func (r *deviceCodesRepo) UpdateByUserCode(ctx context.Context, userCode, subjectID, data string) error {
	userKey := r.s.userCodeKey(userCode)

	return r.s.watch(ctx, func(tx *redis.Tx) error {
		deviceCode, err := tx.Get(ctx, userKey).Result()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}

		deviceKey := r.s.deviceKey(deviceCode)
		if err := tx.Watch(ctx, deviceKey).Err(); err != nil {
			return err
		}

		rec, err := getJSON[deviceCodeRecord](ctx, tx, deviceKey)
		if err != nil {
			return err
		}
		rec.SubjectID = subjectID
		rec.Data = data

		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, deviceKey, raw, 0)
			return nil
		})
		return err
	}, userKey)
}

func (r *deviceCodesRepo) RemoveByDeviceCode(ctx context.Context, deviceCode string) error {
	_, err := r.deleteDeviceCodes(ctx, []string{deviceCode})
	return err
}

func (r *deviceCodesRepo) FindExpiredDeviceCodes(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	return r.s.expiredMembers(ctx, r.s.deviceExpiryKey(), now, batchSize)
}

func (r *deviceCodesRepo) DeleteDeviceCodes(ctx context.Context, deviceCodes []string) (int, error) {
	return r.deleteDeviceCodes(ctx, deviceCodes)
}

// deleteDeviceCodes removes device codes together with their user code index
// entries. The device keys are watched so a concurrent insert cannot leave a
// dangling user code behind.
func (r *deviceCodesRepo) deleteDeviceCodes(ctx context.Context, codes []string) (int, error) {
	codes = store.CompactKeys(codes)
	if len(codes) == 0 {
		return 0, nil
	}

	deviceKeys := make([]string, 0, len(codes))
	members := make([]any, 0, len(codes))
	for _, c := range codes {
		deviceKeys = append(deviceKeys, r.s.deviceKey(c))
		members = append(members, c)
	}

	var removed int
	err := r.s.watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, deviceKeys...).Result()
		if err != nil {
			return err
		}

		var userKeys []string
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var rec deviceCodeRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return err
			}
			userKeys = append(userKeys, r.s.userCodeKey(rec.UserCode))
		}

		dels := make([]*redis.IntCmd, 0, len(deviceKeys))
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, k := range deviceKeys {
				dels = append(dels, p.Del(ctx, k))
			}
			if len(userKeys) > 0 {
				p.Del(ctx, userKeys...)
			}
			p.ZRem(ctx, r.s.deviceExpiryKey(), members...)
			return nil
		})
		if err != nil {
			return err
		}
		removed = sumDeleted(dels)
		return nil
	}, deviceKeys...)
	if err != nil {
		return 0, err
	}
	return removed, nil
}
