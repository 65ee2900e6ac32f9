package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/redis/go-redis/v9"
)

type grantRecord struct {
	Key          string     `json:"key"`
	Type         string     `json:"type"`
	SubjectID    string     `json:"subject_id"`
	SessionID    string     `json:"session_id,omitempty"`
	ClientID     string     `json:"client_id"`
	Description  string     `json:"description,omitempty"`
	CreationTime time.Time  `json:"creation_time"`
	Expiration   *time.Time `json:"expiration,omitempty"`
	ConsumedTime *time.Time `json:"consumed_time,omitempty"`
	Data         string     `json:"data"`
}

func (r grantRecord) toDomain() domain.Grant {
	return domain.Grant(r)
}

type grantsRepo struct {
	s *Store
}

func (r *grantsRepo) StoreGrant(ctx context.Context, g domain.Grant) error {
	raw, err := json.Marshal(grantRecord(g))
	if err != nil {
		return err
	}

	_, err = r.s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.s.grantKey(g.Key), raw, 0)
		if g.Expiration != nil {
			p.ZAdd(ctx, r.s.grantExpiryKey(), redis.Z{Score: expiryScore(*g.Expiration), Member: g.Key})
		} else {
			p.ZRem(ctx, r.s.grantExpiryKey(), g.Key)
		}
		return nil
	})
	return err
}

func (r *grantsRepo) GetGrant(ctx context.Context, key string) (domain.Grant, error) {
	rec, err := getJSON[grantRecord](ctx, r.s.rdb, r.s.grantKey(key))
	if err != nil {
		return domain.Grant{}, err
	}
	return rec.toDomain(), nil
}

// ListGrants scans every grant and filters client side. Filtered lookups only
// happen on logout and consent revocation, not on the token hot path.
func (r *grantsRepo) ListGrants(ctx context.Context, f domain.GrantFilter) ([]domain.Grant, error) {
	if f.IsEmpty() {
		return nil, store.ErrEmptyFilter
	}

	var (
		out   []domain.Grant
		chunk []string
	)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		vals, err := r.s.rdb.MGet(ctx, chunk...).Result()
		if err != nil {
			return err
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				// Removed between SCAN and MGET.
				continue
			}
			var rec grantRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return err
			}
			if g := rec.toDomain(); f.Matches(g) {
				out = append(out, g)
			}
		}
		chunk = chunk[:0]
		return nil
	}

	iter := r.s.rdb.Scan(ctx, 0, r.s.grantPattern(), mgetChunk).Iterator()
	for iter.Next(ctx) {
		chunk = append(chunk, iter.Val())
		if len(chunk) == mgetChunk {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	// SCAN may return a key more than once.
	slices.SortFunc(out, func(a, b domain.Grant) int { return cmp.Compare(a.Key, b.Key) })
	out = slices.CompactFunc(out, func(a, b domain.Grant) bool { return a.Key == b.Key })
	return out, nil
}

func (r *grantsRepo) RemoveGrant(ctx context.Context, key string) error {
	_, err := r.deleteGrants(ctx, []string{key})
	return err
}

func (r *grantsRepo) RemoveGrants(ctx context.Context, f domain.GrantFilter) (int, error) {
	matched, err := r.ListGrants(ctx, f)
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(matched))
	for _, g := range matched {
		keys = append(keys, g.Key)
	}
	return r.deleteGrants(ctx, keys)
}

func (r *grantsRepo) FindExpiredGrants(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	return r.s.expiredMembers(ctx, r.s.grantExpiryKey(), now, batchSize)
}

func (r *grantsRepo) DeleteGrants(ctx context.Context, keys []string) (int, error) {
	return r.deleteGrants(ctx, keys)
}

func (r *grantsRepo) deleteGrants(ctx context.Context, keys []string) (int, error) {
	keys = store.CompactKeys(keys)
	if len(keys) == 0 {
		return 0, nil
	}

	members := make([]any, 0, len(keys))
	dels := make([]*redis.IntCmd, 0, len(keys))
	_, err := r.s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			dels = append(dels, p.Del(ctx, r.s.grantKey(k)))
			members = append(members, k)
		}
		p.ZRem(ctx, r.s.grantExpiryKey(), members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sumDeleted(dels), nil
}
