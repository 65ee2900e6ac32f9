package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/redis/go-redis/v9"
)

// ErrTxConflict is returned when an optimistic transaction keeps losing the
// race against concurrent writers.
var ErrTxConflict = errors.New("redis: transaction aborted after repeated conflicts")

const (
	maxTxRetries = 5
	mgetChunk    = 256
)

// Store keeps each record as a JSON string and tracks expirations in one
// sorted set per kind, scored by unix microseconds.
//
// Layout under prefix:
//
//	grant:<key>          grant JSON
//	grant-expiry         zset of grant keys
//	device:<code>        device code JSON
//	user-code:<code>     device code owning the user code
//	device-expiry        zset of device codes
type Store struct {
	rdb    *redis.Client
	prefix string
}

// Open connects using a redis:// URL and verifies the connection.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewStore(rdb, prefix), nil
}

func NewStore(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Grants() store.Grants           { return &grantsRepo{s: s} }
func (s *Store) DeviceCodes() store.DeviceCodes { return &deviceCodesRepo{s: s} }

// ApplyMigrations is a no-op; the key layout needs no setup.
func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) grantKey(key string) string     { return s.prefix + "grant:" + key }
func (s *Store) grantExpiryKey() string         { return s.prefix + "grant-expiry" }
func (s *Store) grantPattern() string           { return s.prefix + "grant:*" }
func (s *Store) deviceKey(code string) string   { return s.prefix + "device:" + code }
func (s *Store) userCodeKey(code string) string { return s.prefix + "user-code:" + code }
func (s *Store) deviceExpiryKey() string        { return s.prefix + "device-expiry" }

// watch runs fn as an optimistic transaction over keys, retrying when a
// watched key changes underneath it.
func (s *Store) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTxConflict
}

// expiryScore rounds up to the next microsecond so a record is never selected
// before its expiration has actually passed.
func expiryScore(t time.Time) float64 {
	return float64(store.CeilTime(t, time.Microsecond).UnixMicro())
}

// expiredMembers returns up to limit members of the expiry set scored at or
// before now. Ties on score come back in lexical order.
func (s *Store) expiredMembers(ctx context.Context, zset string, now time.Time, limit int) ([]string, error) {
	if err := store.CheckBatchSize(limit); err != nil {
		return nil, err
	}

	return s.rdb.ZRangeByScore(ctx, zset, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    strconv.FormatInt(store.FloorTime(now, time.Microsecond).UnixMicro(), 10),
		Offset: 0,
		Count:  int64(limit),
	}).Result()
}

func getJSON[T any](ctx context.Context, c redis.Cmdable, key string) (T, error) {
	var out T
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, store.ErrNotFound
	}
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func sumDeleted(cmds []*redis.IntCmd) int {
	n := 0
	for _, c := range cmds {
		n += int(c.Val())
	}
	return n
}
