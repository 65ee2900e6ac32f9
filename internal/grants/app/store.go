package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/drivers/bunsql"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/drivers/memory"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/drivers/mongo"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/drivers/redis"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/drivers/sqlite"
)

// OpenStore connects to the configured backend and applies its migrations.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	st, err := openDriver(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("apply %s migrations: %w", cfg.StoreDriver, err)
	}

	return st, nil
}

func openDriver(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case DriverSQLite:
		return sqlite.NewStore(sqliteDSN(cfg.StoreDSN))
	case DriverPostgres:
		return bunsql.Open(bunsql.DriverPostgres, cfg.StoreDSN)
	case DriverMySQL:
		return bunsql.Open(bunsql.DriverMySQL, cfg.StoreDSN)
	case DriverMongo:
		return mongo.Connect(ctx, cfg.StoreDSN, cfg.MongoDatabase)
	case DriverRedis:
		return redis.Open(ctx, cfg.StoreDSN, cfg.RedisKeyPrefix)
	case DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.StoreDriver)
	}
}

// sqliteDSN turns a bare file path into a DSN with WAL and a busy timeout.
// Full "file:" DSNs and ":memory:" are passed through untouched.
func sqliteDSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}
