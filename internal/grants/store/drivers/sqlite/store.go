package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dbtx is the subset of *sql.DB the repositories need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	dsn string
}

// NewStore opens a SQLite database. Pragmas can be passed through the DSN
// using the driver's _pragma syntax, e.g.
// "file:grants.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)".
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Every connection to :memory: is its own database, pin the pool to one.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		dsn: dsn,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Grants() store.Grants           { return &grantsRepo{db: s.db} }
func (s *Store) DeviceCodes() store.DeviceCodes { return &deviceCodesRepo{db: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// mapConstraint turns primary key and unique violations into ErrAlreadyExists.
func mapConstraint(err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return store.ErrAlreadyExists
		}
	}
	return err
}

// Timestamps are stored as unix microseconds, which covers the full range of
// years 1 to 9999. Expirations are rounded up and query cutoffs down so a
// record is never selected before it has expired.
const precision = time.Microsecond

func toUnix(t time.Time) int64 { return t.UnixMicro() }

func expiryToUnix(t time.Time) int64 { return store.CeilTime(t, precision).UnixMicro() }

func cutoffToUnix(now time.Time) int64 { return store.FloorTime(now, precision).UnixMicro() }

func fromUnix(n int64) time.Time { return time.UnixMicro(n).UTC() }

func mapOptionalTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func mapOptionalExpiry(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: expiryToUnix(*t), Valid: true}
}

func mapNullTimePtr(n sql.NullInt64) *time.Time {
	if n.Valid {
		val := fromUnix(n.Int64)
		return &val
	}
	return nil
}

// inArgs builds a "?, ?, ?" placeholder list and its argument slice.
func inArgs(keys []string) (string, []any) {
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, k)
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", "), args
}
