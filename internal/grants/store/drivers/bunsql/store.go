package bunsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Store persists grants in PostgreSQL or MySQL through bun. Both dialects
// share the same models and queries; only upserts, constraint errors and
// migrations differ.
type Store struct {
	db *bun.DB
}

// Open connects to the database named by driver ("postgres" or "mysql").
// MySQL DSNs are normalised to parse times in UTC and to report matched rather
// than changed rows, which UpdateByUserCode relies on.
func Open(driver, dsn string) (*Store, error) {
	var (
		sqldb *sql.DB
		err   error
		db    *bun.DB
	)

	switch driver {
	case DriverPostgres:
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("bunsql: parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		cfg.ClientFoundRows = true

		sqldb, err = sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, mysqldialect.New())
	default:
		return nil, fmt.Errorf("bunsql: unsupported driver %q", driver)
	}

	if err := sqldb.PingContext(context.Background()); err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	return NewStore(db), nil
}

// NewStore wraps an existing bun database.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying bun handle.
func (s *Store) DB() *bun.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

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

// mapConstraint turns unique violations into ErrAlreadyExists.
func mapConstraint(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
		return store.ErrAlreadyExists
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 { // ER_DUP_ENTRY
		return store.ErrAlreadyExists
	}
	return err
}

func rowsAffected(res sql.Result) (int, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// upsert adds the dialect specific "replace on key conflict" clause.
func upsert(q *bun.InsertQuery, dialectName dialect.Name, conflictColumn string, columns ...string) *bun.InsertQuery {
	switch dialectName {
	case dialect.MySQL:
		q = q.On("DUPLICATE KEY UPDATE")
		for _, c := range columns {
			q = q.Set("? = VALUES(?)", bun.Ident(c), bun.Ident(c))
		}
	default:
		q = q.On("CONFLICT (?) DO UPDATE", bun.Ident(conflictColumn))
		for _, c := range columns {
			q = q.Set("? = EXCLUDED.?", bun.Ident(c), bun.Ident(c))
		}
	}
	return q
}
