package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
)

const grantColumns = `"key", type, subject_id, session_id, client_id, description, creation_time, expiration, consumed_time, data`

type grantsRepo struct {
	db dbtx
}

func (r *grantsRepo) StoreGrant(ctx context.Context, g domain.Grant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO persisted_grants (`+grantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT ("key") DO UPDATE SET
			type = excluded.type,
			subject_id = excluded.subject_id,
			session_id = excluded.session_id,
			client_id = excluded.client_id,
			description = excluded.description,
			creation_time = excluded.creation_time,
			expiration = excluded.expiration,
			consumed_time = excluded.consumed_time,
			data = excluded.data`,
		g.Key,
		g.Type,
		g.SubjectID,
		g.SessionID,
		g.ClientID,
		g.Description,
		toUnix(g.CreationTime),
		mapOptionalExpiry(g.Expiration),
		mapOptionalTime(g.ConsumedTime),
		g.Data,
	)
	return err
}

func (r *grantsRepo) GetGrant(ctx context.Context, key string) (domain.Grant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM persisted_grants WHERE "key" = ?`, key)

	g, err := scanGrant(row)
	if err != nil {
		return domain.Grant{}, mapNotFound(err)
	}
	return g, nil
}

func (r *grantsRepo) ListGrants(ctx context.Context, f domain.GrantFilter) ([]domain.Grant, error) {
	where, args, err := filterClause(f)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM persisted_grants WHERE `+where+` ORDER BY "key"`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *grantsRepo) RemoveGrant(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM persisted_grants WHERE "key" = ?`, key)
	return err
}

func (r *grantsRepo) RemoveGrants(ctx context.Context, f domain.GrantFilter) (int, error) {
	where, args, err := filterClause(f)
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM persisted_grants WHERE `+where, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (r *grantsRepo) FindExpiredGrants(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	if err := store.CheckBatchSize(batchSize); err != nil {
		return nil, err
	}

	return queryKeys(ctx, r.db, `
		SELECT "key" FROM persisted_grants
		WHERE expiration IS NOT NULL AND expiration <= ?
		ORDER BY expiration, "key"
		LIMIT ?`,
		cutoffToUnix(now), batchSize,
	)
}

func (r *grantsRepo) DeleteGrants(ctx context.Context, keys []string) (int, error) {
	keys = store.CompactKeys(keys)
	if len(keys) == 0 {
		return 0, nil
	}

	placeholders, args := inArgs(keys)
	res, err := r.db.ExecContext(ctx, `DELETE FROM persisted_grants WHERE "key" IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (domain.Grant, error) {
	var (
		g            domain.Grant
		creationTime int64
		expiration   sql.NullInt64
		consumedTime sql.NullInt64
	)
	err := row.Scan(
		&g.Key,
		&g.Type,
		&g.SubjectID,
		&g.SessionID,
		&g.ClientID,
		&g.Description,
		&creationTime,
		&expiration,
		&consumedTime,
		&g.Data,
	)
	if err != nil {
		return domain.Grant{}, err
	}

	g.CreationTime = fromUnix(creationTime)
	g.Expiration = mapNullTimePtr(expiration)
	g.ConsumedTime = mapNullTimePtr(consumedTime)
	return g, nil
}

func filterClause(f domain.GrantFilter) (string, []any, error) {
	if f.IsEmpty() {
		return "", nil, store.ErrEmptyFilter
	}

	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value != "" {
			conds = append(conds, column+" = ?")
			args = append(args, value)
		}
	}
	add("subject_id", f.SubjectID)
	add("session_id", f.SessionID)
	add("client_id", f.ClientID)
	add("type", f.Type)

	return strings.Join(conds, " AND "), args, nil
}

func queryKeys(ctx context.Context, db dbtx, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
