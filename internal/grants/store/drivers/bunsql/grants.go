package bunsql

import (
	"context"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/uptrace/bun"
)

var grantUpdateColumns = []string{
	"type", "subject_id", "session_id", "client_id", "description",
	"creation_time", "expiration", "consumed_time", "data",
}

type grantsRepo struct {
	db *bun.DB
}

func (r *grantsRepo) StoreGrant(ctx context.Context, g domain.Grant) error {
	q := r.db.NewInsert().Model(newGrantRecord(g))
	_, err := upsert(q, r.db.Dialect().Name(), "key", grantUpdateColumns...).Exec(ctx)
	return err
}

func (r *grantsRepo) GetGrant(ctx context.Context, key string) (domain.Grant, error) {
	record := &grantRecord{}
	err := r.db.NewSelect().
		Model(record).
		Where("? = ?", bun.Ident("key"), key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Grant{}, mapNotFound(err)
	}
	return record.toDomain(), nil
}

func (r *grantsRepo) ListGrants(ctx context.Context, f domain.GrantFilter) ([]domain.Grant, error) {
	if f.IsEmpty() {
		return nil, store.ErrEmptyFilter
	}

	var records []grantRecord
	q := r.db.NewSelect().Model(&records).OrderExpr("? ASC", bun.Ident("key"))
	if err := applyFilter(q, f).Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]domain.Grant, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (r *grantsRepo) RemoveGrant(ctx context.Context, key string) error {
	_, err := r.db.NewDelete().
		Model((*grantRecord)(nil)).
		Where("? = ?", bun.Ident("key"), key).
		Exec(ctx)
	return err
}

func (r *grantsRepo) RemoveGrants(ctx context.Context, f domain.GrantFilter) (int, error) {
	if f.IsEmpty() {
		return 0, store.ErrEmptyFilter
	}

	q := r.db.NewDelete().Model((*grantRecord)(nil))
	res, err := applyFilter(q, f).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

func (r *grantsRepo) FindExpiredGrants(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	if err := store.CheckBatchSize(batchSize); err != nil {
		return nil, err
	}

	var keys []string
	err := r.db.NewSelect().
		Model((*grantRecord)(nil)).
		Column("key").
		Where("? IS NOT NULL", bun.Ident("expiration")).
		Where("? <= ?", bun.Ident("expiration"), cutoff(now)).
		OrderExpr("? ASC, ? ASC", bun.Ident("expiration"), bun.Ident("key")).
		Limit(batchSize).
		Scan(ctx, &keys)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *grantsRepo) DeleteGrants(ctx context.Context, keys []string) (int, error) {
	keys = store.CompactKeys(keys)
	if len(keys) == 0 {
		return 0, nil
	}

	res, err := r.db.NewDelete().
		Model((*grantRecord)(nil)).
		Where("? IN (?)", bun.Ident("key"), bun.In(keys)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

// filterable is satisfied by bun's select and delete queries.
type filterable[Q any] interface {
	Where(query string, args ...any) Q
}

func applyFilter[Q filterable[Q]](q Q, f domain.GrantFilter) Q {
	if f.SubjectID != "" {
		q = q.Where("? = ?", bun.Ident("subject_id"), f.SubjectID)
	}
	if f.SessionID != "" {
		q = q.Where("? = ?", bun.Ident("session_id"), f.SessionID)
	}
	if f.ClientID != "" {
		q = q.Where("? = ?", bun.Ident("client_id"), f.ClientID)
	}
	if f.Type != "" {
		q = q.Where("? = ?", bun.Ident("type"), f.Type)
	}
	return q
}
