package bunsql

import (
	"context"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/uptrace/bun"
)

type deviceCodesRepo struct {
	db *bun.DB
}

func (r *deviceCodesRepo) StoreDeviceCode(ctx context.Context, dc domain.DeviceCode) error {
	_, err := r.db.NewInsert().Model(newDeviceCodeRecord(dc)).Exec(ctx)
	return mapConstraint(err)
}

func (r *deviceCodesRepo) FindByDeviceCode(ctx context.Context, deviceCode string) (domain.DeviceCode, error) {
	return r.findOne(ctx, "device_code", deviceCode)
}

func (r *deviceCodesRepo) FindByUserCode(ctx context.Context, userCode string) (domain.DeviceCode, error) {
	return r.findOne(ctx, "user_code", userCode)
}

func (r *deviceCodesRepo) findOne(ctx context.Context, column, value string) (domain.DeviceCode, error) {
	record := &deviceCodeRecord{}
	err := r.db.NewSelect().
		Model(record).
		Where("? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.DeviceCode{}, mapNotFound(err)
	}
	return record.toDomain(), nil
}

func (r *deviceCodesRepo) UpdateByUserCode(ctx context.Context, userCode, subjectID, data string) error {
	res, err := r.db.NewUpdate().
		Model((*deviceCodeRecord)(nil)).
		Set("? = ?", bun.Ident("subject_id"), subjectID).
		Set("? = ?", bun.Ident("data"), data).
		Where("? = ?", bun.Ident("user_code"), userCode).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *deviceCodesRepo) RemoveByDeviceCode(ctx context.Context, deviceCode string) error {
	_, err := r.db.NewDelete().
		Model((*deviceCodeRecord)(nil)).
		Where("? = ?", bun.Ident("device_code"), deviceCode).
		Exec(ctx)
	return err
}

func (r *deviceCodesRepo) FindExpiredDeviceCodes(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	if err := store.CheckBatchSize(batchSize); err != nil {
		return nil, err
	}

	var codes []string
	err := r.db.NewSelect().
		Model((*deviceCodeRecord)(nil)).
		Column("device_code").
		Where("? <= ?", bun.Ident("expiration"), cutoff(now)).
		OrderExpr("? ASC, ? ASC", bun.Ident("expiration"), bun.Ident("device_code")).
		Limit(batchSize).
		Scan(ctx, &codes)
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *deviceCodesRepo) DeleteDeviceCodes(ctx context.Context, deviceCodes []string) (int, error) {
	deviceCodes = store.CompactKeys(deviceCodes)
	if len(deviceCodes) == 0 {
		return 0, nil
	}

	res, err := r.db.NewDelete().
		Model((*deviceCodeRecord)(nil)).
		Where("? IN (?)", bun.Ident("device_code"), bun.In(deviceCodes)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}
