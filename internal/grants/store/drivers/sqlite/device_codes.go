package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
)

const deviceCodeColumns = `device_code, user_code, subject_id, session_id, client_id, description, creation_time, expiration, data`

type deviceCodesRepo struct {
	db dbtx
}

func (r *deviceCodesRepo) StoreDeviceCode(ctx context.Context, dc domain.DeviceCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_codes (`+deviceCodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dc.DeviceCode,
		dc.UserCode,
		dc.SubjectID,
		dc.SessionID,
		dc.ClientID,
		dc.Description,
		toUnix(dc.CreationTime),
		expiryToUnix(dc.Expiration),
		dc.Data,
	)
	return mapConstraint(err)
}

func (r *deviceCodesRepo) FindByDeviceCode(ctx context.Context, deviceCode string) (domain.DeviceCode, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceCodeColumns+` FROM device_codes WHERE device_code = ?`, deviceCode)
	return scanDeviceCode(row)
}

func (r *deviceCodesRepo) FindByUserCode(ctx context.Context, userCode string) (domain.DeviceCode, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceCodeColumns+` FROM device_codes WHERE user_code = ?`, userCode)
	return scanDeviceCode(row)
}

func (r *deviceCodesRepo) UpdateByUserCode(ctx context.Context, userCode, subjectID, data string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE device_codes SET subject_id = ?, data = ? WHERE user_code = ?`,
		subjectID, data, userCode)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *deviceCodesRepo) RemoveByDeviceCode(ctx context.Context, deviceCode string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_codes WHERE device_code = ?`, deviceCode)
	return err
}

func (r *deviceCodesRepo) FindExpiredDeviceCodes(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	if err := store.CheckBatchSize(batchSize); err != nil {
		return nil, err
	}

	return queryKeys(ctx, r.db, `
		SELECT device_code FROM device_codes
		WHERE expiration <= ?
		ORDER BY expiration, device_code
		LIMIT ?`,
		cutoffToUnix(now), batchSize,
	)
}

func (r *deviceCodesRepo) DeleteDeviceCodes(ctx context.Context, deviceCodes []string) (int, error) {
	deviceCodes = store.CompactKeys(deviceCodes)
	if len(deviceCodes) == 0 {
		return 0, nil
	}

	placeholders, args := inArgs(deviceCodes)
	res, err := r.db.ExecContext(ctx, `DELETE FROM device_codes WHERE device_code IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func scanDeviceCode(row rowScanner) (domain.DeviceCode, error) {
	var (
		dc           domain.DeviceCode
		creationTime int64
		expiration   int64
	)
	err := row.Scan(
		&dc.DeviceCode,
		&dc.UserCode,
		&dc.SubjectID,
		&dc.SessionID,
		&dc.ClientID,
		&dc.Description,
		&creationTime,
		&expiration,
		&dc.Data,
	)
	if err != nil {
		return domain.DeviceCode{}, mapNotFound(err)
	}

	dc.CreationTime = fromUnix(creationTime)
	dc.Expiration = fromUnix(expiration)
	return dc, nil
}
