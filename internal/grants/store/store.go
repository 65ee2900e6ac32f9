package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
)

var (
	ErrNotFound         = errors.New("store: not found")
	ErrAlreadyExists    = errors.New("store: already exists")
	ErrEmptyFilter      = errors.New("store: filter must set at least one field")
	ErrInvalidBatchSize = errors.New("store: batch size must be positive")
)

// Store is the root data access interface. Concrete drivers (sqlite, bunsql,
// mongo, redis, memory) implement this. Like the rest of the service it is
// split into sub-repositories so callers only see the slice they need; the
// cleanup worker only ever depends on ExpiredGrants and ExpiredDeviceCodes.
type Store interface {
	Grants() Grants
	DeviceCodes() DeviceCodes

	// ApplyMigrations creates or upgrades the schema, collections or indexes
	// the driver relies on. Drivers without a schema treat it as a no-op.
	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backend is still reachable.
	Ping(ctx context.Context) error
}

// ExpiredGrants is the capability the cleanup worker needs for grants.
type ExpiredGrants interface {
	// FindExpiredGrants returns up to batchSize keys of grants whose expiration
	// is set and at or before now, ordered by expiration then key.
	FindExpiredGrants(ctx context.Context, now time.Time, batchSize int) ([]string, error)

	// DeleteGrants removes the given grants. Unknown keys are ignored and the
	// number of grants actually removed is returned.
	DeleteGrants(ctx context.Context, keys []string) (int, error)
}

// ExpiredDeviceCodes is the capability the cleanup worker needs for device codes.
type ExpiredDeviceCodes interface {
	// FindExpiredDeviceCodes returns up to batchSize device codes whose
	// expiration is at or before now, ordered by expiration then device code.
	FindExpiredDeviceCodes(ctx context.Context, now time.Time, batchSize int) ([]string, error)

	// DeleteDeviceCodes removes the given device codes, ignoring unknown ones,
	// and returns the number actually removed.
	DeleteDeviceCodes(ctx context.Context, deviceCodes []string) (int, error)
}

type Grants interface {
	ExpiredGrants

	// StoreGrant inserts the grant or replaces the existing one with the same key.
	StoreGrant(ctx context.Context, g domain.Grant) error

	// GetGrant returns a grant by key or ErrNotFound.
	GetGrant(ctx context.Context, key string) (domain.Grant, error)

	// ListGrants returns every grant matching the filter.
	ListGrants(ctx context.Context, f domain.GrantFilter) ([]domain.Grant, error)

	// RemoveGrant deletes a grant by key. Missing keys are not an error.
	RemoveGrant(ctx context.Context, key string) error

	// RemoveGrants deletes every grant matching the filter (e.g. on logout or
	// consent revocation) and returns how many were removed.
	RemoveGrants(ctx context.Context, f domain.GrantFilter) (int, error)
}

type DeviceCodes interface {
	ExpiredDeviceCodes

	// StoreDeviceCode inserts a new device code. A clash on either the device
	// code or the user code returns ErrAlreadyExists.
	StoreDeviceCode(ctx context.Context, dc domain.DeviceCode) error

	// FindByDeviceCode is used by the polling device.
	FindByDeviceCode(ctx context.Context, deviceCode string) (domain.DeviceCode, error)

	// FindByUserCode is used by the verification page the user visits.
	FindByUserCode(ctx context.Context, userCode string) (domain.DeviceCode, error)

	// UpdateByUserCode records the subject and payload once the user approves.
	UpdateByUserCode(ctx context.Context, userCode, subjectID, data string) error

	// RemoveByDeviceCode deletes the device code once redeemed. Missing codes
	// are not an error.
	RemoveByDeviceCode(ctx context.Context, deviceCode string) error
}

// CheckBatchSize validates a find-expired batch size.
func CheckBatchSize(batchSize int) error {
	if batchSize <= 0 {
		return ErrInvalidBatchSize
	}
	return nil
}

// CompactKeys returns keys with empty entries and duplicates removed,
// preserving order. Drivers use it before building IN clauses.
func CompactKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// CeilTime rounds t up to a multiple of precision. Drivers that store
// expirations coarser than a nanosecond apply it on write so a record is
// never selected before it has expired.
func CeilTime(t time.Time, precision time.Duration) time.Time {
	if floor := t.Truncate(precision); floor.Before(t) {
		return floor.Add(precision)
	}
	return t.Round(0)
}

// FloorTime rounds t down to a multiple of precision. Drivers apply it to the
// cutoff passed to FindExpired*.
func FloorTime(t time.Time, precision time.Duration) time.Time {
	return t.Truncate(precision)
}

// CeilTimePtr is CeilTime for optional expirations.
func CeilTimePtr(t *time.Time, precision time.Duration) *time.Time {
	if t == nil {
		return nil
	}
	val := CeilTime(*t, precision)
	return &val
}
