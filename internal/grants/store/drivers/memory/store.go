package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
)

// Store keeps grants and device codes in process memory. It is used for
// tests and single-instance development setups where losing state on restart
// is acceptable.
type Store struct {
	mu        sync.RWMutex
	grants    map[string]domain.Grant
	devices   map[string]domain.DeviceCode
	userCodes map[string]string // user code -> device code
}

func NewStore() *Store {
	return &Store{
		grants:    make(map[string]domain.Grant),
		devices:   make(map[string]domain.DeviceCode),
		userCodes: make(map[string]string),
	}
}

func (s *Store) Grants() store.Grants           { return &grantsRepo{s: s} }
func (s *Store) DeviceCodes() store.DeviceCodes { return &deviceCodesRepo{s: s} }

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

type grantsRepo struct {
	s *Store
}

func (r *grantsRepo) StoreGrant(_ context.Context, g domain.Grant) error {
	r.s.mu.Lock()
	r.s.grants[g.Key] = copyGrant(g)
	r.s.mu.Unlock()
	return nil
}

func (r *grantsRepo) GetGrant(_ context.Context, key string) (domain.Grant, error) {
	r.s.mu.RLock()
	g, ok := r.s.grants[key]
	r.s.mu.RUnlock()
	if !ok {
		return domain.Grant{}, store.ErrNotFound
	}
	return copyGrant(g), nil
}

func (r *grantsRepo) ListGrants(_ context.Context, f domain.GrantFilter) ([]domain.Grant, error) {
	if f.IsEmpty() {
		return nil, store.ErrEmptyFilter
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Grant
	for _, g := range r.s.grants {
		if f.Matches(g) {
			out = append(out, copyGrant(g))
		}
	}
	slices.SortFunc(out, func(a, b domain.Grant) int { return cmp.Compare(a.Key, b.Key) })
	return out, nil
}

func (r *grantsRepo) RemoveGrant(_ context.Context, key string) error {
	r.s.mu.Lock()
	delete(r.s.grants, key)
	r.s.mu.Unlock()
	return nil
}

func (r *grantsRepo) RemoveGrants(_ context.Context, f domain.GrantFilter) (int, error) {
	if f.IsEmpty() {
		return 0, store.ErrEmptyFilter
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	removed := 0
	for key, g := range r.s.grants {
		if f.Matches(g) {
			delete(r.s.grants, key)
			removed++
		}
	}
	return removed, nil
}

func (r *grantsRepo) FindExpiredGrants(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	if err := store.CheckBatchSize(batchSize); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	candidates := make([]expiring, 0)
	for key, g := range r.s.grants {
		if g.HasExpired(now) {
			candidates = append(candidates, expiring{key: key, at: *g.Expiration})
		}
	}
	r.s.mu.RUnlock()

	return firstKeys(candidates, batchSize), nil
}

func (r *grantsRepo) DeleteGrants(ctx context.Context, keys []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	removed := 0
	for _, key := range store.CompactKeys(keys) {
		if _, ok := r.s.grants[key]; ok {
			delete(r.s.grants, key)
			removed++
		}
	}
	return removed, nil
}

type deviceCodesRepo struct {
	s *Store
}

func (r *deviceCodesRepo) StoreDeviceCode(_ context.Context, dc domain.DeviceCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.devices[dc.DeviceCode]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := r.s.userCodes[dc.UserCode]; ok {
		return store.ErrAlreadyExists
	}

	r.s.devices[dc.DeviceCode] = dc
	r.s.userCodes[dc.UserCode] = dc.DeviceCode
	return nil
}

func (r *deviceCodesRepo) FindByDeviceCode(_ context.Context, deviceCode string) (domain.DeviceCode, error) {
	r.s.mu.RLock()
	dc, ok := r.s.devices[deviceCode]
	r.s.mu.RUnlock()
	if !ok {
		return domain.DeviceCode{}, store.ErrNotFound
	}
	return dc, nil
}

func (r *deviceCodesRepo) FindByUserCode(_ context.Context, userCode string) (domain.DeviceCode, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	deviceCode, ok := r.s.userCodes[userCode]
	if !ok {
		return domain.DeviceCode{}, store.ErrNotFound
	}
	return r.s.devices[deviceCode], nil
}

func (r *deviceCodesRepo) UpdateByUserCode(_ context.Context, userCode, subjectID, data string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	deviceCode, ok := r.s.userCodes[userCode]
	if !ok {
		return store.ErrNotFound
	}

	dc := r.s.devices[deviceCode]
	dc.SubjectID = subjectID
	dc.Data = data
	r.s.devices[deviceCode] = dc
	return nil
}

func (r *deviceCodesRepo) RemoveByDeviceCode(_ context.Context, deviceCode string) error {
	r.s.mu.Lock()
	r.s.removeDeviceLocked(deviceCode)
	r.s.mu.Unlock()
	return nil
}

func (r *deviceCodesRepo) FindExpiredDeviceCodes(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	if err := store.CheckBatchSize(batchSize); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	candidates := make([]expiring, 0)
	for code, dc := range r.s.devices {
		if dc.HasExpired(now) {
			candidates = append(candidates, expiring{key: code, at: dc.Expiration})
		}
	}
	r.s.mu.RUnlock()

	return firstKeys(candidates, batchSize), nil
}

func (r *deviceCodesRepo) DeleteDeviceCodes(ctx context.Context, deviceCodes []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	removed := 0
	for _, code := range store.CompactKeys(deviceCodes) {
		if r.s.removeDeviceLocked(code) {
			removed++
		}
	}
	return removed, nil
}

// removeDeviceLocked drops the device code and its user code index entry.
// Caller must hold s.mu for writing.
func (s *Store) removeDeviceLocked(deviceCode string) bool {
	dc, ok := s.devices[deviceCode]
	if !ok {
		return false
	}
	delete(s.devices, deviceCode)
	delete(s.userCodes, dc.UserCode)
	return true
}

type expiring struct {
	key string
	at  time.Time
}

func firstKeys(candidates []expiring, limit int) []string {
	slices.SortFunc(candidates, func(a, b expiring) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})

	n := min(limit, len(candidates))
	keys := make([]string, 0, n)
	for _, c := range candidates[:n] {
		keys = append(keys, c.key)
	}
	return keys
}

func copyGrant(g domain.Grant) domain.Grant {
	if g.Expiration != nil {
		exp := *g.Expiration
		g.Expiration = &exp
	}
	if g.ConsumedTime != nil {
		consumed := *g.ConsumedTime
		g.ConsumedTime = &consumed
	}
	return g
}
