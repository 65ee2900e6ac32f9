// Package storetest holds the behavioural contract every store driver must
// satisfy. Driver packages call Run from their own tests with a factory that
// returns an empty, migrated store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh store with no records. It should register any
// teardown with t.Cleanup.
type Factory func(t *testing.T) store.Store

// Now returns the current time truncated to millisecond precision, the
// coarsest resolution any driver stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// FarFuture is the "never" sentinel some clients write instead of a null
// expiration. It lies beyond the range of int64 unix nanoseconds.
var FarFuture = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// NewGrant builds a reference token grant expiring at exp (nil for never).
func NewGrant(exp *time.Time) domain.Grant {
	return domain.Grant{
		Key:          uuid.NewString(),
		Type:         domain.GrantTypeReferenceToken,
		SubjectID:    "123",
		ClientID:     "app1",
		CreationTime: Now().Add(-time.Hour),
		Expiration:   exp,
		Data:         "{!}",
	}
}

// NewDeviceCode builds an unauthorized device code expiring at exp.
func NewDeviceCode(exp time.Time) domain.DeviceCode {
	return domain.DeviceCode{
		DeviceCode:   uuid.NewString(),
		UserCode:     uuid.NewString(),
		ClientID:     "app1",
		CreationTime: exp.Add(-24 * time.Hour),
		Expiration:   exp,
		Data:         "{!}",
	}
}

// Run executes the full conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("grants", func(t *testing.T) { runGrants(t, newStore) })
	t.Run("expired grants", func(t *testing.T) { runExpiredGrants(t, newStore) })
	t.Run("device codes", func(t *testing.T) { runDeviceCodes(t, newStore) })
	t.Run("expired device codes", func(t *testing.T) { runExpiredDeviceCodes(t, newStore) })
	t.Run("concurrent reads during delete", func(t *testing.T) { runConcurrentDelete(t, newStore) })
}

func runGrants(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("store and get round trip", func(t *testing.T) {
		s := newStore(t)
		exp := Now().Add(time.Hour)
		consumed := Now()
		g := NewGrant(&exp)
		g.SessionID = "sid-1"
		g.Description = "web login"
		g.ConsumedTime = &consumed

		require.NoError(t, s.Grants().StoreGrant(ctx, g))

		got, err := s.Grants().GetGrant(ctx, g.Key)
		require.NoError(t, err)
		requireGrantEqual(t, g, got)
	})

	t.Run("nil expiration and consumed time survive", func(t *testing.T) {
		s := newStore(t)
		g := NewGrant(nil)
		require.NoError(t, s.Grants().StoreGrant(ctx, g))

		got, err := s.Grants().GetGrant(ctx, g.Key)
		require.NoError(t, err)
		require.Nil(t, got.Expiration)
		require.Nil(t, got.ConsumedTime)
	})

	t.Run("store replaces existing grant", func(t *testing.T) {
		s := newStore(t)
		exp := Now().Add(time.Hour)
		g := NewGrant(&exp)
		require.NoError(t, s.Grants().StoreGrant(ctx, g))

		consumed := Now()
		g.ConsumedTime = &consumed
		g.Data = "{updated}"
		require.NoError(t, s.Grants().StoreGrant(ctx, g))

		got, err := s.Grants().GetGrant(ctx, g.Key)
		require.NoError(t, err)
		require.Equal(t, "{updated}", got.Data)
		require.NotNil(t, got.ConsumedTime)
		require.True(t, consumed.Equal(*got.ConsumedTime))
	})

	t.Run("missing grant is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Grants().GetGrant(ctx, uuid.NewString())
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		s := newStore(t)
		g := NewGrant(nil)
		require.NoError(t, s.Grants().StoreGrant(ctx, g))

		require.NoError(t, s.Grants().RemoveGrant(ctx, g.Key))
		require.NoError(t, s.Grants().RemoveGrant(ctx, g.Key))

		_, err := s.Grants().GetGrant(ctx, g.Key)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("list and remove by filter", func(t *testing.T) {
		s := newStore(t)

		a := NewGrant(nil)
		a.SubjectID = "alice"
		a.SessionID = "s1"
		b := NewGrant(nil)
		b.SubjectID = "alice"
		b.SessionID = "s2"
		b.Type = domain.GrantTypeRefreshToken
		c := NewGrant(nil)
		c.SubjectID = "bob"
		for _, g := range []domain.Grant{a, b, c} {
			require.NoError(t, s.Grants().StoreGrant(ctx, g))
		}

		_, err := s.Grants().ListGrants(ctx, domain.GrantFilter{})
		require.ErrorIs(t, err, store.ErrEmptyFilter)
		_, err = s.Grants().RemoveGrants(ctx, domain.GrantFilter{})
		require.ErrorIs(t, err, store.ErrEmptyFilter)

		alice, err := s.Grants().ListGrants(ctx, domain.GrantFilter{SubjectID: "alice"})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{a.Key, b.Key}, grantKeys(alice))

		refresh, err := s.Grants().ListGrants(ctx, domain.GrantFilter{SubjectID: "alice", Type: domain.GrantTypeRefreshToken})
		require.NoError(t, err)
		require.Equal(t, []string{b.Key}, grantKeys(refresh))

		removed, err := s.Grants().RemoveGrants(ctx, domain.GrantFilter{SubjectID: "alice", SessionID: "s1"})
		require.NoError(t, err)
		require.Equal(t, 1, removed)

		_, err = s.Grants().GetGrant(ctx, a.Key)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Grants().GetGrant(ctx, c.Key)
		require.NoError(t, err)
	})
}

func runExpiredGrants(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("selects only expired grants", func(t *testing.T) {
		s := newStore(t)
		now := Now()

		past := now.Add(-72 * time.Hour)
		future := now.Add(72 * time.Hour)
		exact := now

		expired := NewGrant(&past)
		atNow := NewGrant(&exact)
		valid := NewGrant(&future)
		forever := NewGrant(nil)
		for _, g := range []domain.Grant{expired, atNow, valid, forever} {
			require.NoError(t, s.Grants().StoreGrant(ctx, g))
		}

		keys, err := s.Grants().FindExpiredGrants(ctx, now, 10)
		require.NoError(t, err)
		require.Equal(t, []string{expired.Key, atNow.Key}, keys)
	})

	t.Run("consumed but valid grants are not selected", func(t *testing.T) {
		s := newStore(t)
		now := Now()
		future := now.Add(time.Hour)
		consumed := now.Add(-time.Minute)

		g := NewGrant(&future)
		g.ConsumedTime = &consumed
		require.NoError(t, s.Grants().StoreGrant(ctx, g))

		keys, err := s.Grants().FindExpiredGrants(ctx, now, 10)
		require.NoError(t, err)
		require.Empty(t, keys)
	})

	t.Run("far future expiration is not selected", func(t *testing.T) {
		s := newStore(t)
		exp := FarFuture
		g := NewGrant(&exp)
		require.NoError(t, s.Grants().StoreGrant(ctx, g))

		keys, err := s.Grants().FindExpiredGrants(ctx, Now(), 10)
		require.NoError(t, err)
		require.Empty(t, keys)

		got, err := s.Grants().GetGrant(ctx, g.Key)
		require.NoError(t, err)
		require.NotNil(t, got.Expiration)
		require.Equal(t, 9999, got.Expiration.UTC().Year())
	})

	t.Run("expiration just after now is not selected", func(t *testing.T) {
		s := newStore(t)
		now := Now().Add(999_500 * time.Nanosecond)

		nearly := now.Add(400 * time.Nanosecond)
		nextMicro := now.Add(time.Microsecond)
		a := NewGrant(&nearly)
		b := NewGrant(&nextMicro)
		require.NoError(t, s.Grants().StoreGrant(ctx, a))
		require.NoError(t, s.Grants().StoreGrant(ctx, b))

		keys, err := s.Grants().FindExpiredGrants(ctx, now, 10)
		require.NoError(t, err)
		require.Empty(t, keys)

		keys, err = s.Grants().FindExpiredGrants(ctx, nextMicro.Add(time.Second), 10)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{a.Key, b.Key}, keys)
	})

	t.Run("respects batch size and is deterministic", func(t *testing.T) {
		s := newStore(t)
		now := Now()
		for i := range 5 {
			exp := now.Add(-time.Duration(i+1) * time.Minute)
			require.NoError(t, s.Grants().StoreGrant(ctx, NewGrant(&exp)))
		}

		first, err := s.Grants().FindExpiredGrants(ctx, now, 3)
		require.NoError(t, err)
		require.Len(t, first, 3)

		again, err := s.Grants().FindExpiredGrants(ctx, now, 3)
		require.NoError(t, err)
		require.Equal(t, first, again)
	})

	t.Run("rejects non-positive batch size", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Grants().FindExpiredGrants(ctx, Now(), 0)
		require.ErrorIs(t, err, store.ErrInvalidBatchSize)
	})

	t.Run("delete counts only present grants", func(t *testing.T) {
		s := newStore(t)
		past := Now().Add(-time.Hour)
		a := NewGrant(&past)
		b := NewGrant(&past)
		require.NoError(t, s.Grants().StoreGrant(ctx, a))
		require.NoError(t, s.Grants().StoreGrant(ctx, b))

		removed, err := s.Grants().DeleteGrants(ctx, []string{a.Key, b.Key, uuid.NewString(), a.Key})
		require.NoError(t, err)
		require.Equal(t, 2, removed)

		removed, err = s.Grants().DeleteGrants(ctx, []string{a.Key, b.Key})
		require.NoError(t, err)
		require.Zero(t, removed)

		removed, err = s.Grants().DeleteGrants(ctx, nil)
		require.NoError(t, err)
		require.Zero(t, removed)
	})
}

func runDeviceCodes(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("store and find by either code", func(t *testing.T) {
		s := newStore(t)
		dc := NewDeviceCode(Now().Add(time.Hour))
		dc.SessionID = "sid"
		dc.Description = "tv"
		require.NoError(t, s.DeviceCodes().StoreDeviceCode(ctx, dc))

		byDevice, err := s.DeviceCodes().FindByDeviceCode(ctx, dc.DeviceCode)
		require.NoError(t, err)
		requireDeviceCodeEqual(t, dc, byDevice)

		byUser, err := s.DeviceCodes().FindByUserCode(ctx, dc.UserCode)
		require.NoError(t, err)
		requireDeviceCodeEqual(t, dc, byUser)
	})

	t.Run("duplicate codes are rejected", func(t *testing.T) {
		s := newStore(t)
		dc := NewDeviceCode(Now().Add(time.Hour))
		require.NoError(t, s.DeviceCodes().StoreDeviceCode(ctx, dc))

		sameDevice := NewDeviceCode(Now().Add(time.Hour))
		sameDevice.DeviceCode = dc.DeviceCode
		require.ErrorIs(t, s.DeviceCodes().StoreDeviceCode(ctx, sameDevice), store.ErrAlreadyExists)

		sameUser := NewDeviceCode(Now().Add(time.Hour))
		sameUser.UserCode = dc.UserCode
		require.ErrorIs(t, s.DeviceCodes().StoreDeviceCode(ctx, sameUser), store.ErrAlreadyExists)
	})

	t.Run("update by user code", func(t *testing.T) {
		s := newStore(t)
		dc := NewDeviceCode(Now().Add(time.Hour))
		require.NoError(t, s.DeviceCodes().StoreDeviceCode(ctx, dc))

		require.NoError(t, s.DeviceCodes().UpdateByUserCode(ctx, dc.UserCode, "alice", "{approved}"))

		got, err := s.DeviceCodes().FindByDeviceCode(ctx, dc.DeviceCode)
		require.NoError(t, err)
		require.Equal(t, "alice", got.SubjectID)
		require.Equal(t, "{approved}", got.Data)
		require.True(t, got.IsAuthorized())

		err = s.DeviceCodes().UpdateByUserCode(ctx, uuid.NewString(), "alice", "{}")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("remove is idempotent and frees the user code", func(t *testing.T) {
		s := newStore(t)
		dc := NewDeviceCode(Now().Add(time.Hour))
		require.NoError(t, s.DeviceCodes().StoreDeviceCode(ctx, dc))

		require.NoError(t, s.DeviceCodes().RemoveByDeviceCode(ctx, dc.DeviceCode))
		require.NoError(t, s.DeviceCodes().RemoveByDeviceCode(ctx, dc.DeviceCode))

		_, err := s.DeviceCodes().FindByDeviceCode(ctx, dc.DeviceCode)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.DeviceCodes().FindByUserCode(ctx, dc.UserCode)
		require.ErrorIs(t, err, store.ErrNotFound)

		reuse := NewDeviceCode(Now().Add(time.Hour))
		reuse.UserCode = dc.UserCode
		require.NoError(t, s.DeviceCodes().StoreDeviceCode(ctx, reuse))
	})
}

func runExpiredDeviceCodes(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("selects only expired device codes", func(t *testing.T) {
		s := newStore(t)
		now := Now()

		expired := NewDeviceCode(now.Add(-72 * time.Hour))
		atNow := NewDeviceCode(now)
		valid := NewDeviceCode(now.Add(72 * time.Hour))
		for _, dc := range []domain.DeviceCode{expired, atNow, valid} {
			require.NoError(t, s.DeviceCodes().StoreDeviceCode(ctx, dc))
		}

		codes, err := s.DeviceCodes().FindExpiredDeviceCodes(ctx, now, 10)
		require.NoError(t, err)
		require.Equal(t, []string{expired.DeviceCode, atNow.DeviceCode}, codes)

		_, err = s.DeviceCodes().FindExpiredDeviceCodes(ctx, now, -1)
		require.ErrorIs(t, err, store.ErrInvalidBatchSize)
	})

	t.Run("far future expiration is not selected", func(t *testing.T) {
		s := newStore(t)
		dc := NewDeviceCode(FarFuture)
		require.NoError(t, s.DeviceCodes().StoreDeviceCode(ctx, dc))

		codes, err := s.DeviceCodes().FindExpiredDeviceCodes(ctx, Now(), 10)
		require.NoError(t, err)
		require.Empty(t, codes)

		got, err := s.DeviceCodes().FindByDeviceCode(ctx, dc.DeviceCode)
		require.NoError(t, err)
		require.Equal(t, 9999, got.Expiration.UTC().Year())
	})

	t.Run("expiration just after now is not selected", func(t *testing.T) {
		s := newStore(t)
		now := Now().Add(999_500 * time.Nanosecond)

		dc := NewDeviceCode(now.Add(time.Microsecond))
		require.NoError(t, s.DeviceCodes().StoreDeviceCode(ctx, dc))

		codes, err := s.DeviceCodes().FindExpiredDeviceCodes(ctx, now, 10)
		require.NoError(t, err)
		require.Empty(t, codes)

		codes, err = s.DeviceCodes().FindExpiredDeviceCodes(ctx, now.Add(time.Second), 10)
		require.NoError(t, err)
		require.Equal(t, []string{dc.DeviceCode}, codes)
	})

	t.Run("respects batch size", func(t *testing.T) {
		s := newStore(t)
		now := Now()
		for i := range 4 {
			require.NoError(t, s.DeviceCodes().StoreDeviceCode(ctx, NewDeviceCode(now.Add(-time.Duration(i+1)*time.Minute))))
		}

		codes, err := s.DeviceCodes().FindExpiredDeviceCodes(ctx, now, 3)
		require.NoError(t, err)
		require.Len(t, codes, 3)
	})

	t.Run("delete removes both lookups", func(t *testing.T) {
		s := newStore(t)
		dc := NewDeviceCode(Now().Add(-time.Hour))
		require.NoError(t, s.DeviceCodes().StoreDeviceCode(ctx, dc))

		removed, err := s.DeviceCodes().DeleteDeviceCodes(ctx, []string{dc.DeviceCode, uuid.NewString()})
		require.NoError(t, err)
		require.Equal(t, 1, removed)

		_, err = s.DeviceCodes().FindByUserCode(ctx, dc.UserCode)
		require.ErrorIs(t, err, store.ErrNotFound)

		removed, err = s.DeviceCodes().DeleteDeviceCodes(ctx, []string{dc.DeviceCode})
		require.NoError(t, err)
		require.Zero(t, removed)
	})
}

// runConcurrentDelete checks that a reader racing a batch delete sees either
// the whole record or ErrNotFound.
func runConcurrentDelete(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	past := Now().Add(-time.Hour)
	var keys []string
	want := make(map[string]domain.Grant)
	for range 20 {
		g := NewGrant(&past)
		require.NoError(t, s.Grants().StoreGrant(ctx, g))
		keys = append(keys, g.Key)
		want[g.Key] = g
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(keys))
	for _, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Grants().GetGrant(ctx, key)
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				errs <- err
			case got.Data != want[key].Data || got.ClientID != want[key].ClientID:
				errs <- fmt.Errorf("torn read for %s: %+v", key, got)
			}
		}()
	}

	removed, err := s.Grants().DeleteGrants(ctx, keys)
	wg.Wait()
	close(errs)

	require.NoError(t, err)
	require.Equal(t, len(keys), removed)
	for err := range errs {
		require.NoError(t, err)
	}
}

func requireGrantEqual(t *testing.T, want, got domain.Grant) {
	t.Helper()

	require.Equal(t, want.Key, got.Key)
	require.Equal(t, want.Type, got.Type)
	require.Equal(t, want.SubjectID, got.SubjectID)
	require.Equal(t, want.SessionID, got.SessionID)
	require.Equal(t, want.ClientID, got.ClientID)
	require.Equal(t, want.Description, got.Description)
	require.Equal(t, want.Data, got.Data)
	require.True(t, want.CreationTime.Equal(got.CreationTime), "creation time %s != %s", want.CreationTime, got.CreationTime)
	requireTimePtrEqual(t, want.Expiration, got.Expiration)
	requireTimePtrEqual(t, want.ConsumedTime, got.ConsumedTime)
}

func requireDeviceCodeEqual(t *testing.T, want, got domain.DeviceCode) {
	t.Helper()

	require.Equal(t, want.DeviceCode, got.DeviceCode)
	require.Equal(t, want.UserCode, got.UserCode)
	require.Equal(t, want.SubjectID, got.SubjectID)
	require.Equal(t, want.SessionID, got.SessionID)
	require.Equal(t, want.ClientID, got.ClientID)
	require.Equal(t, want.Description, got.Description)
	require.Equal(t, want.Data, got.Data)
	require.True(t, want.CreationTime.Equal(got.CreationTime))
	require.True(t, want.Expiration.Equal(got.Expiration))
}

func requireTimePtrEqual(t *testing.T, want, got *time.Time) {
	t.Helper()

	if want == nil {
		require.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	require.True(t, want.Equal(*got), "time %s != %s", *want, *got)
}

func grantKeys(grants []domain.Grant) []string {
	keys := make([]string, 0, len(grants))
	for _, g := range grants {
		keys = append(keys, g.Key)
	}
	return keys
}
