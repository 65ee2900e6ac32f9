package store_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/stretchr/testify/require"
)

func TestCheckBatchSize(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, store.CheckBatchSize(0), store.ErrInvalidBatchSize)
	require.ErrorIs(t, store.CheckBatchSize(-1), store.ErrInvalidBatchSize)
	require.NoError(t, store.CheckBatchSize(1))
}

func TestCompactKeys(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b"}, store.CompactKeys([]string{"a", "", "b", "a"}))
	require.Empty(t, store.CompactKeys(nil))
	require.Empty(t, store.CompactKeys([]string{"", ""}))
}

func TestCeilAndFloorTime(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		in        time.Time
		precision time.Duration
		ceil      time.Time
		floor     time.Time
	}{
		{"aligned", base, time.Millisecond, base, base},
		{"one nanosecond past", base.Add(time.Nanosecond), time.Microsecond, base.Add(time.Microsecond), base},
		{"sub millisecond", base.Add(999_900 * time.Nanosecond), time.Millisecond, base.Add(time.Millisecond), base},
		{"far future", time.Date(9999, 12, 31, 23, 59, 59, 500, time.UTC), time.Microsecond,
			time.Date(9999, 12, 31, 23, 59, 59, 1000, time.UTC), time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.ceil.Equal(store.CeilTime(tt.in, tt.precision)), "ceil %s", store.CeilTime(tt.in, tt.precision))
			require.True(t, tt.floor.Equal(store.FloorTime(tt.in, tt.precision)), "floor %s", store.FloorTime(tt.in, tt.precision))
		})
	}

	require.Nil(t, store.CeilTimePtr(nil, time.Millisecond))
	in := base.Add(time.Nanosecond)
	require.True(t, base.Add(time.Millisecond).Equal(*store.CeilTimePtr(&in, time.Millisecond)))
}
