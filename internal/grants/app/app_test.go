package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/service"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/storetest"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	return Config{
		StoreDriver:         DriverSQLite,
		StoreDSN:            filepath.Join(t.TempDir(), "grants.db"),
		CleanupEnabled:      true,
		CleanupInterval:     time.Hour,
		CleanupBatchSize:    10,
		CleanupRunOnStart:   true,
		Env:                 "test",
		LogLevel:            "error",
		LogFormat:           "text",
		ShutdownGracePeriod: time.Second,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.CleanupInterval = 0

	_, err := New(cfg)
	require.ErrorIs(t, err, service.ErrInvalidInterval)
}

func TestApplicationRunsCleanupOnStart(t *testing.T) {
	cfg := testConfig(t)

	application, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	past := storetest.Now().Add(-time.Hour)
	expired := storetest.NewGrant(&past)
	require.NoError(t, application.db.Grants().StoreGrant(ctx, expired))

	application.Start()
	t.Cleanup(func() { require.NoError(t, application.Shutdown()) })

	require.Eventually(t, func() bool {
		report, ok := application.Scheduler().LastReport()
		return ok && report.Trigger == service.TriggerStart
	}, 5*time.Second, 10*time.Millisecond)

	report, _ := application.Scheduler().LastReport()
	require.NoError(t, report.Err())
	require.Equal(t, 1, report.Removed())

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestApplicationWithCleanupDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = DriverMemory
	cfg.CleanupEnabled = false

	application, err := New(cfg)
	require.NoError(t, err)
	require.Nil(t, application.Scheduler())

	application.Start()
	t.Cleanup(func() { require.NoError(t, application.Shutdown()) })

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/cleanup/run", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
