package sweepsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	grantshttp "github.com/aussiebroadwan/grantsweep/internal/grants/http"
	"github.com/aussiebroadwan/grantsweep/internal/grants/service"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/drivers/memory"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/storetest"
	"github.com/aussiebroadwan/grantsweep/pkg/slogx"
	"github.com/aussiebroadwan/grantsweep/pkg/sweepsdk"
	"github.com/stretchr/testify/require"
)

// newServer runs the real ops router over an in-memory store.
func newServer(t *testing.T, withScheduler bool) (*sweepsdk.Client, *memory.Store, *service.Scheduler) {
	t.Helper()

	st := memory.NewStore()
	router := grantshttp.NewRouter("sdk-test", st, slogx.Discard())

	var sched *service.Scheduler
	if withScheduler {
		cleanup, err := service.NewCleanupService(st.Grants(), st.DeviceCodes(), slogx.Discard(), service.CleanupConfig{BatchSize: 2})
		require.NoError(t, err)
		sched, err = service.NewScheduler(cleanup, slogx.Discard(), service.SchedulerConfig{Interval: time.Hour})
		require.NoError(t, err)
		router.Scheduler = sched
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return sweepsdk.NewClient(srv.URL + "/"), st, sched
}

func TestHealthEndpoints(t *testing.T) {
	c, _, _ := newServer(t, true)
	ctx := context.Background()

	live, err := c.Livez(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "sdk-test", live.Version)

	ready, err := c.Readyz(ctx)
	require.NoError(t, err)
	require.Equal(t, "idle", ready.Checks.Cleanup)
}

func TestRunCleanupAndStatus(t *testing.T) {
	c, st, _ := newServer(t, true)
	ctx := context.Background()

	past := storetest.Now().Add(-time.Minute)
	for range 5 {
		require.NoError(t, st.Grants().StoreGrant(ctx, storetest.NewGrant(&past)))
	}

	status, err := c.CleanupStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, "idle", status.State)
	require.Nil(t, status.LastPass)

	pass, err := c.RunCleanup(ctx)
	require.NoError(t, err)
	require.False(t, pass.Failed())
	require.Equal(t, 5, pass.Removed)
	require.Equal(t, service.TriggerManual, pass.Trigger)
	require.Len(t, pass.Kinds, 2)
	require.Equal(t, 3, pass.Kinds[0].Batches)

	status, err = c.CleanupStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastPass)
	require.Equal(t, pass.ID, status.LastPass.ID)
}

func TestCleanupDisabled(t *testing.T) {
	c, _, _ := newServer(t, false)

	_, err := c.RunCleanup(context.Background())
	require.ErrorIs(t, err, sweepsdk.ErrCleanupDisabled)

	var apiErr *sweepsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestCleanupRunningConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"cleanup_running","error_description":"a cleanup pass is already running"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := sweepsdk.NewClient(srv.URL).RunCleanup(context.Background())
	require.ErrorIs(t, err, sweepsdk.ErrCleanupRunning)
	require.NotErrorIs(t, err, sweepsdk.ErrCleanupDisabled)
	require.Contains(t, err.Error(), "already running")
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := sweepsdk.NewClient(srv.URL).Livez(context.Background())

	var apiErr *sweepsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.Equal(t, "Bad Gateway", apiErr.Code)
	require.Contains(t, apiErr.Description, "upstream exploded")
}
