package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	grantshttp "github.com/aussiebroadwan/grantsweep/internal/grants/http"
	"github.com/aussiebroadwan/grantsweep/internal/grants/service"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/drivers/memory"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/storetest"
	"github.com/aussiebroadwan/grantsweep/pkg/httpx"
	"github.com/aussiebroadwan/grantsweep/pkg/idx"
	"github.com/aussiebroadwan/grantsweep/pkg/slogx"
	"github.com/aussiebroadwan/grantsweep/pkg/sweepsdk"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeScheduler struct {
	state   service.State
	last    *service.PassReport
	trigger func(ctx context.Context) (service.PassReport, bool)
}

func (f *fakeScheduler) State() service.State { return f.state }

func (f *fakeScheduler) LastReport() (service.PassReport, bool) {
	if f.last == nil {
		return service.PassReport{}, false
	}
	return *f.last, true
}

func (f *fakeScheduler) TriggerNow(ctx context.Context) (service.PassReport, bool) {
	return f.trigger(ctx)
}

func newRouter(st grantshttp.Pinger, sched grantshttp.CleanupScheduler) *grantshttp.Router {
	r := grantshttp.NewRouter("test", st, slogx.Discard())
	if sched != nil {
		r.Scheduler = sched
	}
	r.ApplyRoutes()
	return r
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

var healthyStore = pingerFunc(func(context.Context) error { return nil })

func TestLivez(t *testing.T) {
	rec := do(t, newRouter(healthyStore, nil), http.MethodGet, "/livez")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[sweepsdk.HealthResponse](t, rec)
	require.Equal(t, "ok", body.Status)
	require.Equal(t, "test", body.Version)
}

func TestReadyz(t *testing.T) {
	t.Run("healthy store with idle scheduler", func(t *testing.T) {
		rec := do(t, newRouter(healthyStore, &fakeScheduler{state: service.StateIdle}), http.MethodGet, "/readyz")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[sweepsdk.HealthResponse](t, rec)
		require.Equal(t, "ok", body.Checks.Store)
		require.Equal(t, "idle", body.Checks.Cleanup)
	})

	t.Run("unreachable store is not ready", func(t *testing.T) {
		down := pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") })
		rec := do(t, newRouter(down, nil), http.MethodGet, "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		body := decode[sweepsdk.HealthResponse](t, rec)
		require.Equal(t, "degraded", body.Status)
		require.Contains(t, body.Checks.Store, "refused")
		require.Equal(t, "disabled", body.Checks.Cleanup)
	})
}

func TestCleanupStatus(t *testing.T) {
	t.Run("no pass yet", func(t *testing.T) {
		rec := do(t, newRouter(healthyStore, &fakeScheduler{state: service.StateRunning}), http.MethodGet, "/v1/cleanup/status")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[sweepsdk.StatusResponse](t, rec)
		require.Equal(t, "running", body.State)
		require.Nil(t, body.LastPass)
	})

	t.Run("reports last pass with kind errors", func(t *testing.T) {
		now := time.Now().UTC()
		last := service.PassReport{
			ID:         idx.New(),
			Trigger:    service.TriggerTick,
			StartedAt:  now.Add(-time.Second),
			FinishedAt: now,
			Kinds: []service.KindReport{
				{Kind: service.KindGrants, Removed: 4, Batches: 1},
				{Kind: service.KindDeviceCodes, Err: errors.New("timeout")},
			},
		}

		rec := do(t, newRouter(healthyStore, &fakeScheduler{last: &last}), http.MethodGet, "/v1/cleanup/status")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[sweepsdk.StatusResponse](t, rec)
		require.NotNil(t, body.LastPass)
		require.Equal(t, last.ID.String(), body.LastPass.ID)
		require.Equal(t, 4, body.LastPass.Removed)
		require.EqualValues(t, 1000, body.LastPass.DurationMS)
		require.Len(t, body.LastPass.Kinds, 2)
		require.Equal(t, "timeout", body.LastPass.Kinds[1].Error)
		require.Contains(t, body.LastPass.Error, "device_codes: timeout")
	})

	t.Run("disabled", func(t *testing.T) {
		rec := do(t, newRouter(healthyStore, nil), http.MethodGet, "/v1/cleanup/status")
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "cleanup_disabled", decode[httpx.ErrorResponse](t, rec).Error)
	})
}

func TestCleanupRun(t *testing.T) {
	t.Run("runs a pass against the store", func(t *testing.T) {
		ctx := context.Background()
		st := memory.NewStore()
		past := storetest.Now().Add(-time.Hour)
		require.NoError(t, st.Grants().StoreGrant(ctx, storetest.NewGrant(&past)))
		require.NoError(t, st.DeviceCodes().StoreDeviceCode(ctx, storetest.NewDeviceCode(past)))

		cleanup, err := service.NewCleanupService(st.Grants(), st.DeviceCodes(), slogx.Discard(), service.CleanupConfig{BatchSize: 10})
		require.NoError(t, err)
		sched, err := service.NewScheduler(cleanup, slogx.Discard(), service.SchedulerConfig{Interval: time.Hour})
		require.NoError(t, err)

		router := newRouter(st, sched)

		rec := do(t, router, http.MethodPost, "/v1/cleanup/run")
		require.Equal(t, http.StatusOK, rec.Code)

		pass := decode[sweepsdk.PassResult](t, rec)
		require.Equal(t, service.TriggerManual, pass.Trigger)
		require.Equal(t, 2, pass.Removed)
		require.Empty(t, pass.Error)

		status := decode[sweepsdk.StatusResponse](t, do(t, router, http.MethodGet, "/v1/cleanup/status"))
		require.Equal(t, "idle", status.State)
		require.Equal(t, pass.ID, status.LastPass.ID)
	})

	t.Run("conflict while a pass is running", func(t *testing.T) {
		sched := &fakeScheduler{
			state: service.StateRunning,
			trigger: func(context.Context) (service.PassReport, bool) {
				return service.PassReport{}, false
			},
		}

		rec := do(t, newRouter(healthyStore, sched), http.MethodPost, "/v1/cleanup/run")
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "cleanup_running", decode[httpx.ErrorResponse](t, rec).Error)
	})

	t.Run("rate limited by ip", func(t *testing.T) {
		sched := &fakeScheduler{
			trigger: func(context.Context) (service.PassReport, bool) {
				return service.PassReport{ID: idx.New()}, true
			},
		}
		router := newRouter(healthyStore, sched)

		var last int
		for range httpx.OpsLimit.Burst + 1 {
			req := httptest.NewRequest(http.MethodPost, "/v1/cleanup/run", nil)
			req.RemoteAddr = "192.0.2.10:5555"
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			last = rec.Code
		}
		require.Equal(t, http.StatusTooManyRequests, last)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := do(t, newRouter(healthyStore, &fakeScheduler{}), http.MethodGet, "/v1/cleanup/run")
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestSwaggerDocs(t *testing.T) {
	r := newRouter(healthyStore, nil)

	rec := do(t, r, http.MethodGet, "/swagger/doc.json")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	for _, path := range []string{"/livez", "/readyz", "/v1/cleanup/status", "/v1/cleanup/run"} {
		require.Contains(t, doc.Paths, path)
	}

	rec = do(t, r, http.MethodGet, "/swagger/index.html")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCleanupRunRateLimitUsesTrustedProxies(t *testing.T) {
	sched := &fakeScheduler{
		trigger: func(context.Context) (service.PassReport, bool) {
			return service.PassReport{ID: idx.New()}, true
		},
	}

	runFrom := func(h http.Handler, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/cleanup/run", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("spoofed header does not mint new buckets", func(t *testing.T) {
		r := newRouter(healthyStore, sched)

		var codes []int
		for i := range httpx.OpsLimit.Burst + 1 {
			codes = append(codes, runFrom(r, fmt.Sprintf("198.51.100.%d", i)))
		}
		require.Equal(t, http.StatusTooManyRequests, codes[len(codes)-1])
	})

	t.Run("trusted proxy forwards distinct clients", func(t *testing.T) {
		trusted, err := httpx.ParseTrustedProxies("192.0.2.0/24")
		require.NoError(t, err)

		r := grantshttp.NewRouter("test", healthyStore, slogx.Discard())
		r.Scheduler = sched
		r.TrustedProxies = trusted
		r.ApplyRoutes()

		for i := range httpx.OpsLimit.Burst + 1 {
			require.Equal(t, http.StatusOK, runFrom(r, fmt.Sprintf("198.51.100.%d", i)))
		}
	})
}
