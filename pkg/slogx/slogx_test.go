package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/grantsweep/pkg/slogx"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, slogx.ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, slogx.ParseLevel("warning"))
	require.Equal(t, slog.LevelError, slogx.ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, slogx.ParseLevel("nonsense"))
}

func TestNewWritesServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{
		Service: "grantsweep",
		Version: "test",
		Env:     "prod",
		Level:   "info",
		Format:  "json",
		Output:  &buf,
	})
	t.Cleanup(func() { slog.SetDefault(slogx.Discard()) })

	logger.Info("cleanup pass completed", "removed", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "grantsweep", entry["service"])
	require.Equal(t, "prod", entry["env"])
	require.EqualValues(t, 3, entry["removed"])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	require.NotNil(t, slogx.FromContext(context.Background()))

	logger := slogx.Discard()
	ctx := slogx.WithContext(context.Background(), logger)
	require.Same(t, logger, slogx.FromContext(ctx))
}

func TestHTTPMiddlewareUsesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	h := slogx.HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slogx.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	require.Contains(t, buf.String(), `"req_id":"req-1"`)
	require.Contains(t, buf.String(), `"status":418`)
}

func TestHTTPMiddlewareGeneratesRequestID(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := slogx.HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	id := rec.Header().Get("X-Request-ID")
	require.Len(t, id, 26)
	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)
}
