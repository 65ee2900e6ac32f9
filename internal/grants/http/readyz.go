package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/grantsweep/pkg/httpx"
	"github.com/aussiebroadwan/grantsweep/pkg/sweepsdk"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness check pinging the grant store. Reports 503 when the store cannot be reached
//	@Description	The cleanup check is informational: a running pass does not make the service unready
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	sweepsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		429	{object}	httpx.ErrorResponse		"rate limit exceeded"
//	@Failure		503	{object}	sweepsdk.HealthResponse	"status, uptime, version, checks - store unreachable"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st Pinger, sched CleanupScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &sweepsdk.HealthChecks{Store: "ok", Cleanup: "disabled"}
		status := "ok"
		code := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Store = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		if sched != nil {
			checks.Cleanup = sched.State().String()
		}

		httpx.WriteJSON(w, code, sweepsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
