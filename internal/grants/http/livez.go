package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/grantsweep/pkg/httpx"
	"github.com/aussiebroadwan/grantsweep/pkg/sweepsdk"
)

// LivezHandler godoc
//
//	@Summary		Liveness Check Endpoint
//	@Description	Liveness check returning uptime and version. Always 200 OK while the process is running
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	sweepsdk.HealthResponse	"status, uptime, version"
//	@Failure		429	{object}	httpx.ErrorResponse		"rate limit exceeded"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, sweepsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
