package http

import (
	"net/http"

	"github.com/aussiebroadwan/grantsweep/pkg/httpx"
	"github.com/aussiebroadwan/grantsweep/pkg/slogx"
	"github.com/aussiebroadwan/grantsweep/pkg/sweepsdk"
)

type CleanupHandler struct {
	Scheduler CleanupScheduler
}

// HandleStatus godoc
//
//	@Summary		Cleanup Status
//	@Description	Returns the scheduler state (idle or running) and the report of the most recent pass
//	@Tags			Cleanup
//	@Produce		json
//	@Success		200	{object}	sweepsdk.StatusResponse	"scheduler state and last pass"
//	@Failure		404	{object}	httpx.ErrorResponse		"cleanup_disabled"
//	@Failure		429	{object}	httpx.ErrorResponse		"rate limit exceeded"
//	@Router			/v1/cleanup/status [get].
func (h *CleanupHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		httpx.WriteError(w, http.StatusNotFound, sweepsdk.ErrorCodeCleanupDisabled, "expired grant cleanup is disabled")
		return
	}

	resp := sweepsdk.StatusResponse{State: h.Scheduler.State().String()}
	if last, ok := h.Scheduler.LastReport(); ok {
		resp.LastPass = newPassResult(last)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleRun godoc
//
//	@Summary		Run Cleanup Pass
//	@Description	Runs one expired grant and device code cleanup pass synchronously and returns its report
//	@Description	Responds 409 when a scheduled or manual pass is already in flight
//	@Tags			Cleanup
//	@Produce		json
//	@Success		200	{object}	sweepsdk.PassResult		"finished pass report"
//	@Failure		404	{object}	httpx.ErrorResponse		"cleanup_disabled"
//	@Failure		409	{object}	httpx.ErrorResponse		"cleanup_running"
//	@Failure		429	{object}	httpx.ErrorResponse		"rate limit exceeded"
//	@Router			/v1/cleanup/run [post].
func (h *CleanupHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		httpx.WriteError(w, http.StatusNotFound, sweepsdk.ErrorCodeCleanupDisabled, "expired grant cleanup is disabled")
		return
	}

	report, ok := h.Scheduler.TriggerNow(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusConflict, sweepsdk.ErrorCodeCleanupRunning, "a cleanup pass is already running")
		return
	}

	slogx.FromContext(r.Context()).Info("manual cleanup pass finished",
		"pass_id", report.ID.String(),
		"removed", report.Removed(),
	)
	httpx.WriteJSON(w, http.StatusOK, newPassResult(report))
}
