package sweepsdk

import "time"

// HealthResponse is returned by /livez and /readyz. Checks is only set by
// /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Store   string `json:"store"`
	Cleanup string `json:"cleanup"` // idle, running or disabled
}

// KindResult is the outcome for one record kind within a pass.
type KindResult struct {
	Kind    string `json:"kind"`
	Removed int    `json:"removed"`
	Batches int    `json:"batches"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// PassResult describes one finished cleanup pass.
type PassResult struct {
	ID         string       `json:"id"`
	Trigger    string       `json:"trigger"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	DurationMS int64        `json:"duration_ms"`
	Removed    int          `json:"removed"`
	Kinds      []KindResult `json:"kinds"`
	Error      string       `json:"error,omitempty"`
}

// Failed reports whether any kind in the pass failed.
func (p PassResult) Failed() bool { return p.Error != "" }

type StatusResponse struct {
	State    string      `json:"state"`
	LastPass *PassResult `json:"last_pass"`
}
