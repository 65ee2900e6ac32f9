package sweepsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	ErrorCodeCleanupRunning  = "cleanup_running"
	ErrorCodeCleanupDisabled = "cleanup_disabled"
	ErrorCodeRateLimited     = "rate_limit_exceeded"
)

// APIError is a non-2xx response from the ops API.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("sweepsdk: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("sweepsdk: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// Is matches on the error code so callers can use errors.Is with the
// sentinels below.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

var (
	ErrCleanupRunning  = &APIError{Code: ErrorCodeCleanupRunning}
	ErrCleanupDisabled = &APIError{Code: ErrorCodeCleanupDisabled}
	ErrRateLimited     = &APIError{Code: ErrorCodeRateLimited}
)

func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Description = string(body)
	}
	return apiErr
}
