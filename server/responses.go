package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drivebridge/drivebridge/auth"
	"github.com/drivebridge/drivebridge/drive"
	"github.com/drivebridge/drivebridge/resilience"
)

// errorBody is the single error envelope every endpoint uses.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// writeError sends the error envelope with the given status.
func writeError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, errorBody{Error: errorDetail{Type: errType, Message: message}})
}

// writeStorageError maps a storage-layer failure onto an HTTP response.
//
// Guard rejections (open breaker, rate-limit timeout, full bulkhead) answer
// 503 so clients back off. Retry exhaustion answers 502: the upstream was
// reachable but kept failing. A permanent upstream rejection with a 4xx
// status passes that status through, since retrying the identical request
// cannot help the caller either.
func writeStorageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthorized), errors.Is(err, auth.ErrNoRefreshToken):
		writeError(c, http.StatusUnauthorized, "not_authorized",
			"storage access is not authorized; complete the authorization flow first")
		return
	case errors.Is(err, resilience.ErrBulkheadFull):
		writeError(c, http.StatusServiceUnavailable, "bulkhead_full",
			"too many concurrent uploads; retry shortly")
		return
	}

	switch resilience.Outcome(err) {
	case resilience.OutcomeCircuitOpen:
		writeError(c, http.StatusServiceUnavailable, "circuit_open",
			"storage backend is unavailable; retry later")
	case resilience.OutcomeRateLimitTimeout:
		writeError(c, http.StatusServiceUnavailable, "rate_limit_timeout",
			"request timed out waiting for rate limit capacity")
	case resilience.OutcomeRetryExhausted:
		writeError(c, http.StatusBadGateway, "retry_exhausted", err.Error())
	case resilience.OutcomeFatal:
		status := http.StatusBadGateway
		var apiErr *drive.APIError
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
			status = apiErr.Code
		}
		writeError(c, status, "fatal_failure", err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal", err.Error())
	}
}
