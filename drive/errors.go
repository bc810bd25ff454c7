package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrFolderNotFound indicates a folder path did not resolve to an existing
// folder.
var ErrFolderNotFound = errors.New("drive: folder not found")

// APIError is a structured error response from the storage API.
//
// It exposes the HTTP status code to the resilience classifier, so a 503
// retries while a 403 (other than a rate-limit reason) fails fast.
type APIError struct {
	// Code is the HTTP status code of the response.
	Code int

	// Reason is the provider-specific error reason, e.g. "rateLimitExceeded".
	Reason string

	// Message is the human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("drive: API error %d (%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("drive: API error %d: %s", e.Code, e.Message)
}

// StatusCode returns the HTTP status code for retry classification.
func (e *APIError) StatusCode() int { return e.Code }

// IsNotFound reports whether err is an API error with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// apiErrorBody is the provider's error envelope.
type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// parseAPIError builds an APIError from a non-2xx response. The body read is
// capped since error envelopes are small.
func parseAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Code: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		apiErr.Message = resp.Status
		return apiErr
	}

	var body apiErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Message == "" {
		apiErr.Message = string(data)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	apiErr.Message = body.Error.Message
	if len(body.Error.Errors) > 0 {
		apiErr.Reason = body.Error.Errors[0].Reason
	}
	return apiErr
}
