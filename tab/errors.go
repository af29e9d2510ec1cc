package tab

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the Tabcorp API. Body holds the raw
// response payload for diagnosis; Message is the upstream error message when
// the payload carried one.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("tab api: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("tab api: request failed with status %d", e.StatusCode)
}

// IsNotFound reports whether the error is a 404 APIError.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// newAPIError extracts the upstream error message from a response body. The
// API nests messages under either "error.message" or "error_description"
// depending on the endpoint.
func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Body: body}

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Error.Message != "":
			apiErr.Message = payload.Error.Message
		case payload.ErrorDescription != "":
			apiErr.Message = payload.ErrorDescription
		case payload.Message != "":
			apiErr.Message = payload.Message
		}
	}
	return apiErr
}
