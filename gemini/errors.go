package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrRateLimited marks a 429; retryable once the quota window passes.
	ErrRateLimited = errors.New("rate limited")

	// ErrTooLarge marks a payload the provider rejected for size; not
	// retryable without shrinking the request.
	ErrTooLarge = errors.New("request too large")
)

// APIError is a structured error from the Generative Language API.
type APIError struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error (code %d, status %s): %s", e.Code, e.Status, e.Message)
}

type errorResponse struct {
	Error *APIError `json:"error"`
}

// classifyStatus turns a non-200 response into a sentinel-wrapped error
// where the failure class matters to callers, or an APIError otherwise.
func classifyStatus(code int, body []byte) error {
	apiErr := &APIError{Code: code, Message: http.StatusText(code)}
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != nil {
		apiErr = er.Error
		if apiErr.Code == 0 {
			apiErr.Code = code
		}
	}

	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	case code == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", ErrTooLarge, apiErr.Message)
	case code == http.StatusBadRequest && mentionsSize(apiErr.Message):
		return fmt.Errorf("%w: %s", ErrTooLarge, apiErr.Message)
	default:
		return apiErr
	}
}

func mentionsSize(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "too large") || strings.Contains(lower, "exceeds the maximum")
}
