package lark

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthentication is returned when credentials are missing, rejected,
	// or a token refresh fails
	ErrAuthentication = errors.New("lark authentication failed")

	// ErrTransport is returned for network-level failures (connect, timeout)
	ErrTransport = errors.New("lark transport error")

	// ErrHTTPStatus is returned when the API answers with a non-2xx status
	// and retries are exhausted
	ErrHTTPStatus = errors.New("lark http status error")

	// ErrProtocol is returned when a response body does not match any
	// recognized envelope shape
	ErrProtocol = errors.New("lark response shape not recognized")

	// ErrValidation is returned when the API accepts the request but rejects
	// a value in it (non-zero envelope code)
	ErrValidation = errors.New("lark rejected request")
)

// APIError carries the context of a failed API call.
type APIError struct {
	StatusCode int
	Code       int // envelope err_code / code, when present
	Message    string
	Method     string
	Path       string
	Err        error
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("lark api error: %s (code: %d, method: %s, path: %s)",
			e.Message, e.Code, e.Method, e.Path)
	}
	return fmt.Sprintf("lark api error: %s (status: %d, method: %s, path: %s)",
		e.Message, e.StatusCode, e.Method, e.Path)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// statusError builds an APIError for a non-2xx HTTP response.
func statusError(statusCode int, body, method, path string) *APIError {
	err := ErrHTTPStatus
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		err = ErrAuthentication
	}
	return &APIError{
		StatusCode: statusCode,
		Message:    body,
		Method:     method,
		Path:       path,
		Err:        err,
	}
}

// envelopeError builds an APIError for a 2xx response whose envelope carries
// a non-zero code. These are caller/data faults and are never retried.
func envelopeError(code int, msg, method, path string) *APIError {
	return &APIError{
		StatusCode: http.StatusOK,
		Code:       code,
		Message:    msg,
		Method:     method,
		Path:       path,
		Err:        ErrValidation,
	}
}

// IsRetryableError reports whether an error is worth another attempt:
// transport failures and 5xx responses. Envelope errors and 4xx are not.
func IsRetryableError(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// IsAuthError reports whether an error is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsValidationError reports whether the API rejected a submitted value.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
