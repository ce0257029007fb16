package backend

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned synchronously, before any network call,
// when an operation requires a session and none is present.
var ErrNotAuthenticated = errors.New("not authenticated")

// APIError is a failed response from the hosted backend.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: %s (%s, HTTP %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("backend: %s (HTTP %d)", e.Message, e.Status)
}

// IsNotFound reports whether err is an APIError with HTTP 404 status.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}
