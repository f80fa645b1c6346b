package api

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrUnauthorized = errors.New("api: unauthorized")

// FetchError is returned for any failed REST call other than an upload.
// StatusCode is zero when no response was received.
type FetchError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("api: %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Unauthorized reports an expired or rejected bearer token.
func (e *FetchError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

type UploadError struct {
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api: upload: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("api: upload: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// statusError turns a non-2xx response body into an error, preferring the
// server's own message.
func statusError(status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if msg := serverMessage(body); msg != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return ErrUnauthorized
	}
	if msg := serverMessage(body); msg != "" {
		return errors.New(msg)
	}
	return errors.New(http.StatusText(status))
}
