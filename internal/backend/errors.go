package backend

import (
	"errors"
	"fmt"
)

// Fallback messages used when nothing more specific is available.
const (
	msgRequestFailed = "API request failed"
	msgUnknownError  = "An unknown error occurred"
)

// Static errors.
var (
	ErrTextEmpty  = errors.New("text cannot be empty")
	ErrImageEmpty = errors.New("image cannot be empty")
)

// RequestError describes a call that did not produce a usable response body:
// either the transport failed (Err is set, Status is zero) or the backend
// answered with a non-2xx status (Status is set, Detail holds its {detail}).
type RequestError struct {
	Endpoint string
	Status   int
	Detail   string
	Err      error
}

func (e *RequestError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
	}

	return msgRequestFailed
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Message picks the most specific user-facing text for a failed call:
// the server-provided detail, else the transport error, else a generic
// fallback.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Detail != "" {
			return reqErr.Detail
		}

		if reqErr.Err != nil && reqErr.Err.Error() != "" {
			return reqErr.Err.Error()
		}

		if reqErr.Status != 0 {
			return msgRequestFailed
		}

		return msgUnknownError
	}

	if err.Error() != "" {
		return err.Error()
	}

	return msgUnknownError
}
