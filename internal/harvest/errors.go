package harvest

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable means the loader registry never appeared.
	ErrSourceUnavailable = errors.New("loader registry not found")
	// ErrStabilizationExhausted means consecutive polls never agreed.
	ErrStabilizationExhausted = errors.New("stabilization failed")
	// ErrEmptyResult means discovery finished with zero resources.
	ErrEmptyResult = errors.New("no JavaScript resources found matching the required pattern")
	// ErrTransformTimeout means a worker job exceeded its deadline.
	ErrTransformTimeout = errors.New("transform timed out")
	// ErrBodyTooLarge means a response exceeded the configured size cap.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
	// ErrPoolTerminated is returned for work rejected by a terminated worker pool.
	ErrPoolTerminated = errors.New("worker pool terminated")
)

// FetchError reports a non-2xx response for a resource.
type FetchError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// NewFetchError builds a FetchError from a response.
func NewFetchError(resp Response) *FetchError {
	return &FetchError{URL: resp.URL, StatusCode: resp.StatusCode, Status: resp.StatusText()}
}

// TransformError wraps a failure reported by the formatting engine.
type TransformError struct {
	Message string
}

func (e *TransformError) Error() string {
	return "transform failed: " + e.Message
}
