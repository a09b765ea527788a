package models

import (
	"errors"
	"fmt"
)

// ErrUnknownCategory is returned when a caller asks for a category outside
// the closed set in Categories.
var ErrUnknownCategory = errors.New("category not supported")

// FetchError describes a failed page fetch. Transient failures (network
// errors, timeouts, 429, 5xx) are retried by the fetcher before they
// surface; permanent ones propagate immediately.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s failure (status %d): %v", e.URL, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s failure: %v", e.URL, kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DiscoveryError is surfaced only when every page of a discovery request
// failed. It carries the request parameters for diagnostics.
type DiscoveryError struct {
	Kind  string
	Value string
	Pages int
	Err   error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s %q: all %d pages failed: %v", e.Kind, e.Value, e.Pages, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }
