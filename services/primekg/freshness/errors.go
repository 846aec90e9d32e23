// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package freshness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors for the freshness manager.
var (
	// ErrFetchFailed is matched by every *FetchError.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrAlreadyStarted is returned by Start on a running manager.
	ErrAlreadyStarted = errors.New("manager already started")

	// ErrNoSources is returned when a refresh runs without source URLs.
	ErrNoSources = errors.New("no snapshot sources configured")

	// ErrNoCache is returned by WarmStart when the data directory holds no
	// cached snapshot.
	ErrNoCache = errors.New("no cached snapshot")

	// ErrCacheMismatch is returned by WarmStart when the snapshot directory
	// named by the state file does not match the recorded checksum.
	ErrCacheMismatch = errors.New("cached snapshot does not match state file")
)

// FetchErrorKind classifies a download failure.
type FetchErrorKind string

const (
	FetchTimeout   FetchErrorKind = "timeout"
	FetchNotFound  FetchErrorKind = "not_found"
	FetchTransport FetchErrorKind = "transport"
)

// FetchError reports a failed download. A timeout is a fetch failure like
// any other.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// AsFetchError normalizes a downloader error into a *FetchError.
//
// Existing *FetchError values pass through. Deadline errors become
// FetchTimeout, missing files FetchNotFound, anything else FetchTransport.
// Returns nil for a nil error.
func AsFetchError(url string, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := FetchTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = FetchTimeout
	case errors.Is(err, fs.ErrNotExist):
		kind = FetchNotFound
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}
