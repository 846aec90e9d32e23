// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"errors"
	"fmt"
)

// Sentinel errors for query operations.
var (
	// ErrNotFound is matched when a query argument does not resolve to an
	// entity. It is never returned for empty-but-valid result sets.
	ErrNotFound = errors.New("not found")

	// ErrNoSnapshot is returned when no graph index has been loaded yet.
	ErrNoSnapshot = errors.New("no snapshot loaded")

	// ErrEmptyQuery is returned when a required name or id argument is blank.
	ErrEmptyQuery = errors.New("empty query")
)

// Entity kinds reported in EntityError.
const (
	EntityNode    = "node"
	EntityDrug    = "drug"
	EntityDisease = "disease"
)

// EntityError reports an argument that did not resolve.
type EntityError struct {
	// Kind is EntityNode, EntityDrug or EntityDisease.
	Kind string

	// Query is the argument as given by the caller.
	Query string
}

// Error implements the error interface.
func (e *EntityError) Error() string {
	return fmt.Sprintf("%s not found: %q", e.Kind, e.Query)
}

// Is reports whether target is ErrNotFound.
func (e *EntityError) Is(target error) bool {
	return target == ErrNotFound
}
