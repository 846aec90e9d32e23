// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"errors"
	"fmt"
)

// ErrMalformedSnapshot is the sentinel matched by every row-level parse
// failure. Use errors.As with *RowError for the offending location.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Table names used in RowError.
const (
	TableNodes = "nodes"
	TableEdges = "edges"
)

// RowError identifies the row and column that failed to parse.
type RowError struct {
	// Table is TableNodes or TableEdges.
	Table string

	// Row is the 1-based line number, counting the header as row 1.
	Row int

	// Column is the logical column name, empty for row-shape failures.
	Column string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("malformed snapshot: %s row %d: %v", e.Table, e.Row, e.Err)
	}
	return fmt.Sprintf("malformed snapshot: %s row %d column %q: %v", e.Table, e.Row, e.Column, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *RowError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMalformedSnapshot.
func (e *RowError) Is(target error) bool {
	return target == ErrMalformedSnapshot
}

// Causes carried in RowError.Err.
var (
	errMissingHeader   = errors.New("missing header row")
	errMissingColumn   = errors.New("required column absent from header")
	errEmptyField      = errors.New("required field is empty")
	errNotInteger      = errors.New("not a non-negative integer")
	errUnknownNodeType = errors.New("unknown node type")
)
