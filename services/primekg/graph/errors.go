// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the immutable PrimeKG graph index.
//
// A Graph is built once from a parsed snapshot and is never mutated
// afterwards. It holds:
//
//   - node storage addressed by the dense node index
//   - an id index (external id to node indices)
//   - a case-folded name index (full names and whitespace tokens)
//   - a type index
//   - undirected adjacency lists in edge-file order
//
// # Thread Safety
//
// A Graph returned by Build is read-only and safe for concurrent use by any
// number of goroutines. Slices returned by accessors share the graph's
// storage and MUST NOT be modified by callers.
//
// # Lifecycle
//
//  1. Parse tables with the snapshot package
//  2. Build with Build(ctx, snap, opts...)
//  3. Publish the *Graph through an atomic reference (see freshness)
//  4. Drop the reference; the garbage collector reclaims it once the last
//     in-flight reader returns
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph construction.
var (
	// ErrInconsistentSnapshot is matched by every referential integrity
	// failure between the node and edge tables.
	ErrInconsistentSnapshot = errors.New("inconsistent snapshot")

	// ErrNodeNotFound is returned when an edge references a node index that
	// is not present in the node table.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when two node rows share an index.
	ErrDuplicateNode = errors.New("duplicate node index")

	// ErrInvalidNode is returned for node rows with a negative index.
	ErrInvalidNode = errors.New("invalid node")

	// ErrSparseIndex is returned when node indices are too sparse for dense
	// slot addressing.
	ErrSparseIndex = errors.New("node index space too sparse")

	// ErrEmptySnapshot is returned when the snapshot holds no nodes.
	ErrEmptySnapshot = errors.New("snapshot has no nodes")

	// ErrMaxNodesExceeded is returned when the snapshot exceeds the
	// configured node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxEdgesExceeded is returned when the snapshot exceeds the
	// configured edge capacity.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")

	// ErrBuildCancelled is returned when a build is cancelled via context.
	ErrBuildCancelled = errors.New("build cancelled")
)

// NodeError reports a node row that breaks snapshot integrity.
type NodeError struct {
	// Position is the 0-based row position in the node table.
	Position int

	// Index is the node index carried by the row.
	Index int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("inconsistent snapshot: node row %d (index %d): %v", e.Position, e.Index, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInconsistentSnapshot.
func (e *NodeError) Is(target error) bool {
	return target == ErrInconsistentSnapshot
}

// EdgeError reports an edge row whose endpoints do not resolve.
type EdgeError struct {
	// Position is the 0-based row position in the edge table.
	Position int

	// SourceIndex and TargetIndex are the endpoints carried by the row.
	SourceIndex int
	TargetIndex int

	// Relation is the relation kind of the row.
	Relation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *EdgeError) Error() string {
	return fmt.Sprintf("inconsistent snapshot: edge row %d %d -[%s]-> %d: %v",
		e.Position, e.SourceIndex, e.Relation, e.TargetIndex, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *EdgeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInconsistentSnapshot.
func (e *EdgeError) Is(target error) bool {
	return target == ErrInconsistentSnapshot
}
