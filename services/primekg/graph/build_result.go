// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import "time"

// BuildStats contains statistics about a build operation.
type BuildStats struct {
	// NodeCount is the number of nodes indexed.
	NodeCount int

	// EdgeCount is the number of edges indexed, self-loops included.
	EdgeCount int

	// SelfLoops is the number of edges whose endpoints coincide.
	SelfLoops int

	// RelationKinds is the number of distinct relation kinds.
	RelationKinds int

	// NameKeys and TokenKeys are the name index vocabulary sizes.
	NameKeys  int
	TokenKeys int

	// DurationMilli is the total build time in milliseconds.
	DurationMilli int64
}

// BuildResult contains the outcome of a build operation.
type BuildResult struct {
	// Version is the snapshot version stamped on the graph.
	Version uint64

	// Stats contains build statistics.
	Stats BuildStats
}

// Duration returns the build time as a time.Duration.
func (r *BuildResult) Duration() time.Duration {
	return time.Duration(r.Stats.DurationMilli) * time.Millisecond
}
