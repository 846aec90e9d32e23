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

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

// contextCheckInterval is how many rows are processed between context checks.
const contextCheckInterval = 1 << 16

// Build constructs an immutable Graph from a parsed snapshot.
//
// Description:
//
//	Runs in O(nodes + edges) for slot assignment and adjacency, plus a sort
//	of the distinct name and token vocabularies. Adjacency is built in two
//	passes (degree count, then fill) into one shared backing array, so each
//	edge appears in both endpoints' lists in edge-table order. Self-loops
//	are stored once.
//
// Inputs:
//
//	ctx - Context for cancellation, checked every 65,536 rows.
//	snap - Parser output. Not retained except for node rows, which are
//	       copied by value.
//	opts - Capacity limits and version stamp.
//
// Outputs:
//
//	*Graph - The frozen graph.
//	*BuildResult - Build statistics.
//	error - Non-nil if the snapshot is inconsistent or the build was cancelled.
//
// Errors:
//
//	*NodeError (ErrDuplicateNode) - Two rows share a node index
//	*EdgeError (ErrNodeNotFound) - An edge endpoint does not resolve
//	ErrSparseIndex - Index space too sparse for dense addressing
//	ErrEmptySnapshot - No nodes
//	ErrMaxNodesExceeded, ErrMaxEdgesExceeded - Capacity limits
//	ErrBuildCancelled - Context cancelled
//
//	All integrity failures match ErrInconsistentSnapshot.
func Build(ctx context.Context, snap *snapshot.Snapshot, opts ...GraphOption) (*Graph, *BuildResult, error) {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}

	start := time.Now()
	ctx, span := startBuildSpan(ctx, len(snap.Nodes), len(snap.Edges))
	defer span.End()

	g, err := build(ctx, snap, options)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordBuildMetrics(ctx, duration, 0, 0, false)
		return nil, nil, err
	}

	names, tokens := g.names.KeyCount()
	result := &BuildResult{
		Version: g.Version,
		Stats: BuildStats{
			NodeCount:     len(g.nodes),
			EdgeCount:     g.edgeCount,
			SelfLoops:     g.selfLoops,
			RelationKinds: len(g.relationCounts),
			NameKeys:      names,
			TokenKeys:     tokens,
			DurationMilli: duration.Milliseconds(),
		},
	}

	setBuildSpanResult(span, g.Version, len(g.nodes), g.edgeCount)
	recordBuildMetrics(ctx, duration, len(g.nodes), g.edgeCount, true)
	return g, result, nil
}

func build(ctx context.Context, snap *snapshot.Snapshot, options GraphOptions) (*Graph, error) {
	nodes, edges := snap.Nodes, snap.Edges

	if len(nodes) == 0 {
		return nil, ErrEmptySnapshot
	}
	if len(nodes) > options.MaxNodes {
		return nil, fmt.Errorf("%w: %d > %d", ErrMaxNodesExceeded, len(nodes), options.MaxNodes)
	}
	if len(edges) > options.MaxEdges {
		return nil, fmt.Errorf("%w: %d > %d", ErrMaxEdgesExceeded, len(edges), options.MaxEdges)
	}

	// Slot assignment.
	maxIndex := 0
	for _, n := range nodes {
		if n.Index > maxIndex {
			maxIndex = n.Index
		}
	}
	if maxIndex+1-len(nodes) > options.IndexSlack {
		return nil, fmt.Errorf("%w: %w: max index %d for %d nodes",
			ErrInconsistentSnapshot, ErrSparseIndex, maxIndex, len(nodes))
	}

	slot := make([]int32, maxIndex+1)
	for i := range slot {
		slot[i] = -1
	}
	for i, n := range nodes {
		if n.Index < 0 {
			return nil, &NodeError{Position: i, Index: n.Index, Err: ErrInvalidNode}
		}
		if slot[n.Index] >= 0 {
			return nil, &NodeError{Position: i, Index: n.Index, Err: ErrDuplicateNode}
		}
		slot[n.Index] = int32(i)
	}

	resolve := func(index int) (int32, bool) {
		if index < 0 || index > maxIndex {
			return -1, false
		}
		s := slot[index]
		return s, s >= 0
	}

	// Pass 1: validate endpoints and count degrees.
	degree := make([]int32, len(nodes))
	relationCounts := make(map[string]int)
	displaySeen := make(map[string]map[string]struct{})
	selfLoops := 0

	for i, e := range edges {
		if i%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrBuildCancelled, err)
			}
		}

		s, okS := resolve(e.SourceIndex)
		t, okT := resolve(e.TargetIndex)
		if !okS || !okT {
			return nil, &EdgeError{
				Position:    i,
				SourceIndex: e.SourceIndex,
				TargetIndex: e.TargetIndex,
				Relation:    e.Relation,
				Err:         ErrNodeNotFound,
			}
		}

		degree[s]++
		if s != t {
			degree[t]++
		} else {
			selfLoops++
		}

		relationCounts[e.Relation]++
		ds, ok := displaySeen[e.Relation]
		if !ok {
			ds = make(map[string]struct{})
			displaySeen[e.Relation] = ds
		}
		ds[e.DisplayRelation] = struct{}{}
	}

	// Pass 2: carve per-node lists out of one backing array and fill them.
	total := 0
	for _, d := range degree {
		total += int(d)
	}
	backing := make([]Neighbor, total)
	adj := make([][]Neighbor, len(nodes))
	off := 0
	for i, d := range degree {
		adj[i] = backing[off : off : off+int(d)]
		off += int(d)
	}

	for i, e := range edges {
		if i%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrBuildCancelled, err)
			}
		}

		s := slot[e.SourceIndex]
		t := slot[e.TargetIndex]
		adj[s] = append(adj[s], Neighbor{
			Index:           e.TargetIndex,
			Relation:        e.Relation,
			DisplayRelation: e.DisplayRelation,
			Outgoing:        true,
		})
		if s != t {
			adj[t] = append(adj[t], Neighbor{
				Index:           e.SourceIndex,
				Relation:        e.Relation,
				DisplayRelation: e.DisplayRelation,
			})
		}
	}

	// Secondary indexes, walked in ascending node index so postings are sorted.
	byType := make([][]int, len(snapshot.NodeTypes))
	byID := make(map[string][]int, len(nodes))
	sources := make(map[string]int)
	names := newNameIndexBuilder(len(nodes))

	for index, s := range slot {
		if s < 0 {
			continue
		}
		n := &nodes[s]
		if o := n.Type.Ordinal(); o >= 0 {
			byType[o] = append(byType[o], index)
		}
		byID[n.ID] = append(byID[n.ID], index)
		names.add(index, n.Name, n.ID)
		if n.Source != "" {
			sources[n.Source]++
		}
	}

	displayRelations := make(map[string][]string, len(displaySeen))
	for rel, set := range displaySeen {
		labels := make([]string, 0, len(set))
		for l := range set {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		displayRelations[rel] = labels
	}

	stored := make([]snapshot.Node, len(nodes))
	copy(stored, nodes)

	builtAt := time.Now().UnixMilli()
	version := options.Version
	if version == 0 {
		version = uint64(builtAt)
	}

	return &Graph{
		Version:          version,
		BuiltAtMilli:     builtAt,
		nodes:            stored,
		slot:             slot,
		adj:              adj,
		byID:             byID,
		byType:           byType,
		names:            names.finish(),
		relationCounts:   relationCounts,
		displayRelations: displayRelations,
		sources:          sources,
		edgeCount:        len(edges),
		selfLoops:        selfLoops,
	}, nil
}
