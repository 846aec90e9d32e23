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
	"sort"

	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of nodes a graph can hold.
	DefaultMaxNodes = 1_000_000

	// DefaultMaxEdges is the default maximum number of edges a graph can hold.
	// PrimeKG ships roughly 8M relationships.
	DefaultMaxEdges = 20_000_000

	// DefaultIndexSlack is how far the largest node index may exceed the node
	// count before the index space is rejected as too sparse.
	DefaultIndexSlack = 1 << 16
)

// Neighbor is one adjacency entry: the far end of an edge plus its relation.
type Neighbor struct {
	// Index is the neighbor's node index.
	Index int

	Relation        string
	DisplayRelation string

	// Outgoing is true when the owning node is the edge's source.
	// Self-loops are stored once, with Outgoing set.
	Outgoing bool
}

// GraphOptions configures graph construction limits.
type GraphOptions struct {
	// MaxNodes is the maximum number of nodes the graph can hold.
	// Default: 1,000,000
	MaxNodes int

	// MaxEdges is the maximum number of edges the graph can hold.
	// Default: 20,000,000
	MaxEdges int

	// IndexSlack bounds max(index)+1 - len(nodes). Default: 65,536
	IndexSlack int

	// Version is the snapshot version stamped on the graph.
	// Zero means "use the build time in milliseconds".
	Version uint64
}

// DefaultGraphOptions returns sensible defaults for graph construction.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxNodes:   DefaultMaxNodes,
		MaxEdges:   DefaultMaxEdges,
		IndexSlack: DefaultIndexSlack,
	}
}

// GraphOption is a functional option for configuring Build.
type GraphOption func(*GraphOptions)

// WithMaxNodes sets the maximum number of nodes the graph can hold.
func WithMaxNodes(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of edges the graph can hold.
func WithMaxEdges(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxEdges = n
	}
}

// WithIndexSlack sets how sparse the node index space may be.
func WithIndexSlack(n int) GraphOption {
	return func(o *GraphOptions) {
		o.IndexSlack = n
	}
}

// WithVersion stamps an explicit snapshot version on the graph.
func WithVersion(v uint64) GraphOption {
	return func(o *GraphOptions) {
		o.Version = v
	}
}

// Graph is the immutable index over one snapshot.
//
// Thread Safety:
//
//	Safe for concurrent reads. There are no mutating methods.
type Graph struct {
	// Version is the monotonically increasing snapshot version.
	Version uint64

	// BuiltAtMilli is the Unix timestamp in milliseconds when Build finished.
	BuiltAtMilli int64

	// nodes holds node rows in table order.
	nodes []snapshot.Node

	// slot maps node index to position in nodes, -1 when absent.
	slot []int32

	// adj holds adjacency per slot, in edge-table order.
	// All lists share one backing array.
	adj [][]Neighbor

	// byID maps external id to node indices, ascending.
	byID map[string][]int

	// byType maps NodeType ordinal to node indices, ascending.
	byType [][]int

	names *NameIndex

	// relationCounts counts edges per relation kind.
	relationCounts map[string]int

	// displayRelations lists the display labels seen per relation kind.
	displayRelations map[string][]string

	// sources counts nodes per provenance database.
	sources map[string]int

	edgeCount int
	selfLoops int
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph, self-loops included.
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// Node returns the node with the given index.
//
// Performs an O(1) bounds-checked slot lookup.
func (g *Graph) Node(index int) (snapshot.Node, bool) {
	if index < 0 || index >= len(g.slot) {
		return snapshot.Node{}, false
	}
	s := g.slot[index]
	if s < 0 {
		return snapshot.Node{}, false
	}
	return g.nodes[s], true
}

// HasNode reports whether index resolves to a node.
func (g *Graph) HasNode(index int) bool {
	return index >= 0 && index < len(g.slot) && g.slot[index] >= 0
}

// Neighbors returns the adjacency list of the node, in edge-table order.
//
// Each edge appears in the lists of both endpoints. Returns nil for unknown
// indices. The returned slice MUST NOT be modified.
func (g *Graph) Neighbors(index int) []Neighbor {
	if !g.HasNode(index) {
		return nil
	}
	return g.adj[g.slot[index]]
}

// Degree returns the number of adjacency entries of the node.
func (g *Graph) Degree(index int) int {
	return len(g.Neighbors(index))
}

// NodesByID returns the indices of nodes carrying the external id, ascending.
//
// External ids are not unique across provenance databases, so several nodes
// may match. The returned slice MUST NOT be modified.
func (g *Graph) NodesByID(id string) []int {
	return g.byID[id]
}

// NodesByType returns the indices of nodes of type t, ascending.
// The returned slice MUST NOT be modified.
func (g *Graph) NodesByType(t snapshot.NodeType) []int {
	o := t.Ordinal()
	if o < 0 {
		return nil
	}
	return g.byType[o]
}

// Names returns the case-folded name index.
func (g *Graph) Names() *NameIndex {
	return g.names
}

// RelationStat pairs a relation kind with its edge count.
type RelationStat struct {
	Relation         string   `json:"relation"`
	DisplayRelations []string `json:"display_relations,omitempty"`
	Count            int      `json:"count"`
}

// TypeStat pairs a node type with its node count.
type TypeStat struct {
	Type  snapshot.NodeType `json:"type"`
	Count int               `json:"count"`
}

// SourceStat pairs a provenance database with its node count.
type SourceStat struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// GraphStats contains statistics about the graph.
//
// Thread Safety: GraphStats is a value type with no internal state.
type GraphStats struct {
	Version      uint64         `json:"version"`
	BuiltAtMilli int64          `json:"built_at_milli"`
	NodeCount    int            `json:"node_count"`
	EdgeCount    int            `json:"edge_count"`
	SelfLoops    int            `json:"self_loops"`
	NodeTypes    []TypeStat     `json:"node_types"`
	Relations    []RelationStat `json:"relations"`
	Sources      []SourceStat   `json:"sources"`
}

// Stats computes summary statistics.
//
// Description:
//
//	Node types follow catalogue order. Relations and sources are sorted by
//	descending count, then name. Cost is O(types + relations + sources);
//	all counts are precomputed at build time.
func (g *Graph) Stats() GraphStats {
	stats := GraphStats{
		Version:      g.Version,
		BuiltAtMilli: g.BuiltAtMilli,
		NodeCount:    len(g.nodes),
		EdgeCount:    g.edgeCount,
		SelfLoops:    g.selfLoops,
		NodeTypes:    make([]TypeStat, 0, len(snapshot.NodeTypes)),
		Relations:    make([]RelationStat, 0, len(g.relationCounts)),
		Sources:      make([]SourceStat, 0, len(g.sources)),
	}

	for i, t := range snapshot.NodeTypes {
		stats.NodeTypes = append(stats.NodeTypes, TypeStat{Type: t, Count: len(g.byType[i])})
	}

	for rel, n := range g.relationCounts {
		stats.Relations = append(stats.Relations, RelationStat{
			Relation:         rel,
			DisplayRelations: g.displayRelations[rel],
			Count:            n,
		})
	}
	sort.Slice(stats.Relations, func(i, j int) bool {
		a, b := stats.Relations[i], stats.Relations[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Relation < b.Relation
	})

	for src, n := range g.sources {
		stats.Sources = append(stats.Sources, SourceStat{Source: src, Count: n})
	}
	sort.Slice(stats.Sources, func(i, j int) bool {
		a, b := stats.Sources[i], stats.Sources[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Source < b.Source
	})

	return stats
}
