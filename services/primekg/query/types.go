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
	"fmt"

	"github.com/AleutianAI/primekg/services/primekg/graph"
	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

// Query limits.
const (
	// DefaultSearchLimit is the default number of search results.
	DefaultSearchLimit = 10

	// MaxSearchLimit caps any requested search limit.
	MaxSearchLimit = 1000

	// DefaultRelationshipLimit is the default number of relationships and
	// disease genes returned.
	DefaultRelationshipLimit = 50

	// MaxRelationshipLimit caps any requested relationship limit.
	MaxRelationshipLimit = 10000

	// DefaultMaxPathLength is the default maximum path length in edges.
	DefaultMaxPathLength = 3

	// MaxPathLength is the hard cap on path length. Larger requests clamp.
	MaxPathLength = 6

	// DefaultMaxPaths is the default cap on returned paths.
	DefaultMaxPaths = 50

	// DefaultMaxFrontier is the default cap on partial paths per BFS depth.
	DefaultMaxFrontier = 4096

	// DefaultMaxTierCandidates bounds how many postings one search tier may
	// collect before it is cut off.
	DefaultMaxTierCandidates = 20000

	// StatisticsTopRelations is the number of relation kinds listed by
	// Statistics.
	StatisticsTopRelations = 20

	// contextCheckInterval is how often path search checks the context.
	contextCheckInterval = 1024
)

// Options configures an Engine.
type Options struct {
	// Relations selects qualifying drug-target and disease-gene edges.
	Relations RelationPolicy

	// MaxPaths caps paths returned by FindDrugDiseasePaths.
	MaxPaths int

	// MaxFrontier caps partial paths kept per BFS depth.
	MaxFrontier int

	// MaxTierCandidates caps postings collected per search tier.
	MaxTierCandidates int

	// SubstringFallback enables the substring search tier.
	SubstringFallback bool
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{
		Relations:         DefaultRelationPolicy(),
		MaxPaths:          DefaultMaxPaths,
		MaxFrontier:       DefaultMaxFrontier,
		MaxTierCandidates: DefaultMaxTierCandidates,
		SubstringFallback: true,
	}
}

// Option is a functional option for configuring an Engine.
type Option func(*Options)

// WithRelationPolicy replaces the qualifying relation sets.
func WithRelationPolicy(p RelationPolicy) Option {
	return func(o *Options) {
		o.Relations = p
	}
}

// WithMaxPaths sets the path result cap. If n <= 0, uses default (50).
func WithMaxPaths(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			n = DefaultMaxPaths
		}
		o.MaxPaths = n
	}
}

// WithMaxFrontier sets the per-depth frontier cap. If n <= 0, uses
// default (4096).
func WithMaxFrontier(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			n = DefaultMaxFrontier
		}
		o.MaxFrontier = n
	}
}

// WithMaxTierCandidates sets the per-tier search candidate cap.
func WithMaxTierCandidates(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			n = DefaultMaxTierCandidates
		}
		o.MaxTierCandidates = n
	}
}

// WithSubstringFallback toggles the substring search tier.
func WithSubstringFallback(enabled bool) Option {
	return func(o *Options) {
		o.SubstringFallback = enabled
	}
}

// clampLimit applies the default for n <= 0 and caps n at max.
func clampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// MatchTier is the search tier a result was found in. Lower ranks higher.
type MatchTier int

const (
	TierExact MatchTier = iota
	TierPrefix
	TierToken
	TierSubstring
)

// String returns the tier name.
func (t MatchTier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPrefix:
		return "prefix"
	case TierToken:
		return "token"
	case TierSubstring:
		return "substring"
	default:
		return "unknown"
	}
}

// MarshalText encodes the tier by name.
func (t MatchTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *MatchTier) UnmarshalText(text []byte) error {
	for tier := TierExact; tier <= TierSubstring; tier++ {
		if tier.String() == string(text) {
			*t = tier
			return nil
		}
	}
	return fmt.Errorf("unknown match tier %q", text)
}

// SearchMatch is one search hit.
type SearchMatch struct {
	snapshot.Node
	Tier MatchTier `json:"tier"`
}

// SearchResult is the output of Search.
type SearchResult struct {
	Query   string        `json:"query"`
	Matches []SearchMatch `json:"matches"`

	// Truncated is true when more matches exist beyond the limit.
	Truncated bool `json:"truncated"`

	// Version identifies the snapshot the result was computed on.
	Version uint64 `json:"version"`
}

// Nodes returns the matched nodes in rank order.
func (r *SearchResult) Nodes() []snapshot.Node {
	out := make([]snapshot.Node, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Node
	}
	return out
}

// Direction strings used in Relationship.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// Relationship is one adjacency entry resolved to its neighbor node.
type Relationship struct {
	Neighbor        snapshot.Node `json:"neighbor"`
	Relation        string        `json:"relation"`
	DisplayRelation string        `json:"display_relation"`

	// Direction is the edge orientation as stored in the source table,
	// relative to the queried node.
	Direction string `json:"direction"`
}

// RelationshipsResult is the output of GetNodeRelationships.
type RelationshipsResult struct {
	Node          snapshot.Node  `json:"node"`
	Relationships []Relationship `json:"relationships"`

	// Total is the number of matching entries before the limit.
	Total     int    `json:"total"`
	Truncated bool   `json:"truncated"`
	Version   uint64 `json:"version"`
}

// Association is a gene/protein reached from a drug or disease through a
// qualifying relation.
type Association struct {
	Node            snapshot.Node `json:"node"`
	Relation        string        `json:"relation"`
	DisplayRelation string        `json:"display_relation"`

	// Rank is the position of the matched rule in the configured set.
	Rank int `json:"rank"`
}

// TargetsResult is the output of FindDrugTargets.
type TargetsResult struct {
	Drug    snapshot.Node `json:"drug"`
	Targets []Association `json:"targets"`
	Version uint64        `json:"version"`
}

// GenesResult is the output of FindDiseaseGenes.
type GenesResult struct {
	Disease   snapshot.Node `json:"disease"`
	Genes     []Association `json:"genes"`
	Total     int           `json:"total"`
	Truncated bool          `json:"truncated"`
	Version   uint64        `json:"version"`
}

// PathStep is one node on a path. Relation labels the edge to the next
// step and is empty on the final step.
type PathStep struct {
	Node            snapshot.Node `json:"node"`
	Relation        string        `json:"relation,omitempty"`
	DisplayRelation string        `json:"display_relation,omitempty"`
}

// Path is a simple path from drug to disease.
type Path struct {
	Steps []PathStep `json:"steps"`
}

// Length returns the number of edges on the path.
func (p Path) Length() int {
	if len(p.Steps) == 0 {
		return 0
	}
	return len(p.Steps) - 1
}

// PathsResult is the output of FindDrugDiseasePaths.
type PathsResult struct {
	Drug    snapshot.Node `json:"drug"`
	Disease snapshot.Node `json:"disease"`

	// MaxPathLength is the effective bound after defaulting and clamping.
	MaxPathLength int    `json:"max_path_length"`
	Paths         []Path `json:"paths"`

	// Truncated is true when the frontier or result cap cut the search
	// short. Paths may then be missing.
	Truncated bool   `json:"truncated"`
	Version   uint64 `json:"version"`
}

// RelationCount is a per-relation neighbor count.
type RelationCount struct {
	Relation string `json:"relation"`
	Count    int    `json:"count"`
}

// NodeDetails is the output of GetNodeDetails.
type NodeDetails struct {
	Node      snapshot.Node    `json:"node"`
	Degree    int              `json:"degree"`
	Relations []RelationCount  `json:"relations"`
	Neighbors []graph.TypeStat `json:"neighbor_types"`
	Version   uint64           `json:"version"`
}

// Schema describes the vocabulary of the served snapshot.
type Schema struct {
	NodeTypes []graph.TypeStat     `json:"node_types"`
	Relations []graph.RelationStat `json:"relations"`
	Sources   []graph.SourceStat   `json:"sources"`

	// DrugTargetRelations and DiseaseGeneRelations echo the relation policy.
	DrugTargetRelations  []string `json:"drug_target_relations"`
	DiseaseGeneRelations []string `json:"disease_gene_relations"`

	Version uint64 `json:"version"`
}

// Statistics summarizes the served snapshot.
type Statistics struct {
	NodeCount     int                  `json:"node_count"`
	EdgeCount     int                  `json:"edge_count"`
	SelfLoops     int                  `json:"self_loops"`
	NodeTypes     []graph.TypeStat     `json:"node_types"`
	TopRelations  []graph.RelationStat `json:"top_relations"`
	RelationKinds int                  `json:"relation_kinds"`
	Version       uint64               `json:"version"`
	BuiltAtMilli  int64                `json:"built_at_milli"`
}
