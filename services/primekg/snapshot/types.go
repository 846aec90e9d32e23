// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot reads PrimeKG node and edge tables into typed records.
//
// A snapshot is one complete node+edge dataset. The parser is a pure
// transform from byte streams to records: it validates row shape, index
// numeracy and required fields, but it does NOT check that edge endpoints
// exist. Referential integrity is the graph package's job.
//
// # Formats
//
// Both tables carry a header row and may be comma- or tab-delimited (the
// delimiter is sniffed from the header line). Columns are matched by name,
// so extra columns are ignored and column order is free:
//
//	nodes: index, id, type, name, source
//	edges: relation, display_relation, source_index, target_index
//
// The PrimeKG release names (node_index, node_id, x_index, y_index, ...)
// are accepted as aliases.
package snapshot

import "strings"

// NodeType is the entity category of a node.
type NodeType string

const (
	NodeTypeGeneProtein       NodeType = "gene_protein"
	NodeTypeDrug              NodeType = "drug"
	NodeTypeDisease           NodeType = "disease"
	NodeTypeBiologicalProcess NodeType = "biological_process"
	NodeTypeMolecularFunction NodeType = "molecular_function"
	NodeTypeCellularComponent NodeType = "cellular_component"
	NodeTypePathway           NodeType = "pathway"
	NodeTypeAnatomy           NodeType = "anatomy"
	NodeTypePhenotype         NodeType = "phenotype"
	NodeTypeExposure          NodeType = "exposure"
	NodeTypeUnknown           NodeType = ""
)

// NodeTypes lists every known node type in catalogue order.
var NodeTypes = []NodeType{
	NodeTypeGeneProtein,
	NodeTypeDrug,
	NodeTypeDisease,
	NodeTypeBiologicalProcess,
	NodeTypeMolecularFunction,
	NodeTypeCellularComponent,
	NodeTypePathway,
	NodeTypeAnatomy,
	NodeTypePhenotype,
	NodeTypeExposure,
}

// nodeTypeAliases maps normalized source labels to node types.
// PrimeKG ships "gene/protein" and "effect/phenotype".
var nodeTypeAliases = map[string]NodeType{
	"gene_protein":       NodeTypeGeneProtein,
	"gene":               NodeTypeGeneProtein,
	"protein":            NodeTypeGeneProtein,
	"drug":               NodeTypeDrug,
	"disease":            NodeTypeDisease,
	"biological_process": NodeTypeBiologicalProcess,
	"molecular_function": NodeTypeMolecularFunction,
	"cellular_component": NodeTypeCellularComponent,
	"pathway":            NodeTypePathway,
	"anatomy":            NodeTypeAnatomy,
	"phenotype":          NodeTypePhenotype,
	"effect_phenotype":   NodeTypePhenotype,
	"exposure":           NodeTypeExposure,
}

// ParseNodeType normalizes a source label to a NodeType.
//
// Matching is case-insensitive and treats '/', '-' and ' ' as '_'.
// Returns false for labels outside the catalogue.
func ParseNodeType(label string) (NodeType, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.NewReplacer("/", "_", "-", "_", " ", "_").Replace(key)
	t, ok := nodeTypeAliases[key]
	return t, ok
}

// String returns the canonical name of the type.
func (t NodeType) String() string {
	if t == NodeTypeUnknown {
		return "unknown"
	}
	return string(t)
}

// Ordinal returns the catalogue position of t, or -1 if unknown.
// Used for array-indexed type lookups.
func (t NodeType) Ordinal() int {
	for i, nt := range NodeTypes {
		if nt == t {
			return i
		}
	}
	return -1
}

// Node is one entity row of the node table.
type Node struct {
	// Index is the dense integer identity, unique within a snapshot.
	Index int `json:"index"`

	// ID is the identifier in the provenance database.
	// Not unique across sources.
	ID string `json:"id"`

	Type   NodeType `json:"type"`
	Name   string   `json:"name"`
	Source string   `json:"source"`
}

// Edge is one relationship row of the edge table.
type Edge struct {
	// Relation is the machine-readable relation kind, e.g. "drug_protein".
	Relation string `json:"relation"`

	// DisplayRelation is the human label, e.g. "target".
	DisplayRelation string `json:"display_relation"`

	SourceIndex int `json:"source_index"`
	TargetIndex int `json:"target_index"`
}

// Snapshot is the parser output: every node and edge row in file order.
type Snapshot struct {
	Nodes []Node
	Edges []Edge
}
