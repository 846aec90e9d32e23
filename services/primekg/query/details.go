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
	"context"
	"sort"
	"time"

	"github.com/AleutianAI/primekg/services/primekg/graph"
	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

// GetNodeDetails returns a node with neighbor counts per relation kind and
// per neighbor type.
//
// nodeID resolves by external id first, then by exact name. Relation counts
// are sorted by descending count, then relation; neighbor types follow
// catalogue order and omit zero counts.
func (e *Engine) GetNodeDetails(ctx context.Context, nodeID string) (result *NodeDetails, err error) {
	ctx, span := startQuerySpan(ctx, opDetails, nodeID)
	start := time.Now()
	defer func() {
		if result != nil {
			endQuerySpan(ctx, span, opDetails, start, result.Version, result.Degree, false, nil)
			return
		}
		endQuerySpan(ctx, span, opDetails, start, 0, 0, false, err)
	}()

	g, err := e.pin()
	if err != nil {
		return nil, err
	}
	center, ok := resolveNode(g, nodeID)
	if !ok {
		return nil, &EntityError{Kind: EntityNode, Query: nodeID}
	}

	adj := g.Neighbors(center)
	byRelation := make(map[string]int)
	byType := make([]int, len(snapshot.NodeTypes))
	for _, nb := range adj {
		byRelation[nb.Relation]++
		if ord := mustNode(g, nb.Index).Type.Ordinal(); ord >= 0 {
			byType[ord]++
		}
	}

	result = &NodeDetails{
		Node:      mustNode(g, center),
		Degree:    len(adj),
		Relations: make([]RelationCount, 0, len(byRelation)),
		Neighbors: make([]graph.TypeStat, 0, len(snapshot.NodeTypes)),
		Version:   g.Version,
	}
	for rel, n := range byRelation {
		result.Relations = append(result.Relations, RelationCount{Relation: rel, Count: n})
	}
	sort.Slice(result.Relations, func(i, j int) bool {
		a, b := result.Relations[i], result.Relations[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Relation < b.Relation
	})
	for i, t := range snapshot.NodeTypes {
		if byType[i] > 0 {
			result.Neighbors = append(result.Neighbors, graph.TypeStat{Type: t, Count: byType[i]})
		}
	}
	return result, nil
}
