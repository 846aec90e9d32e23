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
	"time"

	"github.com/AleutianAI/primekg/services/primekg/graph"
	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

// pathNode is a partial path stored as a parent chain, so extending a path
// never copies its prefix.
type pathNode struct {
	index  int
	via    *graph.Neighbor
	parent *pathNode
}

// onPath reports whether index already appears on the chain ending at p.
// Chains are at most MaxPathLength+1 long.
func (p *pathNode) onPath(index int) bool {
	for n := p; n != nil; n = n.parent {
		if n.index == index {
			return true
		}
	}
	return false
}

// FindDrugDiseasePaths enumerates simple paths from a drug to a disease.
//
// Description:
//
//	Breadth-first enumeration of partial paths from the drug. The visited
//	set is per path: a node is skipped only if it is already on the path
//	being extended, so distinct routes through a shared intermediate are
//	all found. Self-loops are never traversed. A path ends on reaching the
//	disease and is never extended past it.
//
//	Paths come back shortest first. Within one length, order follows the
//	frontier and adjacency order, which is deterministic for a snapshot.
//
// Limits:
//
//	MaxFrontier caps partial paths kept per depth. When it is hit, the
//	remaining partial paths at that depth still complete onto the disease
//	but are not extended further. MaxPaths caps the result. Hitting either
//	cap sets Truncated; paths may then be missing. This bounds the work on
//	hub nodes with degrees in the thousands.
//
// Inputs:
//
//	drugName, diseaseName - Resolved as the top-ranked typed Search match.
//	maxPathLength - Maximum edges per path. <= 0 uses 3; > 6 clamps to 6.
//
// Outputs:
//
//	*PathsResult - Paths plus the effective MaxPathLength and Truncated.
//	error - *EntityError (ErrNotFound) if either argument fails to resolve,
//	or the context error if cancelled mid-search.
func (e *Engine) FindDrugDiseasePaths(ctx context.Context, drugName, diseaseName string, maxPathLength int) (result *PathsResult, err error) {
	ctx, span := startQuerySpan(ctx, opPaths, drugName+" -> "+diseaseName)
	start := time.Now()
	defer func() {
		if result != nil {
			endQuerySpan(ctx, span, opPaths, start, result.Version, len(result.Paths), result.Truncated, nil)
			return
		}
		endQuerySpan(ctx, span, opPaths, start, 0, 0, false, err)
	}()

	g, err := e.pin()
	if err != nil {
		return nil, err
	}
	drug, err := e.resolveTyped(g, drugName, snapshot.NodeTypeDrug, EntityDrug)
	if err != nil {
		return nil, err
	}
	disease, err := e.resolveTyped(g, diseaseName, snapshot.NodeTypeDisease, EntityDisease)
	if err != nil {
		return nil, err
	}

	if maxPathLength <= 0 {
		maxPathLength = DefaultMaxPathLength
	} else if maxPathLength > MaxPathLength {
		maxPathLength = MaxPathLength
	}

	ends, truncated, err := enumeratePaths(ctx, g, drug.Index, disease.Index, maxPathLength, e.opts.MaxFrontier, e.opts.MaxPaths)
	if err != nil {
		return nil, err
	}

	result = &PathsResult{
		Drug:          drug,
		Disease:       disease,
		MaxPathLength: maxPathLength,
		Paths:         make([]Path, 0, len(ends)),
		Truncated:     truncated,
		Version:       g.Version,
	}
	for _, end := range ends {
		result.Paths = append(result.Paths, materialize(g, end))
	}
	return result, nil
}

// enumeratePaths runs the bounded BFS and returns the terminal node of each
// complete path.
func enumeratePaths(ctx context.Context, g *graph.Graph, from, to, maxLen, maxFrontier, maxPaths int) ([]*pathNode, bool, error) {
	var (
		found     []*pathNode
		truncated bool
		steps     int
	)
	if from == to {
		return found, false, nil
	}

	frontier := []*pathNode{{index: from}}
	for depth := 0; depth < maxLen && len(frontier) > 0; depth++ {
		extend := depth+1 < maxLen
		var next []*pathNode
		for _, p := range frontier {
			adj := g.Neighbors(p.index)
			for i := range adj {
				steps++
				if steps%contextCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return nil, false, err
					}
				}

				nb := &adj[i]
				if nb.Index == p.index || p.onPath(nb.Index) {
					continue
				}
				if nb.Index == to {
					if len(found) >= maxPaths {
						return found, true, nil
					}
					found = append(found, &pathNode{index: nb.Index, via: nb, parent: p})
					continue
				}
				if !extend {
					continue
				}
				if len(next) >= maxFrontier {
					truncated = true
					continue
				}
				next = append(next, &pathNode{index: nb.Index, via: nb, parent: p})
			}
		}
		frontier = next
	}
	return found, truncated, nil
}

// materialize turns a parent chain into a Path from root to end.
func materialize(g *graph.Graph, end *pathNode) Path {
	n := 0
	for p := end; p != nil; p = p.parent {
		n++
	}
	steps := make([]PathStep, n)
	i := n - 1
	for p := end; p != nil; p = p.parent {
		steps[i].Node = mustNode(g, p.index)
		if p.via != nil {
			steps[i-1].Relation = p.via.Relation
			steps[i-1].DisplayRelation = p.via.DisplayRelation
		}
		i--
	}
	return Path{Steps: steps}
}
