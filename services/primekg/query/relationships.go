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
	"strings"
	"time"

	"github.com/AleutianAI/primekg/services/primekg/graph"
	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

// GetNodeRelationships lists a node's adjacency entries.
//
// Description:
//
//	Entries come back in adjacency build order (edge-table order), each
//	resolved to its neighbor node. relationFilter, when non-empty, keeps
//	entries whose relation or display relation equals it
//	case-insensitively. A self-loop is listed once.
//
// Inputs:
//
//	nodeID - External id, matched exactly, then case-insensitively.
//	relationFilter - Optional relation kind or display label.
//	limit - Maximum entries. <= 0 uses 50; capped at 10000.
//
// Outputs:
//
//	*RelationshipsResult - Entries, the unlimited Total and Truncated.
//	error - *EntityError (ErrNotFound) when nodeID does not resolve.
func (e *Engine) GetNodeRelationships(ctx context.Context, nodeID, relationFilter string, limit int) (result *RelationshipsResult, err error) {
	ctx, span := startQuerySpan(ctx, opRelationships, nodeID)
	start := time.Now()
	defer func() {
		if result != nil {
			endQuerySpan(ctx, span, opRelationships, start, result.Version, len(result.Relationships), result.Truncated, nil)
			return
		}
		endQuerySpan(ctx, span, opRelationships, start, 0, 0, false, err)
	}()

	g, err := e.pin()
	if err != nil {
		return nil, err
	}
	center, ok := resolveID(g, nodeID)
	if !ok {
		return nil, &EntityError{Kind: EntityNode, Query: nodeID}
	}

	limit = clampLimit(limit, DefaultRelationshipLimit, MaxRelationshipLimit)
	relationFilter = strings.TrimSpace(relationFilter)

	result = &RelationshipsResult{
		Node:          mustNode(g, center),
		Relationships: make([]Relationship, 0, min(limit, g.Degree(center))),
		Version:       g.Version,
	}
	for _, nb := range g.Neighbors(center) {
		if relationFilter != "" &&
			!strings.EqualFold(nb.Relation, relationFilter) &&
			!strings.EqualFold(nb.DisplayRelation, relationFilter) {
			continue
		}
		result.Total++
		if len(result.Relationships) >= limit {
			continue
		}
		result.Relationships = append(result.Relationships, Relationship{
			Neighbor:        mustNode(g, nb.Index),
			Relation:        nb.Relation,
			DisplayRelation: nb.DisplayRelation,
			Direction:       direction(nb),
		})
	}
	result.Truncated = result.Total > len(result.Relationships)
	return result, nil
}

func direction(nb graph.Neighbor) string {
	if nb.Outgoing {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// FindDrugTargets lists the gene/protein targets of a drug.
//
// Description:
//
//	The drug is the top-ranked drug-typed Search match for drugName.
//	Targets are gene_protein neighbors reached through a relation in the
//	policy's DrugTargets set, in either edge direction. Each gene appears
//	once, under its most specific relation, ordered by relation rank then
//	node index. The full set is returned.
//
// Outputs:
//
//	*TargetsResult - The resolved drug and its targets (possibly empty).
//	error - *EntityError (ErrNotFound) when no drug matches.
func (e *Engine) FindDrugTargets(ctx context.Context, drugName string) (result *TargetsResult, err error) {
	ctx, span := startQuerySpan(ctx, opDrugTargets, drugName)
	start := time.Now()
	defer func() {
		if result != nil {
			endQuerySpan(ctx, span, opDrugTargets, start, result.Version, len(result.Targets), false, nil)
			return
		}
		endQuerySpan(ctx, span, opDrugTargets, start, 0, 0, false, err)
	}()

	g, err := e.pin()
	if err != nil {
		return nil, err
	}
	drug, err := e.resolveTyped(g, drugName, snapshot.NodeTypeDrug, EntityDrug)
	if err != nil {
		return nil, err
	}

	return &TargetsResult{
		Drug:    drug,
		Targets: associations(g, drug.Index, e.opts.Relations.DrugTargets),
		Version: g.Version,
	}, nil
}

// FindDiseaseGenes lists genes associated with a disease.
//
// Description:
//
//	The disease is the top-ranked disease-typed Search match. Genes are
//	gene_protein neighbors reached through a relation in the policy's
//	DiseaseGenes set. Ranking is relation specificity (position of the
//	matching rule in the configured list), then ascending node index.
//
// Inputs:
//
//	limit - Maximum genes. <= 0 uses 50; capped at 10000.
//
// Outputs:
//
//	*GenesResult - The resolved disease, ranked genes, Total and Truncated.
//	error - *EntityError (ErrNotFound) when no disease matches.
func (e *Engine) FindDiseaseGenes(ctx context.Context, diseaseName string, limit int) (result *GenesResult, err error) {
	ctx, span := startQuerySpan(ctx, opDiseaseGenes, diseaseName)
	start := time.Now()
	defer func() {
		if result != nil {
			endQuerySpan(ctx, span, opDiseaseGenes, start, result.Version, len(result.Genes), result.Truncated, nil)
			return
		}
		endQuerySpan(ctx, span, opDiseaseGenes, start, 0, 0, false, err)
	}()

	g, err := e.pin()
	if err != nil {
		return nil, err
	}
	disease, err := e.resolveTyped(g, diseaseName, snapshot.NodeTypeDisease, EntityDisease)
	if err != nil {
		return nil, err
	}

	limit = clampLimit(limit, DefaultRelationshipLimit, MaxRelationshipLimit)
	genes := associations(g, disease.Index, e.opts.Relations.DiseaseGenes)
	result = &GenesResult{
		Disease: disease,
		Genes:   genes,
		Total:   len(genes),
		Version: g.Version,
	}
	if len(genes) > limit {
		result.Genes = genes[:limit]
		result.Truncated = true
	}
	return result, nil
}

// associations collects gene_protein neighbors of center reached through a
// relation in set, deduplicated under their best rank.
func associations(g *graph.Graph, center int, set RelationSet) []Association {
	best := make(map[int]int)
	out := make([]Association, 0)
	for _, nb := range g.Neighbors(center) {
		if nb.Index == center {
			continue
		}
		rank := set.Rank(nb)
		if rank < 0 {
			continue
		}
		n := mustNode(g, nb.Index)
		if n.Type != snapshot.NodeTypeGeneProtein {
			continue
		}
		if pos, seen := best[nb.Index]; seen {
			if out[pos].Rank > rank {
				out[pos].Rank = rank
				out[pos].Relation = nb.Relation
				out[pos].DisplayRelation = nb.DisplayRelation
			}
			continue
		}
		best[nb.Index] = len(out)
		out = append(out, Association{
			Node:            n,
			Relation:        nb.Relation,
			DisplayRelation: nb.DisplayRelation,
			Rank:            rank,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Node.Index < out[j].Node.Index
	})
	return out
}
