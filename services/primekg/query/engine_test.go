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
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/primekg/services/primekg/graph"
	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

// fixtureSnapshot is a small aspirin neighborhood.
//
//	0 Aspirin ──target── 4 PTGS1 ──ppi── 5 PTGS2
//	  │ ──target── 5          │
//	  │ ──enzyme── 6 TNF (self-loop)
//	  └─synergistic─ 1 Aspirin Lysine
//	3 Aspirin-induced asthma ── 4 (disease_gene), 5, 9 (disease_protein), 7
//	2 Asthma ──parent_child── 3
//
// Node 10 shares external id "5742" with node 4.
func fixtureSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Nodes: []snapshot.Node{
			{Index: 0, ID: "DB00945", Type: snapshot.NodeTypeDrug, Name: "Aspirin", Source: "DrugBank"},
			{Index: 1, ID: "DB09999", Type: snapshot.NodeTypeDrug, Name: "Aspirin Lysine", Source: "DrugBank"},
			{Index: 2, ID: "MONDO:1", Type: snapshot.NodeTypeDisease, Name: "Asthma", Source: "MONDO"},
			{Index: 3, ID: "MONDO:2", Type: snapshot.NodeTypeDisease, Name: "Aspirin-induced asthma", Source: "MONDO"},
			{Index: 4, ID: "5742", Type: snapshot.NodeTypeGeneProtein, Name: "PTGS1", Source: "NCBI"},
			{Index: 5, ID: "5743", Type: snapshot.NodeTypeGeneProtein, Name: "PTGS2", Source: "NCBI"},
			{Index: 6, ID: "7124", Type: snapshot.NodeTypeGeneProtein, Name: "TNF", Source: "NCBI"},
			{Index: 7, ID: "HP:1", Type: snapshot.NodeTypePhenotype, Name: "Wheezing", Source: "HPO"},
			{Index: 8, ID: "R-1", Type: snapshot.NodeTypePathway, Name: "Prostaglandin synthesis", Source: "REACTOME"},
			{Index: 9, ID: "240", Type: snapshot.NodeTypeGeneProtein, Name: "ALOX5", Source: "NCBI"},
			{Index: 10, ID: "5742", Type: snapshot.NodeTypeAnatomy, Name: "Lung", Source: "UBERON"},
		},
		Edges: []snapshot.Edge{
			{Relation: "drug_protein", DisplayRelation: "target", SourceIndex: 0, TargetIndex: 4},
			{Relation: "drug_protein", DisplayRelation: "target", SourceIndex: 0, TargetIndex: 5},
			{Relation: "drug_protein", DisplayRelation: "enzyme", SourceIndex: 0, TargetIndex: 6},
			{Relation: "disease_protein", DisplayRelation: "associated with", SourceIndex: 3, TargetIndex: 5},
			{Relation: "disease_protein", DisplayRelation: "associated with", SourceIndex: 3, TargetIndex: 9},
			{Relation: "disease_gene", DisplayRelation: "associated with", SourceIndex: 3, TargetIndex: 4},
			{Relation: "disease_phenotype_positive", DisplayRelation: "phenotype present", SourceIndex: 3, TargetIndex: 7},
			{Relation: "protein_protein", DisplayRelation: "ppi", SourceIndex: 4, TargetIndex: 5},
			{Relation: "pathway_protein", DisplayRelation: "interacts with", SourceIndex: 8, TargetIndex: 4},
			{Relation: "protein_protein", DisplayRelation: "ppi", SourceIndex: 6, TargetIndex: 6},
			{Relation: "drug_drug", DisplayRelation: "synergistic interaction", SourceIndex: 0, TargetIndex: 1},
			{Relation: "disease_disease", DisplayRelation: "parent-child", SourceIndex: 2, TargetIndex: 3},
		},
	}
}

func buildGraph(t *testing.T, snap *snapshot.Snapshot, opts ...graph.GraphOption) *graph.Graph {
	t.Helper()
	g, _, err := graph.Build(context.Background(), snap, opts...)
	require.NoError(t, err)
	return g
}

func fixtureEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return NewEngine(StaticSource{Graph: buildGraph(t, fixtureSnapshot(), graph.WithVersion(42))}, opts...)
}

func indices(nodes []snapshot.Node) []int {
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = n.Index
	}
	return out
}

func TestEngine_NoSnapshot(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(StaticSource{})

	_, err := e.Search(ctx, "aspirin", snapshot.NodeTypeUnknown, 0)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = e.FindDrugTargets(ctx, "aspirin")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = e.Statistics(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = NewEngine(nil).Schema(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSearch_Tiers(t *testing.T) {
	ctx := context.Background()
	e := fixtureEngine(t)

	t.Run("exact first then prefix by index", func(t *testing.T) {
		res, err := e.Search(ctx, "  ASPIRIN ", snapshot.NodeTypeUnknown, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 3}, indices(res.Nodes()))
		assert.Equal(t, TierExact, res.Matches[0].Tier)
		assert.Equal(t, TierPrefix, res.Matches[1].Tier)
		assert.Equal(t, TierPrefix, res.Matches[2].Tier)
		assert.False(t, res.Truncated)
		assert.Equal(t, uint64(42), res.Version)
	})

	t.Run("limit truncates", func(t *testing.T) {
		res, err := e.Search(ctx, "aspirin", snapshot.NodeTypeUnknown, 2)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, indices(res.Nodes()))
		assert.True(t, res.Truncated)
	})

	t.Run("type filter", func(t *testing.T) {
		res, err := e.Search(ctx, "aspirin", snapshot.NodeTypeDisease, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{3}, indices(res.Nodes()))
	})

	t.Run("external id is exact", func(t *testing.T) {
		res, err := e.Search(ctx, "db00945", snapshot.NodeTypeUnknown, 0)
		require.NoError(t, err)
		require.NotEmpty(t, res.Matches)
		assert.Equal(t, 0, res.Matches[0].Index)
		assert.Equal(t, TierExact, res.Matches[0].Tier)
	})

	t.Run("token tier", func(t *testing.T) {
		res, err := e.Search(ctx, "asthma", snapshot.NodeTypeUnknown, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, indices(res.Nodes()))
		assert.Equal(t, TierToken, res.Matches[1].Tier)
	})

	t.Run("multi token intersects", func(t *testing.T) {
		res, err := e.Search(ctx, "aspirin asth", snapshot.NodeTypeUnknown, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{3}, indices(res.Nodes()))
		assert.Equal(t, TierToken, res.Matches[0].Tier)
	})

	t.Run("substring fallback", func(t *testing.T) {
		res, err := e.Search(ctx, "glandin", snapshot.NodeTypeUnknown, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{8}, indices(res.Nodes()))
		assert.Equal(t, TierSubstring, res.Matches[0].Tier)

		res, err = fixtureEngine(t, WithSubstringFallback(false)).Search(ctx, "glandin", snapshot.NodeTypeUnknown, 0)
		require.NoError(t, err)
		assert.Empty(t, res.Matches)
	})

	t.Run("no match is empty", func(t *testing.T) {
		res, err := e.Search(ctx, "zzz", snapshot.NodeTypeUnknown, 0)
		require.NoError(t, err)
		assert.Empty(t, res.Matches)
		assert.False(t, res.Truncated)
	})

	t.Run("blank query", func(t *testing.T) {
		_, err := e.Search(ctx, "   ", snapshot.NodeTypeUnknown, 0)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})
}

func TestSearch_TierCandidateCap(t *testing.T) {
	e := fixtureEngine(t, WithMaxTierCandidates(1))

	res, err := e.Search(context.Background(), "aspirin", snapshot.NodeTypeUnknown, 0)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 0, res.Matches[0].Index)
}

func TestGetNodeRelationships(t *testing.T) {
	ctx := context.Background()
	e := fixtureEngine(t)

	t.Run("ambiguous id resolves to lowest index", func(t *testing.T) {
		res, err := e.GetNodeRelationships(ctx, "5742", "", 0)
		require.NoError(t, err)
		assert.Equal(t, 4, res.Node.Index)
		require.Len(t, res.Relationships, 4)
		assert.Equal(t, 4, res.Total)
		assert.False(t, res.Truncated)

		got := make([]int, 0, 4)
		for _, r := range res.Relationships {
			got = append(got, r.Neighbor.Index)
		}
		assert.Equal(t, []int{0, 3, 5, 8}, got)
		assert.Equal(t, DirectionIncoming, res.Relationships[0].Direction)
		assert.Equal(t, DirectionOutgoing, res.Relationships[2].Direction)
	})

	t.Run("limit", func(t *testing.T) {
		res, err := e.GetNodeRelationships(ctx, "5742", "", 2)
		require.NoError(t, err)
		assert.Len(t, res.Relationships, 2)
		assert.Equal(t, 4, res.Total)
		assert.True(t, res.Truncated)
	})

	t.Run("filter by display relation", func(t *testing.T) {
		res, err := e.GetNodeRelationships(ctx, "5742", "PPI", 0)
		require.NoError(t, err)
		require.Len(t, res.Relationships, 1)
		assert.Equal(t, "PTGS2", res.Relationships[0].Neighbor.Name)
	})

	t.Run("filter by relation", func(t *testing.T) {
		res, err := e.GetNodeRelationships(ctx, "5742", "pathway_protein", 0)
		require.NoError(t, err)
		require.Len(t, res.Relationships, 1)
		assert.Equal(t, 8, res.Relationships[0].Neighbor.Index)
	})

	t.Run("case-insensitive id", func(t *testing.T) {
		res, err := e.GetNodeRelationships(ctx, "mondo:2", "", 0)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Node.Index)
	})

	t.Run("names do not resolve", func(t *testing.T) {
		_, err := e.GetNodeRelationships(ctx, "PTGS2", "", 0)
		assert.ErrorIs(t, err, ErrNotFound)

		details, err := e.GetNodeDetails(ctx, "PTGS2")
		require.NoError(t, err)
		assert.Equal(t, 5, details.Node.Index)
	})

	t.Run("self-loop listed once", func(t *testing.T) {
		res, err := e.GetNodeRelationships(ctx, "7124", "", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
	})

	t.Run("unknown node", func(t *testing.T) {
		_, err := e.GetNodeRelationships(ctx, "nope", "", 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)

		var entityErr *EntityError
		require.True(t, errors.As(err, &entityErr))
		assert.Equal(t, EntityNode, entityErr.Kind)
	})
}

func TestGetNodeRelationships_NeighborsResolve(t *testing.T) {
	ctx := context.Background()
	e := fixtureEngine(t)
	g := e.source.Current()

	for _, n := range fixtureSnapshot().Nodes {
		res, err := e.GetNodeRelationships(ctx, n.ID, "", MaxRelationshipLimit)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Relationships), MaxRelationshipLimit)
		for _, r := range res.Relationships {
			assert.True(t, g.HasNode(r.Neighbor.Index), "neighbor %d of %s", r.Neighbor.Index, n.ID)
		}
	}
}

func TestFindDrugTargets(t *testing.T) {
	ctx := context.Background()
	e := fixtureEngine(t)

	res, err := e.FindDrugTargets(ctx, "aspirin")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Drug.Index)
	require.Len(t, res.Targets, 3)

	names := []string{res.Targets[0].Node.Name, res.Targets[1].Node.Name, res.Targets[2].Node.Name}
	assert.Equal(t, []string{"PTGS1", "PTGS2", "TNF"}, names)
	assert.Equal(t, "enzyme", res.Targets[2].DisplayRelation)

	t.Run("drug without targets", func(t *testing.T) {
		res, err := e.FindDrugTargets(ctx, "Aspirin Lysine")
		require.NoError(t, err)
		assert.Equal(t, 1, res.Drug.Index)
		assert.Empty(t, res.Targets)
	})

	t.Run("not a drug", func(t *testing.T) {
		_, err := e.FindDrugTargets(ctx, "Wheezing")
		var entityErr *EntityError
		require.True(t, errors.As(err, &entityErr))
		assert.Equal(t, EntityDrug, entityErr.Kind)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("configured policy", func(t *testing.T) {
		e := fixtureEngine(t, WithRelationPolicy(RelationPolicy{
			DrugTargets: ParseRelationSet([]string{"drug_protein:enzyme"}),
		}))
		res, err := e.FindDrugTargets(ctx, "aspirin")
		require.NoError(t, err)
		require.Len(t, res.Targets, 1)
		assert.Equal(t, "TNF", res.Targets[0].Node.Name)
	})
}

func TestFindDiseaseGenes(t *testing.T) {
	ctx := context.Background()
	e := fixtureEngine(t)

	res, err := e.FindDiseaseGenes(ctx, "aspirin-induced asthma", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Disease.Index)
	require.Len(t, res.Genes, 3)

	// disease_gene ranks ahead of disease_protein, then node index.
	assert.Equal(t, 4, res.Genes[0].Node.Index)
	assert.Equal(t, 0, res.Genes[0].Rank)
	assert.Equal(t, 5, res.Genes[1].Node.Index)
	assert.Equal(t, 9, res.Genes[2].Node.Index)
	assert.False(t, res.Truncated)

	res, err = e.FindDiseaseGenes(ctx, "aspirin-induced asthma", 2)
	require.NoError(t, err)
	assert.Len(t, res.Genes, 2)
	assert.Equal(t, 3, res.Total)
	assert.True(t, res.Truncated)

	res, err = e.FindDiseaseGenes(ctx, "Asthma", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Disease.Index)
	assert.Empty(t, res.Genes)

	_, err = e.FindDiseaseGenes(ctx, "PTGS1", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetNodeDetails(t *testing.T) {
	ctx := context.Background()
	e := fixtureEngine(t)

	d, err := e.GetNodeDetails(ctx, "DB00945")
	require.NoError(t, err)
	assert.Equal(t, "Aspirin", d.Node.Name)
	assert.Equal(t, 4, d.Degree)
	assert.Equal(t, []RelationCount{
		{Relation: "drug_protein", Count: 3},
		{Relation: "drug_drug", Count: 1},
	}, d.Relations)
	assert.Equal(t, []graph.TypeStat{
		{Type: snapshot.NodeTypeGeneProtein, Count: 3},
		{Type: snapshot.NodeTypeDrug, Count: 1},
	}, d.Neighbors)

	d, err = e.GetNodeDetails(ctx, "Prostaglandin   Synthesis")
	require.NoError(t, err)
	assert.Equal(t, 8, d.Node.Index)

	_, err = e.GetNodeDetails(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.GetNodeDetails(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSchemaAndStatistics(t *testing.T) {
	ctx := context.Background()
	e := fixtureEngine(t)

	schema, err := e.Schema(ctx)
	require.NoError(t, err)
	assert.Len(t, schema.NodeTypes, len(snapshot.NodeTypes))
	assert.Len(t, schema.Relations, 8)
	assert.Equal(t, "drug_protein", schema.Relations[0].Relation)
	assert.Equal(t, []string{"enzyme", "target"}, schema.Relations[0].DisplayRelations)
	assert.Equal(t, []string{"drug_target", "drug_protein:target", "drug_protein"}, schema.DrugTargetRelations)
	assert.Equal(t, uint64(42), schema.Version)

	stats, err := e.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, stats.NodeCount)
	assert.Equal(t, 12, stats.EdgeCount)
	assert.Equal(t, 1, stats.SelfLoops)
	assert.Equal(t, 8, stats.RelationKinds)
	assert.Len(t, stats.TopRelations, 8)
}

func TestStatistics_TopRelationsCapped(t *testing.T) {
	snap := &snapshot.Snapshot{
		Nodes: []snapshot.Node{
			{Index: 0, ID: "a", Type: snapshot.NodeTypeDrug, Name: "A", Source: "x"},
			{Index: 1, ID: "b", Type: snapshot.NodeTypeDrug, Name: "B", Source: "x"},
		},
	}
	for i := 0; i < 25; i++ {
		for j := 0; j <= i; j++ {
			snap.Edges = append(snap.Edges, snapshot.Edge{
				Relation:    fmt.Sprintf("rel_%02d", i),
				SourceIndex: 0,
				TargetIndex: 1,
			})
		}
	}
	e := NewEngine(StaticSource{Graph: buildGraph(t, snap)})

	stats, err := e.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, stats.RelationKinds)
	require.Len(t, stats.TopRelations, StatisticsTopRelations)
	assert.Equal(t, "rel_24", stats.TopRelations[0].Relation)
	assert.Equal(t, 25, stats.TopRelations[0].Count)
}

// swapSource mimics the freshness manager's reference cell.
type swapSource struct {
	p atomic.Pointer[graph.Graph]
}

func (s *swapSource) Current() *graph.Graph { return s.p.Load() }

func TestEngine_ObservesSwappedIndex(t *testing.T) {
	ctx := context.Background()
	src := &swapSource{}
	e := NewEngine(src)

	_, err := e.Search(ctx, "aspirin", snapshot.NodeTypeUnknown, 0)
	require.ErrorIs(t, err, ErrNoSnapshot)

	src.p.Store(buildGraph(t, fixtureSnapshot(), graph.WithVersion(1)))
	res, err := e.Search(ctx, "aspirin", snapshot.NodeTypeUnknown, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Version)

	src.p.Store(buildGraph(t, fixtureSnapshot(), graph.WithVersion(2)))
	res, err = e.Search(ctx, "aspirin", snapshot.NodeTypeUnknown, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Version)
}
