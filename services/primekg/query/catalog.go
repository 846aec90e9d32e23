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
)

// Schema describes the node types, relation kinds and provenance sources
// present in the served snapshot, plus the configured relation policy.
func (e *Engine) Schema(ctx context.Context) (result *Schema, err error) {
	ctx, span := startQuerySpan(ctx, opSchema, "")
	start := time.Now()
	defer func() {
		if result != nil {
			endQuerySpan(ctx, span, opSchema, start, result.Version, len(result.Relations), false, nil)
			return
		}
		endQuerySpan(ctx, span, opSchema, start, 0, 0, false, err)
	}()

	g, err := e.pin()
	if err != nil {
		return nil, err
	}
	stats := g.Stats()
	return &Schema{
		NodeTypes:            stats.NodeTypes,
		Relations:            stats.Relations,
		Sources:              stats.Sources,
		DrugTargetRelations:  e.opts.Relations.DrugTargets.Strings(),
		DiseaseGeneRelations: e.opts.Relations.DiseaseGenes.Strings(),
		Version:              stats.Version,
	}, nil
}

// Statistics summarizes the served snapshot: totals, the node type
// distribution and the 20 most frequent relation kinds.
func (e *Engine) Statistics(ctx context.Context) (result *Statistics, err error) {
	ctx, span := startQuerySpan(ctx, opStatistics, "")
	start := time.Now()
	defer func() {
		if result != nil {
			endQuerySpan(ctx, span, opStatistics, start, result.Version, len(result.TopRelations), false, nil)
			return
		}
		endQuerySpan(ctx, span, opStatistics, start, 0, 0, false, err)
	}()

	g, err := e.pin()
	if err != nil {
		return nil, err
	}
	stats := g.Stats()
	top := stats.Relations
	if len(top) > StatisticsTopRelations {
		top = top[:StatisticsTopRelations]
	}
	return &Statistics{
		NodeCount:     stats.NodeCount,
		EdgeCount:     stats.EdgeCount,
		SelfLoops:     stats.SelfLoops,
		NodeTypes:     stats.NodeTypes,
		TopRelations:  top,
		RelationKinds: len(stats.Relations),
		Version:       stats.Version,
		BuiltAtMilli:  stats.BuiltAtMilli,
	}, nil
}
