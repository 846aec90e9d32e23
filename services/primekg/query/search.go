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

// Operation names used in spans and metrics.
const (
	opSearch        = "search"
	opRelationships = "relationships"
	opDrugTargets   = "drug_targets"
	opDiseaseGenes  = "disease_genes"
	opPaths         = "paths"
	opDetails       = "details"
	opSchema        = "schema"
	opStatistics    = "statistics"
)

// Search finds nodes by name or external id.
//
// Description:
//
//	Candidates are collected tier by tier and ranked by tier, then by
//	ascending node index:
//	  1. exact: normalized full name or external id equals the query
//	  2. prefix: normalized full name starts with the query
//	  3. token: every query token is a prefix of some name token
//	  4. substring: normalized full name contains the query (fallback)
//	A node appears at most once, in its best tier.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	q - Free-text query. Case and whitespace runs are ignored.
//	typeFilter - Restrict to one node type. NodeTypeUnknown disables it.
//	limit - Maximum matches. <= 0 uses 10; capped at 1000.
//
// Outputs:
//
//	*SearchResult - Ranked matches. Truncated is set when more exist.
//	error - ErrNoSnapshot or ErrEmptyQuery. No match is not an error.
func (e *Engine) Search(ctx context.Context, q string, typeFilter snapshot.NodeType, limit int) (result *SearchResult, err error) {
	ctx, span := startQuerySpan(ctx, opSearch, q)
	start := time.Now()
	defer func() {
		if result != nil {
			endQuerySpan(ctx, span, opSearch, start, result.Version, len(result.Matches), result.Truncated, nil)
			return
		}
		endQuerySpan(ctx, span, opSearch, start, 0, 0, false, err)
	}()

	g, err := e.pin()
	if err != nil {
		return nil, err
	}
	if graph.Normalize(q) == "" {
		return nil, ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches, truncated := e.search(g, q, typeFilter, clampLimit(limit, DefaultSearchLimit, MaxSearchLimit))
	return &SearchResult{
		Query:     q,
		Matches:   matches,
		Truncated: truncated,
		Version:   g.Version,
	}, nil
}

// search runs the tiered lookup against one pinned index.
func (e *Engine) search(g *graph.Graph, q string, typeFilter snapshot.NodeType, limit int) ([]SearchMatch, bool) {
	norm := graph.Normalize(q)
	if norm == "" {
		return []SearchMatch{}, false
	}
	names := g.Names()
	c := &collector{
		g:       g,
		filter:  typeFilter,
		want:    limit + 1,
		maxTier: e.opts.MaxTierCandidates,
		seen:    make(map[int]struct{}),
		matches: make([]SearchMatch, 0, limit+1),
	}

	c.add(names.Exact(norm))
	c.add(names.ID(q))
	c.flush(TierExact)

	if !c.full() {
		names.WalkPrefix(norm, func(_ string, indices []int) bool {
			return c.add(indices)
		})
		c.flush(TierPrefix)
	}

	if !c.full() {
		c.add(tokenMatches(names, graph.Tokenize(norm), e.opts.MaxTierCandidates))
		c.flush(TierToken)
	}

	if !c.full() && e.opts.SubstringFallback {
		names.WalkContains(norm, func(_ string, indices []int) bool {
			return c.add(indices)
		})
		c.flush(TierSubstring)
	}

	truncated := c.cut
	if len(c.matches) > limit {
		c.matches = c.matches[:limit]
		truncated = true
	}
	return c.matches, truncated
}

// tokenMatches returns nodes where every query token prefixes one of the
// node's name tokens. The result is sorted ascending.
func tokenMatches(names *graph.NameIndex, tokens []string, maxCandidates int) []int {
	if len(tokens) == 0 {
		return nil
	}

	var current map[int]struct{}
	for _, tok := range tokens {
		next := make(map[int]struct{})
		names.WalkTokenPrefix(tok, func(_ string, indices []int) bool {
			for _, i := range indices {
				if current != nil {
					if _, ok := current[i]; !ok {
						continue
					}
				}
				next[i] = struct{}{}
			}
			return len(next) < maxCandidates
		})
		if len(next) == 0 {
			return nil
		}
		current = next
	}

	out := make([]int, 0, len(current))
	for i := range current {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// collector accumulates ranked search matches one tier at a time.
type collector struct {
	g       *graph.Graph
	filter  snapshot.NodeType
	want    int
	maxTier int
	seen    map[int]struct{}
	pending []int
	matches []SearchMatch

	// cut is set when a tier hit maxTier and stopped collecting.
	cut bool
}

func (c *collector) full() bool {
	return len(c.matches) >= c.want
}

// add stages postings for the current tier. Returns false once the tier
// candidate cap is reached.
func (c *collector) add(indices []int) bool {
	for _, i := range indices {
		if _, dup := c.seen[i]; dup {
			continue
		}
		if c.filter != snapshot.NodeTypeUnknown {
			n, ok := c.g.Node(i)
			if !ok || n.Type != c.filter {
				continue
			}
		}
		c.seen[i] = struct{}{}
		c.pending = append(c.pending, i)
		if len(c.pending) >= c.maxTier {
			c.cut = true
			return false
		}
	}
	return true
}

// flush ranks the staged tier by node index and appends it to matches.
func (c *collector) flush(tier MatchTier) {
	sort.Ints(c.pending)
	for _, i := range c.pending {
		if c.full() {
			break
		}
		c.matches = append(c.matches, SearchMatch{Node: mustNode(c.g, i), Tier: tier})
	}
	c.pending = c.pending[:0]
}
