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
	"strings"

	"github.com/AleutianAI/primekg/services/primekg/graph"
)

// RelationRule selects edges by relation kind and, optionally, display label.
type RelationRule struct {
	Relation string
	// Display restricts the rule to one display label. Empty matches any.
	Display string
}

// ParseRelationRule parses "relation" or "relation:display".
func ParseRelationRule(s string) RelationRule {
	rel, display, _ := strings.Cut(strings.TrimSpace(s), ":")
	return RelationRule{
		Relation: strings.ToLower(strings.TrimSpace(rel)),
		Display:  strings.ToLower(strings.TrimSpace(display)),
	}
}

// String returns the rule in "relation[:display]" form.
func (r RelationRule) String() string {
	if r.Display == "" {
		return r.Relation
	}
	return r.Relation + ":" + r.Display
}

// RelationSet is an ordered list of rules. Order is specificity: earlier
// rules rank ahead of later ones.
type RelationSet []RelationRule

// ParseRelationSet parses each entry with ParseRelationRule, dropping blanks.
func ParseRelationSet(entries []string) RelationSet {
	set := make(RelationSet, 0, len(entries))
	for _, e := range entries {
		r := ParseRelationRule(e)
		if r.Relation == "" {
			continue
		}
		set = append(set, r)
	}
	return set
}

// Rank returns the position of the first rule matching the neighbor entry,
// or -1 if none does. Matching is case-insensitive.
func (s RelationSet) Rank(nb graph.Neighbor) int {
	for i, r := range s {
		if !strings.EqualFold(r.Relation, nb.Relation) {
			continue
		}
		if r.Display != "" && !strings.EqualFold(r.Display, nb.DisplayRelation) {
			continue
		}
		return i
	}
	return -1
}

// Strings returns the rules in configuration form.
func (s RelationSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.String()
	}
	return out
}

// RelationPolicy names the relation kinds that qualify as drug-target and
// disease-gene associations. Which kinds qualify is deployment
// configuration, not a property of the graph.
type RelationPolicy struct {
	DrugTargets  RelationSet
	DiseaseGenes RelationSet
}

// DefaultRelationPolicy covers the PrimeKG release relation kinds plus the
// generic spellings used by hand-built snapshots.
//
// PrimeKG's drug_protein relation carries display labels target, enzyme,
// transporter and carrier; all of them count as targets by default.
func DefaultRelationPolicy() RelationPolicy {
	return RelationPolicy{
		DrugTargets: ParseRelationSet([]string{
			"drug_target",
			"drug_protein:target",
			"drug_protein",
		}),
		DiseaseGenes: ParseRelationSet([]string{
			"disease_gene",
			"disease_protein",
		}),
	}
}
