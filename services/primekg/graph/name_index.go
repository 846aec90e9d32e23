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
	"strings"
	"unicode"
)

// NameIndex is the case-folded lookup structure over node names and ids.
//
// Every node is registered under:
//
//   - its full normalized name (exact and prefix lookups)
//   - each whitespace-delimited token of the name (token lookups)
//   - its lowercased external id
//
// Postings are ascending node indices. Key lists are sorted so prefix walks
// are a binary search plus a linear run over matching keys, never a scan of
// the whole vocabulary.
type NameIndex struct {
	full      map[string][]int
	fullKeys  []string
	tokens    map[string][]int
	tokenKeys []string
	ids       map[string][]int
}

// Normalize lowercases s and collapses runs of whitespace to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Tokenize splits a name into lowercase whitespace-delimited tokens.
//
// Leading and trailing punctuation is trimmed from each token, so
// "abnormality," indexes as "abnormality". Duplicates are dropped.
func Tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, unicode.IsPunct)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// nameIndexBuilder accumulates postings. Nodes MUST be added in ascending
// index order so postings come out sorted without a sort pass.
type nameIndexBuilder struct {
	full   map[string][]int
	tokens map[string][]int
	ids    map[string][]int
}

func newNameIndexBuilder(sizeHint int) *nameIndexBuilder {
	return &nameIndexBuilder{
		full:   make(map[string][]int, sizeHint),
		tokens: make(map[string][]int, sizeHint),
		ids:    make(map[string][]int, sizeHint),
	}
}

func (b *nameIndexBuilder) add(index int, name, id string) {
	if key := Normalize(name); key != "" {
		b.full[key] = append(b.full[key], index)
	}
	for _, tok := range Tokenize(name) {
		b.tokens[tok] = append(b.tokens[tok], index)
	}
	if id != "" {
		key := strings.ToLower(id)
		b.ids[key] = append(b.ids[key], index)
	}
}

func (b *nameIndexBuilder) finish() *NameIndex {
	return &NameIndex{
		full:      b.full,
		fullKeys:  sortedKeys(b.full),
		tokens:    b.tokens,
		tokenKeys: sortedKeys(b.tokens),
		ids:       b.ids,
	}
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Exact returns nodes whose normalized full name equals Normalize(q).
func (x *NameIndex) Exact(q string) []int {
	return x.full[Normalize(q)]
}

// ID returns nodes whose external id equals q, case-insensitively.
func (x *NameIndex) ID(q string) []int {
	return x.ids[strings.ToLower(strings.TrimSpace(q))]
}

// Token returns nodes having tok as one of their name tokens.
func (x *NameIndex) Token(tok string) []int {
	return x.tokens[strings.ToLower(tok)]
}

// WalkPrefix calls fn for every full-name key starting with prefix, in
// lexical order, until fn returns false.
func (x *NameIndex) WalkPrefix(prefix string, fn func(key string, indices []int) bool) {
	walkSorted(x.fullKeys, x.full, Normalize(prefix), fn)
}

// WalkTokenPrefix calls fn for every token starting with prefix, in lexical
// order, until fn returns false.
func (x *NameIndex) WalkTokenPrefix(prefix string, fn func(token string, indices []int) bool) {
	walkSorted(x.tokenKeys, x.tokens, strings.ToLower(prefix), fn)
}

// WalkContains calls fn for every full-name key containing sub, in lexical
// order, until fn returns false.
//
// This is the only linear lookup: it scans the distinct name vocabulary,
// not the nodes, and is meant as a last-tier fallback.
func (x *NameIndex) WalkContains(sub string, fn func(key string, indices []int) bool) {
	sub = Normalize(sub)
	if sub == "" {
		return
	}
	for _, k := range x.fullKeys {
		if strings.Contains(k, sub) {
			if !fn(k, x.full[k]) {
				return
			}
		}
	}
}

// KeyCount returns the number of distinct full names and tokens.
func (x *NameIndex) KeyCount() (names, tokens int) {
	return len(x.fullKeys), len(x.tokenKeys)
}

func walkSorted(keys []string, postings map[string][]int, prefix string, fn func(string, []int) bool) {
	if prefix == "" {
		return
	}
	for i := sort.SearchStrings(keys, prefix); i < len(keys); i++ {
		k := keys[i]
		if !strings.HasPrefix(k, prefix) {
			return
		}
		if !fn(k, postings[k]) {
			return
		}
	}
}
