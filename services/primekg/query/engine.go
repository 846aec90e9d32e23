// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query evaluates read-only operations against a PrimeKG graph index.
//
// # Thread Safety
//
// Engine holds no mutable state. Every operation reads the current index
// from its Source exactly once and works on that pointer until it returns,
// so a concurrent refresh never changes what a running query observes.
//
// # Errors
//
// Arguments that do not resolve return an *EntityError matching ErrNotFound.
// Empty result sets are not errors. Caps that cut a result short set a
// Truncated flag on the result rather than failing.
package query

import (
	"errors"
	"strings"

	"github.com/AleutianAI/primekg/services/primekg/graph"
	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

// Source supplies the graph index currently being served.
//
// Current must be cheap and non-blocking. It returns nil when no index has
// been loaded.
type Source interface {
	Current() *graph.Graph
}

// StaticSource serves one fixed index. Useful for tests and one-shot CLI
// queries.
type StaticSource struct {
	Graph *graph.Graph
}

// Current implements Source.
func (s StaticSource) Current() *graph.Graph {
	return s.Graph
}

// Engine answers queries over the index supplied by a Source.
type Engine struct {
	source Source
	opts   Options
}

// NewEngine creates an engine reading from source.
func NewEngine(source Source, opts ...Option) *Engine {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Engine{source: source, opts: options}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// pin reads the current index once.
func (e *Engine) pin() (*graph.Graph, error) {
	if e.source == nil {
		return nil, ErrNoSnapshot
	}
	g := e.source.Current()
	if g == nil {
		return nil, ErrNoSnapshot
	}
	return g, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// resolveID maps an external id to an index: exact match first, then
// case-insensitive. External ids are not unique across sources; when
// several nodes share one, the lowest index wins.
func resolveID(g *graph.Graph, arg string) (int, bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, false
	}
	if hits := g.NodesByID(arg); len(hits) > 0 {
		return hits[0], true
	}
	if hits := g.Names().ID(arg); len(hits) > 0 {
		return hits[0], true
	}
	return 0, false
}

// resolveNode is resolveID with a fallback to exact case-insensitive name.
func resolveNode(g *graph.Graph, arg string) (int, bool) {
	if index, ok := resolveID(g, arg); ok {
		return index, true
	}
	if hits := g.Names().Exact(graph.Normalize(arg)); len(hits) > 0 {
		return hits[0], true
	}
	return 0, false
}

// resolveTyped returns the top-ranked search match of type t.
func (e *Engine) resolveTyped(g *graph.Graph, name string, t snapshot.NodeType, kind string) (snapshot.Node, error) {
	if strings.TrimSpace(name) == "" {
		return snapshot.Node{}, ErrEmptyQuery
	}
	matches, _ := e.search(g, name, t, 1)
	if len(matches) == 0 {
		return snapshot.Node{}, &EntityError{Kind: kind, Query: name}
	}
	return matches[0].Node, nil
}

// mustNode returns the node at a resolved index.
func mustNode(g *graph.Graph, index int) snapshot.Node {
	n, _ := g.Node(index)
	return n
}
