// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// contextCheckInterval is how many rows are parsed between context checks.
const contextCheckInterval = 4096

// sniffBytes is how much of the stream is peeked to pick the delimiter.
const sniffBytes = 64 * 1024

// columnSpec names a logical column and the header spellings accepted for it.
type columnSpec struct {
	name     string
	aliases  []string
	required bool
}

// Logical column positions, shared by the specs and the row decoders.
const (
	colNodeIndex = iota
	colNodeID
	colNodeType
	colNodeName
	colNodeSource
)

const (
	colEdgeRelation = iota
	colEdgeDisplay
	colEdgeSource
	colEdgeTarget
)

var nodeColumns = []columnSpec{
	colNodeIndex:  {name: "index", aliases: []string{"index", "node_index"}, required: true},
	colNodeID:     {name: "id", aliases: []string{"id", "node_id"}, required: true},
	colNodeType:   {name: "type", aliases: []string{"type", "node_type"}, required: true},
	colNodeName:   {name: "name", aliases: []string{"name", "node_name"}, required: true},
	colNodeSource: {name: "source", aliases: []string{"source", "node_source"}},
}

var edgeColumns = []columnSpec{
	colEdgeRelation: {name: "relation", aliases: []string{"relation"}, required: true},
	colEdgeDisplay:  {name: "display_relation", aliases: []string{"display_relation"}},
	colEdgeSource:   {name: "source_index", aliases: []string{"source_index", "x_index"}, required: true},
	colEdgeTarget:   {name: "target_index", aliases: []string{"target_index", "y_index"}, required: true},
}

// tableReader decodes one delimited table with a header row.
type tableReader struct {
	table  string
	csv    *csv.Reader
	specs  []columnSpec
	pos    []int // header position per logical column
	width  int   // expected field count per row
	fields []string
	row    int
}

// newTableReader sniffs the delimiter, reads the header and resolves the
// logical columns.
func newTableReader(table string, src io.Reader, specs []columnSpec) (*tableReader, error) {
	br := bufio.NewReaderSize(src, sniffBytes)
	head, _ := br.Peek(sniffBytes)

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(head)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	t := &tableReader{
		table:  table,
		csv:    cr,
		specs:  specs,
		fields: make([]string, len(specs)),
		row:    1,
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &RowError{Table: table, Row: 1, Err: errMissingHeader}
	}
	if err != nil {
		return nil, t.wrapReadError(err)
	}
	t.width = len(header)

	byName := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := byName[h]; !dup {
			byName[h] = i
		}
	}

	t.pos = make([]int, len(specs))
	for i, col := range specs {
		t.pos[i] = -1
		for _, alias := range col.aliases {
			if p, ok := byName[alias]; ok {
				t.pos[i] = p
				break
			}
		}
		if t.pos[i] < 0 && col.required {
			return nil, &RowError{Table: table, Row: 1, Column: col.name, Err: errMissingColumn}
		}
	}

	return t, nil
}

// sniffDelimiter returns '\t' when the header line holds more tabs than
// commas, ',' otherwise.
func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	if bytes.Count(head, []byte{'\t'}) > bytes.Count(head, []byte{','}) {
		return '\t'
	}
	return ','
}

// next reads the next row into t.fields. Returns io.EOF at end of input.
//
// Missing optional columns yield "". Required columns are checked for
// emptiness here so decoders only deal with value conversion.
func (t *tableReader) next() error {
	rec, err := t.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return t.wrapReadError(err)
	}
	t.row, _ = t.csv.FieldPos(0)

	if len(rec) != t.width {
		return &RowError{
			Table: t.table,
			Row:   t.row,
			Err:   fmt.Errorf("expected %d columns, got %d", t.width, len(rec)),
		}
	}

	for i, col := range t.specs {
		if t.pos[i] < 0 {
			t.fields[i] = ""
			continue
		}
		v := strings.TrimSpace(rec[t.pos[i]])
		if v == "" && col.required {
			return t.fieldError(i, errEmptyField)
		}
		t.fields[i] = v
	}
	return nil
}

func (t *tableReader) fieldError(col int, err error) error {
	return &RowError{Table: t.table, Row: t.row, Column: t.specs[col].name, Err: err}
}

func (t *tableReader) wrapReadError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &RowError{Table: t.table, Row: pe.Line, Err: pe.Err}
	}
	return fmt.Errorf("read %s table: %w", t.table, err)
}

func (t *tableReader) index(col int) (int, error) {
	n, err := strconv.Atoi(t.fields[col])
	if err != nil || n < 0 {
		return 0, t.fieldError(col, errNotInteger)
	}
	return n, nil
}

// ParseNodes reads a node table.
//
// Description:
//
//	Decodes every data row into a Node, in file order. Node types are
//	normalized with ParseNodeType.
//
// Inputs:
//
//	ctx - Checked every 4096 rows.
//	r - The node table, header first.
//
// Outputs:
//
//	[]Node - Decoded nodes in file order.
//	error - *RowError (matches ErrMalformedSnapshot) for bad rows, ctx.Err()
//	        on cancellation, or a wrapped I/O error.
func ParseNodes(ctx context.Context, r io.Reader) ([]Node, error) {
	t, err := newTableReader(TableNodes, r, nodeColumns)
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, 1024)
	for n := 0; ; n++ {
		if n%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if err := t.next(); err != nil {
			if errors.Is(err, io.EOF) {
				return nodes, nil
			}
			return nil, err
		}

		idx, err := t.index(colNodeIndex)
		if err != nil {
			return nil, err
		}
		nt, ok := ParseNodeType(t.fields[colNodeType])
		if !ok {
			return nil, t.fieldError(colNodeType, fmt.Errorf("%w: %q", errUnknownNodeType, t.fields[colNodeType]))
		}

		nodes = append(nodes, Node{
			Index:  idx,
			ID:     t.fields[colNodeID],
			Type:   nt,
			Name:   t.fields[colNodeName],
			Source: t.fields[colNodeSource],
		})
	}
}

// ParseEdges reads an edge table.
//
// Relation strings are interned, so millions of rows share a handful of
// backing strings. An empty display_relation defaults to the relation.
func ParseEdges(ctx context.Context, r io.Reader) ([]Edge, error) {
	t, err := newTableReader(TableEdges, r, edgeColumns)
	if err != nil {
		return nil, err
	}

	intern := make(map[string]string)
	internStr := func(s string) string {
		if v, ok := intern[s]; ok {
			return v
		}
		s = strings.Clone(s)
		intern[s] = s
		return s
	}

	edges := make([]Edge, 0, 4096)
	for n := 0; ; n++ {
		if n%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if err := t.next(); err != nil {
			if errors.Is(err, io.EOF) {
				return edges, nil
			}
			return nil, err
		}

		src, err := t.index(colEdgeSource)
		if err != nil {
			return nil, err
		}
		dst, err := t.index(colEdgeTarget)
		if err != nil {
			return nil, err
		}

		rel := internStr(t.fields[colEdgeRelation])
		display := rel
		if d := t.fields[colEdgeDisplay]; d != "" {
			display = internStr(d)
		}

		edges = append(edges, Edge{
			Relation:        rel,
			DisplayRelation: display,
			SourceIndex:     src,
			TargetIndex:     dst,
		})
	}
}

// Parse reads both tables sequentially.
func Parse(ctx context.Context, nodes, edges io.Reader) (*Snapshot, error) {
	ns, err := ParseNodes(ctx, nodes)
	if err != nil {
		return nil, err
	}
	es, err := ParseEdges(ctx, edges)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Nodes: ns, Edges: es}, nil
}

// ParseFiles reads a node file and an edge file concurrently.
//
// Description:
//
//	Opens both paths and parses them on separate goroutines. The first
//	failure cancels the other parse.
//
// Outputs:
//
//	*Snapshot - Parsed records.
//	error - *RowError for malformed rows, or a wrapped open/read error.
func ParseFiles(ctx context.Context, nodesPath, edgesPath string) (*Snapshot, error) {
	g, gctx := errgroup.WithContext(ctx)
	snap := &Snapshot{}

	g.Go(func() error {
		f, err := os.Open(nodesPath)
		if err != nil {
			return fmt.Errorf("open node table: %w", err)
		}
		defer f.Close()
		snap.Nodes, err = ParseNodes(gctx, f)
		return err
	})

	g.Go(func() error {
		f, err := os.Open(edgesPath)
		if err != nil {
			return fmt.Errorf("open edge table: %w", err)
		}
		defer f.Close()
		snap.Edges, err = ParseEdges(gctx, f)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
