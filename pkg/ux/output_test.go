// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPrinter_NonTerminalIsPlain(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, NewPrinter(&buf, false).Plain())
}

func TestPrinter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.Title("ignored")
	p.Muted("ignored too")
	p.Success("index swapped")
	p.Warning("stale")
	p.KV("version", "7", "nodes", "4")
	p.Table([]string{"id", "name"}, [][]string{{"DB00331", "Metformin"}})
	p.Path([]string{"Metformin", "PPARA", "T2D"})

	want := "OK: index swapped\n" +
		"WARN: stale\n" +
		"version\t7\n" +
		"nodes\t4\n" +
		"id\tname\n" +
		"DB00331\tMetformin\n" +
		"Metformin\tPPARA\tT2D\n"
	assert.Equal(t, want, buf.String())
}

func TestPrinter_StyledTable(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{w: &buf}

	p.Table([]string{"id", "name"}, [][]string{{"DB00331", "Metformin"}})
	out := buf.String()
	assert.Contains(t, out, "Metformin")
	assert.Contains(t, out, "DB00331")
	assert.Contains(t, out, "╭")
}
