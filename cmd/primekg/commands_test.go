// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/primekg/services/primekg/freshness"
	"github.com/AleutianAI/primekg/services/primekg/query"
)

const testNodes = `index,id,type,name,source
0,DB00331,drug,Metformin,DrugBank
1,5465,gene/protein,PPARA,NCBI
2,MONDO:5148,disease,type 2 diabetes mellitus,MONDO
`

const testEdges = `relation,display_relation,source_index,target_index
drug_protein,target,0,1
disease_protein,associated with,2,1
`

// setupCLI writes sources and a config file into a temp dir and returns the
// config path.
func setupCLI(t *testing.T) string {
	t.Helper()
	t.Setenv("PRIMEKG_DATA_PATH", "")
	t.Setenv("PRIMEKG_AUTO_UPDATE", "")
	t.Setenv("PRIMEKG_UPDATE_INTERVAL_DAYS", "")

	dir := t.TempDir()
	nodes := filepath.Join(dir, "src", "nodes.csv")
	edges := filepath.Join(dir, "src", "edges.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(nodes), 0o755))
	require.NoError(t, os.WriteFile(nodes, []byte(testNodes), 0o644))
	require.NoError(t, os.WriteFile(edges, []byte(testEdges), 0o644))

	cfg := "data_path: " + filepath.Join(dir, "data") + "\n" +
		"auto_update: false\n" +
		"sources:\n  nodes_url: " + nodes + "\n  edges_url: " + edges + "\n" +
		"history:\n  path: " + filepath.Join(dir, "history") + "\n" +
		"logging:\n  level: error\n" +
		"telemetry:\n  metric_exporter: none\n  trace_exporter: none\n"
	path := filepath.Join(dir, "primekg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_QueryBeforeRefreshFails(t *testing.T) {
	cfg := setupCLI(t)
	_, err := runCLI(t, "--config", cfg, "search", "metformin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primekg refresh")
}

func TestCLI_RefreshThenQuery(t *testing.T) {
	cfg := setupCLI(t)

	out, err := runCLI(t, "--config", cfg, "--json", "refresh")
	require.NoError(t, err)
	var res freshness.RefreshResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, freshness.OutcomeSwapped, res.Outcome)
	assert.Equal(t, 3, res.NodeCount)

	out, err = runCLI(t, "--config", cfg, "--json", "search", "metformin")
	require.NoError(t, err)
	var search query.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &search))
	require.Len(t, search.Matches, 1)
	assert.Equal(t, "DB00331", search.Matches[0].ID)

	out, err = runCLI(t, "--config", cfg, "--plain", "targets", "Metformin")
	require.NoError(t, err)
	assert.Contains(t, out, "5465\tPPARA\tdrug_protein\ttarget")

	out, err = runCLI(t, "--config", cfg, "--plain", "paths", "Metformin", "type 2 diabetes mellitus")
	require.NoError(t, err)
	assert.Contains(t, out, "Metformin\t[target]\tPPARA")

	out, err = runCLI(t, "--config", cfg, "--plain", "history")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "swapped")
}

func TestCLI_RefreshSkipsWhenFresh(t *testing.T) {
	cfg := setupCLI(t)
	_, err := runCLI(t, "--config", cfg, "refresh")
	require.NoError(t, err)

	out, err := runCLI(t, "--config", cfg, "--plain", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "snapshot is fresh")
}

func TestCLI_UnknownNode(t *testing.T) {
	cfg := setupCLI(t)
	_, err := runCLI(t, "--config", cfg, "refresh")
	require.NoError(t, err)

	_, err = runCLI(t, "--config", cfg, "details", "nope")
	assert.ErrorIs(t, err, query.ErrNotFound)
}

func TestCLI_InitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "primekg.yaml")
	out, err := runCLI(t, "--config", path, "init-config")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = runCLI(t, "--config", path, "init-config")
	assert.Error(t, err)
	_, err = runCLI(t, "--config", path, "init-config", "--force")
	assert.NoError(t, err)
}
