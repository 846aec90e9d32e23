// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package freshness

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSourcePaths(t *testing.T) {
	abs, err := filepath.Abs("data/edges.tsv")
	require.NoError(t, err)

	tests := []struct {
		name string
		src  SourceDescriptor
		want []string
	}{
		{"remote only", SourceDescriptor{NodesURL: "https://x/n", EdgesURL: "http://x/e"}, nil},
		{"file url", SourceDescriptor{NodesURL: "file:///srv/kg/nodes.csv"}, []string{"/srv/kg/nodes.csv"}},
		{"relative path", SourceDescriptor{EdgesURL: "data/edges.tsv"}, []string{abs}},
		{"empty", SourceDescriptor{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LocalSourcePaths(tt.src))
		})
	}
}

func TestNewSourceWatcher_NoPaths(t *testing.T) {
	_, err := NewSourceWatcher(nil, func() {}, 0, nil)
	assert.ErrorIs(t, err, ErrNoLocalSources)
}

func TestSourceWatcher_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "nodes.csv")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(watched, []byte("a"), 0o644))

	var fired atomic.Int32
	w, err := NewSourceWatcher([]string{watched}, func() { fired.Add(1) }, 50*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(watched, []byte{byte('a' + i)}, 0o644))
	}

	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestManager_WatchSourcesQueuesRefresh(t *testing.T) {
	dir := t.TempDir()
	nodes := filepath.Join(dir, "nodes.csv")
	edges := filepath.Join(dir, "edges.csv")
	require.NoError(t, os.WriteFile(nodes, []byte(testNodes), 0o644))
	require.NoError(t, os.WriteFile(edges, []byte(testEdges), 0o644))

	cfg := DefaultConfig(t.TempDir())
	cfg.Source = SourceDescriptor{NodesURL: nodes, EdgesURL: "file://" + edges}
	m := NewManager(cfg, newFakeSource())

	w, err := m.WatchSources(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(edges, []byte(testEdges), 0o644))
	require.Eventually(t, func() bool {
		// The request channel holds one pending trigger.
		return len(m.requests) == 1
	}, 5*time.Second, 10*time.Millisecond)
}
