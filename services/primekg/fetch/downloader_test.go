// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/primekg/services/primekg/freshness"
)

const nodesBody = "index,id,type,name,source\n0,1,drug,Aspirin,DrugBank\n"

func TestFetch_HTTP(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(nodesBody))
	}))
	defer srv.Close()

	d := New(Config{UserAgent: "primekg-test"})
	dest := filepath.Join(t.TempDir(), "nodes.csv")

	require.NoError(t, d.Fetch(context.Background(), srv.URL+"/nodes.csv", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, nodesBody, string(data))
	assert.Equal(t, "primekg-test", ua.Load())
}

func TestFetch_ReplacesExistingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("new"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "edges.csv")
	require.NoError(t, os.WriteFile(dest, []byte("old contents"), 0o644))

	require.NoError(t, New(Config{}).Fetch(context.Background(), srv.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestFetch_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   freshness.FetchErrorKind
	}{
		{"not found", http.StatusNotFound, freshness.FetchNotFound},
		{"gone", http.StatusGone, freshness.FetchNotFound},
		{"server error", http.StatusInternalServerError, freshness.FetchTransport},
		{"forbidden", http.StatusForbidden, freshness.FetchTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			dir := t.TempDir()
			dest := filepath.Join(dir, "nodes.csv")
			err := New(Config{}).Fetch(context.Background(), srv.URL, dest)

			var fe *freshness.FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.kind, fe.Kind)
			assert.ErrorIs(t, err, freshness.ErrFetchFailed)

			entries, _ := os.ReadDir(dir)
			assert.Empty(t, entries)
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := New(Config{}).Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "nodes.csv"))

	var fe *freshness.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, freshness.FetchTimeout, fe.Kind)
}

type failingClient struct {
	calls atomic.Int32
}

func (c *failingClient) Do(*http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestFetch_BreakerOpens(t *testing.T) {
	client := &failingClient{}
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	d := New(Config{Client: client, Breaker: cfg})
	dest := filepath.Join(t.TempDir(), "nodes.csv")

	for range 2 {
		err := d.Fetch(context.Background(), "http://mirror.invalid/nodes.csv", dest)
		require.Error(t, err)
	}
	assert.Equal(t, "open", d.BreakerState())

	err := d.Fetch(context.Background(), "http://mirror.invalid/nodes.csv", dest)
	var fe *freshness.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, freshness.FetchTransport, fe.Kind)
	assert.Equal(t, int32(2), client.calls.Load(), "open breaker must not reach the client")
}

func TestFetch_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 1
	d := New(Config{Breaker: cfg})
	dest := filepath.Join(t.TempDir(), "nodes.csv")

	for range 3 {
		require.Error(t, d.Fetch(context.Background(), srv.URL, dest))
	}
	assert.Equal(t, "closed", d.BreakerState())
}

func TestFetch_LocalPath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.csv")
	require.NoError(t, os.WriteFile(src, []byte(nodesBody), 0o644))

	d := New(Config{})

	t.Run("plain path", func(t *testing.T) {
		dest := filepath.Join(dir, "a.csv")
		require.NoError(t, d.Fetch(context.Background(), src, dest))
		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, nodesBody, string(data))
	})

	t.Run("file url", func(t *testing.T) {
		dest := filepath.Join(dir, "b.csv")
		require.NoError(t, d.Fetch(context.Background(), "file://"+src, dest))
		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, nodesBody, string(data))
	})

	t.Run("missing", func(t *testing.T) {
		err := d.Fetch(context.Background(), filepath.Join(dir, "nope.csv"), filepath.Join(dir, "c.csv"))
		var fe *freshness.FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, freshness.FetchNotFound, fe.Kind)
	})
}

func TestFetch_SatisfiesDownloader(t *testing.T) {
	var _ freshness.Downloader = New(Config{})
}
