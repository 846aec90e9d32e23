// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package primekg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/primekg/services/primekg/freshness"
	"github.com/AleutianAI/primekg/services/primekg/graph"
	"github.com/AleutianAI/primekg/services/primekg/query"
	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFreshness struct {
	g        atomic.Pointer[graph.Graph]
	requests atomic.Int32
	pending  atomic.Bool
}

func (f *fakeFreshness) Current() *graph.Graph { return f.g.Load() }

func (f *fakeFreshness) Status() freshness.Status {
	st := freshness.Status{State: freshness.StateIdle}
	if g := f.g.Load(); g != nil {
		st.State = freshness.StateActive
		st.Version = g.Version
		st.NodeCount = g.NodeCount()
		st.EdgeCount = g.EdgeCount()
	}
	return st
}

func (f *fakeFreshness) RequestRefresh(string) bool {
	f.requests.Add(1)
	return f.pending.CompareAndSwap(false, true)
}

type fakeHistory struct {
	records []freshness.RefreshRecord
	err     error
	limit   int
}

func (h *fakeHistory) List(_ context.Context, limit int) ([]freshness.RefreshRecord, error) {
	h.limit = limit
	if h.err != nil {
		return nil, h.err
	}
	return h.records, nil
}

func testSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Nodes: []snapshot.Node{
			{Index: 0, ID: "DB00331", Type: snapshot.NodeTypeDrug, Name: "Metformin", Source: "DrugBank"},
			{Index: 1, ID: "5465", Type: snapshot.NodeTypeGeneProtein, Name: "PPARA", Source: "NCBI"},
			{Index: 2, ID: "MONDO:5148", Type: snapshot.NodeTypeDisease, Name: "type 2 diabetes mellitus", Source: "MONDO"},
			{Index: 3, ID: "3630", Type: snapshot.NodeTypeGeneProtein, Name: "INS", Source: "NCBI"},
		},
		Edges: []snapshot.Edge{
			{Relation: "drug_protein", DisplayRelation: "target", SourceIndex: 0, TargetIndex: 1},
			{Relation: "disease_protein", DisplayRelation: "associated with", SourceIndex: 2, TargetIndex: 1},
			{Relation: "disease_protein", DisplayRelation: "associated with", SourceIndex: 2, TargetIndex: 3},
		},
	}
}

func setupTestRouter(t *testing.T, loaded bool, opts ...HandlersOption) (*gin.Engine, *fakeFreshness) {
	t.Helper()
	fresh := &fakeFreshness{}
	if loaded {
		g, _, err := graph.Build(context.Background(), testSnapshot(), graph.WithVersion(7))
		require.NoError(t, err)
		fresh.g.Store(g)
	}
	handlers := NewHandlers(query.NewEngine(fresh), fresh, opts...)
	return NewRouter("primekg-test", handlers), fresh
}

func do(t *testing.T, router http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandlers_HealthAndReady(t *testing.T) {
	router, _ := setupTestRouter(t, false)

	w := do(t, router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ServiceVersion, decode[HealthResponse](t, w).Version)

	w = do(t, router, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.False(t, decode[ReadyResponse](t, w).Ready)

	router, _ = setupTestRouter(t, true)
	w = do(t, router, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	ready := decode[ReadyResponse](t, w)
	assert.True(t, ready.Ready)
	assert.Equal(t, uint64(7), ready.Version)
}

func TestHandlers_RequestID(t *testing.T) {
	router, _ := setupTestRouter(t, true)

	w := do(t, router, http.MethodGet, "/v1/primekg/search?q=met")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/v1/primekg/search?q=met", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "fixed-id", w.Header().Get("X-Request-ID"))
}

func TestHandlers_Search(t *testing.T) {
	router, _ := setupTestRouter(t, true)

	w := do(t, router, http.MethodGet, "/v1/primekg/search?q=metformin&type=drug")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[query.SearchResult](t, w)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "DB00331", res.Matches[0].ID)
	assert.Equal(t, query.TierExact, res.Matches[0].Tier)
	assert.Equal(t, uint64(7), res.Version)

	w = do(t, router, http.MethodGet, "/v1/primekg/search?q=zzz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[query.SearchResult](t, w).Matches)
}

func TestHandlers_SearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		loaded bool
		target string
		status int
		code   string
	}{
		{"missing q", true, "/v1/primekg/search", http.StatusBadRequest, CodeInvalidRequest},
		{"blank q", true, "/v1/primekg/search?q=%20%20", http.StatusBadRequest, CodeEmptyQuery},
		{"bad type", true, "/v1/primekg/search?q=a&type=planet", http.StatusBadRequest, CodeInvalidRequest},
		{"negative limit", true, "/v1/primekg/search?q=a&limit=-1", http.StatusBadRequest, CodeInvalidRequest},
		{"no snapshot", false, "/v1/primekg/search?q=a", http.StatusServiceUnavailable, CodeNoSnapshot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupTestRouter(t, tt.loaded)
			w := do(t, router, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestHandlers_NodeRelationshipsAndDetails(t *testing.T) {
	router, _ := setupTestRouter(t, true)

	w := do(t, router, http.MethodGet, "/v1/primekg/nodes/5465/relationships?relation=disease_protein")
	require.Equal(t, http.StatusOK, w.Code)
	rel := decode[query.RelationshipsResult](t, w)
	assert.Equal(t, "PPARA", rel.Node.Name)
	require.Len(t, rel.Relationships, 1)
	assert.Equal(t, query.DirectionIncoming, rel.Relationships[0].Direction)

	w = do(t, router, http.MethodGet, "/v1/primekg/nodes/5465")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[query.NodeDetails](t, w).Degree)

	w = do(t, router, http.MethodGet, "/v1/primekg/nodes/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, w).Code)
}

func TestHandlers_TargetsAndGenes(t *testing.T) {
	router, _ := setupTestRouter(t, true)

	w := do(t, router, http.MethodGet, "/v1/primekg/drugs/targets?drug=Metformin")
	require.Equal(t, http.StatusOK, w.Code)
	targets := decode[query.TargetsResult](t, w)
	require.Len(t, targets.Targets, 1)
	assert.Equal(t, "PPARA", targets.Targets[0].Node.Name)

	w = do(t, router, http.MethodGet, "/v1/primekg/diseases/genes?disease=type%202%20diabetes%20mellitus&limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	genes := decode[query.GenesResult](t, w)
	assert.Len(t, genes.Genes, 1)
	assert.Equal(t, 2, genes.Total)
	assert.True(t, genes.Truncated)

	w = do(t, router, http.MethodGet, "/v1/primekg/drugs/targets?drug=Unobtainium")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/v1/primekg/drugs/targets")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_Paths(t *testing.T) {
	router, _ := setupTestRouter(t, true)

	w := do(t, router, http.MethodGet, "/v1/primekg/paths?drug=Metformin&disease=type%202%20diabetes%20mellitus&max_path_length=2")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[query.PathsResult](t, w)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, 2, res.Paths[0].Length())
	assert.Equal(t, 2, res.MaxPathLength)

	w = do(t, router, http.MethodGet, "/v1/primekg/paths?drug=Metformin")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_SchemaStatisticsStatus(t *testing.T) {
	router, _ := setupTestRouter(t, true)

	w := do(t, router, http.MethodGet, "/v1/primekg/schema")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[query.Schema](t, w).Relations)

	w = do(t, router, http.MethodGet, "/v1/primekg/statistics")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[query.Statistics](t, w)
	assert.Equal(t, 4, stats.NodeCount)
	assert.Equal(t, 3, stats.EdgeCount)

	w = do(t, router, http.MethodGet, "/v1/primekg/status")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[freshness.Status](t, w)
	assert.Equal(t, freshness.StateActive, st.State)
	assert.Equal(t, uint64(7), st.Version)
}

func TestHandlers_RefreshThrottled(t *testing.T) {
	router, fresh := setupTestRouter(t, true, WithRefreshLimit(time.Hour, 1))

	w := do(t, router, http.MethodPost, "/v1/primekg/refresh")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, decode[RefreshResponse](t, w).Queued)

	w = do(t, router, http.MethodPost, "/v1/primekg/refresh")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
	assert.Equal(t, CodeRateLimited, decode[ErrorResponse](t, w).Code)
	assert.Equal(t, int32(1), fresh.requests.Load())

	// A rejected request does not consume the next token.
	router, _ = setupTestRouter(t, true, WithRefreshLimit(90*time.Second, 1))
	require.Equal(t, http.StatusAccepted, do(t, router, http.MethodPost, "/v1/primekg/refresh").Code)
	for range 3 {
		w = do(t, router, http.MethodPost, "/v1/primekg/refresh")
		require.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "90", w.Header().Get("Retry-After"))
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, "1", retryAfter(0))
	assert.Equal(t, "1", retryAfter(200*time.Millisecond))
	assert.Equal(t, "60", retryAfter(59500*time.Millisecond))
}

func TestHandlers_LogsCarryTraceID(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	router, _ := setupTestRouter(t, true, WithLogger(logger))

	require.Equal(t, http.StatusAccepted, do(t, router, http.MethodPost, "/v1/primekg/refresh").Code)

	spans := rec.Ended()
	require.NotEmpty(t, spans)
	traceID := spans[len(spans)-1].SpanContext().TraceID().String()
	assert.Contains(t, buf.String(), `"trace_id":"`+traceID+`"`)
	assert.Contains(t, buf.String(), `"handler":"HandleRefresh"`)
}

func TestHandlers_RefreshCoalesced(t *testing.T) {
	router, fresh := setupTestRouter(t, true, WithRefreshLimit(time.Millisecond, 5))

	first := decode[RefreshResponse](t, do(t, router, http.MethodPost, "/v1/primekg/refresh"))
	second := decode[RefreshResponse](t, do(t, router, http.MethodPost, "/v1/primekg/refresh"))
	assert.True(t, first.Queued)
	assert.False(t, second.Queued)
	assert.Equal(t, int32(2), fresh.requests.Load())
}

func TestHandlers_History(t *testing.T) {
	router, _ := setupTestRouter(t, true)
	w := do(t, router, http.MethodGet, "/v1/primekg/history")
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	hist := &fakeHistory{records: []freshness.RefreshRecord{
		{Trigger: freshness.TriggerManual, Outcome: freshness.OutcomeSwapped, Version: 7},
	}}
	router, _ = setupTestRouter(t, true, WithHistory(hist))

	w = do(t, router, http.MethodGet, "/v1/primekg/history")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HistoryResponse](t, w)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, freshness.OutcomeSwapped, resp.Records[0].Outcome)
	assert.Equal(t, defaultHistoryLimit, hist.limit)

	do(t, router, http.MethodGet, "/v1/primekg/history?limit=3")
	assert.Equal(t, 3, hist.limit)

	hist.err = errors.New("disk gone")
	w = do(t, router, http.MethodGet, "/v1/primekg/history")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeHistoryFailed, decode[ErrorResponse](t, w).Code)
}

func TestNewRouter_MiddlewareCoversEveryRoute(t *testing.T) {
	g, _, err := graph.Build(context.Background(), testSnapshot(), graph.WithVersion(7))
	require.NoError(t, err)
	fresh := &fakeFreshness{}
	fresh.g.Store(g)

	var seen []string
	count := func(c *gin.Context) {
		seen = append(seen, c.FullPath())
		c.Next()
	}
	router := NewRouter("primekg-test", NewHandlers(query.NewEngine(fresh), fresh), count)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/primekg/search?q=met").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health").Code)
	assert.Equal(t, []string{"/v1/primekg/search", "/health"}, seen)
}

func TestHandlers_Metrics(t *testing.T) {
	router, _ := setupTestRouter(t, true)
	w := do(t, router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}
