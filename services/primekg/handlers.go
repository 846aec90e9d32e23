// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package primekg exposes the PrimeKG query engine and freshness manager
// over HTTP.
//
// All query endpoints are read-only and served from the current index. The
// only write is POST /v1/primekg/refresh, which queues a refresh with the
// freshness manager and returns immediately.
package primekg

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/primekg/services/primekg/freshness"
	"github.com/AleutianAI/primekg/services/primekg/query"
	"github.com/AleutianAI/primekg/services/primekg/snapshot"
	"github.com/AleutianAI/primekg/services/primekg/telemetry"
)

// Freshness is the part of the freshness manager the handlers use.
// *freshness.Manager implements it.
type Freshness interface {
	query.Source
	Status() freshness.Status
	RequestRefresh(trigger string) bool
}

// HistoryLister lists recorded refresh attempts, newest first.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]freshness.RefreshRecord, error)
}

// Default throttle for POST /refresh.
const (
	DefaultRefreshInterval = time.Minute
	DefaultRefreshBurst    = 1
	defaultHistoryLimit    = 20
)

// Handlers contains the HTTP handlers for the PrimeKG service.
type Handlers struct {
	engine    *query.Engine
	freshness Freshness
	history   HistoryLister
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// HandlersOption configures Handlers.
type HandlersOption func(*Handlers)

// WithHistory enables GET /v1/primekg/history.
func WithHistory(h HistoryLister) HandlersOption {
	return func(hs *Handlers) { hs.history = h }
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) HandlersOption {
	return func(hs *Handlers) {
		if l != nil {
			hs.logger = l
		}
	}
}

// WithRefreshLimit throttles POST /refresh to one request per interval with
// the given burst.
func WithRefreshLimit(interval time.Duration, burst int) HandlersOption {
	return func(hs *Handlers) {
		hs.limiter = rate.NewLimiter(rate.Every(interval), max(burst, 1))
	}
}

// NewHandlers creates handlers for engine and fresh.
func NewHandlers(engine *query.Engine, fresh Freshness, opts ...HandlersOption) *Handlers {
	h := &Handlers{
		engine:    engine,
		freshness: fresh,
		limiter:   rate.NewLimiter(rate.Every(DefaultRefreshInterval), DefaultRefreshBurst),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return telemetry.LoggerWithTrace(c.Request.Context(), h.logger).
		With("request_id", getOrCreateRequestID(c), "handler", handler)
}

// retryAfter formats d as whole seconds for a Retry-After header.
func retryAfter(d time.Duration) string {
	return strconv.Itoa(max(int(math.Ceil(d.Seconds())), 1))
}

func invalidRequest(c *gin.Context, logger *slog.Logger, err error) {
	logger.Warn("Invalid query parameters", "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: "Invalid query parameters: " + err.Error(),
		Code:  CodeInvalidRequest,
	})
}

func queryFailed(c *gin.Context, logger *slog.Logger, err error) {
	status, code := queryErrorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Query failed", "error", err)
	} else {
		logger.Info("Query rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// HandleSearch handles GET /v1/primekg/search.
//
// Query Parameters:
//
//	q: search text (required)
//	type: node type filter, e.g. drug or gene/protein (optional)
//	limit: maximum matches (optional, default 10, max 1000)
//
// Response:
//
//	200 OK: query.SearchResult
//	400 Bad Request: missing q or unknown type
//	503 Service Unavailable: no index loaded
func (h *Handlers) HandleSearch(c *gin.Context) {
	logger := h.requestLogger(c, "HandleSearch")

	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}

	var typeFilter snapshot.NodeType
	if req.Type != "" {
		t, ok := snapshot.ParseNodeType(req.Type)
		if !ok {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: ErrInvalidNodeType.Error() + ": " + req.Type,
				Code:  CodeInvalidRequest,
			})
			return
		}
		typeFilter = t
	}

	result, err := h.engine.Search(c.Request.Context(), req.Query, typeFilter, req.Limit)
	if err != nil {
		queryFailed(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleNodeRelationships handles GET /v1/primekg/nodes/:id/relationships.
//
// Path Parameters:
//
//	id: external node id
//
// Query Parameters:
//
//	relation: relation kind filter (optional)
//	limit: maximum entries (optional, default 50)
func (h *Handlers) HandleNodeRelationships(c *gin.Context) {
	logger := h.requestLogger(c, "HandleNodeRelationships")

	var req RelationshipsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}

	result, err := h.engine.GetNodeRelationships(c.Request.Context(), c.Param("id"), req.Relation, req.Limit)
	if err != nil {
		queryFailed(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleNodeDetails handles GET /v1/primekg/nodes/:id.
func (h *Handlers) HandleNodeDetails(c *gin.Context) {
	logger := h.requestLogger(c, "HandleNodeDetails")

	result, err := h.engine.GetNodeDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		queryFailed(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleDrugTargets handles GET /v1/primekg/drugs/targets?drug=NAME.
func (h *Handlers) HandleDrugTargets(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDrugTargets")

	var req TargetsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}

	result, err := h.engine.FindDrugTargets(c.Request.Context(), req.Drug)
	if err != nil {
		queryFailed(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleDiseaseGenes handles GET /v1/primekg/diseases/genes?disease=NAME.
func (h *Handlers) HandleDiseaseGenes(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDiseaseGenes")

	var req GenesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}

	result, err := h.engine.FindDiseaseGenes(c.Request.Context(), req.Disease, req.Limit)
	if err != nil {
		queryFailed(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandlePaths handles GET /v1/primekg/paths.
//
// Query Parameters:
//
//	drug, disease: entity names (required)
//	max_path_length: edge bound (optional, default 3, clamped to 6)
//
// Response:
//
//	200 OK: query.PathsResult; paths may be empty
//	404 Not Found: drug or disease did not resolve
func (h *Handlers) HandlePaths(c *gin.Context) {
	logger := h.requestLogger(c, "HandlePaths")

	var req PathsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}

	result, err := h.engine.FindDrugDiseasePaths(c.Request.Context(), req.Drug, req.Disease, req.MaxPathLength)
	if err != nil {
		queryFailed(c, logger, err)
		return
	}
	if result.Truncated {
		logger.Info("Path search truncated",
			"drug", req.Drug,
			"disease", req.Disease,
			"paths", len(result.Paths))
	}
	c.JSON(http.StatusOK, result)
}

// HandleSchema handles GET /v1/primekg/schema.
func (h *Handlers) HandleSchema(c *gin.Context) {
	logger := h.requestLogger(c, "HandleSchema")

	result, err := h.engine.Schema(c.Request.Context())
	if err != nil {
		queryFailed(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleStatistics handles GET /v1/primekg/statistics.
func (h *Handlers) HandleStatistics(c *gin.Context) {
	logger := h.requestLogger(c, "HandleStatistics")

	result, err := h.engine.Statistics(c.Request.Context())
	if err != nil {
		queryFailed(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleStatus handles GET /v1/primekg/status.
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.freshness.Status())
}

// HandleRefresh handles POST /v1/primekg/refresh.
//
// Description:
//
//	Queues a refresh and returns without waiting for it. Requests arriving
//	while one is pending are folded into it.
//
// Response:
//
//	202 Accepted: RefreshResponse
//	429 Too Many Requests: throttled
func (h *Handlers) HandleRefresh(c *gin.Context) {
	logger := h.requestLogger(c, "HandleRefresh")

	if r := h.limiter.Reserve(); r.Delay() > 0 {
		wait := r.Delay()
		r.Cancel()
		c.Header("Retry-After", retryAfter(wait))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "refresh requested too recently",
			Code:  CodeRateLimited,
		})
		return
	}

	queued := h.freshness.RequestRefresh(freshness.TriggerManual)
	logger.Info("Refresh requested", "queued", queued)
	c.JSON(http.StatusAccepted, RefreshResponse{
		Queued: queued,
		State:  h.freshness.Status().State,
	})
}

// HandleHistory handles GET /v1/primekg/history.
func (h *Handlers) HandleHistory(c *gin.Context) {
	logger := h.requestLogger(c, "HandleHistory")

	if h.history == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{
			Error: ErrHistoryDisabled.Error(),
			Code:  CodeHistoryDisabled,
		})
		return
	}

	var req HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultHistoryLimit
	}

	records, err := h.history.List(c.Request.Context(), req.Limit)
	if err != nil {
		logger.Error("History lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  CodeHistoryFailed,
		})
		return
	}
	if records == nil {
		records = []freshness.RefreshRecord{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Records: records})
}

// HandleHealth handles GET /health. Always 200 while the process runs.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /ready.
//
// Returns 503 until an index has been published.
func (h *Handlers) HandleReady(c *gin.Context) {
	st := h.freshness.Status()
	resp := ReadyResponse{
		Ready:   h.freshness.Current() != nil,
		State:   st.State,
		Version: st.Version,
	}
	if !resp.Ready {
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
