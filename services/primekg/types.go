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
	"github.com/AleutianAI/primekg/services/primekg/freshness"
)

// ServiceVersion is the PrimeKG service version.
const ServiceVersion = "0.1.0"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is returned by GET /ready.
type ReadyResponse struct {
	Ready   bool            `json:"ready"`
	State   freshness.State `json:"state"`
	Version uint64          `json:"version"`
}

// SearchRequest holds the query parameters of GET /v1/primekg/search.
type SearchRequest struct {
	Query string `form:"q" binding:"required"`
	Type  string `form:"type"`
	Limit int    `form:"limit" binding:"omitempty,min=0"`
}

// RelationshipsRequest holds the query parameters of
// GET /v1/primekg/nodes/:id/relationships.
type RelationshipsRequest struct {
	Relation string `form:"relation"`
	Limit    int    `form:"limit" binding:"omitempty,min=0"`
}

// TargetsRequest holds the query parameters of GET /v1/primekg/drugs/targets.
type TargetsRequest struct {
	Drug string `form:"drug" binding:"required"`
}

// GenesRequest holds the query parameters of GET /v1/primekg/diseases/genes.
type GenesRequest struct {
	Disease string `form:"disease" binding:"required"`
	Limit   int    `form:"limit" binding:"omitempty,min=0"`
}

// PathsRequest holds the query parameters of GET /v1/primekg/paths.
type PathsRequest struct {
	Drug          string `form:"drug" binding:"required"`
	Disease       string `form:"disease" binding:"required"`
	MaxPathLength int    `form:"max_path_length"`
}

// HistoryRequest holds the query parameters of GET /v1/primekg/history.
type HistoryRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=0,max=1000"`
}

// HistoryResponse lists refresh attempts, newest first.
type HistoryResponse struct {
	Records []freshness.RefreshRecord `json:"records"`
}

// RefreshResponse is returned by POST /v1/primekg/refresh.
type RefreshResponse struct {
	// Queued is false when a refresh request was already pending and this
	// one was folded into it.
	Queued bool            `json:"queued"`
	State  freshness.State `json:"state"`
}
