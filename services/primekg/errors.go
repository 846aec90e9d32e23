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
	"errors"
	"net/http"

	"github.com/AleutianAI/primekg/services/primekg/query"
)

// Sentinel errors for the HTTP surface.
var (
	// ErrInvalidNodeType indicates an unknown value for the type filter.
	ErrInvalidNodeType = errors.New("invalid node type")

	// ErrHistoryDisabled indicates no refresh journal is configured.
	ErrHistoryDisabled = errors.New("refresh history not configured")
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeEmptyQuery      = "EMPTY_QUERY"
	CodeNotFound        = "NOT_FOUND"
	CodeNoSnapshot      = "NO_SNAPSHOT"
	CodeQueryFailed     = "QUERY_FAILED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeHistoryDisabled = "HISTORY_DISABLED"
	CodeHistoryFailed   = "HISTORY_FAILED"
)

// queryErrorStatus maps a query engine error to an HTTP status and code.
func queryErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		return http.StatusBadRequest, CodeEmptyQuery
	case errors.Is(err, query.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, query.ErrNoSnapshot):
		return http.StatusServiceUnavailable, CodeNoSnapshot
	default:
		return http.StatusInternalServerError, CodeQueryFailed
	}
}
