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
	"time"
)

// Triggers recorded on refresh attempts.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerWatch    = "watch"
)

// Outcome of one refresh attempt.
type Outcome string

const (
	// OutcomeSwapped means a new index was built and is now served.
	OutcomeSwapped Outcome = "swapped"

	// OutcomeUnchanged means the downloaded source matched the served one.
	OutcomeUnchanged Outcome = "unchanged"

	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeParseFailed Outcome = "parse_failed"
	OutcomeBuildFailed Outcome = "build_failed"

	// OutcomeStoreFailed means the staged files could not be promoted into
	// the data directory.
	OutcomeStoreFailed Outcome = "store_failed"
)

// Succeeded reports whether the attempt left a current index in place.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSwapped || o == OutcomeUnchanged
}

// RefreshRecord is one refresh attempt as written to history.
type RefreshRecord struct {
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Trigger    string    `json:"trigger"`
	Outcome    Outcome   `json:"outcome"`
	Version    uint64    `json:"version,omitempty"`
	NodeCount  int       `json:"node_count,omitempty"`
	EdgeCount  int       `json:"edge_count,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// HistoryRecorder persists refresh attempts. Implementations must be safe
// for concurrent use. Record errors are logged and otherwise ignored.
type HistoryRecorder interface {
	Record(ctx context.Context, rec RefreshRecord) error
}
