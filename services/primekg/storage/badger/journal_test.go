// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/primekg/services/primekg/freshness"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	j, err := NewJournal(db)
	require.NoError(t, err)
	return j
}

func record(start time.Time, outcome freshness.Outcome, version uint64) freshness.RefreshRecord {
	return freshness.RefreshRecord{
		StartedAt: start,
		Trigger:   freshness.TriggerSchedule,
		Outcome:   outcome,
		Version:   version,
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestOpen_Persistent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	cfg := DefaultConfig(dir)
	cfg.GCInterval = time.Hour

	db, err := Open(cfg)
	require.NoError(t, err)
	j, err := NewJournal(db)
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(context.Background(), record(base, freshness.OutcomeSwapped, 7)))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "second close is a no-op")

	db2, err := Open(cfg)
	require.NoError(t, err)
	defer db2.Close()
	j2, err := NewJournal(db2)
	require.NoError(t, err)

	recs, err := j2.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(7), recs[0].Version)
	assert.True(t, base.Equal(recs[0].StartedAt))
}

func TestJournal_ListNewestFirst(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Written out of order on purpose.
	require.NoError(t, j.Record(ctx, record(base.Add(2*time.Hour), freshness.OutcomeUnchanged, 2)))
	require.NoError(t, j.Record(ctx, record(base, freshness.OutcomeSwapped, 1)))
	require.NoError(t, j.Record(ctx, record(base.Add(5*time.Hour), freshness.OutcomeFetchFailed, 0)))

	recs, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, freshness.OutcomeFetchFailed, recs[0].Outcome)
	assert.Equal(t, freshness.OutcomeUnchanged, recs[1].Outcome)
	assert.Equal(t, freshness.OutcomeSwapped, recs[2].Outcome)

	recs, err = j.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, freshness.OutcomeFetchFailed, recs[0].Outcome)
}

func TestJournal_SameInstant(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, record(at, freshness.OutcomeSwapped, 1)))
	require.NoError(t, j.Record(ctx, record(at, freshness.OutcomeUnchanged, 1)))

	recs, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, freshness.OutcomeUnchanged, recs[0].Outcome)
}

func TestJournal_Prune(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		require.NoError(t, j.Record(ctx, record(base.Add(time.Duration(i)*time.Hour), freshness.OutcomeSwapped, uint64(i+1))))
	}

	removed, err := j.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	recs, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(5), recs[0].Version)
	assert.Equal(t, uint64(4), recs[1].Version)

	removed, err = j.Prune(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestJournal_CancelledContext(t *testing.T) {
	j := openJournal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := j.Record(ctx, record(time.Now(), freshness.OutcomeSwapped, 1))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = j.List(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJournal_RecorderInterface(t *testing.T) {
	var _ freshness.HistoryRecorder = openJournal(t)
}
