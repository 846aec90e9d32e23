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
	"log/slog"
	"path/filepath"
	"time"

	"github.com/AleutianAI/primekg/services/primekg/graph"
)

// Layout of the data directory. Each accepted snapshot lives in its own
// SnapshotsDir/<version> directory holding NodesFile and EdgesFile; the
// state file names the one that is authoritative.
const (
	NodesFile    = "nodes.csv"
	EdgesFile    = "edges.csv"
	StateFile    = "state.json"
	SnapshotsDir = "snapshots"
	stagingDir   = "staging"
)

// Defaults.
const (
	DefaultUpdateInterval = 7 * 24 * time.Hour
	DefaultCheckInterval  = time.Hour
	DefaultFetchTimeout   = 30 * time.Minute
)

// Downloader retrieves one remote resource into a local file.
//
// Fetch writes the resource to dest, replacing any existing file. It must
// honor ctx cancellation and should report failures as *FetchError.
type Downloader interface {
	Fetch(ctx context.Context, url, dest string) error
}

// DownloaderFunc adapts a function to Downloader.
type DownloaderFunc func(ctx context.Context, url, dest string) error

// Fetch implements Downloader.
func (f DownloaderFunc) Fetch(ctx context.Context, url, dest string) error {
	return f(ctx, url, dest)
}

// Config configures a Manager.
type Config struct {
	// DataDir holds the snapshot directories, the staging area and the
	// state file.
	DataDir string

	// Source names the node and edge tables to download.
	Source SourceDescriptor

	// AutoUpdate enables scheduled refreshes. Manual refreshes work either way.
	AutoUpdate bool

	// UpdateInterval is the age at which the served snapshot is stale.
	UpdateInterval time.Duration

	// CheckInterval is how often the background loop checks staleness.
	// After a failed attempt the loop waits a full UpdateInterval before
	// trying again; forced refreshes are not throttled.
	CheckInterval time.Duration

	// FetchTimeout bounds one download attempt of both tables.
	FetchTimeout time.Duration
}

// DefaultConfig returns defaults for dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:        dataDir,
		AutoUpdate:     true,
		UpdateInterval: DefaultUpdateInterval,
		CheckInterval:  DefaultCheckInterval,
		FetchTimeout:   DefaultFetchTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.CheckInterval > c.UpdateInterval {
		c.CheckInterval = c.UpdateInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}

func (c Config) statePath() string     { return filepath.Join(c.DataDir, StateFile) }
func (c Config) stagingPath() string   { return filepath.Join(c.DataDir, stagingDir) }
func (c Config) snapshotsPath() string { return filepath.Join(c.DataDir, SnapshotsDir) }

func (c Config) snapshotPath(name string) string {
	return filepath.Join(c.DataDir, SnapshotsDir, name)
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithLogger sets the logger. Nil uses slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithHistory records every refresh attempt to h.
func WithHistory(h HistoryRecorder) Option {
	return func(m *Manager) {
		m.history = h
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithGraphOptions passes options to every graph build.
func WithGraphOptions(opts ...graph.GraphOption) Option {
	return func(m *Manager) {
		m.graphOpts = append(m.graphOpts, opts...)
	}
}

// RefreshResult describes one completed refresh attempt.
type RefreshResult struct {
	Trigger         string        `json:"trigger"`
	Outcome         Outcome       `json:"outcome"`
	Version         uint64        `json:"version"`
	PreviousVersion uint64        `json:"previous_version"`
	NodeCount       int           `json:"node_count"`
	EdgeCount       int           `json:"edge_count"`
	Checksum        string        `json:"checksum"`
	Duration        time.Duration `json:"duration"`
}

// Status is a point-in-time view of the manager.
type Status struct {
	State          State     `json:"state"`
	Version        uint64    `json:"version"`
	NodeCount      int       `json:"node_count"`
	EdgeCount      int       `json:"edge_count"`
	LastUpdateTime time.Time `json:"last_update_time,omitzero"`
	LastAttempt    time.Time `json:"last_attempt,omitzero"`
	LastError      string    `json:"last_error,omitempty"`
	SourceChecksum string    `json:"source_checksum,omitempty"`
	Stale          bool      `json:"stale"`
	AutoUpdate     bool      `json:"auto_update"`
}
