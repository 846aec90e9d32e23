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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// State is the manager lifecycle state.
type State int32

const (
	// StateIdle means no index has been loaded and no refresh has run.
	StateIdle State = iota

	// StateRefreshing means a refresh is in flight. A prior index, if any,
	// is still served.
	StateRefreshing

	// StateActive means an index is being served.
	StateActive

	// StateFailed means the last attempt failed and no index is served.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// SourceDescriptor names where a snapshot came from.
type SourceDescriptor struct {
	NodesURL string `json:"nodes_url"`
	EdgesURL string `json:"edges_url"`
}

// Metadata is the persisted record of the last successful update.
type Metadata struct {
	LastUpdateTime  time.Time        `json:"last_update_time"`
	SourceChecksum  string           `json:"source_checksum"`
	SourceSize      int64            `json:"source_size"`
	SnapshotVersion uint64           `json:"snapshot_version"`
	Source          SourceDescriptor `json:"source_descriptor"`

	// SnapshotDir is the directory under SnapshotsDir holding the tables
	// this record describes.
	SnapshotDir string `json:"snapshot_dir"`
}

// IsZero reports whether no update has been recorded.
func (m Metadata) IsZero() bool {
	return m.LastUpdateTime.IsZero()
}

// validSnapshotDir reports whether name is a plain directory name.
func validSnapshotDir(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}

// loadMetadata reads the state file. A missing file yields zero Metadata
// and no error.
func loadMetadata(path string) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("decode state file %s: %w", path, err)
	}
	return m, nil
}

// saveMetadata writes the state file through a temp file and rename, so a
// crash never leaves a partial file behind.
func saveMetadata(path string, m Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
