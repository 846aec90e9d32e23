// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the primekg YAML configuration.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/primekg/services/primekg/telemetry"
)

// Config is the on-disk configuration for the primekg binary.
type Config struct {
	// DataPath holds the cached snapshot tables and state.json.
	DataPath string `yaml:"data_path" validate:"required"`

	AutoUpdate         bool          `yaml:"auto_update"`
	UpdateIntervalDays int           `yaml:"update_interval_days" validate:"gte=1,lte=3650"`
	CheckInterval      time.Duration `yaml:"check_interval" validate:"gte=0"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" validate:"gte=0"`

	Sources SourcesConfig `yaml:"sources"`

	// WatchSources refreshes when local source files change.
	WatchSources bool `yaml:"watch_sources"`

	Relations RelationsConfig  `yaml:"relations"`
	Search    SearchConfig     `yaml:"search"`
	Paths     PathsConfig      `yaml:"paths"`
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	History   HistoryConfig    `yaml:"history"`
}

// SourcesConfig locates the upstream node and edge tables. Values may be
// http(s) URLs, file:// URLs or local paths.
type SourcesConfig struct {
	NodesURL string `yaml:"nodes_url" validate:"required_with=EdgesURL"`
	EdgesURL string `yaml:"edges_url" validate:"required_with=NodesURL"`
}

// RelationsConfig holds relation policy entries, "relation" or
// "relation:display_relation", in rank order.
type RelationsConfig struct {
	DrugTargets  []string `yaml:"drug_targets" validate:"min=1,dive,required"`
	DiseaseGenes []string `yaml:"disease_genes" validate:"min=1,dive,required"`
}

type SearchConfig struct {
	MaxTierCandidates int  `yaml:"max_tier_candidates" validate:"gte=0"`
	SubstringFallback bool `yaml:"substring_fallback"`
}

type PathsConfig struct {
	MaxPaths    int `yaml:"max_paths" validate:"gte=0"`
	MaxFrontier int `yaml:"max_frontier" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`

	// RefreshInterval and RefreshBurst throttle POST /refresh.
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gte=0"`
	RefreshBurst    int           `yaml:"refresh_burst" validate:"gte=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// HistoryConfig locates the refresh journal. An empty Path disables it.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`

	// Keep bounds the journal; older records are pruned at startup.
	Keep int `yaml:"keep" validate:"gte=0"`
}

// UpdateInterval returns UpdateIntervalDays as a duration.
func (c Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalDays) * 24 * time.Hour
}

// DefaultDataPath returns ~/primekg_data, or ./primekg_data when the home
// directory is unknown.
func DefaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "primekg_data"
	}
	return filepath.Join(home, "primekg_data")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	dataPath := DefaultDataPath()
	return Config{
		DataPath:           dataPath,
		AutoUpdate:         true,
		UpdateIntervalDays: 7,
		CheckInterval:      time.Hour,
		FetchTimeout:       30 * time.Minute,
		Relations: RelationsConfig{
			DrugTargets:  []string{"drug_target", "drug_protein:target", "drug_protein"},
			DiseaseGenes: []string{"disease_gene", "disease_protein"},
		},
		Search: SearchConfig{
			MaxTierCandidates: 20000,
			SubstringFallback: true,
		},
		Paths: PathsConfig{
			MaxPaths:    50,
			MaxFrontier: 4096,
		},
		Server: ServerConfig{
			Addr:            ":8090",
			RefreshInterval: time.Minute,
			RefreshBurst:    1,
		},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
		History: HistoryConfig{
			Path: filepath.Join(dataPath, "history"),
			Keep: 500,
		},
	}
}
