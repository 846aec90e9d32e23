// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/AleutianAI/primekg/cmd/primekg/config"
	"github.com/AleutianAI/primekg/pkg/logging"
	"github.com/AleutianAI/primekg/pkg/ux"
	"github.com/AleutianAI/primekg/services/primekg/fetch"
	"github.com/AleutianAI/primekg/services/primekg/freshness"
	"github.com/AleutianAI/primekg/services/primekg/query"
	badgerstore "github.com/AleutianAI/primekg/services/primekg/storage/badger"
)

// app is the wired set of components one command runs against.
type app struct {
	cfg     config.Config
	logger  *logging.Logger
	manager *freshness.Manager
	engine  *query.Engine
	db      *badgerstore.DB
	journal *badgerstore.Journal
	out     io.Writer
	printer *ux.Printer
	jsonOut bool
}

// newApp loads configuration and wires the manager and engine. With
// withHistory set, the refresh journal is opened; failure to open it is
// logged and the app runs without history.
func newApp(opts *globalOptions, out io.Writer, withHistory bool) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "primekg",
		JSON:    cfg.Logging.JSON,
	})

	a := &app{
		cfg:     cfg,
		logger:  logger,
		out:     out,
		printer: ux.NewPrinter(out, opts.plain),
		jsonOut: opts.jsonOut,
	}

	if withHistory && cfg.History.Path != "" {
		dbCfg := badgerstore.DefaultConfig(cfg.History.Path)
		dbCfg.Logger = logger.Slog()
		if db, err := badgerstore.Open(dbCfg); err != nil {
			logger.Warn("refresh history unavailable", "path", cfg.History.Path, "error", err)
		} else {
			a.db = db
			a.journal, _ = badgerstore.NewJournal(db)
		}
	}

	mgrOpts := []freshness.Option{freshness.WithLogger(logger.Slog())}
	if a.journal != nil {
		mgrOpts = append(mgrOpts, freshness.WithHistory(a.journal))
	}
	downloader := fetch.New(fetch.Config{Logger: logger.Slog()})
	a.manager = freshness.NewManager(freshness.Config{
		DataDir: cfg.DataPath,
		Source: freshness.SourceDescriptor{
			NodesURL: cfg.Sources.NodesURL,
			EdgesURL: cfg.Sources.EdgesURL,
		},
		AutoUpdate:     cfg.AutoUpdate,
		UpdateInterval: cfg.UpdateInterval(),
		CheckInterval:  cfg.CheckInterval,
		FetchTimeout:   cfg.FetchTimeout,
	}, downloader, mgrOpts...)

	a.engine = query.NewEngine(a.manager, engineOptions(cfg)...)
	return a, nil
}

func engineOptions(cfg config.Config) []query.Option {
	return []query.Option{
		query.WithRelationPolicy(query.RelationPolicy{
			DrugTargets:  query.ParseRelationSet(cfg.Relations.DrugTargets),
			DiseaseGenes: query.ParseRelationSet(cfg.Relations.DiseaseGenes),
		}),
		query.WithMaxPaths(cfg.Paths.MaxPaths),
		query.WithMaxFrontier(cfg.Paths.MaxFrontier),
		query.WithMaxTierCandidates(cfg.Search.MaxTierCandidates),
		query.WithSubstringFallback(cfg.Search.SubstringFallback),
	}
}

// loadCache publishes the cached snapshot without touching the network.
func (a *app) loadCache(ctx context.Context) error {
	err := a.manager.WarmStart(ctx)
	if errors.Is(err, freshness.ErrNoCache) {
		return fmt.Errorf("no cached snapshot in %s; run `primekg refresh` first", a.cfg.DataPath)
	}
	return err
}

func (a *app) close() {
	a.manager.Stop()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close history database", "error", err)
		}
	}
	_ = a.logger.Close()
}

// emit prints v as indented JSON when --json is set and returns true.
func (a *app) emit(v any) (bool, error) {
	if !a.jsonOut {
		return false, nil
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}
