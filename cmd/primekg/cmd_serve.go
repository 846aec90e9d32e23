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
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/primekg/services/primekg"
	"github.com/AleutianAI/primekg/services/primekg/freshness"
	"github.com/AleutianAI/primekg/services/primekg/telemetry"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP query API and keep the snapshot fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, addr, debug)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable gin debug mode and request logging")
	return cmd
}

func runServe(parent context.Context, opts *globalOptions, addr string, debug bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(opts, os.Stdout, true)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger.Slog()
	cfg := a.cfg
	if addr == "" {
		addr = cfg.Server.Addr
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	if cfg.AutoUpdate && (cfg.Sources.NodesURL == "" || cfg.Sources.EdgesURL == "") {
		logger.Warn("auto_update is on but no sources are configured; scheduled refreshes will fail",
			"data_dir", cfg.DataPath)
	}

	if a.journal != nil && cfg.History.Keep > 0 {
		if n, err := a.journal.Prune(ctx, cfg.History.Keep); err != nil {
			logger.Warn("prune refresh history", "error", err)
		} else if n > 0 {
			logger.Info("pruned refresh history", "removed", n)
		}
	}

	if err := a.manager.Start(ctx); err != nil {
		return err
	}

	if cfg.WatchSources {
		w, err := a.manager.WatchSources(ctx, freshness.DefaultWatchDebounce)
		switch {
		case errors.Is(err, freshness.ErrNoLocalSources):
			logger.Warn("watch_sources is on but no source is a local file")
		case err != nil:
			logger.Warn("source watcher unavailable", "error", err)
		default:
			defer w.Stop()
		}
	}

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	handlerOpts := []primekg.HandlersOption{
		primekg.WithLogger(logger),
		primekg.WithRefreshLimit(cfg.Server.RefreshInterval, cfg.Server.RefreshBurst),
	}
	if a.journal != nil {
		handlerOpts = append(handlerOpts, primekg.WithHistory(a.journal))
	}
	handlers := primekg.NewHandlers(a.engine, a.manager, handlerOpts...)
	var middleware []gin.HandlerFunc
	if debug {
		middleware = append(middleware, gin.Logger())
	}
	router := primekg.NewRouter(cfg.Telemetry.ServiceName, handlers, middleware...)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting PrimeKG server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down PrimeKG server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
