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
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/primekg/cmd/primekg/config"
	"github.com/AleutianAI/primekg/services/primekg/freshness"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cached snapshot and whether it is stale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.OutOrStdout(), false)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.manager.WarmStart(cmd.Context()); err != nil && !errors.Is(err, freshness.ErrNoCache) {
				a.logger.Warn("cached snapshot unusable", "error", err)
			}

			st := a.manager.Status()
			if ok, err := a.emit(st); ok {
				return err
			}
			a.printer.KV(
				"state", st.State.String(),
				"version", strconv.FormatUint(st.Version, 10),
				"nodes", strconv.Itoa(st.NodeCount),
				"edges", strconv.Itoa(st.EdgeCount),
				"last update", formatTime(st.LastUpdateTime),
				"stale", strconv.FormatBool(st.Stale),
				"auto update", strconv.FormatBool(st.AutoUpdate),
				"data path", a.cfg.DataPath,
			)
			return nil
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent refresh attempts",
		Long: `history reads the refresh journal. The journal is locked while
primekg serve is running; query GET /v1/primekg/history instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.OutOrStdout(), true)
			if err != nil {
				return err
			}
			defer a.close()
			if a.journal == nil {
				return errors.New("refresh history is not available (history.path unset or locked)")
			}

			records, err := a.journal.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ok, err := a.emit(records); ok {
				return err
			}
			rows := make([][]string, len(records))
			for i, r := range records {
				rows[i] = []string{
					formatTime(r.StartedAt),
					r.Trigger,
					string(r.Outcome),
					strconv.FormatUint(r.Version, 10),
					strconv.Itoa(r.NodeCount),
					strconv.Itoa(r.EdgeCount),
					(time.Duration(r.DurationMs) * time.Millisecond).String(),
					r.Error,
				}
			}
			a.printer.Table([]string{"STARTED", "TRIGGER", "OUTCOME", "VERSION", "NODES", "EDGES", "DURATION", "ERROR"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records")
	return cmd
}

func newInitConfigCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
