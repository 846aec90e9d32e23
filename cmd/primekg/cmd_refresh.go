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
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/primekg/services/primekg/freshness"
)

func newRefreshCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Download the configured sources and rebuild the index",
		Long: `refresh loads the cached snapshot, then downloads the node and edge
tables and swaps in a new index if they changed. Without --force the
download is skipped when the cache is still fresh.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.OutOrStdout(), true)
			if err != nil {
				return err
			}
			defer a.close()
			return runRefresh(cmd.Context(), a, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "refresh even when the cache is fresh")
	return cmd
}

func runRefresh(ctx context.Context, a *app, force bool) error {
	if err := a.manager.WarmStart(ctx); err != nil && !errors.Is(err, freshness.ErrNoCache) {
		a.logger.Warn("cached snapshot unusable", "error", err)
	}

	if !force && !a.manager.ShouldUpdate() {
		st := a.manager.Status()
		if ok, err := a.emit(st); ok {
			return err
		}
		a.printer.Success(fmt.Sprintf("snapshot is fresh (version %d, updated %s)",
			st.Version, st.LastUpdateTime.Format("2006-01-02 15:04")))
		return nil
	}

	res, err := a.manager.Refresh(ctx)
	if res != nil {
		if ok, eerr := a.emit(res); ok {
			return errors.Join(err, eerr)
		}
		printRefreshResult(a, res)
	}
	return err
}

func printRefreshResult(a *app, res *freshness.RefreshResult) {
	switch res.Outcome {
	case freshness.OutcomeSwapped:
		a.printer.Success(fmt.Sprintf("index swapped: version %d -> %d", res.PreviousVersion, res.Version))
	case freshness.OutcomeUnchanged:
		a.printer.Success("sources unchanged")
	default:
		a.printer.Warning("refresh failed: " + string(res.Outcome))
	}
	a.printer.KV(
		"nodes", strconv.Itoa(res.NodeCount),
		"edges", strconv.Itoa(res.EdgeCount),
		"checksum", res.Checksum,
		"duration", res.Duration.String(),
	)
}
