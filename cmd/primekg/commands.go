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
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	logLevel   string
	jsonOut    bool
	plain      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "primekg",
		Short: "Query and serve the PrimeKG precision medicine knowledge graph",
		Long: `primekg keeps a local PrimeKG snapshot fresh and answers queries over it:
name search, drug targets, disease genes, relationships and bounded
drug to disease paths.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.primekg/primekg.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flags.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	flags.BoolVar(&opts.plain, "plain", false, "disable styled output")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newRefreshCmd(opts),
		newSearchCmd(opts),
		newRelationshipsCmd(opts),
		newTargetsCmd(opts),
		newGenesCmd(opts),
		newPathsCmd(opts),
		newDetailsCmd(opts),
		newStatsCmd(opts),
		newStatusCmd(opts),
		newHistoryCmd(opts),
		newInitConfigCmd(opts),
	)
	return rootCmd
}
