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
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/primekg/services/primekg/graph"
	"github.com/AleutianAI/primekg/services/primekg/query"
	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

// queryCmd builds a command that loads the cached index and runs fn.
func queryCmd(opts *globalOptions, use, short string, args cobra.PositionalArgs, fn func(ctx context.Context, a *app, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			a, err := newApp(opts, cmd.OutOrStdout(), false)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.loadCache(cmd.Context()); err != nil {
				return err
			}
			return fn(cmd.Context(), a, argv)
		},
	}
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var nodeType string
	var limit int

	cmd := queryCmd(opts, "search <query>", "Search nodes by name or id", cobra.MinimumNArgs(1),
		func(ctx context.Context, a *app, args []string) error {
			var filter snapshot.NodeType
			if nodeType != "" {
				t, ok := snapshot.ParseNodeType(nodeType)
				if !ok {
					return fmt.Errorf("unknown node type %q", nodeType)
				}
				filter = t
			}
			res, err := a.engine.Search(ctx, strings.Join(args, " "), filter, limit)
			if err != nil {
				return err
			}
			if ok, err := a.emit(res); ok {
				return err
			}
			rows := make([][]string, len(res.Matches))
			for i, m := range res.Matches {
				rows[i] = []string{m.ID, m.Name, m.Type.String(), m.Source, m.Tier.String()}
			}
			a.printer.Table([]string{"ID", "NAME", "TYPE", "SOURCE", "MATCH"}, rows)
			if res.Truncated {
				a.printer.Muted(fmt.Sprintf("more matches exist; raise --limit (now %d)", len(res.Matches)))
			}
			return nil
		})
	cmd.Flags().StringVarP(&nodeType, "type", "t", "", "restrict to a node type, e.g. drug or gene/protein")
	cmd.Flags().IntVarP(&limit, "limit", "n", query.DefaultSearchLimit, "maximum matches")
	return cmd
}

func newRelationshipsCmd(opts *globalOptions) *cobra.Command {
	var relation string
	var limit int

	cmd := queryCmd(opts, "relationships <node-id>", "List the edges of a node", cobra.ExactArgs(1),
		func(ctx context.Context, a *app, args []string) error {
			res, err := a.engine.GetNodeRelationships(ctx, args[0], relation, limit)
			if err != nil {
				return err
			}
			if ok, err := a.emit(res); ok {
				return err
			}
			a.printer.Title(fmt.Sprintf("%s (%s, %s)", res.Node.Name, res.Node.ID, res.Node.Type))
			rows := make([][]string, len(res.Relationships))
			for i, r := range res.Relationships {
				rows[i] = []string{r.Relation, r.DisplayRelation, r.Direction, r.Neighbor.ID, r.Neighbor.Name, r.Neighbor.Type.String()}
			}
			a.printer.Table([]string{"RELATION", "DISPLAY", "DIRECTION", "ID", "NAME", "TYPE"}, rows)
			if res.Truncated {
				a.printer.Muted(fmt.Sprintf("showing %d of %d", len(res.Relationships), res.Total))
			}
			return nil
		})
	cmd.Flags().StringVarP(&relation, "relation", "r", "", "only this relation kind")
	cmd.Flags().IntVarP(&limit, "limit", "n", query.DefaultRelationshipLimit, "maximum entries")
	return cmd
}

func associationRows(assocs []query.Association) [][]string {
	rows := make([][]string, len(assocs))
	for i, as := range assocs {
		rows[i] = []string{as.Node.ID, as.Node.Name, as.Relation, as.DisplayRelation}
	}
	return rows
}

func newTargetsCmd(opts *globalOptions) *cobra.Command {
	return queryCmd(opts, "targets <drug-name>", "List the gene/protein targets of a drug", cobra.MinimumNArgs(1),
		func(ctx context.Context, a *app, args []string) error {
			res, err := a.engine.FindDrugTargets(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if ok, err := a.emit(res); ok {
				return err
			}
			a.printer.Title(fmt.Sprintf("Targets of %s (%s)", res.Drug.Name, res.Drug.ID))
			a.printer.Table([]string{"ID", "NAME", "RELATION", "DISPLAY"}, associationRows(res.Targets))
			return nil
		})
}

func newGenesCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := queryCmd(opts, "genes <disease-name>", "List genes associated with a disease", cobra.MinimumNArgs(1),
		func(ctx context.Context, a *app, args []string) error {
			res, err := a.engine.FindDiseaseGenes(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if ok, err := a.emit(res); ok {
				return err
			}
			a.printer.Title(fmt.Sprintf("Genes associated with %s (%s)", res.Disease.Name, res.Disease.ID))
			a.printer.Table([]string{"ID", "NAME", "RELATION", "DISPLAY"}, associationRows(res.Genes))
			if res.Truncated {
				a.printer.Muted(fmt.Sprintf("showing %d of %d", len(res.Genes), res.Total))
			}
			return nil
		})
	cmd.Flags().IntVarP(&limit, "limit", "n", query.DefaultRelationshipLimit, "maximum genes")
	return cmd
}

func newPathsCmd(opts *globalOptions) *cobra.Command {
	var maxLen int

	cmd := queryCmd(opts, "paths <drug-name> <disease-name>", "Find drug to disease paths", cobra.ExactArgs(2),
		func(ctx context.Context, a *app, args []string) error {
			res, err := a.engine.FindDrugDiseasePaths(ctx, args[0], args[1], maxLen)
			if err != nil {
				return err
			}
			if ok, err := a.emit(res); ok {
				return err
			}
			a.printer.Title(fmt.Sprintf("%s to %s, at most %d edges", res.Drug.Name, res.Disease.Name, res.MaxPathLength))
			if len(res.Paths) == 0 {
				a.printer.Muted("no paths found")
			}
			for _, p := range res.Paths {
				steps := make([]string, 0, 2*len(p.Steps))
				for _, s := range p.Steps {
					steps = append(steps, s.Node.Name)
					if s.DisplayRelation != "" {
						steps = append(steps, "["+s.DisplayRelation+"]")
					}
				}
				a.printer.Path(steps)
			}
			if res.Truncated {
				a.printer.Warning("search was cut short; some paths may be missing")
			}
			return nil
		})
	cmd.Flags().IntVarP(&maxLen, "max-length", "l", query.DefaultMaxPathLength,
		fmt.Sprintf("maximum edges per path (1-%d)", query.MaxPathLength))
	return cmd
}

func newDetailsCmd(opts *globalOptions) *cobra.Command {
	return queryCmd(opts, "details <node-id-or-name>", "Show a node and its neighborhood summary", cobra.ExactArgs(1),
		func(ctx context.Context, a *app, args []string) error {
			res, err := a.engine.GetNodeDetails(ctx, args[0])
			if err != nil {
				return err
			}
			if ok, err := a.emit(res); ok {
				return err
			}
			a.printer.Title(res.Node.Name)
			a.printer.KV(
				"id", res.Node.ID,
				"index", strconv.Itoa(res.Node.Index),
				"type", res.Node.Type.String(),
				"source", res.Node.Source,
				"degree", strconv.Itoa(res.Degree),
			)
			rows := make([][]string, len(res.Relations))
			for i, rc := range res.Relations {
				rows[i] = []string{rc.Relation, strconv.Itoa(rc.Count)}
			}
			a.printer.Table([]string{"RELATION", "COUNT"}, rows)
			a.printer.Table([]string{"NEIGHBOR TYPE", "COUNT"}, typeRows(res.Neighbors))
			return nil
		})
}

func typeRows(stats []graph.TypeStat) [][]string {
	rows := make([][]string, len(stats))
	for i, s := range stats {
		rows[i] = []string{s.Type.String(), strconv.Itoa(s.Count)}
	}
	return rows
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var schema bool

	cmd := queryCmd(opts, "stats", "Show snapshot statistics or schema", cobra.NoArgs,
		func(ctx context.Context, a *app, args []string) error {
			if schema {
				return printSchema(ctx, a)
			}
			res, err := a.engine.Statistics(ctx)
			if err != nil {
				return err
			}
			if ok, err := a.emit(res); ok {
				return err
			}
			a.printer.Title("PrimeKG snapshot")
			a.printer.KV(
				"version", strconv.FormatUint(res.Version, 10),
				"nodes", strconv.Itoa(res.NodeCount),
				"edges", strconv.Itoa(res.EdgeCount),
				"relation kinds", strconv.Itoa(res.RelationKinds),
			)
			a.printer.Table([]string{"NODE TYPE", "COUNT"}, typeRows(res.NodeTypes))
			rows := make([][]string, len(res.TopRelations))
			for i, r := range res.TopRelations {
				rows[i] = []string{r.Relation, strconv.Itoa(r.Count)}
			}
			a.printer.Table([]string{"RELATION", "EDGES"}, rows)
			return nil
		})
	cmd.Flags().BoolVar(&schema, "schema", false, "show node types, relation kinds and sources instead")
	return cmd
}

func printSchema(ctx context.Context, a *app) error {
	res, err := a.engine.Schema(ctx)
	if err != nil {
		return err
	}
	if ok, err := a.emit(res); ok {
		return err
	}
	a.printer.Title("PrimeKG schema")
	a.printer.Table([]string{"NODE TYPE", "COUNT"}, typeRows(res.NodeTypes))
	rows := make([][]string, len(res.Relations))
	for i, r := range res.Relations {
		rows[i] = []string{r.Relation, strconv.Itoa(r.Count)}
	}
	a.printer.Table([]string{"RELATION", "EDGES"}, rows)
	srcRows := make([][]string, len(res.Sources))
	for i, s := range res.Sources {
		srcRows[i] = []string{s.Source, strconv.Itoa(s.Count)}
	}
	a.printer.Table([]string{"SOURCE", "NODES"}, srcRows)
	a.printer.KV(
		"drug targets", strings.Join(res.DrugTargetRelations, ", "),
		"disease genes", strings.Join(res.DiseaseGeneRelations, ", "),
	)
	return nil
}
