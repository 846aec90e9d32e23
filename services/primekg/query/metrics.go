// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("primekg.query")
	meter  = otel.Meter("primekg.query")
)

var (
	queryLatency   metric.Float64Histogram
	queryTotal     metric.Int64Counter
	queryTruncated metric.Int64Counter
	queryResults   metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		queryLatency, err = meter.Float64Histogram(
			"primekg_query_duration_seconds",
			metric.WithDescription("Duration of query engine operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryTotal, err = meter.Int64Counter(
			"primekg_query_total",
			metric.WithDescription("Total number of query engine operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryTruncated, err = meter.Int64Counter(
			"primekg_query_truncated_total",
			metric.WithDescription("Queries whose results were cut by a cap"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryResults, err = meter.Int64Histogram(
			"primekg_query_results",
			metric.WithDescription("Number of results returned per query"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// queryOutcome returns the metric label for a query error.
func queryOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isNotFound(err):
		return "not_found"
	case err == ErrNoSnapshot:
		return "no_snapshot"
	default:
		return "error"
	}
}

// recordQueryMetrics records metrics for one operation.
func recordQueryMetrics(ctx context.Context, op string, duration time.Duration, results int, truncated bool, err error) {
	if initMetrics() != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", queryOutcome(err)),
	)
	queryLatency.Record(ctx, duration.Seconds(), attrs)
	queryTotal.Add(ctx, 1, attrs)
	if err == nil {
		queryResults.Record(ctx, int64(results), metric.WithAttributes(attribute.String("operation", op)))
	}
	if truncated {
		queryTruncated.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}

// startQuerySpan creates a span for a query operation.
func startQuerySpan(ctx context.Context, op, arg string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "query."+op,
		trace.WithAttributes(
			attribute.String("query.operation", op),
			attribute.String("query.argument", arg),
		),
	)
}

// endQuerySpan sets result attributes, records metrics and ends the span.
func endQuerySpan(ctx context.Context, span trace.Span, op string, start time.Time, version uint64, results int, truncated bool, err error) {
	span.SetAttributes(
		attribute.Int64("query.snapshot_version", int64(version)),
		attribute.Int("query.results", results),
		attribute.Bool("query.truncated", truncated),
	)
	if err != nil && !isNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	recordQueryMetrics(ctx, op, time.Since(start), results, truncated, err)
}
