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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("primekg.freshness")

// Prometheus metrics for refresh operations.
var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primekg_refresh_total",
		Help: "Total refresh attempts by trigger and outcome",
	}, []string{"trigger", "outcome"})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "primekg_refresh_duration_seconds",
		Help:    "Duration of refresh attempts",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})

	refreshCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "primekg_refresh_coalesced_total",
		Help: "Refresh requests folded into an already pending request",
	})

	snapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "primekg_snapshot_version",
		Help: "Version of the served graph index",
	})

	snapshotNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "primekg_snapshot_nodes",
		Help: "Node count of the served graph index",
	})

	snapshotEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "primekg_snapshot_edges",
		Help: "Edge count of the served graph index",
	})

	lastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "primekg_refresh_last_success_timestamp_seconds",
		Help: "Unix time of the last successful update check",
	})

	managerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "primekg_freshness_state",
		Help: "Manager state (0 idle, 1 refreshing, 2 active, 3 failed)",
	})
)
