// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for the
// PrimeKG service.
//
// Init installs the global tracer and meter providers. Packages then call
// otel.Tracer() and otel.Meter() directly; there is no wrapper interface.
//
// # Backends
//
// Traces export over OTLP/gRPC (default) or to stdout. Metrics export to
// Prometheus (default), exposed through MetricsHandler, or to stdout.
// Either can be set to "none".
//
// # Logging
//
// LoggerWithTrace adds trace_id and span_id to a *slog.Logger so log lines
// correlate with spans.
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - PRIMEKG_ENV: environment name (default: development)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init returns.
package telemetry
