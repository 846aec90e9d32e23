// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetch downloads PrimeKG snapshot tables.
//
// Downloader implements freshness.Downloader for http(s) URLs, file://
// URLs and plain local paths. Remote downloads go through a circuit breaker
// so a dead mirror fails fast instead of holding every refresh for the full
// fetch timeout. Files are written to a temp file beside the destination and
// renamed into place, so a failed download never leaves a partial table.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/primekg/services/primekg/freshness"
	"github.com/AleutianAI/primekg/services/primekg/telemetry"
)

var tracer = otel.Tracer("primekg.fetch")

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// BreakerConfig configures the circuit breaker around remote downloads.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration

	// FailureThreshold is the failure ratio that trips the breaker once
	// MinRequests have been seen.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns defaults sized for a handful of downloads per
// refresh.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "primekg-fetch",
		MaxRequests:      1,
		Interval:         10 * time.Minute,
		Timeout:          5 * time.Minute,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

// Config configures a Downloader.
type Config struct {
	// Client performs HTTP requests. Nil uses an http.Client without a
	// timeout; the caller's context bounds each download.
	Client HTTPClient

	UserAgent string
	Breaker   BreakerConfig
	Logger    *slog.Logger
}

// Downloader fetches snapshot tables.
//
// Thread Safety: safe for concurrent use.
type Downloader struct {
	client    HTTPClient
	breaker   *gobreaker.CircuitBreaker
	userAgent string
	logger    *slog.Logger
}

// New creates a Downloader.
func New(cfg Config) *Downloader {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "primekg/0.1"
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultBreakerConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "fetch")
	bc := cfg.Breaker

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        bc.Name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// A missing resource is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			var fe *freshness.FetchError
			if errors.As(err, &fe) && fe.Kind == freshness.FetchNotFound {
				return true
			}
			return err == nil
		},
	})

	return &Downloader{
		client:    cfg.Client,
		breaker:   breaker,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// BreakerState returns the circuit breaker state name.
func (d *Downloader) BreakerState() string {
	return d.breaker.State().String()
}

// Fetch downloads rawURL to dest.
//
// Description:
//
//	http and https URLs are downloaded through the circuit breaker.
//	file:// URLs and plain paths are copied. dest is replaced atomically.
//
// Outputs:
//
//	error - *freshness.FetchError: not_found for 404/410 or a missing
//	local file, timeout when ctx expires, transport otherwise (including
//	an open breaker).
func (d *Downloader) Fetch(ctx context.Context, rawURL, dest string) (err error) {
	ctx, span := tracer.Start(ctx, "fetch.Fetch", trace.WithAttributes(
		attribute.String("fetch.url", rawURL),
	))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	start := time.Now()
	var n int64
	if isRemote(rawURL) {
		_, err = d.breaker.Execute(func() (any, error) {
			var derr error
			n, derr = d.download(ctx, rawURL, dest)
			return nil, derr
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &freshness.FetchError{Kind: freshness.FetchTransport, URL: rawURL, Err: err}
		}
	} else {
		n, err = copyLocal(ctx, rawURL, dest)
	}
	if err != nil {
		if fe := freshness.AsFetchError(rawURL, err); fe != nil {
			return fe
		}
		return err
	}

	span.SetAttributes(attribute.Int64("fetch.bytes", n))
	d.logger.Info("downloaded snapshot table", "url", rawURL, "bytes", n, "duration", time.Since(start))
	return nil
}

func isRemote(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

func (d *Downloader) download(ctx context.Context, rawURL, dest string) (int64, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, &freshness.FetchError{Kind: freshness.FetchTransport, URL: rawURL, Err: err}
	}
	req = telemetry.PropagateToRequest(ctx, req)
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, freshness.AsFetchError(rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return 0, &freshness.FetchError{Kind: freshness.FetchNotFound, URL: rawURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return 0, &freshness.FetchError{Kind: freshness.FetchTransport, URL: rawURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	n, err := writeAtomic(ctx, dest, resp.Body)
	if err != nil {
		return n, freshness.AsFetchError(rawURL, err)
	}
	return n, nil
}

// copyLocal copies a file:// URL or plain path to dest.
func copyLocal(ctx context.Context, raw, dest string) (int64, error) {
	path := raw
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil {
			return 0, &freshness.FetchError{Kind: freshness.FetchTransport, URL: raw, Err: err}
		}
		path = u.Path
	}

	src, err := os.Open(path)
	if err != nil {
		return 0, freshness.AsFetchError(raw, err)
	}
	defer src.Close()

	return writeAtomic(ctx, dest, src)
}

// writeAtomic streams r into a temp file beside dest and renames it over
// dest. The copy stops early when ctx is done.
func writeAtomic(ctx context.Context, dest string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+"-*.part")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return n, err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return n, err
	}
	return n, nil
}

// ctxReader fails reads once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
