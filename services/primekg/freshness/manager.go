// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package freshness keeps the served PrimeKG graph index current.
//
// A Manager owns one atomic reference to the served *graph.Graph. Queries
// read it through Current without locks; a refresh builds a complete new
// index off to the side and publishes it with a single pointer store. The
// previous index stays valid for any query still holding it and is
// reclaimed by the garbage collector afterwards.
//
// # Lifecycle
//
//	Idle ──refresh──> Refreshing ──ok──> Active
//	                       └──fail──> Failed (or Active if an index is served)
//
// A failed fetch, parse or build never disturbs the served index or the
// persisted metadata. After a failure the background loop waits a full
// update interval before trying again; forced refreshes run at once.
//
// # On-disk layout
//
// Accepted snapshots are promoted into versioned directories under
// DataDir/snapshots. The state file, written after the swap, names the
// authoritative one, so a crash at any point leaves the previous snapshot
// in charge on restart.
//
// # Concurrency
//
// One background goroutine drives scheduled refreshes. Concurrent refresh
// requests are coalesced: synchronous callers share one in-flight attempt,
// and asynchronous requests queue at most one pending attempt.
package freshness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/primekg/services/primekg/graph"
	"github.com/AleutianAI/primekg/services/primekg/snapshot"
)

const refreshKey = "refresh"

// Manager owns the served graph index and refreshes it.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	cfg        Config
	downloader Downloader
	logger     *slog.Logger
	history    HistoryRecorder
	now        func() time.Time
	graphOpts  []graph.GraphOption

	current  atomic.Pointer[graph.Graph]
	state    atomic.Int32
	flight   singleflight.Group
	requests chan string

	mu          sync.Mutex
	meta        Metadata
	lastAttempt time.Time
	lastErr     error
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewManager creates a manager in StateIdle. Nothing is loaded until
// WarmStart, Start or Refresh is called.
func NewManager(cfg Config, downloader Downloader, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg.withDefaults(),
		downloader: downloader,
		logger:     slog.Default(),
		now:        time.Now,
		requests:   make(chan string, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "freshness")
	return m
}

// Current returns the served index, or nil if none is loaded.
func (m *Manager) Current() *graph.Graph {
	return m.current.Load()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	managerState.Set(float64(s))
}

// Metadata returns the metadata of the last successful update.
func (m *Manager) Metadata() Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta
}

// ShouldUpdate reports whether the served snapshot is stale: nothing is
// served, no update was ever recorded, the configured sources changed, or
// the last update is at least UpdateInterval old.
func (m *Manager) ShouldUpdate() bool {
	return m.isStale(m.now(), m.Metadata(), m.current.Load())
}

func (m *Manager) isStale(now time.Time, meta Metadata, g *graph.Graph) bool {
	if g == nil || meta.IsZero() {
		return true
	}
	if m.cfg.Source != (SourceDescriptor{}) && meta.Source != m.cfg.Source {
		return true
	}
	return now.Sub(meta.LastUpdateTime) >= m.cfg.UpdateInterval
}

// Status returns a point-in-time view of the manager.
func (m *Manager) Status() Status {
	g := m.current.Load()
	m.mu.Lock()
	meta, lastAttempt, lastErr := m.meta, m.lastAttempt, m.lastErr
	m.mu.Unlock()

	st := Status{
		State:          m.State(),
		LastUpdateTime: meta.LastUpdateTime,
		LastAttempt:    lastAttempt,
		SourceChecksum: meta.SourceChecksum,
		Stale:          m.isStale(m.now(), meta, g),
		AutoUpdate:     m.cfg.AutoUpdate,
	}
	if g != nil {
		st.Version = g.Version
		st.NodeCount = g.NodeCount()
		st.EdgeCount = g.EdgeCount()
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	return st
}

// WarmStart loads the snapshot named by the state file.
//
// Description:
//
//	Reads the state file, verifies the checksum of the snapshot directory
//	it names, parses and builds the tables there, and publishes the
//	result. Snapshot directories the state file does not name are left
//	over from interrupted refreshes and are removed.
//
// Outputs:
//
//	error - ErrNoCache when no snapshot is recorded; ErrCacheMismatch when
//	the recorded tables were modified; a wrapped parse or build error
//	otherwise. In every error case no index is published and the
//	metadata is cleared so the next check refreshes.
func (m *Manager) WarmStart(ctx context.Context) error {
	meta, err := loadMetadata(m.cfg.statePath())
	if err != nil {
		m.logger.Warn("ignoring unreadable state file", "error", err)
		meta = Metadata{}
	}

	if !validSnapshotDir(meta.SnapshotDir) {
		return ErrNoCache
	}
	dir := m.cfg.snapshotPath(meta.SnapshotDir)
	nodesPath, edgesPath := filepath.Join(dir, NodesFile), filepath.Join(dir, EdgesFile)
	if !fileExists(nodesPath) || !fileExists(edgesPath) {
		m.logger.Warn("state file names a missing snapshot", "snapshot_dir", meta.SnapshotDir)
		return ErrNoCache
	}

	sum, _, err := checksumFiles(nodesPath, edgesPath)
	if err != nil {
		return fmt.Errorf("warm start: %w", err)
	}
	if meta.SourceChecksum != sum {
		m.failWarmStart(ErrCacheMismatch)
		return fmt.Errorf("warm start: %s: %w", meta.SnapshotDir, ErrCacheMismatch)
	}

	snap, err := snapshot.ParseFiles(ctx, nodesPath, edgesPath)
	if err != nil {
		m.failWarmStart(err)
		return fmt.Errorf("warm start: parse cached snapshot: %w", err)
	}

	version := meta.SnapshotVersion
	if version == 0 {
		version = m.nextVersion(m.current.Load())
	}
	g, _, err := graph.Build(ctx, snap, m.buildOptions(version)...)
	if err != nil {
		m.failWarmStart(err)
		return fmt.Errorf("warm start: build cached snapshot: %w", err)
	}

	m.swap(g)
	m.mu.Lock()
	m.meta = meta
	m.mu.Unlock()
	m.setState(StateActive)
	m.pruneSnapshots(meta.SnapshotDir)

	m.logger.Info("warm start complete",
		"version", g.Version,
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"stale", m.ShouldUpdate(),
	)
	return nil
}

func (m *Manager) failWarmStart(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	if m.current.Load() == nil {
		m.setState(StateFailed)
	}
}

// Start warm-starts from the data directory and launches the background
// loop. A warm start failure is logged and does not fail Start.
//
// The loop refreshes at once when the snapshot is stale and AutoUpdate is
// on, then checks staleness every CheckInterval. Requests queued with
// RequestRefresh are served whether or not AutoUpdate is on.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	if err := m.WarmStart(loopCtx); err != nil {
		if errors.Is(err, ErrNoCache) {
			m.logger.Info("no cached snapshot in data directory", "data_dir", m.cfg.DataDir)
		} else {
			m.logger.Warn("warm start failed", "error", err)
		}
	}

	go m.run(loopCtx, done)
	return nil
}

// Stop cancels the background loop and waits for it to exit. An in-flight
// refresh is cancelled; the served index is kept.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if m.cfg.AutoUpdate {
		if m.ShouldUpdate() {
			m.runRefresh(ctx, TriggerStartup)
		}
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if m.dueForUpdate(m.now()) {
				m.runRefresh(ctx, TriggerSchedule)
			}
		case trigger := <-m.requests:
			m.runRefresh(ctx, trigger)
		}
	}
}

// dueForUpdate reports whether a scheduled check should refresh. After a
// failed attempt the next one waits a full UpdateInterval.
func (m *Manager) dueForUpdate(now time.Time) bool {
	m.mu.Lock()
	lastErr, lastAttempt := m.lastErr, m.lastAttempt
	m.mu.Unlock()
	if lastErr != nil && !lastAttempt.IsZero() && now.Sub(lastAttempt) < m.cfg.UpdateInterval {
		return false
	}
	return m.ShouldUpdate()
}

func (m *Manager) runRefresh(ctx context.Context, trigger string) {
	// Errors are logged and recorded by the refresh itself.
	_, _ = m.refresh(ctx, trigger)
}

// RequestRefresh queues an asynchronous refresh for the background loop.
//
// At most one request is pending at a time. Returns false when a request
// was already pending; the new one is folded into it.
func (m *Manager) RequestRefresh(trigger string) bool {
	if trigger == "" {
		trigger = TriggerManual
	}
	select {
	case m.requests <- trigger:
		return true
	default:
		refreshCoalesced.Inc()
		return false
	}
}

// Refresh runs a refresh now and waits for it.
//
// Concurrent callers, including the background loop, share one in-flight
// attempt and receive the same result. The shared attempt runs under the
// context of whichever caller started it.
//
// The returned result is non-nil whenever an attempt ran, including failed
// ones; Outcome says what happened.
func (m *Manager) Refresh(ctx context.Context) (*RefreshResult, error) {
	return m.refresh(ctx, TriggerManual)
}

func (m *Manager) refresh(ctx context.Context, trigger string) (*RefreshResult, error) {
	v, err, shared := m.flight.Do(refreshKey, func() (any, error) {
		return m.doRefresh(ctx, trigger)
	})
	if shared {
		refreshCoalesced.Inc()
	}
	res, _ := v.(*RefreshResult)
	return res, err
}

// doRefresh runs one attempt: fetch, checksum, parse, build, promote, swap,
// persist. Only one runs at a time.
func (m *Manager) doRefresh(ctx context.Context, trigger string) (*RefreshResult, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "freshness.Refresh",
		trace.WithAttributes(attribute.String("freshness.trigger", trigger)),
	)
	defer span.End()

	prev := m.current.Load()
	res := &RefreshResult{Trigger: trigger}
	if prev != nil {
		res.PreviousVersion = prev.Version
	}

	m.mu.Lock()
	m.lastAttempt = m.now()
	attemptAt := m.lastAttempt
	m.mu.Unlock()
	m.setState(StateRefreshing)

	outcome, err := m.pipeline(ctx, res, prev)
	res.Outcome = outcome
	res.Duration = time.Since(started)

	span.SetAttributes(
		attribute.String("freshness.outcome", string(outcome)),
		attribute.Int64("freshness.version", int64(res.Version)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	m.finish(ctx, res, attemptAt, err)
	return res, err
}

func (m *Manager) pipeline(ctx context.Context, res *RefreshResult, prev *graph.Graph) (Outcome, error) {
	if m.cfg.Source.NodesURL == "" || m.cfg.Source.EdgesURL == "" {
		return OutcomeFetchFailed, ErrNoSources
	}

	staging := m.cfg.stagingPath()
	if err := os.RemoveAll(staging); err != nil {
		return OutcomeStoreFailed, fmt.Errorf("clear staging: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return OutcomeStoreFailed, fmt.Errorf("create staging: %w", err)
	}
	defer os.RemoveAll(staging)

	stagedNodes := filepath.Join(staging, NodesFile)
	stagedEdges := filepath.Join(staging, EdgesFile)
	if err := m.fetchAll(ctx, stagedNodes, stagedEdges); err != nil {
		return OutcomeFetchFailed, err
	}

	sum, size, err := checksumFiles(stagedNodes, stagedEdges)
	if err != nil {
		return OutcomeStoreFailed, err
	}
	res.Checksum = sum

	meta := m.Metadata()
	if prev != nil && meta.SourceChecksum == sum {
		res.Version = prev.Version
		res.NodeCount = prev.NodeCount()
		res.EdgeCount = prev.EdgeCount()
		meta.LastUpdateTime = m.now()
		meta.Source = m.cfg.Source
		_ = m.persist(meta)
		return OutcomeUnchanged, nil
	}

	snap, err := snapshot.ParseFiles(ctx, stagedNodes, stagedEdges)
	if err != nil {
		return OutcomeParseFailed, fmt.Errorf("parse snapshot: %w", err)
	}
	g, _, err := graph.Build(ctx, snap, m.buildOptions(m.nextVersion(prev))...)
	if err != nil {
		return OutcomeBuildFailed, fmt.Errorf("build index: %w", err)
	}

	// The staged pair becomes a new snapshot directory in one rename. It
	// is not authoritative until the state file names it.
	name := strconv.FormatUint(g.Version, 10)
	if err := m.promote(staging, name); err != nil {
		return OutcomeStoreFailed, err
	}

	m.swap(g)
	res.Version = g.Version
	res.NodeCount = g.NodeCount()
	res.EdgeCount = g.EdgeCount()

	err = m.persist(Metadata{
		LastUpdateTime:  m.now(),
		SourceChecksum:  sum,
		SourceSize:      size,
		SnapshotVersion: g.Version,
		Source:          m.cfg.Source,
		SnapshotDir:     name,
	})
	if err == nil {
		m.pruneSnapshots(name)
	}
	return OutcomeSwapped, nil
}

// fetchAll downloads both tables concurrently under FetchTimeout.
func (m *Manager) fetchAll(ctx context.Context, nodesDest, edgesDest string) error {
	if m.downloader == nil {
		return &FetchError{Kind: FetchTransport, URL: m.cfg.Source.NodesURL, Err: errors.New("no downloader configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.fetchOne(gctx, m.cfg.Source.NodesURL, nodesDest)
	})
	g.Go(func() error {
		return m.fetchOne(gctx, m.cfg.Source.EdgesURL, edgesDest)
	})
	return g.Wait()
}

func (m *Manager) fetchOne(ctx context.Context, url, dest string) error {
	if err := m.downloader.Fetch(ctx, url, dest); err != nil {
		return AsFetchError(url, err)
	}
	return nil
}

func (m *Manager) finish(ctx context.Context, res *RefreshResult, attemptAt time.Time, err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()

	if err == nil {
		m.setState(StateActive)
		lastSuccessTimestamp.Set(float64(m.now().Unix()))
		m.logger.Info("refresh complete",
			"trigger", res.Trigger,
			"outcome", res.Outcome,
			"version", res.Version,
			"nodes", res.NodeCount,
			"edges", res.EdgeCount,
			"duration", res.Duration,
		)
	} else {
		if m.current.Load() != nil {
			m.setState(StateActive)
		} else {
			m.setState(StateFailed)
		}
		m.logger.Warn("refresh failed, keeping served index",
			"trigger", res.Trigger,
			"outcome", res.Outcome,
			"served_version", res.PreviousVersion,
			"error", err,
		)
	}

	refreshTotal.WithLabelValues(res.Trigger, string(res.Outcome)).Inc()
	refreshDuration.Observe(res.Duration.Seconds())

	if m.history == nil {
		return
	}
	rec := RefreshRecord{
		StartedAt:  attemptAt,
		DurationMs: res.Duration.Milliseconds(),
		Trigger:    res.Trigger,
		Outcome:    res.Outcome,
		Version:    res.Version,
		NodeCount:  res.NodeCount,
		EdgeCount:  res.EdgeCount,
		Checksum:   res.Checksum,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if herr := m.history.Record(context.WithoutCancel(ctx), rec); herr != nil {
		m.logger.Warn("failed to record refresh history", "error", herr)
	}
}

func (m *Manager) swap(g *graph.Graph) {
	m.current.Store(g)
	snapshotVersion.Set(float64(g.Version))
	snapshotNodes.Set(float64(g.NodeCount()))
	snapshotEdges.Set(float64(g.EdgeCount()))
}

// persist records meta in memory and on disk. The index is already swapped
// by the time this runs, so callers treat a write failure as non-fatal;
// the previous state file then stays authoritative on disk.
func (m *Manager) persist(meta Metadata) error {
	m.mu.Lock()
	m.meta = meta
	m.mu.Unlock()
	if err := saveMetadata(m.cfg.statePath(), meta); err != nil {
		m.logger.Warn("failed to persist state file", "error", err)
		return err
	}
	return nil
}

// promote moves the staging directory to SnapshotsDir/name.
func (m *Manager) promote(staging, name string) error {
	if err := os.MkdirAll(m.cfg.snapshotsPath(), 0o755); err != nil {
		return fmt.Errorf("create snapshots dir: %w", err)
	}
	dest := m.cfg.snapshotPath(name)
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("clear snapshot dir %s: %w", name, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return fmt.Errorf("promote snapshot %s: %w", name, err)
	}
	return nil
}

// pruneSnapshots removes every snapshot directory except keep.
func (m *Manager) pruneSnapshots(keep string) {
	entries, err := os.ReadDir(m.cfg.snapshotsPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("failed to list snapshot dirs", "error", err)
		}
		return
	}
	for _, e := range entries {
		if e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(m.cfg.snapshotPath(e.Name())); err != nil {
			m.logger.Warn("failed to remove snapshot dir", "snapshot_dir", e.Name(), "error", err)
			continue
		}
		m.logger.Debug("removed snapshot dir", "snapshot_dir", e.Name())
	}
}

// nextVersion returns a version greater than prev's, based on the clock.
func (m *Manager) nextVersion(prev *graph.Graph) uint64 {
	v := uint64(m.now().UnixMilli())
	if prev != nil && v <= prev.Version {
		v = prev.Version + 1
	}
	return v
}

func (m *Manager) buildOptions(version uint64) []graph.GraphOption {
	opts := make([]graph.GraphOption, 0, len(m.graphOpts)+1)
	opts = append(opts, m.graphOpts...)
	return append(opts, graph.WithVersion(version))
}

// checksumFiles returns the sha256 over the named files, in order, and
// their total size.
func checksumFiles(paths ...string) (string, int64, error) {
	h := sha256.New()
	var total int64
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return "", 0, fmt.Errorf("checksum: %w", err)
		}
		n, err := io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", 0, fmt.Errorf("checksum %s: %w", p, err)
		}
		total += n
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
