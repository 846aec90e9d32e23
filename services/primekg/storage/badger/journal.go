// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/primekg/services/primekg/freshness"
)

// journalPrefix namespaces refresh records. Keys are the prefix followed by
// the big-endian start time in nanoseconds and a sequence number, so key
// order is chronological.
var journalPrefix = []byte("refresh/")

// Journal is a freshness.HistoryRecorder backed by BadgerDB.
//
// Thread Safety: safe for concurrent use.
type Journal struct {
	db  *DB
	seq atomic.Uint64
}

// NewJournal creates a journal over db.
func NewJournal(db *DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	return &Journal{db: db}, nil
}

func (j *Journal) key(rec freshness.RefreshRecord) []byte {
	k := make([]byte, len(journalPrefix)+16)
	n := copy(k, journalPrefix)
	binary.BigEndian.PutUint64(k[n:], uint64(rec.StartedAt.UnixNano()))
	binary.BigEndian.PutUint64(k[n+8:], j.seq.Add(1))
	return k
}

// Record appends rec to the journal.
func (j *Journal) Record(ctx context.Context, rec freshness.RefreshRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal refresh record: %w", err)
	}
	key := j.key(rec)
	return j.db.Update(ctx, func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]freshness.RefreshRecord, error) {
	var out []freshness.RefreshRecord
	err := j.db.View(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = journalPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, journalPrefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(journalPrefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec freshness.RefreshRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode refresh record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Prune deletes all but the newest keep records and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	var stale [][]byte
	err := j.db.View(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = journalPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := 0
		seek := append(append([]byte{}, journalPrefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(journalPrefix); it.Next() {
			seen++
			if seen > keep {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}

	wb := j.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete refresh record: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush refresh prune: %w", err)
	}
	return len(stale), nil
}
