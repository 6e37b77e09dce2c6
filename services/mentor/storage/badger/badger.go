// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps a BadgerDB instance behind a small transactional API.
//
// The DB is a service-global singleton opened at startup. Callers run their
// reads and writes through WithReadTxn/WithTxn so context cancellation is
// checked before every transaction and errors carry a consistent prefix.
package badger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// gcInterval is how often the value-log garbage collector runs.
const gcInterval = 10 * time.Minute

// gcDiscardRatio controls how aggressively the GC rewrites value-log files.
// 0.5 is the value recommended by the BadgerDB documentation.
const gcDiscardRatio = 0.5

// DB wraps a BadgerDB handle with context-aware transaction helpers and a
// background value-log GC loop.
//
// Thread Safety: Safe for concurrent use. BadgerDB transactions are
// per-goroutine.
type DB struct {
	db     *dgbadger.DB
	logger *slog.Logger
	stopGC chan struct{}
}

// Open opens (or creates) a BadgerDB at the given path.
//
// Description:
//
//	Opens the database with BadgerDB's default options, routing its
//	internal logging through slog at debug level. Starts a background
//	goroutine that runs value-log GC periodically. The caller owns the
//	returned DB and must Close it on shutdown.
//
// Inputs:
//   - path: Directory for the database files. Created if absent.
//   - logger: Logger for GC diagnostics. May be nil.
//
// Outputs:
//   - *DB: The opened database.
//   - error: Non-nil if the directory cannot be opened.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("badger: path must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := dgbadger.DefaultOptions(path).WithLogger(nil)
	inner, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: opening %s: %w", path, err)
	}

	d := &DB{
		db:     inner,
		logger: logger,
		stopGC: make(chan struct{}),
	}
	go d.runGC()

	logger.Info("badger store opened", slog.String("path", path))
	return d, nil
}

// WithTxn runs fn inside a read-write transaction.
//
// Description:
//
//	Checks ctx before starting the transaction. The transaction commits
//	when fn returns nil and discards otherwise.
//
// Thread Safety: Safe for concurrent use.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("badger: context done before write txn: %w", err)
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
//
// Thread Safety: Safe for concurrent use.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("badger: context done before read txn: %w", err)
	}
	return d.db.View(fn)
}

// Close stops the GC loop and closes the underlying database.
//
// Description:
//
//	Idempotent at the BadgerDB layer; calling Close twice returns the
//	second close's error. Must be called before process exit to flush
//	the value log.
func (d *DB) Close() error {
	select {
	case <-d.stopGC:
		// already closed
	default:
		close(d.stopGC)
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("badger: closing: %w", err)
	}
	return nil
}

// runGC runs value-log garbage collection until Close is called.
// ErrNoRewrite is the normal "nothing to collect" result and is not logged.
func (d *DB) runGC() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			err := d.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && err != dgbadger.ErrNoRewrite {
				d.logger.Warn("badger value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}
