// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/AleutianAI/AleutianMentor/services/mentor/storage/badger"
)

// =============================================================================
// VerdictCache: Classification Persistence
// =============================================================================
//
// A classification verdict depends only on (tool name, arguments, result),
// so identical tool outcomes across sessions can reuse a prior verdict
// instead of spending a model call. Keys are SHA256 digests of the triple;
// any change to arguments or result produces a different key, so there is
// no explicit invalidation API. TTL is enforced by BadgerDB's GC; expired
// keys read as cache misses.
//
// Storage layout:
//
//	classify/v1/{sha256}  →  one byte, 0 = success, 1 = error

// verdictCacheDefaultTTL bounds how long a verdict is reused.
const verdictCacheDefaultTTL = time.Hour

// verdictCacheKeyPrefix is versioned to allow future format changes.
const verdictCacheKeyPrefix = "classify/v1/"

// errVerdictMiss distinguishes a normal miss from a storage error.
var errVerdictMiss = errors.New("verdict cache miss")

// VerdictCache persists classification verdicts in BadgerDB.
//
// Description:
//
//	Nil-safe: a nil *VerdictCache is a valid always-miss cache, which is
//	the correct behavior for tests and deployments without a cache
//	directory. The DB is owned by the caller; the cache only borrows it.
//
// Thread Safety: Safe for concurrent use.
type VerdictCache struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewVerdictCache creates a VerdictCache over an opened DB.
//
// Inputs:
//   - db: Opened BadgerDB wrapper. Must not be nil.
//   - ttl: Verdict lifetime. Pass 0 for the default (1 hour).
//   - logger: May be nil.
func NewVerdictCache(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *VerdictCache {
	if db == nil {
		panic("NewVerdictCache: db must not be nil")
	}
	if ttl <= 0 {
		ttl = verdictCacheDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VerdictCache{db: db, ttl: ttl, logger: logger}
}

// VerdictKey computes the cache key for one (tool, arguments, result) triple.
//
// Outputs:
//   - string: Lowercase hex SHA256 digest (64 characters).
func VerdictKey(tool, argsJSON, resultJSON string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\t%s\t%s", tool, argsJSON, resultJSON)
	return hex.EncodeToString(h.Sum(nil))
}

// Load retrieves a cached verdict.
//
// Outputs:
//   - bool: The verdict (true = error). Meaningless when found is false.
//   - bool: Whether the key was present.
//   - error: Non-nil only on storage failure.
func (c *VerdictCache) Load(ctx context.Context, key string) (bool, bool, error) {
	if c == nil {
		return false, false, nil
	}

	var raw []byte
	err := c.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(verdictCacheKeyPrefix + key))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errVerdictMiss
		}
		if err != nil {
			return fmt.Errorf("get verdict key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errVerdictMiss) {
		recordVerdictCache("miss")
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("agent: verdict cache load: %w", err)
	}
	if len(raw) != 1 {
		// Unexpected payload; treat as miss rather than trusting it.
		recordVerdictCache("miss")
		return false, false, nil
	}

	recordVerdictCache("hit")
	return raw[0] == 1, true, nil
}

// Save persists a verdict with the configured TTL.
//
// Description:
//
//	Failure is non-fatal: the caller logs and continues, the verdict is
//	simply recomputed next time.
func (c *VerdictCache) Save(ctx context.Context, key string, isError bool) error {
	if c == nil {
		return nil
	}

	value := []byte{0}
	if isError {
		value[0] = 1
	}
	err := c.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry([]byte(verdictCacheKeyPrefix+key), value).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("agent: verdict cache save: %w", err)
	}
	return nil
}
