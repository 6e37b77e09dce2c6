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
	"testing"
	"time"

	badgerstore "github.com/AleutianAI/AleutianMentor/services/mentor/storage/badger"
)

func openVerdictCache(t *testing.T) *VerdictCache {
	t.Helper()
	db, err := badgerstore.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("badger Open: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("badger Close: %v", err)
		}
	})
	return NewVerdictCache(db, time.Hour, nil)
}

func TestVerdictKey_Deterministic(t *testing.T) {
	a := VerdictKey("list_classes", `{}`, `{"classes": []}`)
	b := VerdictKey("list_classes", `{}`, `{"classes": []}`)
	if a != b {
		t.Error("identical inputs must produce identical keys")
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}

	c := VerdictKey("list_classes", `{}`, `{"classes": [1]}`)
	if a == c {
		t.Error("different results must produce different keys")
	}
}

func TestVerdictCache_SaveAndLoad(t *testing.T) {
	cache := openVerdictCache(t)
	ctx := context.Background()
	key := VerdictKey("t", `{}`, `{"error": "x"}`)

	if err := cache.Save(ctx, key, true); err != nil {
		t.Fatalf("Save: %v", err)
	}

	verdict, found, err := cache.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if !verdict {
		t.Error("verdict = false, want true")
	}
}

func TestVerdictCache_MissReturnsNotFound(t *testing.T) {
	cache := openVerdictCache(t)

	_, found, err := cache.Load(context.Background(), VerdictKey("t", `{}`, `{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Error("expected miss for unsaved key")
	}
}

func TestVerdictCache_NilCacheIsAlwaysMiss(t *testing.T) {
	var cache *VerdictCache
	ctx := context.Background()

	if err := cache.Save(ctx, "k", true); err != nil {
		t.Errorf("nil cache Save must be a no-op, got %v", err)
	}
	_, found, err := cache.Load(ctx, "k")
	if err != nil {
		t.Errorf("nil cache Load must not error, got %v", err)
	}
	if found {
		t.Error("nil cache must always miss")
	}
}

func TestClassifier_CachedVerdictSkipsModelCall(t *testing.T) {
	cache := openVerdictCache(t)
	client := &scriptedClient{replies: []string{"ERROR"}}
	c := NewClassifier(client, testClassifierConfig(), cache, nil)

	req := testRequest()
	result := `{"error": "boom"}`

	first := c.Classify(context.Background(), req, result)
	if !first {
		t.Fatal("first verdict should be error")
	}
	if client.callCount() != 1 {
		t.Fatalf("callCount = %d, want 1", client.callCount())
	}

	second := c.Classify(context.Background(), req, result)
	if second != first {
		t.Error("cached verdict must match")
	}
	if client.callCount() != 1 {
		t.Errorf("callCount = %d after cached classify, want still 1", client.callCount())
	}
}
