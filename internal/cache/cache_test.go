// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package cache

import (
	"sync"
	"testing"
	"time"
)

func TestCacheGetSet(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	if _, ok := c.Get("missing"); ok {
		t.Error("Expected miss for unknown key")
	}

	c.Set("product:7", "walnut desk organizer")
	got, ok := c.Get("product:7")
	if !ok || got != "walnut desk organizer" {
		t.Errorf("Get = %v, %v", got, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Keys != 1 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New(10 * time.Millisecond)
	defer c.Stop()

	c.Set("k", 1)
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("Expected expired entry to miss")
	}
	if c.Stats().Evictions == 0 {
		t.Error("Expected an eviction")
	}
}

func TestCacheDelete(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("k", 1)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Deleted key still present")
	}
}

func TestCacheConcurrency(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(GenerateKey("product", n), n)
				c.Get(GenerateKey("product", n))
			}
		}(i)
	}
	wg.Wait()

	if c.Stats().Keys != 16 {
		t.Errorf("Keys = %d, want 16", c.Stats().Keys)
	}
}

func TestGenerateKey(t *testing.T) {
	a := GenerateKey("product", map[string]int64{"id": 7})
	b := GenerateKey("product", map[string]int64{"id": 7})
	other := GenerateKey("product", map[string]int64{"id": 9})

	if a != b {
		t.Error("Same params produced different keys")
	}
	if a == other {
		t.Error("Different params produced the same key")
	}
}
