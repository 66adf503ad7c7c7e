// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package pixel produces the browser-side half of the dual-channel pipeline:
// the partner base-code script for the page head and the per-page tracking
// data object the script reads, carrying the same correlation IDs as the
// server-side reports.
package pixel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/logging"
	"github.com/pixelbridge/pixelbridge/internal/metrics"
)

// maxScriptSize bounds how much of a remote script body is accepted.
const maxScriptSize = 512 << 10

// fallbackTemplate is the locally built base code used when no remote script
// is configured or a refresh fails. It bootstraps the vendor loader and
// initializes the tag; %s slots are loader URL, then pixel ID.
const fallbackTemplate = `(function(w,d){if(w.pbq)return;var q=w.pbq=function(){q.queue.push(arguments)};q.queue=[];
var s=d.createElement('script');s.async=true;s.src='%s';
var f=d.getElementsByTagName('script')[0];f.parentNode.insertBefore(s,f);
w.pbq('init','%s');})(window,document);`

// ScriptCache serves the partner base-code script. The remote copy is
// fetched and cached with a TTL; a freshly fetched body must reference the
// vendor script-loader URL or it is rejected as corrupt and the previous
// known-good copy (or the built-in template) is served instead.
type ScriptCache struct {
	cfg        config.PixelConfig
	pixelID    string
	httpClient *http.Client

	mu        sync.RWMutex
	cached    string
	fetchedAt time.Time
}

// NewScriptCache creates the cache. A remote script is only used when
// ScriptURL is configured.
func NewScriptCache(cfg config.PixelConfig, pixelID string) *ScriptCache {
	return &ScriptCache{
		cfg:        cfg,
		pixelID:    pixelID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Get returns the base-code script body to serve.
func (s *ScriptCache) Get(ctx context.Context) string {
	if s.cfg.ScriptURL == "" {
		return s.fallback()
	}

	s.mu.RLock()
	cached, fetchedAt := s.cached, s.fetchedAt
	s.mu.RUnlock()

	ttl := s.cfg.CacheTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if cached != "" && time.Since(fetchedAt) < ttl {
		return cached
	}

	fresh, err := s.refresh(ctx)
	if err != nil {
		logging.Warn().Err(err).Str("url", s.cfg.ScriptURL).Msg("base-code refresh failed")
		if cached != "" {
			// Stale beats broken.
			return cached
		}
		return s.fallback()
	}
	return fresh
}

// refresh fetches and validates the remote script, storing it on success.
func (s *ScriptCache) refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.ScriptURL, nil)
	if err != nil {
		metrics.ScriptCacheRefreshes.WithLabelValues("fetch_error").Inc()
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.ScriptCacheRefreshes.WithLabelValues("fetch_error").Inc()
		return "", fmt.Errorf("fetch script: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.ScriptCacheRefreshes.WithLabelValues("fetch_error").Inc()
		return "", fmt.Errorf("fetch script: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		metrics.ScriptCacheRefreshes.WithLabelValues("fetch_error").Inc()
		return "", fmt.Errorf("read script: %w", err)
	}

	script := string(body)
	if s.cfg.LoaderURL != "" && !strings.Contains(script, s.cfg.LoaderURL) {
		metrics.ScriptCacheRefreshes.WithLabelValues("validation_failed").Inc()
		return "", fmt.Errorf("script body does not reference loader %s", s.cfg.LoaderURL)
	}

	s.mu.Lock()
	s.cached = script
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	metrics.ScriptCacheRefreshes.WithLabelValues("ok").Inc()
	return script, nil
}

// fallback renders the built-in template.
func (s *ScriptCache) fallback() string {
	return fmt.Sprintf(fallbackTemplate, s.cfg.LoaderURL, s.pixelID)
}
