// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package state

import (
	"context"
	"sync"
)

// MemoryStore implements Store in memory. Used by tests and by ephemeral
// deployments that accept losing idempotency state on restart.
type MemoryStore struct {
	mu     sync.Mutex
	server map[string]Status
	pixel  map[string]bool
	closed bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		server: make(map[string]Status),
		pixel:  make(map[string]bool),
	}
}

// Status returns the order's server-channel state.
func (s *MemoryStore) Status(_ context.Context, orderKey string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StatusUntracked, ErrClosed
	}
	return s.server[orderKey], nil
}

// TransitionQueued atomically moves Untracked -> Queued.
func (s *MemoryStore) TransitionQueued(_ context.Context, orderKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.server[orderKey] != StatusUntracked {
		return false, nil
	}
	s.server[orderKey] = StatusQueued
	return true, nil
}

// MarkTracked moves the order to Tracked.
func (s *MemoryStore) MarkTracked(_ context.Context, orderKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.server[orderKey] = StatusTracked
	return nil
}

// MarkPixelTracked atomically sets the pixel-channel flag.
func (s *MemoryStore) MarkPixelTracked(_ context.Context, orderKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.pixel[orderKey] {
		return false, nil
	}
	s.pixel[orderKey] = true
	return true, nil
}

// PixelTracked reports the pixel-channel flag.
func (s *MemoryStore) PixelTracked(_ context.Context, orderKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	return s.pixel[orderKey], nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
