// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/pixelbridge/pixelbridge/internal/logging"
)

// Key layout. The two channels are independent keys so the pixel flag and
// the server state machine never contend on the same entry.
const (
	prefixServer = "order:server:"
	prefixPixel  = "order:pixel:"
)

// BadgerStore implements Store on BadgerDB. Badger transactions are
// serializable, which makes TransitionQueued a true conditional update:
// two racing requests for the same order cannot both observe Untracked
// and both write Queued — the second commit fails with ErrConflict and is
// reported as "already queued".
type BadgerStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) the state database at path.
// SyncWrites is enabled: the Untracked -> Queued transition must be on disk
// before the job is enqueued, or a crash between the two could double-track
// an order on replay.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	logging.Info().Str("path", path).Msg("order state store opened")
	return &BadgerStore{db: db}, nil
}

// Status returns the order's server-channel state.
func (s *BadgerStore) Status(_ context.Context, orderKey string) (Status, error) {
	if err := s.checkOpen(); err != nil {
		return StatusUntracked, err
	}

	var status Status
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixServer + orderKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			status = StatusUntracked
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			status = parseStatus(string(val))
			return nil
		})
	})
	if err != nil {
		return StatusUntracked, fmt.Errorf("read order state: %w", err)
	}
	return status, nil
}

// TransitionQueued atomically moves Untracked -> Queued.
func (s *BadgerStore) TransitionQueued(_ context.Context, orderKey string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	transitioned := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixServer + orderKey)
		_, err := txn.Get(key)
		if err == nil {
			// Already Queued or Tracked: no transition.
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, []byte(StatusQueued.String())); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent request won the transition.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("transition order state: %w", err)
	}
	return transitioned, nil
}

// MarkTracked moves the order to Tracked.
func (s *BadgerStore) MarkTracked(_ context.Context, orderKey string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixServer+orderKey), []byte(StatusTracked.String()))
	})
	if err != nil {
		return fmt.Errorf("mark order tracked: %w", err)
	}
	return nil
}

// MarkPixelTracked atomically sets the pixel-channel flag.
func (s *BadgerStore) MarkPixelTracked(_ context.Context, orderKey string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	marked := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixPixel + orderKey)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, []byte("tracked")); err != nil {
			return err
		}
		marked = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark pixel tracked: %w", err)
	}
	return marked, nil
}

// PixelTracked reports the pixel-channel flag.
func (s *BadgerStore) PixelTracked(_ context.Context, orderKey string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	tracked := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixPixel + orderKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		tracked = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("read pixel state: %w", err)
	}
	return tracked, nil
}

// Close shuts the store down.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BadgerStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
