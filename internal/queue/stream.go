// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/pixelbridge/pixelbridge/internal/config"
)

// JetStreamContext is the subset of jetstream.JetStream the initializer
// needs, extracted so tests can substitute a mock.
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// StreamInitializer manages the conversions stream lifecycle. The stream is
// created (or its configuration updated) before any publisher or subscriber
// starts, so a job published during startup is never lost to a missing stream.
type StreamInitializer struct {
	js  JetStreamContext
	cfg config.QueueConfig
}

// NewStreamInitializer creates an initializer for the configured stream.
func NewStreamInitializer(js JetStreamContext, cfg config.QueueConfig) (*StreamInitializer, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context required")
	}
	if cfg.StreamName == "" {
		return nil, fmt.Errorf("stream name required")
	}
	return &StreamInitializer{js: js, cfg: cfg}, nil
}

// EnsureStream creates or updates the conversions stream. Idempotent.
//
// The deduplication window must be at least as long as the state store's
// exposure to a crash between TransitionQueued and the publish ack; two
// minutes covers it with a wide margin.
func (s *StreamInitializer) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	maxAge := time.Duration(s.cfg.RetentionDays) * 24 * time.Hour

	streamCfg := jetstream.StreamConfig{
		Name:        s.cfg.StreamName,
		Subjects:    []string{"conversions.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      maxAge,
		Duplicates:  2 * time.Minute,
		Storage:     jetstream.FileStorage,
		AllowDirect: true,
		Discard:     jetstream.DiscardOld,
	}

	_, err := s.js.Stream(ctx, s.cfg.StreamName)
	if err == nil {
		stream, err := s.js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", s.cfg.StreamName, err)
		}
		return stream, nil
	}

	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err := s.js.CreateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", s.cfg.StreamName, err)
		}
		return stream, nil
	}

	return nil, fmt.Errorf("check stream %s: %w", s.cfg.StreamName, err)
}

// IsHealthy reports whether the stream exists and is reachable.
func (s *StreamInitializer) IsHealthy(ctx context.Context) bool {
	_, err := s.js.Stream(ctx, s.cfg.StreamName)
	return err == nil
}
