// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package main is the entry point for the Pixelbridge server.
//
// Pixelbridge reports commerce storefront conversions to an ad partner over
// two correlated channels: a browser pixel rendered into storefront pages
// and server-side Conversions API calls routed through an authenticated
// Connect proxy. Both channels carry the same correlation ID per real-world
// action so the partner deduplicates instead of double counting.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML, environment)
//  2. State store: BadgerDB per-order idempotency state machine
//  3. Commerce client: storefront REST API for orders, products and carts
//  4. Delivery channel: Connect proxy client with breaker and rate limiter
//  5. Queue: NATS JetStream (optionally embedded) with a Watermill consumer
//  6. Audit trail: DuckDB record of delivery attempts
//  7. HTTP server: webhooks, browser tracking, pixel rendering, operator API
//
// Long-running services run under a Suture supervision tree with three
// layers (delivery, realtime, api) so a crash in one layer restarts that
// layer only.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the queue consumer stops pulling, and the audit
// writer flushes before connections close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/pixelbridge/pixelbridge/internal/api"
	"github.com/pixelbridge/pixelbridge/internal/audit"
	"github.com/pixelbridge/pixelbridge/internal/authz"
	"github.com/pixelbridge/pixelbridge/internal/commerce"
	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/delivery"
	"github.com/pixelbridge/pixelbridge/internal/livefeed"
	"github.com/pixelbridge/pixelbridge/internal/logging"
	"github.com/pixelbridge/pixelbridge/internal/pixel"
	"github.com/pixelbridge/pixelbridge/internal/queue"
	"github.com/pixelbridge/pixelbridge/internal/state"
	"github.com/pixelbridge/pixelbridge/internal/supervisor"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("partner", cfg.Tracking.Partner).
		Bool("tracking_enabled", cfg.Tracking.Enabled).
		Bool("pixel_configured", cfg.Tracking.PixelID != "").
		Msg("Starting Pixelbridge")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
	logging.Info().Msg("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Per-order tracking state. Badger when a path is configured, memory
	// otherwise (the memory store loses idempotency across restarts and is
	// only meant for development).
	var states state.Store
	if cfg.State.Path != "" {
		badger, err := state.OpenBadger(cfg.State.Path)
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		states = badger
	} else {
		logging.Warn().Msg("No state path configured, using in-memory order state")
		states = state.NewMemoryStore()
	}
	defer func() {
		if err := states.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state store")
		}
	}()

	if cfg.Commerce.BaseURL == "" {
		logging.Warn().Msg("Commerce base URL not configured, entity resolution will fail")
	}
	cachedStore := commerce.NewCachedStore(commerce.NewClient(cfg.Commerce), 5*time.Minute)
	defer cachedStore.Close()
	var store commerce.Store = cachedStore

	// The notifier is shared by everything that reacts to a delivery
	// attempt: the state machine, the audit trail and the live feed.
	notifier := delivery.NewNotifier()
	channel := delivery.NewChannel(cfg.Connect, cfg.Tracking, notifier)

	qctx, err := setupQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer qctx.close()

	consent := tracking.NewConsentGate(cfg.Consent)
	tracker := tracking.NewTracker(cfg.Tracking, consent, states, channel, qctx.enqueuer)
	trackRouter := tracking.NewRouter(tracker, store)

	notifier.Subscribe(func(ctx context.Context, event *tracking.Event, args delivery.Args, _ delivery.Outcome) {
		tracker.HandleDelivered(ctx, event, args[delivery.ArgOrderKey])
	})

	var trail *audit.Trail
	if cfg.Audit.Enabled {
		trail, err = audit.Open(cfg.Audit)
		if err != nil {
			return fmt.Errorf("open audit trail: %w", err)
		}
		defer func() {
			if err := trail.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing audit trail")
			}
		}()
		notifier.Subscribe(trail.Listener())
	}

	hub := livefeed.NewHub()
	notifier.Subscribe(hub.Listener())

	scripts := pixel.NewScriptCache(cfg.Pixel, cfg.Tracking.PixelID)
	injector := pixel.NewInjector(cfg.Pixel, cfg.Tracking, consent, states, scripts)

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return fmt.Errorf("init authorization: %w", err)
	}

	// Runtime kill switch, flipped through the operator API. Starts in the
	// configured position.
	kill := tracking.NewSwitch(cfg.Tracking.Enabled)

	handler := api.NewHandler(cfg, trackRouter, injector, states, trail, hub, store, kill)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, enforcer).Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tree.AddDeliveryService(supervisor.NewRunnerService("queue-consumer", queue.NewConsumer(qctx.subscriber, channel, "conversions.>")))
	if trail != nil {
		tree.AddDeliveryService(supervisor.NewRunnerService("audit-writer", trail))
		tree.AddDeliveryService(supervisor.NewTickerService("audit-prune", 24*time.Hour, func(ctx context.Context) error {
			pruned, err := trail.Prune(ctx)
			if err != nil {
				return err
			}
			if pruned > 0 {
				logging.Info().Int64("pruned", pruned).Msg("Audit retention applied")
			}
			return nil
		}))
	}
	tree.AddRealtimeService(supervisor.NewRunnerService("livefeed-hub", hub))
	if cfg.Pixel.ScriptURL != "" {
		// Keeps the partner base code warm so page renders never pay the
		// fetch; Get refreshes when the TTL has lapsed.
		tree.AddRealtimeService(supervisor.NewTickerService("script-refresh", time.Hour, func(ctx context.Context) error {
			scripts.Get(ctx)
			return nil
		}))
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Serving")
	return tree.Serve(ctx)
}

// queueContext bundles the queue plumbing main wires together.
type queueContext struct {
	embedded   *queue.EmbeddedServer
	conn       *natsgo.Conn
	publisher  *queue.Publisher
	subscriber message.Subscriber
	enqueuer   *queue.Enqueuer
}

func (q *queueContext) close() {
	if q.publisher != nil {
		if err := q.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing queue publisher")
		}
	}
	if q.subscriber != nil {
		if err := q.subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing queue subscriber")
		}
	}
	if q.conn != nil {
		q.conn.Close()
	}
	if q.embedded != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := q.embedded.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down embedded NATS")
		}
	}
}

// setupQueue starts the embedded NATS server when configured, provisions the
// conversions stream, and builds the publisher, enqueuer and subscriber.
func setupQueue(ctx context.Context, cfg *config.Config) (*queueContext, error) {
	qc := &queueContext{}

	if cfg.Queue.EmbeddedServer {
		embedded, err := queue.NewEmbeddedServer(cfg.Queue.EmbeddedHost, cfg.Queue.EmbeddedPort, cfg.Queue.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("start embedded nats: %w", err)
		}
		qc.embedded = embedded
		cfg.Queue.URL = embedded.ClientURL()
		logging.Info().Str("url", cfg.Queue.URL).Msg("Embedded NATS server started")
	}

	conn, err := natsgo.Connect(cfg.Queue.URL)
	if err != nil {
		qc.close()
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	qc.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		qc.close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	init, err := queue.NewStreamInitializer(js, cfg.Queue)
	if err != nil {
		qc.close()
		return nil, err
	}
	if _, err := init.EnsureStream(ctx); err != nil {
		qc.close()
		return nil, fmt.Errorf("provision stream: %w", err)
	}

	logger := queue.NewWatermillLogger()
	publisher, err := queue.NewPublisher(cfg.Queue, logger)
	if err != nil {
		qc.close()
		return nil, fmt.Errorf("queue publisher: %w", err)
	}
	qc.publisher = publisher
	qc.enqueuer = queue.NewEnqueuer(publisher, cfg.Tracking.Partner)

	subscriber, err := queue.NewSubscriber(cfg.Queue, logger)
	if err != nil {
		qc.close()
		return nil, fmt.Errorf("queue subscriber: %w", err)
	}
	qc.subscriber = subscriber

	return qc, nil
}
