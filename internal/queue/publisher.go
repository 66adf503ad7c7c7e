// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package queue is the durable delivery queue for high-criticality conversion
// events, built on Watermill over NATS JetStream. Purchases and cart events
// are published here instead of being sent inline so delivery survives the
// HTTP response and transient Conversions API failures.
//
// Jobs are published with the event's correlation ID as Nats-Msg-Id, so the
// stream's deduplication window absorbs double publishes of the same purchase
// on top of the order state machine's own idempotency.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

// Publisher wraps a Watermill NATS publisher with reconnection handling and
// optional circuit breaker protection.
type Publisher struct {
	publisher      message.Publisher
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	mu             sync.RWMutex
	closed         bool
	logger         watermill.LoggerAdapter
}

// NewPublisher creates a resilient JetStream publisher. The stream must
// already exist; see StreamInitializer.
func NewPublisher(cfg config.QueueConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
		natsgo.ErrorHandler(func(_ *natsgo.Conn, sub *natsgo.Subscription, err error) {
			fields := watermill.LogFields{}
			if sub != nil {
				fields["subject"] = sub.Subject
			}
			logger.Error("NATS error", err, fields)
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // stream is pre-created by StreamInitializer
			TrackMsgId:    true,  // Nats-Msg-Id deduplication
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return &Publisher{
		publisher: pub,
		logger:    logger,
	}, nil
}

// SetCircuitBreaker configures breaker protection for publish operations.
func (p *Publisher) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[interface{}]) {
	p.circuitBreaker = cb
}

// Publish sends a message to the topic. The message UUID doubles as
// Nats-Msg-Id so JetStream deduplicates replays within the stream's window.
func (p *Publisher) Publish(_ context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	if p.circuitBreaker != nil {
		_, err := p.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, p.publisher.Publish(topic, msg)
		})
		return err
	}
	return p.publisher.Publish(topic, msg)
}

// Close gracefully shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.publisher.Close()
}

// WatermillPublisher exposes the underlying publisher for Watermill
// components that need the native interface.
func (p *Publisher) WatermillPublisher() message.Publisher {
	return p.publisher
}

// Enqueuer publishes tracking events as delivery jobs. It satisfies the
// tracker's Enqueuer collaborator.
type Enqueuer struct {
	publisher interface {
		Publish(ctx context.Context, topic string, msg *message.Message) error
	}
	partner string
}

// NewEnqueuer creates an enqueuer publishing to the partner's subjects.
func NewEnqueuer(publisher *Publisher, partner string) *Enqueuer {
	return &Enqueuer{publisher: publisher, partner: partner}
}

var _ tracking.Enqueuer = (*Enqueuer)(nil)

// Enqueue serializes the event and publishes it to conversions.<partner>.<kind>.
// The correlation ID becomes the message UUID: two publishes of the same
// purchase collapse into one job inside the deduplication window.
func (e *Enqueuer) Enqueue(ctx context.Context, event *tracking.Event) error {
	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(event.CorrelationID, payload)
	msg.Metadata.Set("event_kind", string(event.Kind))
	if event.OrderKey != "" {
		msg.Metadata.Set("order_key", event.OrderKey)
	}

	return e.publisher.Publish(ctx, event.Topic(e.partner), msg)
}
