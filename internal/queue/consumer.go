// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/pixelbridge/pixelbridge/internal/delivery"
	"github.com/pixelbridge/pixelbridge/internal/logging"
	"github.com/pixelbridge/pixelbridge/internal/metrics"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

// Deliverer executes one delivery attempt. Satisfied by delivery.Channel.
type Deliverer interface {
	Send(ctx context.Context, event *tracking.Event, args delivery.Args) delivery.Outcome
}

// errRetryable nacks the message so JetStream redelivers it.
var errRetryable = errors.New("queue: delivery failed, retry")

// Consumer drains queued conversion jobs and executes their deliveries.
//
// Disposition policy: a transport failure (no HTTP response) is retryable
// and nacked for redelivery up to the consumer's MaxDeliver budget. A partner
// rejection (any HTTP status) is final and acked; retrying a payload the
// partner already refused only burns the redelivery budget. Malformed
// payloads are acked and dropped.
type Consumer struct {
	subscriber message.Subscriber
	deliverer  Deliverer
	topic      string
}

// NewConsumer wires a consumer to a subscriber and delivery channel.
// The topic is normally the stream-wide wildcard conversions.>.
func NewConsumer(subscriber message.Subscriber, deliverer Deliverer, topic string) *Consumer {
	return &Consumer{
		subscriber: subscriber,
		deliverer:  deliverer,
		topic:      topic,
	}
}

// Run processes jobs until the context is canceled or the subscriber's
// channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}

	logging.Info().Str("topic", c.topic).Msg("delivery consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := c.process(ctx, msg); err != nil {
				msg.Nack()
			} else {
				msg.Ack()
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg *message.Message) error {
	event, err := tracking.UnmarshalEvent(msg.Payload)
	if err != nil {
		// Poison: redelivery cannot fix a payload that does not parse.
		logging.Warn().Err(err).
			Str("message_uuid", msg.UUID).
			Msg("dropping malformed delivery job")
		return nil
	}

	args := delivery.Args{}
	if event.Kind == tracking.KindPurchase {
		args[delivery.ArgOrderKey] = event.OrderKey
		args[delivery.ArgOrderID] = fmt.Sprintf("%d", event.OrderID)
	}

	outcome := c.deliverer.Send(ctx, event, args)
	if !outcome.Success && outcome.StatusCode == 0 {
		metrics.QueueRedeliveries.Inc()
		logging.Warn().
			Str("event", string(event.Kind)).
			Str("correlation_id", event.CorrelationID).
			Str("detail", outcome.ErrorDetail).
			Msg("delivery transport failure, job nacked for redelivery")
		return errRetryable
	}
	return nil
}
