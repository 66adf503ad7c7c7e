// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/pixelbridge/pixelbridge/internal/delivery"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

// recordingDeliverer scripts per-attempt outcomes and records calls.
type recordingDeliverer struct {
	mu       sync.Mutex
	outcomes []delivery.Outcome
	calls    []*tracking.Event
	args     []delivery.Args
}

func (d *recordingDeliverer) Send(_ context.Context, event *tracking.Event, args delivery.Args) delivery.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, event)
	d.args = append(d.args, args)
	if len(d.outcomes) > 0 {
		out := d.outcomes[0]
		d.outcomes = d.outcomes[1:]
		return out
	}
	return delivery.Outcome{Success: true, StatusCode: 200}
}

func (d *recordingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func purchaseEvent(t *testing.T) *tracking.Event {
	t.Helper()
	event := &tracking.Event{
		SchemaVersion: tracking.SchemaVersion,
		Kind:          tracking.KindPurchase,
		CorrelationID: tracking.PurchaseCorrelationID("wc_order_abc123"),
		Value:         59.90,
		Currency:      "EUR",
		Items:         []tracking.Item{{ProductID: 7, Name: "Walnut Desk Organizer", Quantity: 2, Price: 24.95}},
		OrderID:       42,
		OrderKey:      "wc_order_abc123",
		OccurredAt:    time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		t.Fatal(err)
	}
	return event
}

func runConsumer(t *testing.T, deliverer Deliverer, topic string) (*gochannel.GoChannel, context.CancelFunc) {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	consumer := NewConsumer(pubSub, deliverer, topic)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = consumer.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = pubSub.Close()
	})
	// Give the consumer time to subscribe before the test publishes.
	time.Sleep(50 * time.Millisecond)
	return pubSub, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met within deadline")
}

func TestConsumerDelivers(t *testing.T) {
	deliverer := &recordingDeliverer{}
	pubSub, _ := runConsumer(t, deliverer, "conversions.pinterest.purchase")

	event := purchaseEvent(t)
	payload, _ := event.Marshal()
	msg := message.NewMessage(event.CorrelationID, payload)
	if err := pubSub.Publish("conversions.pinterest.purchase", msg); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return deliverer.count() == 1 })

	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	if deliverer.calls[0].CorrelationID != event.CorrelationID {
		t.Errorf("Wrong event delivered: %+v", deliverer.calls[0])
	}
	if deliverer.args[0][delivery.ArgOrderKey] != "wc_order_abc123" {
		t.Errorf("Purchase args missing order key: %v", deliverer.args[0])
	}
}

func TestConsumerRetriesTransportFailure(t *testing.T) {
	deliverer := &recordingDeliverer{
		outcomes: []delivery.Outcome{
			{Success: false, StatusCode: 0, ErrorDetail: "connection refused"},
			{Success: true, StatusCode: 200},
		},
	}
	pubSub, _ := runConsumer(t, deliverer, "conversions.pinterest.purchase")

	event := purchaseEvent(t)
	payload, _ := event.Marshal()
	if err := pubSub.Publish("conversions.pinterest.purchase", message.NewMessage(event.CorrelationID, payload)); err != nil {
		t.Fatal(err)
	}

	// The nacked job is redelivered and succeeds on the second attempt.
	waitFor(t, func() bool { return deliverer.count() == 2 })
}

func TestConsumerAcksPartnerRejection(t *testing.T) {
	deliverer := &recordingDeliverer{
		outcomes: []delivery.Outcome{
			{Success: false, StatusCode: 422, ErrorDetail: "invalid pixel id"},
		},
	}
	pubSub, _ := runConsumer(t, deliverer, "conversions.pinterest.purchase")

	event := purchaseEvent(t)
	payload, _ := event.Marshal()
	if err := pubSub.Publish("conversions.pinterest.purchase", message.NewMessage(event.CorrelationID, payload)); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return deliverer.count() == 1 })
	time.Sleep(100 * time.Millisecond)
	if deliverer.count() != 1 {
		t.Errorf("Partner rejection must not be retried, got %d attempts", deliverer.count())
	}
}

func TestConsumerDropsMalformedPayload(t *testing.T) {
	deliverer := &recordingDeliverer{}
	pubSub, _ := runConsumer(t, deliverer, "conversions.pinterest.purchase")

	if err := pubSub.Publish("conversions.pinterest.purchase", message.NewMessage("bad", []byte("not json"))); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if deliverer.count() != 0 {
		t.Errorf("Malformed payload must not reach the deliverer, got %d calls", deliverer.count())
	}
}

// capturePublisher records Enqueuer publishes.
type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	msgs   []*message.Message
}

func (p *capturePublisher) Publish(_ context.Context, topic string, msg *message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestEnqueuer(t *testing.T) {
	pub := &capturePublisher{}
	enqueuer := &Enqueuer{publisher: pub, partner: "pinterest"}

	event := purchaseEvent(t)
	if err := enqueuer.Enqueue(context.Background(), event); err != nil {
		t.Fatal(err)
	}

	if pub.topics[0] != "conversions.pinterest.purchase" {
		t.Errorf("Wrong topic: %s", pub.topics[0])
	}
	msg := pub.msgs[0]
	if msg.UUID != event.CorrelationID {
		t.Errorf("Message UUID must be the correlation ID for deduplication, got %s", msg.UUID)
	}
	if msg.Metadata.Get("order_key") != "wc_order_abc123" {
		t.Errorf("Expected order key metadata, got %v", msg.Metadata)
	}

	decoded, err := tracking.UnmarshalEvent(msg.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.OrderID != 42 {
		t.Errorf("Payload lost order identity: %+v", decoded)
	}
}

func TestPublisherClosed(t *testing.T) {
	p := &Publisher{publisher: nil, closed: true}
	err := p.Publish(context.Background(), "conversions.pinterest.purchase", message.NewMessage("x", nil))
	if err == nil {
		t.Error("Closed publisher must refuse to publish")
	}
}
