// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/cruxdb/settingsd/pkg/metrics"
)

// Event is one committed change to an external settings field. Rev is
// the store revision the change was committed at.
type Event struct {
	Field string
	Value interface{}
	Rev   uint64
}

// subscriberBuffer is the per-subscriber event queue depth. A
// subscriber that falls further behind loses events rather than
// blocking the committing writer.
const subscriberBuffer = 16

type subscription struct {
	ch     chan Event
	closed bool
}

// Notifier broadcasts change events to subscribers after committed
// writes. Delivery is best-effort and out-of-band: each subscriber is
// served by its own goroutine in commit order, and a failure or stall
// in one subscriber never affects the commit or other subscribers.
type Notifier struct {
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[uuid.UUID]*subscription
	lastRev map[string]uint64
	closed  bool
}

// NewNotifier creates a Notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger:  logger,
		subs:    make(map[uuid.UUID]*subscription),
		lastRev: make(map[string]uint64),
	}
}

// Subscribe registers a callback for change events and returns a token
// for Unsubscribe. The callback runs on a dedicated goroutine and sees
// events in commit order. Subscribing to a closed notifier returns
// uuid.Nil and the callback never fires.
func (n *Notifier) Subscribe(fn func(Event)) uuid.UUID {
	id := uuid.New()
	sub := &subscription{ch: make(chan Event, subscriberBuffer)}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return uuid.Nil
	}
	n.subs[id] = sub
	metrics.NotifierSubscribers.Set(float64(len(n.subs)))
	n.mu.Unlock()

	go func() {
		for ev := range sub.ch {
			fn(ev)
		}
	}()

	return id
}

// Unsubscribe removes a subscriber. Unknown tokens are ignored.
func (n *Notifier) Unsubscribe(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, ok := n.subs[id]
	if !ok {
		return
	}
	delete(n.subs, id)
	metrics.NotifierSubscribers.Set(float64(len(n.subs)))
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// Publish broadcasts one change event committed at rev. It never
// blocks: events to a full subscriber buffer are dropped and counted.
//
// Writers publish after their commit returns, so two racing writers can
// reach Publish in the opposite order of their commits. Enqueueing is
// therefore gated per field on the revision: an event older than one
// already published for the same field is discarded, which keeps every
// subscriber's event stream for a field in commit order and its last
// event in agreement with the committed document.
func (n *Notifier) Publish(field string, value interface{}, rev uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if rev <= n.lastRev[field] {
		n.logger.Debug("discarded stale change event",
			"field", field,
			"revision", rev,
			"published_revision", n.lastRev[field],
		)
		return
	}
	n.lastRev[field] = rev

	ev := Event{Field: field, Value: value, Rev: rev}
	for _, sub := range n.subs {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			metrics.NotifierEventsDroppedTotal.Inc()
			n.logger.Warn("dropped change event for slow subscriber", "field", field)
		}
	}
}

// Close shuts down all subscribers.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for _, sub := range n.subs {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	n.subs = map[uuid.UUID]*subscription{}
	metrics.NotifierSubscribers.Set(0)
}
