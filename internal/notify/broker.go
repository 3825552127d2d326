// Package notify carries document change notifications from the watcher to
// dashboard subscribers, either in process or over Redis pub/sub.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"docpulse/internal/analytics"
)

type topic struct {
	doc     analytics.DocumentID
	channel analytics.Channel
}

type handler struct {
	id uint64
	fn func(analytics.ChangeEvent)
}

// Broker is an in-process Notifier and Publisher.
type Broker struct {
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   uint64
	handlers map[topic]map[uint64]handler
}

var (
	_ analytics.Notifier  = (*Broker)(nil)
	_ analytics.Publisher = (*Broker)(nil)
)

// NewBroker creates an empty broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger:   logger,
		handlers: make(map[topic]map[uint64]handler),
	}
}

// Subscribe registers fn for events on (doc, ch).
func (b *Broker) Subscribe(_ context.Context, doc analytics.DocumentID, ch analytics.Channel, fn func(analytics.ChangeEvent)) (analytics.Subscription, error) {
	key := topic{doc: doc, channel: ch}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.handlers[key] == nil {
		b.handlers[key] = make(map[uint64]handler)
	}
	b.handlers[key][id] = handler{id: id, fn: fn}
	b.mu.Unlock()

	return &brokerSubscription{broker: b, key: key, id: id}, nil
}

// Publish delivers event to every current subscriber of its topic. Handlers
// run on the caller's goroutine, after the broker lock is released.
func (b *Broker) Publish(_ context.Context, event analytics.ChangeEvent) error {
	key := topic{doc: event.DocumentID, channel: event.Channel}

	b.mu.RLock()
	targets := make([]handler, 0, len(b.handlers[key]))
	for _, h := range b.handlers[key] {
		targets = append(targets, h)
	}
	b.mu.RUnlock()

	for _, h := range targets {
		b.deliver(h, event)
	}
	return nil
}

// SubscriberCount returns how many handlers listen on (doc, ch).
func (b *Broker) SubscriberCount(doc analytics.DocumentID, ch analytics.Channel) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic{doc: doc, channel: ch}])
}

func (b *Broker) deliver(h handler, event analytics.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("Panic recovered in change handler",
				slog.String("document_id", string(event.DocumentID)),
				slog.String("channel", string(event.Channel)),
				slog.Any("panic", r))
		}
	}()
	h.fn(event)
}

func (b *Broker) remove(key topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[key]
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.handlers, key)
	}
}

type brokerSubscription struct {
	broker *Broker
	key    topic
	id     uint64
	once   sync.Once
}

func (s *brokerSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.remove(s.key, s.id)
	})
}
