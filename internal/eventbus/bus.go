package eventbus

import (
	"sync"
	"sync/atomic"
)

// Topic names a kind of change. Events carry no payload.
type Topic string

const (
	StockMovementCreated Topic = "STOCK_MOVEMENT_CREATED"
	SaleCreated          Topic = "SALE_CREATED"
	ProductCreated       Topic = "PRODUCT_CREATED"
	ProductUpdated       Topic = "PRODUCT_UPDATED"
	ProductDeleted       Topic = "PRODUCT_DELETED"
)

// Topics lists every topic in a stable order.
func Topics() []Topic {
	return []Topic{StockMovementCreated, SaleCreated, ProductCreated, ProductUpdated, ProductDeleted}
}

// Handler is invoked synchronously by Publish.
type Handler func(Topic)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(topic Topic)
}

type subscription struct {
	h      Handler
	active atomic.Bool
}

// Bus is an in-process publish/subscribe registry.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic]map[uint64]*subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic]map[uint64]*subscription)}
}

// Subscribe registers h for topic and returns a function that removes it.
// The returned function is idempotent. Once it returns, h is not called again,
// even by a Publish that was already running.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	sub := &subscription{h: h}
	sub.active.Store(true)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*subscription)
	}
	b.subs[topic][id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			b.mu.Lock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
		})
	}
}

// SubscribeAll registers h for every topic and returns one unsubscribe for all of them.
func (b *Bus) SubscribeAll(h Handler) func() {
	topics := Topics()
	cancels := make([]func(), 0, len(topics))
	for _, t := range topics {
		cancels = append(cancels, b.Subscribe(t, h))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Publish calls every handler currently subscribed to topic.
// Handlers run on the caller's goroutine and may unsubscribe themselves.
func (b *Bus) Publish(topic Topic) {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subs[topic]))
	for _, sub := range b.subs[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.h(topic)
		}
	}
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
