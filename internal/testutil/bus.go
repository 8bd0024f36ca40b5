package testutil

import (
	"context"
	"sync"

	"github.com/HerbHall/netwatch/pkg/plugin"
)

// Compile-time interface check.
var _ plugin.EventBus = (*MockBus)(nil)

// MockBus records every published event. Subscribers are invoked
// synchronously, including for PublishAsync, so tests observe delivery
// without waiting.
type MockBus struct {
	mu       sync.Mutex
	events   []plugin.Event
	handlers map[string][]plugin.EventHandler // "" holds catch-all handlers
}

// NewMockBus returns an empty MockBus.
func NewMockBus() *MockBus {
	return &MockBus{handlers: make(map[string][]plugin.EventHandler)}
}

func (b *MockBus) Publish(ctx context.Context, event plugin.Event) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	hs := append(append([]plugin.EventHandler(nil), b.handlers[event.Topic]...), b.handlers[""]...)
	b.mu.Unlock()

	for _, h := range hs {
		h(ctx, event)
	}
	return nil
}

func (b *MockBus) PublishAsync(ctx context.Context, event plugin.Event) {
	_ = b.Publish(ctx, event)
}

// Subscribe registers h for topic. The returned function is a no-op; tests
// build a fresh bus instead of unsubscribing.
func (b *MockBus) Subscribe(topic string, h plugin.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
	return func() {}
}

func (b *MockBus) SubscribeAll(h plugin.EventHandler) func() {
	return b.Subscribe("", h)
}

// Events returns a copy of every recorded event.
func (b *MockBus) Events() []plugin.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]plugin.Event(nil), b.events...)
}

// EventsOn returns the recorded events published on topic.
func (b *MockBus) EventsOn(topic string) []plugin.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []plugin.Event
	for _, e := range b.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets recorded events. Subscriptions are kept.
func (b *MockBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
