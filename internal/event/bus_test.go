package event

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/HerbHall/netwatch/pkg/plugin"
)

// recorder collects the payloads a handler receives.
type recorder struct {
	mu   sync.Mutex
	got  []any
	done chan struct{}
}

func newRecorder(expect int) *recorder {
	r := &recorder{done: make(chan struct{}, expect)}
	return r
}

func (r *recorder) handle(_ context.Context, e plugin.Event) {
	r.mu.Lock()
	r.got = append(r.got, e.Payload)
	r.mu.Unlock()
	select {
	case r.done <- struct{}{}:
	default:
	}
}

func (r *recorder) payloads() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.got...)
}

func publish(t *testing.T, b *Bus, topic string, payload any) {
	t.Helper()
	if err := b.Publish(context.Background(), plugin.Event{Topic: topic, Source: "pulse", Payload: payload}); err != nil {
		t.Fatalf("Publish(%s) error = %v", topic, err)
	}
}

func TestBus_TopicRouting(t *testing.T) {
	b := NewBus(zap.NewNop())
	results, alerts, all := newRecorder(0), newRecorder(0), newRecorder(0)
	b.Subscribe("pulse.result", results.handle)
	b.Subscribe("pulse.alert", alerts.handle)
	b.SubscribeAll(all.handle)

	publish(t, b, "pulse.result", "r1")
	publish(t, b, "pulse.alert", "a1")
	publish(t, b, "pulse.devices", "d1")

	tests := []struct {
		name string
		rec  *recorder
		want []any
	}{
		{"results", results, []any{"r1"}},
		{"alerts", alerts, []any{"a1"}},
		{"all", all, []any{"r1", "a1", "d1"}},
	}
	for _, tt := range tests {
		got := tt.rec.payloads()
		if len(got) != len(tt.want) {
			t.Errorf("%s got %v, want %v", tt.name, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s[%d] = %v, want %v", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}

func TestBus_PublishPreservesOrder(t *testing.T) {
	b := NewBus(zap.NewNop())
	rec := newRecorder(0)
	b.Subscribe("pulse.result", rec.handle)

	for i := 0; i < 50; i++ {
		publish(t, b, "pulse.result", i)
	}
	for i, p := range rec.payloads() {
		if p != i {
			t.Fatalf("payload %d = %v, want in-order delivery", i, p)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(zap.NewNop())
	topic, all := newRecorder(0), newRecorder(0)
	unsubTopic := b.Subscribe("pulse.alert", topic.handle)
	unsubAll := b.SubscribeAll(all.handle)

	publish(t, b, "pulse.alert", 1)
	unsubTopic()
	unsubAll()
	unsubTopic()
	publish(t, b, "pulse.alert", 2)

	if n := len(topic.payloads()); n != 1 {
		t.Errorf("topic handler called %d times, want 1", n)
	}
	if n := len(all.payloads()); n != 1 {
		t.Errorf("catch-all handler called %d times, want 1", n)
	}
	if _, ok := b.topics["pulse.alert"]; ok {
		t.Error("empty topic entry was not removed")
	}
}

func TestBus_UnsubscribeFromHandler(t *testing.T) {
	b := NewBus(zap.NewNop())
	calls := 0
	var unsub func()
	unsub = b.Subscribe("pulse.devices", func(context.Context, plugin.Event) {
		calls++
		unsub()
	})

	publish(t, b, "pulse.devices", nil)
	publish(t, b, "pulse.devices", nil)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBus_PublishAsync(t *testing.T) {
	b := NewBus(zap.NewNop())
	topic, all := newRecorder(1), newRecorder(1)
	b.Subscribe("pulse.result", topic.handle)
	b.SubscribeAll(all.handle)

	b.PublishAsync(context.Background(), plugin.Event{Topic: "pulse.result", Payload: "x"})
	<-topic.done
	<-all.done

	// No subscribers: nothing is spawned and nothing blocks.
	b.PublishAsync(context.Background(), plugin.Event{Topic: "nobody.listens"})
}

func TestBus_PanicIsolation(t *testing.T) {
	b := NewBus(nil)
	rec := newRecorder(0)
	b.Subscribe("pulse.alert", func(context.Context, plugin.Event) { panic("bad subscriber") })
	b.Subscribe("pulse.alert", rec.handle)

	publish(t, b, "pulse.alert", "still delivered")
	if got := rec.payloads(); len(got) != 1 {
		t.Errorf("second handler got %v, want one payload", got)
	}
}
