package live

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Message is the envelope every subscriber receives.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Message types.
const (
	TypeDevices = "devices"
	TypeAlerts  = "alerts"
	TypeResult  = "result"
	TypeAlert   = "alert"
)

// Subscriber is one connected observer with a bounded send buffer.
type Subscriber struct {
	send chan Message
	once sync.Once
}

// NewSubscriber creates a subscriber that buffers up to size messages.
func NewSubscriber(size int) *Subscriber {
	if size < 1 {
		size = 1
	}
	return &Subscriber{send: make(chan Message, size)}
}

// Messages returns the subscriber's receive channel. It is closed when the
// subscriber is removed from the hub.
func (s *Subscriber) Messages() <-chan Message {
	return s.send
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans messages out to every current subscriber. Broadcast never blocks:
// a subscriber whose buffer is full misses that message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool
	logger *zap.Logger

	subscribers prometheus.Gauge
	delivered   *prometheus.CounterVec
	dropped     prometheus.Counter
}

// NewHub creates an empty hub. A nil reg keeps the collectors private.
func NewHub(logger *zap.Logger, reg prometheus.Registerer) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		logger: logger,
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "netwatch",
			Subsystem: "live",
			Name:      "subscribers",
			Help:      "Connected live subscribers.",
		}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netwatch",
			Subsystem: "live",
			Name:      "events_delivered_total",
			Help:      "Messages enqueued to subscribers by type.",
		}, []string{"type"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "netwatch",
			Subsystem: "live",
			Name:      "events_dropped_total",
			Help:      "Messages skipped because a subscriber's buffer was full.",
		}),
	}
}

// Subscribe adds s to the hub and returns a function that removes it. The
// returned function is safe to call more than once.
func (h *Hub) Subscribe(s *Subscriber) (unsubscribe func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close()
		return func() {}
	}
	h.subs[s] = struct{}{}
	h.subscribers.Set(float64(len(h.subs)))
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		if _, ok := h.subs[s]; ok {
			delete(h.subs, s)
			h.subscribers.Set(float64(len(h.subs)))
		}
		h.mu.Unlock()
		s.close()
	}
}

// Broadcast enqueues msg for every subscriber without waiting.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.send <- msg:
			h.delivered.WithLabelValues(msg.Type).Inc()
		default:
			h.dropped.Inc()
			h.logger.Debug("subscriber buffer full, message dropped", zap.String("type", msg.Type))
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close removes every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.close()
	}
	h.subscribers.Set(0)
}
