package audit

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/models"
)

const defaultStreamBuffer = 64

// Hub fans recorded events out to live-tail subscribers. Delivery is best
// effort: a subscriber that cannot keep up with its buffer is disconnected
// rather than allowed to stall the pipeline.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	log    *logrus.Logger
}

// Subscription is one live-tail consumer. Read events from C until it is
// closed, then check Dropped to distinguish a hub-side eviction from a
// normal Close.
type Subscription struct {
	C <-chan []byte

	hub     *Hub
	ch      chan []byte
	once    sync.Once
	dropped bool
}

// NewHub creates a hub whose subscribers buffer up to buffer events each.
func NewHub(buffer int, log *logrus.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a new live-tail consumer.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan []byte, h.buffer)
	sub := &Subscription{C: ch, hub: h, ch: ch}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Broadcast serializes the event once and offers it to every subscriber.
func (h *Hub) Broadcast(event *models.AuditEvent) {
	h.mu.RLock()
	empty := len(h.subs) == 0
	h.mu.RUnlock()
	if empty {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("Failed to serialize audit event for streaming")
		return
	}

	var slow []*Subscription
	h.mu.RLock()
	for sub := range h.subs {
		select {
		case sub.ch <- payload:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.drop(sub)
	}
}

// Subscribers returns the current consumer count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// drop evicts a subscriber that fell behind and closes its channel.
func (h *Hub) drop(sub *Subscription) {
	sub.once.Do(func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		sub.dropped = true
		close(sub.ch)
		h.log.Warn("Dropped slow audit stream subscriber")
	})
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Dropped reports whether the hub evicted this subscription for falling
// behind.
func (s *Subscription) Dropped() bool {
	return s.dropped
}
