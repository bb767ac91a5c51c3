package stream

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

const subscriberBuffer = 100

// Broadcaster fans approved and broadcast alerts out to live subscribers.
// Slow subscribers miss alerts rather than block the sender.
type Broadcaster struct {
	subscribers map[uint64]chan *models.DisasterAlert
	nextID      atomic.Uint64
	mu          sync.RWMutex
	gauge       prometheus.Gauge
}

// NewBroadcaster creates a broadcaster. gauge may be nil.
func NewBroadcaster(gauge prometheus.Gauge) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan *models.DisasterAlert),
		gauge:       gauge,
	}
}

func (b *Broadcaster) Subscribe() (uint64, chan *models.DisasterAlert) {
	id := b.nextID.Add(1)
	ch := make(chan *models.DisasterAlert, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.report()
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
		b.report()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(a *models.DisasterAlert) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- a:
		default:
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels so open streams end.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.report()
}

// report must be called with mu held.
func (b *Broadcaster) report() {
	if b.gauge != nil {
		b.gauge.Set(float64(len(b.subscribers)))
	}
}
