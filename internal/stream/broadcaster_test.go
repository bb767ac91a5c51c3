package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-alert-automation/internal/metrics"
	"github.com/mr1hm/go-alert-automation/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBroadcaster_SubscribeUnsubscribe(t *testing.T) {
	m := metrics.NewMetricsForTesting()
	b := NewBroadcaster(m.StreamSubscribers)

	id, ch := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", b.SubscriberCount())
	}
	if got := testutil.ToFloat64(m.StreamSubscribers); got != 1 {
		t.Errorf("expected gauge 1, got %v", got)
	}

	b.Unsubscribe(id)
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
	if got := testutil.ToFloat64(m.StreamSubscribers); got != 0 {
		t.Errorf("expected gauge 0, got %v", got)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	default:
		t.Error("channel should be closed and readable")
	}

	// unknown ids are ignored
	b.Unsubscribe(id)
}

func TestBroadcaster_Broadcast(t *testing.T) {
	b := NewBroadcaster(nil)

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	alert := &models.DisasterAlert{
		ID:       7,
		Type:     "earthquake",
		Severity: models.SeverityHigh,
		Title:    "M6.2 - Batangas",
	}

	b.Broadcast(alert)

	select {
	case received := <-ch:
		if received.ID != alert.ID {
			t.Errorf("expected ID %d, got %d", alert.ID, received.ID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for broadcast")
	}
}

func TestBroadcaster_ConcurrentSubscribeBroadcast(t *testing.T) {
	b := NewBroadcaster(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ch := b.Subscribe()
			drained := make(chan struct{})
			go func() {
				defer close(drained)
				for range ch {
				}
			}()
			time.Sleep(5 * time.Millisecond)
			b.Unsubscribe(id)
			<-drained
		}()
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			b.Broadcast(&models.DisasterAlert{ID: int64(n)})
		}(i)
	}

	wg.Wait()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(nil)

	var channels []chan *models.DisasterAlert
	for i := 0; i < 5; i++ {
		_, ch := b.Subscribe()
		channels = append(channels, ch)
	}

	b.Close()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", b.SubscriberCount())
	}
	for i, ch := range channels {
		select {
		case _, ok := <-ch:
			if ok {
				t.Errorf("channel %d should be closed", i)
			}
		default:
			t.Errorf("channel %d should be closed and readable", i)
		}
	}
}

func TestBroadcaster_SlowSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 0; i < subscriberBuffer+1; i++ {
		b.Broadcast(&models.DisasterAlert{ID: int64(i)})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
			continue
		default:
		}
		break
	}

	if count != subscriberBuffer {
		t.Errorf("expected %d buffered alerts, got %d", subscriberBuffer, count)
	}
}
