package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Event{Type: EventSent, SenderID: "U1"})

	select {
	case ev := <-ch:
		assert.Equal(t, EventSent, ev.Type)
		assert.Equal(t, "U1", ev.SenderID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(nil)
	ch1, cancel1 := hub.Subscribe()
	defer cancel1()
	ch2, cancel2 := hub.Subscribe()
	defer cancel2()

	hub.Publish(Event{Type: EventRetrying})

	require.Len(t, ch1, 1)
	require.Len(t, ch2, 1)
}

func TestHubCancelStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.Subscribe()
	cancel()

	hub.Publish(Event{Type: EventSent})
	assert.Empty(t, ch)
}

func TestHubDropsWhenSubscriberStalls(t *testing.T) {
	hub := NewHub(nil)
	_, cancel := hub.Subscribe()
	defer cancel()

	// Overfill the subscriber buffer without draining it.
	for i := 0; i < 100; i++ {
		hub.Publish(Event{Type: EventAggregating})
	}
	assert.Greater(t, hub.Dropped(), 0, "publish never blocks on a slow subscriber")
}
