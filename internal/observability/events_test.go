package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHubBroadcasts(t *testing.T) {
	hub := NewEventHub(4)
	first, stopFirst := hub.Subscribe()
	second, stopSecond := hub.Subscribe()
	defer stopSecond()

	hub.Publish(Event{Type: EventStarted, Tool: "echo"})

	assert.Equal(t, "echo", (<-first).Tool)
	assert.Equal(t, "echo", (<-second).Tool)
	assert.Equal(t, 2, hub.Subscribers())

	stopFirst()
	stopFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers())
}

func TestEventHubDropsWhenFull(t *testing.T) {
	hub := NewEventHub(1)
	ch, stop := hub.Subscribe()
	defer stop()

	hub.Publish(Event{Tool: "a"})
	hub.Publish(Event{Tool: "b"})

	assert.Equal(t, "a", (<-ch).Tool)
	assert.EqualValues(t, 1, hub.Dropped())
}

func TestEventHubClose(t *testing.T) {
	hub := NewEventHub(0)
	ch, stop := hub.Subscribe()
	hub.Close()
	stop()

	_, open := <-ch
	assert.False(t, open)

	late, _ := hub.Subscribe()
	_, open = <-late
	require.False(t, open)

	var nilHub *EventHub
	nilHub.Publish(Event{})
}
