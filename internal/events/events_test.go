package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishToSubscribers(t *testing.T) {
	eb := NewEventBus()

	first := make(chan Event, 1)
	second := make(chan Event, 1)
	other := make(chan Event, 1)
	eb.Subscribe("a", first)
	eb.Subscribe("a", second)
	eb.Subscribe("b", other)

	eb.Publish(Event{Type: "a", Data: ClusterCreatedEvent{Parties: []string{"p"}}})

	got := <-first
	require.Equal(t, "a", got.Type)
	require.False(t, got.Timestamp.IsZero())
	require.Equal(t, []string{"p"}, got.Data.(ClusterCreatedEvent).Parties)
	require.Len(t, second, 1)
	require.Len(t, other, 0)
}

func TestEventBus_FullSubscriberDoesNotBlock(t *testing.T) {
	eb := NewEventBus()

	full := make(chan Event)
	eb.Subscribe("a", full)

	eb.Publish(Event{Type: "a"})
}

func TestTypes(t *testing.T) {
	require.Len(t, Types(), 4)
	require.Contains(t, Types(), "ClusterCreated")
}
