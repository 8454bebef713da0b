package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/nexus/pkg/events"
)

func TestDispatchFansOutToAllSubscribers(t *testing.T) {
	b := New()
	var gotA, gotB events.Event
	b.Subscribe(func(e events.Event) { gotA = e })
	b.Subscribe(func(e events.Event) { gotB = e })

	msg := events.MessageEvent{Role: events.RoleUser}
	b.Dispatch(msg)

	require.Equal(t, msg, gotA)
	require.Equal(t, msg, gotB)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	calls := 0
	id := b.Subscribe(func(events.Event) { calls++ })
	b.Unsubscribe(id)

	b.Dispatch(events.MessageEvent{Role: events.RoleUser})
	require.Equal(t, 0, calls)
}

func TestLenTracksSubscriberCount(t *testing.T) {
	b := New()
	require.Equal(t, 0, b.Len())
	id1 := b.Subscribe(func(events.Event) {})
	b.Subscribe(func(events.Event) {})
	require.Equal(t, 2, b.Len())

	b.Unsubscribe(id1)
	require.Equal(t, 1, b.Len())
}

func TestUnsubscribeUnknownIDIsNoOp(t *testing.T) {
	b := New()
	require.NotPanics(t, func() { b.Unsubscribe(SubscriptionID("does-not-exist")) })
}
