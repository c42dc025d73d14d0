package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellapacxx/bingo-live/models"
)

func newTestHub(t *testing.T) (*ConnectionRegistry, *BroadcastHub) {
	t.Helper()
	registry := NewConnectionRegistry()
	hub, err := NewBroadcastHub(registry, 4)
	require.NoError(t, err)
	t.Cleanup(hub.Close)
	return registry, hub
}

func TestHub_FansOutToEverySubscriber(t *testing.T) {
	registry, hub := newTestHub(t)

	a := &testDeliverer{}
	b := &testDeliverer{}
	registry.Register(models.Connection{ID: "a", JoinedAt: time.Now()}, a)
	registry.Register(models.Connection{ID: "b", JoinedAt: time.Now()}, b)

	n := 17
	hub.Publish(context.Background(), Event{Type: EventNumberCalled, Number: &n})

	require.Equal(t, 1, a.count())
	require.Equal(t, 1, b.count())

	var ev Event
	require.NoError(t, json.Unmarshal(a.payloads[0], &ev))
	assert.Equal(t, EventNumberCalled, ev.Type)
	require.NotNil(t, ev.Number)
	assert.Equal(t, 17, *ev.Number)
}

func TestHub_PrunesGoneSubscribers(t *testing.T) {
	registry, hub := newTestHub(t)

	ok := &testDeliverer{}
	gone := &testDeliverer{fail: true}
	registry.Register(models.Connection{ID: "ok"}, ok)
	registry.Register(models.Connection{ID: "gone"}, gone)
	require.Equal(t, 2, registry.Count())

	hub.Publish(context.Background(), Event{Type: EventSnapshot})

	assert.Equal(t, 1, registry.Count())
	assert.True(t, gone.closed, "pruned subscriber must be closed")
	assert.Equal(t, 1, ok.count())

	// The survivor keeps receiving.
	hub.Publish(context.Background(), Event{Type: EventSnapshot})
	assert.Equal(t, 2, ok.count())
}

func TestHub_PublishFiltered(t *testing.T) {
	registry, hub := newTestHub(t)

	viewer := &testDeliverer{}
	operator := &testDeliverer{}
	registry.Register(models.Connection{ID: "v"}, viewer)
	registry.Register(models.Connection{ID: "op", IsOperator: true}, operator)

	hub.PublishFiltered(context.Background(), Event{Type: EventSnapshot}, func(c models.Connection) bool {
		return c.IsOperator
	})

	assert.Zero(t, viewer.count())
	assert.Equal(t, 1, operator.count())
}

func TestRegistry_UnregisterClosesDeliverer(t *testing.T) {
	registry := NewConnectionRegistry()
	d := &testDeliverer{}
	registry.Register(models.Connection{ID: "x"}, d)

	registry.Unregister("x")
	assert.True(t, d.closed)
	assert.Zero(t, registry.Count())

	// Unregistering twice is harmless.
	registry.Unregister("x")
}
