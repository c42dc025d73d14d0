package services

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellapacxx/bingo-live/models"
)

func TestMemoryFeed_DropsWhenFull(t *testing.T) {
	feed := NewMemoryFeed(1)
	ctx := context.Background()

	feed.Emit(ctx, ChangeEvent{Entity: "card", ID: "1", Op: "insert"})
	// Buffer is full; this one is dropped rather than blocking the commit.
	feed.Emit(ctx, ChangeEvent{Entity: "card", ID: "2", Op: "insert"})

	ev := <-feed.Events()
	assert.Equal(t, "1", ev.ID)
	select {
	case ev := <-feed.Events():
		t.Fatalf("unexpected buffered event %s/%s", ev.Entity, ev.ID)
	default:
	}
}

func TestFeedListener_PublishesSnapshotPerMutation(t *testing.T) {
	feed := NewMemoryFeed(16)
	store := NewMemoryStore(feed)

	registry, hub := newTestHub(t)
	sub := &testDeliverer{}
	registry.Register(models.Connection{ID: "watcher"}, sub)

	snapshot := func(ctx context.Context) (Snapshot, error) {
		n, err := store.CountCardsByStatus(ctx, models.CardAvailable)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{AvailableCards: n, At: time.Now()}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listener := NewFeedListener(feed.Events(), snapshot, hub)
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	// A store mutation lands on the feed and comes out as a full snapshot.
	card := &models.Card{ID: "c1", Signature: "sig-1", Status: models.CardAvailable}
	require.NoError(t, store.InsertCards(ctx, []*models.Card{card}))

	require.Eventually(t, func() bool { return sub.count() >= 1 }, time.Second, 5*time.Millisecond)

	var ev Event
	sub.mu.Lock()
	payload := sub.payloads[0]
	sub.mu.Unlock()
	require.NoError(t, json.Unmarshal(payload, &ev))
	assert.Equal(t, EventSnapshot, ev.Type)
	assert.EqualValues(t, 1, ev.Snapshot.AvailableCards)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDecodeChange_RoundTrip(t *testing.T) {
	at := time.Now().Truncate(time.Millisecond)
	values := map[string]any{
		"entity": "game",
		"id":     "g-1",
		"op":     "update",
		"at":     strconv.FormatInt(at.UnixMilli(), 10),
	}

	ev := decodeChange(values)
	assert.Equal(t, "game", ev.Entity)
	assert.Equal(t, "g-1", ev.ID)
	assert.Equal(t, "update", ev.Op)
	assert.True(t, ev.At.Equal(at))

	// Missing or malformed fields decode to zero values, never panic.
	ev = decodeChange(map[string]any{"at": "not-a-number"})
	assert.Empty(t, ev.Entity)
	assert.True(t, ev.At.IsZero())
}
