package services

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bellapacxx/bingo-live/utils/logger"
)

// MemoryFeed is the in-process change feed used with the memory store and
// in tests. Emission never blocks a storage commit: when the buffer is
// full the event is dropped, which is safe because consumers rebuild full
// snapshots rather than apply diffs.
type MemoryFeed struct {
	ch chan ChangeEvent
}

func NewMemoryFeed(buffer int) *MemoryFeed {
	return &MemoryFeed{ch: make(chan ChangeEvent, buffer)}
}

func (f *MemoryFeed) Emit(_ context.Context, ev ChangeEvent) {
	select {
	case f.ch <- ev:
	default:
		logger.Infof("change feed buffer full, dropping %s/%s", ev.Entity, ev.ID)
	}
}

func (f *MemoryFeed) Events() <-chan ChangeEvent { return f.ch }

// RedisFeed carries change events across process boundaries on a Redis
// stream. Delivery is at-least-once; ordering between entities is not
// guaranteed, which is fine for snapshot-rebuilding consumers.
type RedisFeed struct {
	rdb    *redis.Client
	stream string
}

func NewRedisFeed(rdb *redis.Client, stream string) *RedisFeed {
	return &RedisFeed{rdb: rdb, stream: stream}
}

func (f *RedisFeed) Emit(ctx context.Context, ev ChangeEvent) {
	err := f.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: f.stream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]any{
			"entity": ev.Entity,
			"id":     ev.ID,
			"op":     ev.Op,
			"at":     strconv.FormatInt(ev.At.UnixMilli(), 10),
		},
	}).Err()
	if err != nil {
		logger.Errorf("xadd %s change event: %v", ev.Entity, err)
	}
}

// Consume tails the stream from now and pushes decoded events until ctx is
// done. Read failures back off and retry; the stream is the durable side.
func (f *RedisFeed) Consume(ctx context.Context) <-chan ChangeEvent {
	out := make(chan ChangeEvent, 64)
	go func() {
		defer close(out)
		lastID := "$"
		for {
			streams, err := f.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{f.stream, lastID},
				Block:   5 * time.Second,
			}).Result()
			if ctx.Err() != nil {
				return
			}
			if err == redis.Nil {
				continue
			}
			if err != nil {
				logger.Errorf("xread %s: %v", f.stream, err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, stream := range streams {
				for _, msg := range stream.Messages {
					lastID = msg.ID
					ev := decodeChange(msg.Values)
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

func decodeChange(values map[string]any) ChangeEvent {
	ev := ChangeEvent{}
	if v, ok := values["entity"].(string); ok {
		ev.Entity = v
	}
	if v, ok := values["id"].(string); ok {
		ev.ID = v
	}
	if v, ok := values["op"].(string); ok {
		ev.Op = v
	}
	if v, ok := values["at"].(string); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			ev.At = time.UnixMilli(ms)
		}
	}
	return ev
}

// SnapshotFunc produces the authoritative full-state snapshot.
type SnapshotFunc func(ctx context.Context) (Snapshot, error)

// FeedListener is the asynchronous broadcast variant: it observes row
// mutations from a change feed and drives the hub. Because events may
// arrive duplicated or out of order, it always publishes a freshly built
// snapshot instead of forwarding the mutation itself.
type FeedListener struct {
	events   <-chan ChangeEvent
	snapshot SnapshotFunc
	hub      *BroadcastHub
}

func NewFeedListener(events <-chan ChangeEvent, snapshot SnapshotFunc, hub *BroadcastHub) *FeedListener {
	return &FeedListener{events: events, snapshot: snapshot, hub: hub}
}

// Run blocks until ctx is done or the feed closes. Bursts of events are
// coalesced into one snapshot broadcast.
func (l *FeedListener) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-l.events:
			if !ok {
				return nil
			}
			l.drain()
			snap, err := l.snapshot(ctx)
			if err != nil {
				logger.Errorf("feed listener snapshot after %s/%s: %v", ev.Entity, ev.ID, err)
				continue
			}
			l.hub.Publish(ctx, Event{Type: EventSnapshot, Snapshot: snap})
		}
	}
}

func (l *FeedListener) drain() {
	for {
		select {
		case _, ok := <-l.events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
