package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/utils/logger"
)

// Event names, one per state change.
const (
	EventSnapshot        = "snapshot"
	EventNumberCalled    = "number_called"
	EventCandidateWinner = "candidate_winner"
	EventWinnerConfirmed = "winner_confirmed"
	EventWinnerRejected  = "winner_rejected"
	EventModeChanged     = "mode_changed"
	EventGameStarted     = "game_started"
	EventGamePaused      = "game_paused"
	EventGameResumed     = "game_resumed"
	EventGameEnded       = "game_ended"
	EventGameCleared     = "game_cleared"
	EventCardsPurchased  = "cards_purchased"
)

// Candidate describes a flagged winner pending operator confirmation.
type Candidate struct {
	CardID    string          `json:"card_id"`
	Owner     string          `json:"owner,omitempty"`
	Pattern   models.GameMode `json:"pattern"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
}

// Snapshot is the full, idempotent view of game state. Every event embeds
// one, so consumers never need to replay history: applying the latest
// snapshot is always correct regardless of event order or duplication.
type Snapshot struct {
	Game           *models.Game `json:"game,omitempty"`
	AvailableCards int64        `json:"available_cards"`
	PurchasedCards int64        `json:"purchased_cards"`
	Candidate      *Candidate   `json:"candidate,omitempty"`
	At             time.Time    `json:"at"`
}

// Event is the JSON payload delivered to subscribers.
type Event struct {
	Type     string   `json:"type"`
	Number   *int     `json:"number,omitempty"`
	Snapshot Snapshot `json:"snapshot"`
}

// Publisher is the seam between the orchestrator and fanout: the hub in
// the synchronous deployment, a no-op in the change-feed deployment where
// the feed listener drives the hub instead.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// NopPublisher is used when broadcasts are driven by the change feed.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// BroadcastHub fans an event out to every matching subscriber. Sends are
// issued concurrently on a bounded worker pool and awaited as a batch;
// a delivery failure that means the endpoint is gone unregisters the
// subscriber immediately, so the registry never accumulates dead entries.
type BroadcastHub struct {
	registry *ConnectionRegistry
	pool     *ants.Pool
}

func NewBroadcastHub(registry *ConnectionRegistry, workers int) (*BroadcastHub, error) {
	pool, err := ants.NewPool(workers, ants.WithExpiryDuration(time.Minute))
	if err != nil {
		return nil, err
	}
	return &BroadcastHub{registry: registry, pool: pool}, nil
}

// Publish delivers to every subscriber.
func (h *BroadcastHub) Publish(ctx context.Context, ev Event) {
	h.PublishFiltered(ctx, ev, nil)
}

// PublishFiltered delivers to subscribers matching pred (nil = all).
func (h *BroadcastHub) PublishFiltered(_ context.Context, ev Event, pred func(models.Connection) bool) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("marshal %s event: %v", ev.Type, err)
		return
	}

	var subs []*Subscriber
	if pred == nil {
		subs = h.registry.List()
	} else {
		subs = h.registry.ListFilter(pred)
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		sub := sub
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := sub.Deliver(payload); err != nil {
				if errors.Is(err, ErrSubscriberGone) {
					logger.Infof("pruning gone subscriber %s", sub.Conn.ID)
					h.registry.Unregister(sub.Conn.ID)
					return
				}
				logger.Errorf("deliver %s to %s: %v", ev.Type, sub.Conn.ID, err)
			}
		}
		if err := h.pool.Submit(task); err != nil {
			// Pool saturated or closed: run inline rather than drop.
			task()
		}
	}
	wg.Wait()
}

func (h *BroadcastHub) Close() {
	h.pool.Release()
}
