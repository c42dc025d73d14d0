package services

import (
	"context"
	"time"

	"github.com/bellapacxx/bingo-live/models"
)

// ChangeEvent is one row mutation emitted by a store. The feed listener
// consumes these at-least-once and possibly out of order, so consumers must
// rebuild full snapshots rather than apply the event as a diff.
type ChangeEvent struct {
	Entity string    `json:"entity"` // "card" or "game"
	ID     string    `json:"id"`
	Op     string    `json:"op"` // "insert" or "update"
	At     time.Time `json:"at"`
}

// ChangeFeed receives row mutations after they commit.
type ChangeFeed interface {
	Emit(ctx context.Context, ev ChangeEvent)
}

// Purchase carries the metadata stamped onto a card when its reservation
// is confirmed.
type Purchase struct {
	Owner     string
	Wallet    string
	TxRef     string
	UnitPrice float64
	At        time.Time
}

// CardStore is the storage boundary for cards. Every state transition is a
// conditional write keyed on the card's current status, linearized by the
// backing store; an in-process lock alone is never sufficient because
// multiple service instances may share the store.
//
// Transition methods return CodeConditionalCheckFailed when the card is not
// in the expected state, and CodeStorageUnavailable for infrastructure
// faults.
type CardStore interface {
	InsertCards(ctx context.Context, cards []*models.Card) error
	GetCard(ctx context.Context, id string) (*models.Card, error)
	// ListCardsByStatus returns cards oldest-created first. limit <= 0
	// means no limit.
	ListCardsByStatus(ctx context.Context, status models.CardStatus, limit int) ([]models.Card, error)
	ListCardsByOwner(ctx context.Context, owner string) ([]models.Card, error)
	// ListPurchased returns purchased (non-won) cards oldest purchase first,
	// the stable order the winner scan depends on.
	ListPurchased(ctx context.Context) ([]models.Card, error)
	CountCardsByStatus(ctx context.Context, status models.CardStatus) (int64, error)

	// ReserveCard: available -> reserved, stamped with holder and expiry.
	ReserveCard(ctx context.Context, id, holder string, expiry time.Time) error
	// ReleaseCard: reserved -> available, only while held by holder.
	ReleaseCard(ctx context.Context, id, holder string) error
	// ReleaseExpired: reserved -> available for every card whose expiry has
	// passed, regardless of holder. Safe to run redundantly.
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
	// ConfirmCard: reserved -> purchased iff still held by holder, plus the
	// owner index row, in one transaction. Both commit or neither does.
	ConfirmCard(ctx context.Context, id, holder string, p Purchase) error
	// DisableCard: purchased -> won (rejected candidate, out of play).
	DisableCard(ctx context.Context, id string) error
	// ReenableDisabled: won -> purchased for every disabled card.
	ReenableDisabled(ctx context.Context) (int64, error)
}

// GameStore is the storage boundary for the singleton game. Game-level
// mutations are linearized per game id by conditional writes keyed on the
// current status.
type GameStore interface {
	// CurrentGame resolves the current-game pointer. CodeNotFound when no
	// game has ever been created.
	CurrentGame(ctx context.Context) (*models.Game, error)
	// SaveGame upserts the game and repoints the current-game pointer at it.
	SaveGame(ctx context.Context, g *models.Game) error
	// TransitionGame applies mutate under a conditional guard that the game
	// status is one of from. CodeConditionalCheckFailed when it is not.
	TransitionGame(ctx context.Context, id string, from []models.GameStatus, mutate func(*models.Game)) (*models.Game, error)
	// AppendCalledNumber appends n under a conditional write keyed on
	// "status is playing and n not already present". CodeAlreadyCalled for
	// duplicates, CodeInvalidTransition outside playing.
	AppendCalledNumber(ctx context.Context, id string, n int) (*models.Game, error)
}

// Store is the full persistence collaborator.
type Store interface {
	CardStore
	GameStore
}
