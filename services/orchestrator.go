package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/samber/lo"

	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/utils/logger"
)

// AllowedQuantities is the fixed denomination set for card purchases.
var AllowedQuantities = []int{1, 2, 3, 5, 8, 10}

const defaultPaymentTimeout = 15 * time.Second

// GameOrchestrator is the façade the API layer calls. It coordinates the
// pool, reservation manager, state machine, detector and publisher; it is
// safe to invoke concurrently from independent request contexts.
type GameOrchestrator struct {
	pool       *CardPool
	res        *ReservationManager
	state      *GameStateMachine
	oracle     PaymentOracle
	pub        Publisher
	cardPrice  float64
	payTimeout time.Duration
}

func NewGameOrchestrator(pool *CardPool, res *ReservationManager, state *GameStateMachine, oracle PaymentOracle, pub Publisher, cardPrice float64, payTimeout time.Duration) *GameOrchestrator {
	if payTimeout <= 0 {
		payTimeout = defaultPaymentTimeout
	}
	return &GameOrchestrator{
		pool:       pool,
		res:        res,
		state:      state,
		oracle:     oracle,
		pub:        pub,
		cardPrice:  cardPrice,
		payTimeout: payTimeout,
	}
}

// Purchase sells quantity cards to purchaser, two-phase: reserve each card
// conditionally, authorize payment, then confirm. Any failure releases
// everything reserved; cards are never left held past their TTL either way.
func (o *GameOrchestrator) Purchase(ctx context.Context, quantity int, identity, wallet string) ([]models.Card, error) {
	if !lo.Contains(AllowedQuantities, quantity) {
		return nil, Errorf(CodeInvalidArgument, "quantity %d not in allowed set %v", quantity, AllowedQuantities)
	}
	if identity == "" {
		return nil, NewError(CodeInvalidArgument, "purchaser identity required")
	}

	game, err := o.state.Current(ctx)
	if err != nil && !IsCode(err, CodeNotFound) {
		return nil, err
	}
	if game != nil && game.Active() {
		return nil, NewError(CodeInvalidTransition, "purchases are closed while a game is running")
	}

	// Over-fetch candidates so contention losses can be topped up.
	candidates, err := o.pool.ListAvailable(ctx, quantity*3)
	if err != nil {
		return nil, err
	}
	if len(candidates) < quantity {
		return nil, Errorf(CodeInsufficientInventory, "only %d cards available, need %d", len(candidates), quantity)
	}

	ids := lo.Map(candidates, func(c models.Card, _ int) string { return c.ID })
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	reserved, err := o.res.Reserve(ctx, ids[:quantity], identity, 0)
	if err != nil {
		o.releaseQuietly(ctx, reserved, identity)
		return nil, err
	}
	if len(reserved) < quantity {
		// Top up once from the remaining shuffled candidates.
		topped, err := o.res.Reserve(ctx, ids[quantity:], identity, 0)
		reserved = append(reserved, topped...)
		if err != nil {
			o.releaseQuietly(ctx, reserved, identity)
			return nil, err
		}
		if len(reserved) > quantity {
			o.releaseQuietly(ctx, reserved[quantity:], identity)
			reserved = reserved[:quantity]
		}
	}
	if len(reserved) < quantity {
		o.releaseQuietly(ctx, reserved, identity)
		return nil, Errorf(CodeInsufficientInventory, "could not reserve %d cards", quantity)
	}

	amount := o.cardPrice * float64(quantity)
	resource := fmt.Sprintf("bingo:cards:%d", quantity)
	payCtx, cancel := context.WithTimeout(ctx, o.payTimeout)
	auth, err := o.oracle.Authorize(payCtx, amount, resource, wallet)
	cancel()
	if err != nil {
		o.releaseQuietly(ctx, reserved, identity)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, WrapError(CodePaymentTimeout, "payment authorization timed out", err)
		}
		return nil, WrapError(CodePaymentNotAuthorized, "payment authorization failed", err)
	}
	if !auth.Authorized || auth.TxRef == "" {
		o.releaseQuietly(ctx, reserved, identity)
		reason := auth.Reason
		if reason == "" {
			reason = "payment declined"
		}
		return nil, NewError(CodePaymentNotAuthorized, reason)
	}

	confirmed, err := o.res.Confirm(ctx, reserved, identity, identity, wallet, auth.TxRef, o.cardPrice)
	if err != nil {
		o.releaseQuietly(ctx, lo.Without(reserved, confirmed...), identity)
		return nil, err
	}
	if len(confirmed) < quantity {
		// A reservation lapsed between authorize and confirm. The payment
		// side is the facilitator's to settle against the tx ref.
		o.releaseQuietly(ctx, lo.Without(reserved, confirmed...), identity)
		return nil, Errorf(CodeConditionalCheckFailed, "reservation lapsed during confirmation, %d of %d confirmed", len(confirmed), quantity)
	}

	cards := make([]models.Card, 0, len(confirmed))
	for _, id := range confirmed {
		card, err := o.pool.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}

	logger.Infof("purchase confirmed: %d cards for %s (tx=%s)", len(cards), identity, auth.TxRef)
	o.publish(ctx, EventCardsPurchased, nil)
	return cards, nil
}

// CallNumber appends n to the game, then scans every purchased card in
// stable oldest-purchase order. The first match auto-pauses the game and
// surfaces a single candidate; otherwise a plain number-called event goes
// out.
func (o *GameOrchestrator) CallNumber(ctx context.Context, n int) (*models.Game, error) {
	game, err := o.state.CallNumber(ctx, n)
	if err != nil {
		return nil, err
	}

	cards, err := o.pool.ListPurchased(ctx)
	if err != nil {
		return nil, err
	}
	called := CalledSet(game.CalledNumbers)
	if winner := FirstWinner(cards, called, game.Mode); winner != nil {
		game, err = o.state.FlagCandidate(ctx, winner.ID)
		if err != nil {
			return nil, err
		}
		logger.Infof("candidate winner %s (owner %s) on number %d", winner.ID, winner.Owner, n)
		o.publish(ctx, EventCandidateWinner, &n)
		return game, nil
	}

	o.publish(ctx, EventNumberCalled, &n)
	return game, nil
}

// VerifyWinner re-checks the flagged card against the active pattern and,
// on success, records the winner and ends the game.
func (o *GameOrchestrator) VerifyWinner(ctx context.Context, cardID string) (*models.Game, error) {
	card, err := o.pool.FindByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.Status != models.CardPurchased {
		return nil, Errorf(CodeInvalidTransition, "card %s is not in play", cardID)
	}

	game, err := o.state.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !game.Active() {
		return nil, NewError(CodeInvalidTransition, "no active game")
	}
	if !IsWinner(card.Grid, CalledSet(game.CalledNumbers), game.Mode) {
		return nil, Errorf(CodeInvalidArgument, "card %s does not satisfy pattern %s", cardID, game.Mode)
	}

	winner := &models.Winner{CardID: card.ID, Identity: card.Owner, Pattern: game.Mode}
	game, err = o.state.End(ctx, winner)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, EventWinnerConfirmed, nil)
	return game, nil
}

// RejectWinner disables the flagged card for the rest of this game and
// resumes play.
func (o *GameOrchestrator) RejectWinner(ctx context.Context, cardID string) (*models.Game, error) {
	if err := o.res.MarkDisabled(ctx, cardID); err != nil {
		return nil, err
	}
	game, err := o.state.Resume(ctx)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, EventWinnerRejected, nil)
	return game, nil
}

// StartGame begins a new game, ending any active one.
func (o *GameOrchestrator) StartGame(ctx context.Context) (*models.Game, error) {
	game, err := o.state.Start(ctx)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, EventGameStarted, nil)
	return game, nil
}

func (o *GameOrchestrator) PauseGame(ctx context.Context) (*models.Game, error) {
	game, err := o.state.Pause(ctx)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, EventGamePaused, nil)
	return game, nil
}

func (o *GameOrchestrator) ResumeGame(ctx context.Context) (*models.Game, error) {
	game, err := o.state.Resume(ctx)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, EventGameResumed, nil)
	return game, nil
}

func (o *GameOrchestrator) EndGame(ctx context.Context) (*models.Game, error) {
	game, err := o.state.End(ctx, nil)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, EventGameEnded, nil)
	return game, nil
}

func (o *GameOrchestrator) ClearGame(ctx context.Context) (*models.Game, error) {
	game, err := o.state.Clear(ctx)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, EventGameCleared, nil)
	return game, nil
}

func (o *GameOrchestrator) SetMode(ctx context.Context, mode models.GameMode) (*models.Game, error) {
	game, err := o.state.SetMode(ctx, mode)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, EventModeChanged, nil)
	return game, nil
}

// GenerateCards adds inventory and announces the refreshed state.
func (o *GameOrchestrator) GenerateCards(ctx context.Context, count int) ([]models.Card, error) {
	cards, err := o.pool.Generate(ctx, count)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, EventSnapshot, nil)
	return cards, nil
}

// BuildSnapshot assembles the authoritative full-state view sent with every
// event and to every freshly joined connection.
func (o *GameOrchestrator) BuildSnapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{At: time.Now()}

	game, err := o.state.Current(ctx)
	if err != nil && !IsCode(err, CodeNotFound) {
		return snap, err
	}
	snap.Game = game

	store := o.pool.store
	if snap.AvailableCards, err = store.CountCardsByStatus(ctx, models.CardAvailable); err != nil {
		return snap, err
	}
	if snap.PurchasedCards, err = store.CountCardsByStatus(ctx, models.CardPurchased); err != nil {
		return snap, err
	}

	if game != nil && game.CandidateCardID != "" {
		card, err := o.pool.FindByID(ctx, game.CandidateCardID)
		if err == nil {
			done, total := Progress(card.Grid, CalledSet(game.CalledNumbers), game.Mode)
			snap.Candidate = &Candidate{
				CardID:    card.ID,
				Owner:     card.Owner,
				Pattern:   game.Mode,
				Completed: done,
				Total:     total,
			}
		} else {
			logger.Errorf("snapshot candidate %s: %v", game.CandidateCardID, err)
		}
	}
	return snap, nil
}

func (o *GameOrchestrator) publish(ctx context.Context, eventType string, number *int) {
	snap, err := o.BuildSnapshot(ctx)
	if err != nil {
		logger.Errorf("build snapshot for %s: %v", eventType, err)
		return
	}
	o.pub.Publish(ctx, Event{Type: eventType, Number: number, Snapshot: snap})
}

func (o *GameOrchestrator) releaseQuietly(ctx context.Context, ids []string, holder string) {
	if len(ids) == 0 {
		return
	}
	if err := o.res.Release(ctx, ids, holder); err != nil {
		logger.Errorf("release %d cards for %s: %v", len(ids), holder, err)
	}
}
