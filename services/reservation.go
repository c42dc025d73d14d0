package services

import (
	"context"
	"time"

	"github.com/bellapacxx/bingo-live/utils/logger"
)

// DefaultReservationTTL bounds how long a purchase may hold cards before
// the sweep forfeits the hold.
const DefaultReservationTTL = 3 * time.Minute

// ReservationManager performs the atomic allocate/confirm/release protocol
// over pool entries. Reservation is deliberately per-card, not one
// all-or-nothing transaction: partial success under contention is the
// normal case, and the caller tops up or releases.
type ReservationManager struct {
	store CardStore
	ttl   time.Duration
}

func NewReservationManager(store CardStore, ttl time.Duration) *ReservationManager {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &ReservationManager{store: store, ttl: ttl}
}

// Reserve attempts available -> reserved for each candidate and returns the
// subset that succeeded. Cards already taken are skipped, not retried.
// A storage fault aborts the pass; the successfully reserved ids are still
// returned so the caller can release them.
func (m *ReservationManager) Reserve(ctx context.Context, cardIDs []string, holder string, ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	// Lazy sweep so a lapsed hold never blocks a fresh reserve pass.
	if _, err := m.SweepExpired(ctx); err != nil {
		return nil, err
	}

	expiry := time.Now().Add(ttl)
	reserved := make([]string, 0, len(cardIDs))
	for _, id := range cardIDs {
		err := m.store.ReserveCard(ctx, id, holder, expiry)
		switch {
		case err == nil:
			reserved = append(reserved, id)
		case IsCode(err, CodeConditionalCheckFailed):
			// Contention, not a bug: someone else holds this card.
		default:
			return reserved, err
		}
	}
	return reserved, nil
}

// Release returns reserved -> available for every card still held by
// holder. A straggler release after expiry-and-re-reserve is a no-op for
// that card because the holder no longer matches.
func (m *ReservationManager) Release(ctx context.Context, cardIDs []string, holder string) error {
	var lastErr error
	for _, id := range cardIDs {
		err := m.store.ReleaseCard(ctx, id, holder)
		if err == nil || IsCode(err, CodeConditionalCheckFailed) {
			continue
		}
		logger.Errorf("release card %s for %s: %v", id, holder, err)
		lastErr = err
	}
	return lastErr
}

// Confirm turns reserved -> purchased for each card still held by holder,
// stamping owner, wallet and transaction metadata and writing the ownership
// index row in the same per-card transaction. Returns the ids that
// confirmed; an expired or foreign reservation simply does not appear.
func (m *ReservationManager) Confirm(ctx context.Context, cardIDs []string, holder, owner, wallet, txRef string, unitPrice float64) ([]string, error) {
	p := Purchase{
		Owner:     owner,
		Wallet:    wallet,
		TxRef:     txRef,
		UnitPrice: unitPrice,
		At:        time.Now(),
	}
	confirmed := make([]string, 0, len(cardIDs))
	for _, id := range cardIDs {
		err := m.store.ConfirmCard(ctx, id, holder, p)
		switch {
		case err == nil:
			confirmed = append(confirmed, id)
		case IsCode(err, CodeConditionalCheckFailed):
			logger.Infof("confirm skipped card %s: reservation no longer held by %s", id, holder)
		default:
			return confirmed, err
		}
	}
	return confirmed, nil
}

// SweepExpired forfeits every reservation whose TTL has passed. This is the
// sole un-reserve path that needs no matching holder, and it is idempotent
// so redundant concurrent sweeps are safe.
func (m *ReservationManager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.store.ReleaseExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Infof("reservation sweep released %d expired cards", n)
	}
	return n, nil
}

// MarkDisabled excludes a rejected candidate card from further winner
// scans for the remainder of the current game.
func (m *ReservationManager) MarkDisabled(ctx context.Context, cardID string) error {
	return m.store.DisableCard(ctx, cardID)
}

// ReenableAllDisabled re-admits every disabled card when the game ends, so
// it stays eligible for the next game.
func (m *ReservationManager) ReenableAllDisabled(ctx context.Context) (int64, error) {
	return m.store.ReenableDisabled(ctx)
}
