package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellapacxx/bingo-live/models"
)

func generateIDs(t *testing.T, e *testEngine, n int) []string {
	t.Helper()
	cards, err := e.pool.Generate(context.Background(), n)
	require.NoError(t, err)
	return cardIDs(cards)
}

func TestReserve_PartialSuccessUnderContention(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	ids := generateIDs(t, e, 3)

	first, err := e.res.Reserve(ctx, ids[:2], "alice", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids[:2], first)

	// Bob asks for all three; only the unreserved one succeeds.
	second, err := e.res.Reserve(ctx, ids, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2]}, second)
}

func TestReserve_ConcurrentSingleWinner(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	id := generateIDs(t, e, 1)[0]

	results := make([][]string, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, holder := range []string{"alice", "bob"} {
		i, holder := i, holder
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.res.Reserve(ctx, []string{id}, holder, 0)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, len(results[0])+len(results[1]), "exactly one reserve must win")
}

func TestRelease_OnlyByHolder(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	id := generateIDs(t, e, 1)[0]

	_, err := e.res.Reserve(ctx, []string{id}, "alice", 0)
	require.NoError(t, err)

	// A foreign release is a silent no-op for that card.
	require.NoError(t, e.res.Release(ctx, []string{id}, "bob"))
	card, err := e.store.GetCard(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.CardReserved, card.Status)
	assert.Equal(t, "alice", card.ReservedBy)

	require.NoError(t, e.res.Release(ctx, []string{id}, "alice"))
	card, err = e.store.GetCard(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.CardAvailable, card.Status)
	assert.Empty(t, card.ReservedBy)
	assert.Nil(t, card.ReservationExpiry)
}

func TestConfirm_OnlyWhileHeld(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	ids := generateIDs(t, e, 2)

	_, err := e.res.Reserve(ctx, ids, "alice", 0)
	require.NoError(t, err)

	// Wrong holder confirms nothing.
	confirmed, err := e.res.Confirm(ctx, ids, "bob", "bob", "0xbob", "tx-1", 2.5)
	require.NoError(t, err)
	assert.Empty(t, confirmed)

	confirmed, err = e.res.Confirm(ctx, ids, "alice", "alice", "0xa11ce", "tx-2", 2.5)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, confirmed)

	for _, id := range ids {
		card, err := e.store.GetCard(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.CardPurchased, card.Status)
		assert.Equal(t, "alice", card.Owner)
		assert.Equal(t, "0xa11ce", card.OwnerWallet)
		assert.Equal(t, "tx-2", card.TxRef)
		assert.InDelta(t, 2.5, card.UnitPrice, 1e-9)
		assert.NotNil(t, card.PurchasedAt)
	}

	// Ownership index rows written alongside each confirm.
	owners := e.store.Ownerships()
	require.Len(t, owners, 2)
	for _, row := range owners {
		assert.Equal(t, "alice", row.Owner)
		assert.Equal(t, "tx-2", row.TxRef)
	}
}

func TestSweepExpired_MakesCardsReservableAgain(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	id := generateIDs(t, e, 1)[0]

	_, err := e.res.Reserve(ctx, []string{id}, "alice", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	n, err := e.res.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// Sweeps are idempotent.
	n, err = e.res.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := e.res.Reserve(ctx, []string{id}, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, got)

	// Alice's straggler release must not steal bob's fresh hold.
	require.NoError(t, e.res.Release(ctx, []string{id}, "alice"))
	card, err := e.store.GetCard(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", card.ReservedBy)
}

func TestReserve_LazySweepFreesLapsedHolds(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	id := generateIDs(t, e, 1)[0]

	_, err := e.res.Reserve(ctx, []string{id}, "alice", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	// No explicit sweep: the reserve pass itself clears the lapsed hold.
	got, err := e.res.Reserve(ctx, []string{id}, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, got)
}

func TestDisableAndReenable(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	ids := generateIDs(t, e, 2)

	_, err := e.res.Reserve(ctx, ids, "alice", 0)
	require.NoError(t, err)
	_, err = e.res.Confirm(ctx, ids, "alice", "alice", "", "tx-3", 2.5)
	require.NoError(t, err)

	require.NoError(t, e.res.MarkDisabled(ctx, ids[0]))
	card, err := e.store.GetCard(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.CardWon, card.Status)

	// Disabled cards drop out of the winner scan set.
	inPlay, err := e.pool.ListPurchased(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, cardIDs(inPlay))

	// Disabling anything but a purchased card is a conditional failure.
	err = e.res.MarkDisabled(ctx, ids[0])
	assert.True(t, IsCode(err, CodeConditionalCheckFailed))

	n, err := e.res.ReenableAllDisabled(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	card, err = e.store.GetCard(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.CardPurchased, card.Status)
}
