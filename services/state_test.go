package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellapacxx/bingo-live/models"
)

func TestStart_FirstGameUsesDefaultMode(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.state.Current(ctx)
	assert.True(t, IsCode(err, CodeNotFound))

	g, err := e.state.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GamePlaying, g.Status)
	assert.Equal(t, DefaultMode, g.Mode)
	assert.Empty(t, g.CalledNumbers)
	assert.NotNil(t, g.StartTime)
}

func TestStart_EndsActiveGameAndKeepsMode(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.state.SetMode(ctx, models.ModeFourCorners)
	require.NoError(t, err)

	first, err := e.state.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ModeFourCorners, first.Mode)

	second, err := e.state.Start(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.ModeFourCorners, second.Mode)
	assert.Equal(t, models.GamePlaying, second.Status)

	// The replaced game was ended, not abandoned mid-flight.
	prev := e.store.games[first.ID]
	require.NotNil(t, prev)
	assert.Equal(t, models.GameEnded, prev.Status)
}

func TestCallNumber_AppendsAndRejectsDuplicates(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	_, err := e.state.Start(ctx)
	require.NoError(t, err)

	g, err := e.state.CallNumber(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, g.CalledNumbers)
	assert.Equal(t, 7, g.CurrentNumber)

	g, err = e.state.CallNumber(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 42}, g.CalledNumbers)
	assert.Equal(t, 42, g.CurrentNumber)

	// Duplicate call is rejected and changes nothing.
	_, err = e.state.CallNumber(ctx, 7)
	assert.True(t, IsCode(err, CodeAlreadyCalled))
	cur, err := e.state.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 42}, cur.CalledNumbers)
	assert.Equal(t, 42, cur.CurrentNumber)
}

func TestCallNumber_DomainAndStatusChecks(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.state.SetMode(ctx, models.ModeAnyLine)
	require.NoError(t, err)

	// Waiting game: no calls.
	_, err = e.state.CallNumber(ctx, 10)
	assert.True(t, IsCode(err, CodeInvalidTransition))

	_, err = e.state.Start(ctx)
	require.NoError(t, err)

	for _, n := range []int{0, -3, 76, 100} {
		_, err := e.state.CallNumber(ctx, n)
		assert.Truef(t, IsCode(err, CodeInvalidArgument), "number %d", n)
	}

	_, err = e.state.Pause(ctx)
	require.NoError(t, err)
	_, err = e.state.CallNumber(ctx, 10)
	assert.True(t, IsCode(err, CodeInvalidTransition))
}

func TestPauseResume_SoftTransitions(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	_, err := e.state.Start(ctx)
	require.NoError(t, err)

	g, err := e.state.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GamePaused, g.Status)

	// Pausing a paused game is a no-op, not an error.
	g, err = e.state.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GamePaused, g.Status)

	g, err = e.state.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GamePlaying, g.Status)

	g, err = e.state.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GamePlaying, g.Status)
}

func TestFlagCandidate_AutoPausesAndResumeClears(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	_, err := e.state.Start(ctx)
	require.NoError(t, err)

	g, err := e.state.FlagCandidate(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, models.GamePaused, g.Status)
	assert.Equal(t, "card-1", g.CandidateCardID)

	// Flagging outside play is an invalid transition.
	_, err = e.state.FlagCandidate(ctx, "card-2")
	assert.True(t, IsCode(err, CodeInvalidTransition))

	g, err = e.state.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GamePlaying, g.Status)
	assert.Empty(t, g.CandidateCardID)
}

func TestEnd_RecordsWinnerAndReenablesCards(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	ids := generateIDs(t, e, 1)
	_, err := e.res.Reserve(ctx, ids, "alice", 0)
	require.NoError(t, err)
	_, err = e.res.Confirm(ctx, ids, "alice", "alice", "", "tx", 2.5)
	require.NoError(t, err)

	_, err = e.state.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, e.res.MarkDisabled(ctx, ids[0]))

	winner := &models.Winner{CardID: ids[0], Identity: "alice", Pattern: DefaultMode}
	g, err := e.state.End(ctx, winner)
	require.NoError(t, err)
	assert.Equal(t, models.GameEnded, g.Status)
	assert.NotNil(t, g.EndTime)
	require.NotNil(t, g.Winner)
	assert.Equal(t, ids[0], g.Winner.CardID)

	// Disabled cards come back for the next game.
	card, err := e.store.GetCard(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.CardPurchased, card.Status)

	// Ending an ended game fails.
	_, err = e.state.End(ctx, nil)
	assert.True(t, IsCode(err, CodeInvalidTransition))
}

func TestClear_ResetsToWaiting(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	_, err := e.state.Start(ctx)
	require.NoError(t, err)
	_, err = e.state.CallNumber(ctx, 12)
	require.NoError(t, err)
	_, err = e.state.FlagCandidate(ctx, "card-1")
	require.NoError(t, err)

	g, err := e.state.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GameWaiting, g.Status)
	assert.Empty(t, g.CalledNumbers)
	assert.Zero(t, g.CurrentNumber)
	assert.Empty(t, g.CandidateCardID)
	assert.Nil(t, g.Winner)
	assert.Nil(t, g.StartTime)
	assert.Nil(t, g.EndTime)
}

func TestSetMode_LockedWhileActive(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// With no game at all, SetMode creates a waiting game.
	g, err := e.state.SetMode(ctx, models.ModeLetterX)
	require.NoError(t, err)
	assert.Equal(t, models.GameWaiting, g.Status)
	assert.Equal(t, models.ModeLetterX, g.Mode)

	g, err = e.state.SetMode(ctx, models.ModeFullCard)
	require.NoError(t, err)
	assert.Equal(t, models.ModeFullCard, g.Mode)

	_, err = e.state.Start(ctx)
	require.NoError(t, err)
	_, err = e.state.SetMode(ctx, models.ModeAnyLine)
	assert.True(t, IsCode(err, CodeInvalidTransition))

	_, err = e.state.Pause(ctx)
	require.NoError(t, err)
	_, err = e.state.SetMode(ctx, models.ModeAnyLine)
	assert.True(t, IsCode(err, CodeInvalidTransition))

	_, err = e.state.End(ctx, nil)
	require.NoError(t, err)
	g, err = e.state.SetMode(ctx, models.ModeAnyLine)
	require.NoError(t, err)
	assert.Equal(t, models.ModeAnyLine, g.Mode)
	assert.Equal(t, models.GameWaiting, g.Status)
}

func TestSetMode_UnknownModeRejected(t *testing.T) {
	e := newTestEngine()
	_, err := e.state.SetMode(context.Background(), models.GameMode("diagonal"))
	assert.True(t, IsCode(err, CodeInvalidArgument))
}
