package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/utils/logger"
)

// Valid called-number domain.
const (
	MinNumber = 1
	MaxNumber = 75
)

// DefaultMode is used for the very first game of a session; afterwards the
// previous game's mode is preserved across restarts.
const DefaultMode = models.ModeAnyLine

// GameStateMachine owns the single current game's status, mode and
// called-number sequence. All mutations go through the store's conditional
// writes, so concurrent commands from independent requests linearize there.
type GameStateMachine struct {
	store GameStore
	res   *ReservationManager
}

func NewGameStateMachine(store GameStore, res *ReservationManager) *GameStateMachine {
	return &GameStateMachine{store: store, res: res}
}

// Current returns the current game, or CodeNotFound before the first start.
func (s *GameStateMachine) Current(ctx context.Context) (*models.Game, error) {
	return s.store.CurrentGame(ctx)
}

// Start creates a new playing game, ending any still-active one first. The
// prior game's mode carries over.
func (s *GameStateMachine) Start(ctx context.Context) (*models.Game, error) {
	mode := DefaultMode
	cur, err := s.store.CurrentGame(ctx)
	switch {
	case err == nil:
		mode = cur.Mode
		if cur.Active() {
			if _, err := s.End(ctx, nil); err != nil {
				return nil, err
			}
		}
	case IsCode(err, CodeNotFound):
		// First game of the session.
	default:
		return nil, err
	}

	now := time.Now()
	g := &models.Game{
		ID:            uuid.NewString(),
		Status:        models.GamePlaying,
		Mode:          mode,
		CalledNumbers: []int{},
		StartTime:     &now,
	}
	if err := s.store.SaveGame(ctx, g); err != nil {
		return nil, err
	}
	logger.Infof("game %s started, mode=%s", g.ID, g.Mode)
	return g, nil
}

// Pause suspends play. A no-op when the game is not playing.
func (s *GameStateMachine) Pause(ctx context.Context) (*models.Game, error) {
	return s.softTransition(ctx, []models.GameStatus{models.GamePlaying}, func(g *models.Game) {
		g.Status = models.GamePaused
	})
}

// Resume continues play and clears any pending candidate. A no-op when the
// game is not paused.
func (s *GameStateMachine) Resume(ctx context.Context) (*models.Game, error) {
	return s.softTransition(ctx, []models.GameStatus{models.GamePaused}, func(g *models.Game) {
		g.Status = models.GamePlaying
		g.CandidateCardID = ""
	})
}

// FlagCandidate auto-pauses a playing game and records the candidate card
// awaiting operator confirmation.
func (s *GameStateMachine) FlagCandidate(ctx context.Context, cardID string) (*models.Game, error) {
	cur, err := s.store.CurrentGame(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.store.TransitionGame(ctx, cur.ID, []models.GameStatus{models.GamePlaying}, func(g *models.Game) {
		g.Status = models.GamePaused
		g.CandidateCardID = cardID
	})
	if IsCode(err, CodeConditionalCheckFailed) {
		return nil, NewError(CodeInvalidTransition, "game is not in play")
	}
	return g, err
}

// End finishes the game, optionally recording the winner, and re-admits
// disabled cards for the next game.
func (s *GameStateMachine) End(ctx context.Context, winner *models.Winner) (*models.Game, error) {
	cur, err := s.store.CurrentGame(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.store.TransitionGame(ctx, cur.ID, []models.GameStatus{models.GamePlaying, models.GamePaused}, func(g *models.Game) {
		now := time.Now()
		g.Status = models.GameEnded
		g.EndTime = &now
		g.CandidateCardID = ""
		g.Winner = winner
	})
	if IsCode(err, CodeConditionalCheckFailed) {
		return nil, NewError(CodeInvalidTransition, "no active game to end")
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.res.ReenableAllDisabled(ctx); err != nil {
		logger.Errorf("re-enable disabled cards after game %s: %v", g.ID, err)
	}
	return g, nil
}

// Clear abandons the session without recording history: called numbers,
// current number and winner are reset and the game returns to waiting.
// Disabled cards are re-admitted here too.
func (s *GameStateMachine) Clear(ctx context.Context) (*models.Game, error) {
	cur, err := s.store.CurrentGame(ctx)
	if err != nil {
		return nil, err
	}
	all := []models.GameStatus{models.GameWaiting, models.GamePlaying, models.GamePaused, models.GameEnded}
	g, err := s.store.TransitionGame(ctx, cur.ID, all, func(g *models.Game) {
		g.Status = models.GameWaiting
		g.CalledNumbers = []int{}
		g.CurrentNumber = 0
		g.CandidateCardID = ""
		g.Winner = nil
		g.StartTime = nil
		g.EndTime = nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.res.ReenableAllDisabled(ctx); err != nil {
		logger.Errorf("re-enable disabled cards on clear: %v", err)
	}
	return g, nil
}

// SetMode changes the winning pattern. Rejected while a game is running or
// paused; with no game (or an ended one) a fresh waiting game is created
// carrying the new mode.
func (s *GameStateMachine) SetMode(ctx context.Context, mode models.GameMode) (*models.Game, error) {
	if !validMode(mode) {
		return nil, Errorf(CodeInvalidArgument, "unknown mode %q", mode)
	}
	cur, err := s.store.CurrentGame(ctx)
	if err != nil && !IsCode(err, CodeNotFound) {
		return nil, err
	}
	if cur != nil && cur.Active() {
		return nil, NewError(CodeInvalidTransition, "mode is locked while a game is running")
	}
	if cur != nil && cur.Status == models.GameWaiting {
		g, err := s.store.TransitionGame(ctx, cur.ID, []models.GameStatus{models.GameWaiting}, func(g *models.Game) {
			g.Mode = mode
		})
		if IsCode(err, CodeConditionalCheckFailed) {
			return nil, NewError(CodeInvalidTransition, "mode is locked while a game is running")
		}
		return g, err
	}

	g := &models.Game{
		ID:            uuid.NewString(),
		Status:        models.GameWaiting,
		Mode:          mode,
		CalledNumbers: []int{},
	}
	if err := s.store.SaveGame(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// CallNumber appends n to the call history. Duplicates are rejected
// idempotently with CodeAlreadyCalled; calls outside playing status are
// rejected with CodeInvalidTransition.
func (s *GameStateMachine) CallNumber(ctx context.Context, n int) (*models.Game, error) {
	if n < MinNumber || n > MaxNumber {
		return nil, Errorf(CodeInvalidArgument, "number %d outside valid range %d-%d", n, MinNumber, MaxNumber)
	}
	cur, err := s.store.CurrentGame(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.AppendCalledNumber(ctx, cur.ID, n)
}

// softTransition applies a pause/resume style transition that is a no-op
// outside its source state: the unchanged current game is returned instead
// of an error.
func (s *GameStateMachine) softTransition(ctx context.Context, from []models.GameStatus, mutate func(*models.Game)) (*models.Game, error) {
	cur, err := s.store.CurrentGame(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.store.TransitionGame(ctx, cur.ID, from, mutate)
	if IsCode(err, CodeConditionalCheckFailed) {
		return s.store.CurrentGame(ctx)
	}
	return g, err
}

func validMode(mode models.GameMode) bool {
	for _, m := range models.Modes {
		if m == mode {
			return true
		}
	}
	return false
}
