package models

import (
	"time"

	"github.com/samber/lo"
)

type GameStatus string

const (
	GameWaiting GameStatus = "waiting"
	GamePlaying GameStatus = "playing"
	GamePaused  GameStatus = "paused"
	GameEnded   GameStatus = "ended"
)

type GameMode string

const (
	ModeFullCard    GameMode = "full_card"
	ModeAnyLine     GameMode = "any_line"
	ModeFourCorners GameMode = "four_corners"
	ModeLetterX     GameMode = "letter_x"
	ModeLetterT     GameMode = "letter_t"
)

// Modes lists every selectable winning pattern.
var Modes = []GameMode{ModeFullCard, ModeAnyLine, ModeFourCorners, ModeLetterX, ModeLetterT}

// Winner records the confirmed winning card of an ended game.
type Winner struct {
	CardID   string   `json:"card_id"`
	Identity string   `json:"identity,omitempty"`
	Pattern  GameMode `json:"pattern"`
}

type Game struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Status          GameStatus `gorm:"index;size:16" json:"status"`
	Mode            GameMode   `gorm:"size:16" json:"mode"`
	CalledNumbers   []int      `gorm:"type:jsonb;serializer:json" json:"called_numbers"`
	CurrentNumber   int        `json:"current_number"`
	CandidateCardID string     `gorm:"size:32" json:"candidate_card_id,omitempty"`
	Winner          *Winner    `gorm:"type:jsonb;serializer:json" json:"winner,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Called reports whether n has already been drawn this game.
func (g *Game) Called(n int) bool {
	return lo.Contains(g.CalledNumbers, n)
}

// Active reports whether the game is in progress (running or paused).
func (g *Game) Active() bool {
	return g.Status == GamePlaying || g.Status == GamePaused
}

// CurrentGame is the singleton pointer row naming the game that every
// operator command and purchase check targets.
type CurrentGame struct {
	Key       string    `gorm:"primaryKey;size:8"`
	GameID    string    `gorm:"size:36"`
	UpdatedAt time.Time
}

// CurrentKey is the only key ever stored in the pointer row.
const CurrentKey = "current"
