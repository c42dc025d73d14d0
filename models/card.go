package models

import "time"

type CardStatus string

const (
	CardAvailable CardStatus = "available"
	CardReserved  CardStatus = "reserved"
	CardPurchased CardStatus = "purchased"
	CardWon       CardStatus = "won" // flagged-and-rejected, out of play until game end
	CardExpired   CardStatus = "expired"
)

// Free cell position inside the 5x5 grid.
const (
	FreeRow = 2
	FreeCol = 2
)

// Grid is a bingo card laid out as its five labeled columns. Each column
// holds five distinct numbers from its fixed range (B 1-15, I 16-30,
// N 31-45, G 46-60, O 61-75). N[2] is the free center cell, stored as zero.
type Grid struct {
	B [5]int `json:"B"`
	I [5]int `json:"I"`
	N [5]int `json:"N"`
	G [5]int `json:"G"`
	O [5]int `json:"O"`
}

// Column returns column c, 0=B through 4=O.
func (g Grid) Column(c int) [5]int {
	switch c {
	case 0:
		return g.B
	case 1:
		return g.I
	case 2:
		return g.N
	case 3:
		return g.G
	default:
		return g.O
	}
}

// Cell returns the number at (row, col). The free cell returns zero.
func (g Grid) Cell(row, col int) int {
	return g.Column(col)[row]
}

type Card struct {
	ID                string     `gorm:"primaryKey;size:32" json:"id"`
	Grid              Grid       `gorm:"type:jsonb;serializer:json" json:"grid"`
	Signature         string     `gorm:"uniqueIndex;size:256" json:"-"`
	Status            CardStatus `gorm:"index;size:16" json:"status"`
	ReservedBy        string     `gorm:"size:128" json:"-"`
	ReservationExpiry *time.Time `json:"-"`
	Owner             string     `gorm:"index;size:128" json:"owner,omitempty"`
	OwnerWallet       string     `gorm:"size:128" json:"-"`
	TxRef             string     `gorm:"size:128" json:"-"`
	UnitPrice         float64    `json:"-"`
	PurchasedAt       *time.Time `json:"purchased_at,omitempty"`
	IntegrityTag      string     `gorm:"size:64" json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
