package models

import "time"

// Ownership is the owner-to-card index row written in the same transaction
// as the card's reserved-to-purchased transition.
type Ownership struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Owner     string    `gorm:"uniqueIndex:idx_owner_card;size:128" json:"owner"`
	CardID    string    `gorm:"uniqueIndex:idx_owner_card;size:32" json:"card_id"`
	Wallet    string    `gorm:"size:128" json:"wallet"`
	TxRef     string    `gorm:"size:128" json:"tx_ref"`
	CreatedAt time.Time `json:"created_at"`
}
