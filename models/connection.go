package models

import "time"

// Connection identifies one live subscriber. Identity is empty for
// anonymous viewers; IsOperator is granted only when the identity resolves
// against the operator allow-list.
type Connection struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity,omitempty"`
	IsOperator bool      `json:"is_operator"`
	Room       string    `json:"room"`
	JoinedAt   time.Time `json:"joined_at"`
}
