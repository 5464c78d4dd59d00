package model

import (
	"time"
)

// User represents a messenger account. The ID is the stable identity key;
// Email doubles as the user's personal channel name and presence key.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary returns the sender summary embedded in message payloads.
func (u User) Summary() SenderSummary {
	return SenderSummary{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
}

// SenderSummary is the trimmed user shape carried on the wire.
type SenderSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
