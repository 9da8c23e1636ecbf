package db

import (
	"time"

	"github.com/google/uuid"
)

// User is the local account linked to a Stytch user
type User struct {
	ID           string    `json:"id" db:"id"`
	StytchUserID string    `json:"stytch_user_id" db:"stytch_user_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// NewUser creates a new local user for a Stytch user id
func NewUser(stytchUserID string) *User {
	return &User{
		ID:           uuid.New().String(),
		StytchUserID: stytchUserID,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}
