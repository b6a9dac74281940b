package token

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token fails signature/parse validation.
	ErrInvalidToken = errors.New("token is invalid")
	// ErrExpiredToken is returned when a token parses and verifies but its
	// ExpiredAt has already passed.
	ErrExpiredToken = errors.New("token has expired")
)

// Payload is the custom claims set carried by an admin session token: who
// (UserID, Username) and when (IssuedAt, ExpiredAt), plus a unique ID so two
// tokens issued in the same instant are still distinguishable.
type Payload struct {
	ID        uuid.UUID `json:"id"`
	UserID    uint64    `json:"user_id"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiredAt time.Time `json:"expired_at"`
}

// NewPayload creates a new token payload for userID/username valid for duration.
func NewPayload(userID uint64, username string, duration time.Duration) (*Payload, error) {
	tokenID, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	payload := &Payload{
		ID:        tokenID,
		UserID:    userID,
		Username:  username,
		IssuedAt:  time.Now(),
		ExpiredAt: time.Now().Add(duration),
	}
	return payload, nil
}

// Valid checks whether the token payload has expired. It satisfies the
// jwt.Claims-shaped "is this still good" check the maker calls after parsing.
func (p *Payload) Valid() error {
	if time.Now().After(p.ExpiredAt) {
		return ErrExpiredToken
	}
	return nil
}
