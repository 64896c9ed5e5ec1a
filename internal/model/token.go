package model

import (
	"time"

	"github.com/google/uuid"
)

// VotingToken is the stored (hashed) form of a voting capability. The
// plaintext is handed to the issuing caller once and never persisted.
// There is deliberately no member reference on this type.
type VotingToken struct {
	ID             uuid.UUID  `json:"id"`
	ElectionID     uuid.UUID  `json:"electionId"`
	BatchID        uuid.UUID  `json:"batchId"`
	TokenHash      string     `json:"-"`
	Salt           string     `json:"-"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	UsedAt         *time.Time `json:"-"`
	InvalidatedAt  *time.Time `json:"-"`
	IssuedForCount int        `json:"-"`
}

// Redeemable reports whether the token can still be consumed at now: never
// used, never invalidated by a later batch, and not past its expiry.
func (t *VotingToken) Redeemable(now time.Time) bool {
	return t.UsedAt == nil && t.InvalidatedAt == nil && now.Before(t.ExpiresAt)
}

// IssuedToken is the one-time plaintext view returned from an issuance call.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
