package model

import (
	"time"

	"github.com/google/uuid"
)

// ElectionStatus is the lifecycle state of an election.
type ElectionStatus string

const (
	StatusDraft     ElectionStatus = "draft"
	StatusPublished ElectionStatus = "published"
	StatusOpen      ElectionStatus = "open"
	StatusPaused    ElectionStatus = "paused"
	StatusClosed    ElectionStatus = "closed"
	StatusArchived  ElectionStatus = "archived"
	StatusDeleted   ElectionStatus = "deleted"
)

// Answer is one candidate/answer entry on the ballot paper.
type Answer struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Election is the root aggregate for a vote.
type Election struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Question    string         `json:"question"`
	Answers     []Answer       `json:"answers"`
	IsRanked    bool           `json:"isRanked"`
	Seats       int            `json:"seats"`
	Status      ElectionStatus `json:"status"`
	CreatedBy   string         `json:"-"`
	CreatedAt   time.Time      `json:"createdAt"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
	OpenedAt    *time.Time     `json:"openedAt,omitempty"`
	ClosedAt    *time.Time     `json:"closedAt,omitempty"`
	ArchivedAt  *time.Time     `json:"-"`
	DeletedAt   *time.Time     `json:"-"`
}

// HasAnswer reports whether id is in the election's answer set.
func (e *Election) HasAnswer(id string) bool {
	for _, a := range e.Answers {
		if a.ID == id {
			return true
		}
	}
	return false
}

// CreateElectionRequest is the API request body for creating an election.
type CreateElectionRequest struct {
	Title    string   `json:"title"`
	Question string   `json:"question"`
	Answers  []Answer `json:"answers"`
	IsRanked bool     `json:"isRanked"`
	Seats    int      `json:"seats"`
}

// OpenElectionRequest carries the eligible-member count supplied by the
// external roll service at open time. No identities cross this boundary.
type OpenElectionRequest struct {
	EligibleMemberCount int `json:"eligibleMemberCount"`
}

// OpenElectionResponse returns the freshly minted plaintext tokens exactly
// once. They are never persisted and cannot be re-fetched.
type OpenElectionResponse struct {
	Tokens []IssuedToken `json:"tokens"`
	Count  int           `json:"count"`
}
