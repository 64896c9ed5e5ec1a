package model

import (
	"time"

	"github.com/google/uuid"
)

// Round actions recorded in the tally trace.
const (
	RoundActionElect          = "elect"
	RoundActionEliminate      = "eliminate"
	RoundActionElectRemaining = "elect-remaining"
)

// TallyRound is one round of the count, kept for auditability.
type TallyRound struct {
	Number        int                `json:"number"`
	Counts        map[string]float64 `json:"counts"`
	Action        string             `json:"action"`
	Candidates    []string           `json:"candidates"`
	TransferValue float64            `json:"transferValue,omitempty"`
	ExhaustedWt   float64            `json:"exhaustedWeight"`
}

// TallyResult is derived from the closed ballot set; it is cached, never a
// source of truth.
type TallyResult struct {
	ElectionID   uuid.UUID    `json:"electionId"`
	IsRanked     bool         `json:"isRanked"`
	Seats        int          `json:"seats"`
	Quota        int          `json:"quota,omitempty"`
	ValidBallots int          `json:"validBallots"`
	Winners      []string     `json:"winners"`
	Rounds       []TallyRound `json:"rounds"`
	ComputedAt   time.Time    `json:"computedAt"`
}
