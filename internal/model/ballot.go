package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// RankedChoice is one (answer, rank) pair on a ranked ballot.
// Rank 1 is the most preferred; ranks are unique per ballot.
type RankedChoice struct {
	AnswerID string `json:"answerId"`
	Rank     int    `json:"rank"`
}

// Ballot is an anonymized cast vote. Its only lineage is the consumed token
// hash, kept for duplicate detection; no identity column exists anywhere on
// this table.
type Ballot struct {
	ID         int64          `json:"id"`
	ElectionID uuid.UUID      `json:"electionId"`
	TokenHash  string         `json:"-"`
	AnswerID   string         `json:"answerId,omitempty"`
	Rankings   []RankedChoice `json:"rankings,omitempty"`
	CastAt     time.Time      `json:"castAt"`
}

// Preferences returns the ballot's answer IDs in rank order. For a plurality
// ballot this is the single chosen answer. Ranks are validated at submission,
// so out-of-range values can only come from hand-edited rows; those entries
// are dropped rather than trusted to index anything.
func (b *Ballot) Preferences() []string {
	if len(b.Rankings) == 0 {
		if b.AnswerID == "" {
			return nil
		}
		return []string{b.AnswerID}
	}
	rcs := make([]RankedChoice, 0, len(b.Rankings))
	for _, rc := range b.Rankings {
		if rc.Rank < 1 {
			continue
		}
		rcs = append(rcs, rc)
	}
	sort.SliceStable(rcs, func(i, j int) bool { return rcs[i].Rank < rcs[j].Rank })
	prefs := make([]string, len(rcs))
	for i, rc := range rcs {
		prefs[i] = rc.AnswerID
	}
	return prefs
}

// VoteRequest is the API request body for casting a ballot.
type VoteRequest struct {
	Token    string         `json:"token"`
	AnswerID string         `json:"answerId,omitempty"`
	Rankings []RankedChoice `json:"rankings,omitempty"`
}

// VoteResponse is the API response after a ballot submission.
type VoteResponse struct {
	Accepted bool `json:"accepted"`
}
