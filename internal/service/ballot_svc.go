package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
	"github.com/sosialistaflokkurinn/ekklesia-elections/pkg/token"
)

// storeTimeout is the deadline applied to every store call on the
// submission path; exceeding it maps to a retryable ErrUnavailable.
const storeTimeout = 5 * time.Second

// ballotStore redeems a token and records a ballot as one atomic operation.
// *repository.BallotRepo satisfies this; tests use an in-memory fake.
type ballotStore interface {
	Submit(ctx context.Context, electionID, tokenID uuid.UUID, secret, answerID string, rankings []model.RankedChoice) error
}

// BallotService validates and submits anonymous ballots.
type BallotService struct {
	elections electionReader
	ballots   ballotStore
}

func NewBallotService(elections electionReader, ballots ballotStore) *BallotService {
	return &BallotService{elections: elections, ballots: ballots}
}

// Submit casts a ballot against an open election. All token failures return
// model.ErrTokenRejected with no distinguishing detail; shape problems
// return field-level validation errors.
func (s *BallotService) Submit(ctx context.Context, electionID uuid.UUID, req model.VoteRequest) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	e, err := s.elections.GetByID(ctx, electionID)
	if err != nil {
		return mapStoreErr(err)
	}
	if e.Status != model.StatusOpen {
		return &model.StateError{Current: e.Status, Requested: model.StatusOpen}
	}

	if err := ValidateBallotShape(e, req); err != nil {
		return err
	}

	tokenID, secret, err := token.Parse(req.Token)
	if err != nil {
		return model.ErrTokenRejected
	}

	if err := s.ballots.Submit(ctx, electionID, tokenID, secret, req.AnswerID, req.Rankings); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// ValidateBallotShape checks a vote request against the election's
// configuration. Pure function, unit-tested without a store.
//
// Ranked rules: every answer must belong to the election, ranks must be a
// dense sequence starting at 1 with no duplicates, and the entry count must
// not exceed the answer count. A ranked election rejects plain answerId
// submissions and vice versa.
func ValidateBallotShape(e *model.Election, req model.VoteRequest) error {
	if e.IsRanked {
		if req.AnswerID != "" {
			return model.NewValidationError("answerId", "ranked election requires rankings")
		}
		if len(req.Rankings) == 0 {
			return model.NewValidationError("rankings", "at least one ranking is required")
		}
		if len(req.Rankings) > len(e.Answers) {
			return model.NewValidationError("rankings", "more rankings than answers")
		}

		seenAnswers := make(map[string]bool, len(req.Rankings))
		ranks := make([]int, 0, len(req.Rankings))
		for _, rc := range req.Rankings {
			if !e.HasAnswer(rc.AnswerID) {
				return model.NewValidationError("rankings", "unknown answer")
			}
			if seenAnswers[rc.AnswerID] {
				return model.NewValidationError("rankings", "duplicate answer")
			}
			seenAnswers[rc.AnswerID] = true
			ranks = append(ranks, rc.Rank)
		}

		sort.Ints(ranks)
		for i, r := range ranks {
			if r != i+1 {
				return model.NewValidationError("rankings", "ranks must be a dense sequence starting at 1")
			}
		}
		return nil
	}

	if len(req.Rankings) > 0 {
		return model.NewValidationError("rankings", "election is not ranked")
	}
	if req.AnswerID == "" {
		return model.NewValidationError("answerId", "answerId is required")
	}
	if !e.HasAnswer(req.AnswerID) {
		return model.NewValidationError("answerId", "unknown answer")
	}
	return nil
}

// mapStoreErr converts deadline/cancellation failures into the retryable
// taxonomy while passing domain errors through unchanged.
func mapStoreErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.ErrUnavailable
	}
	return err
}
