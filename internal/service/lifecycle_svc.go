package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
)

// legalTransitions is the full lifecycle state machine:
// draft → published → open → (paused ⇄ open) → closed → archived | deleted.
// There is no re-open after close.
var legalTransitions = map[model.ElectionStatus][]model.ElectionStatus{
	model.StatusDraft:     {model.StatusPublished, model.StatusDeleted},
	model.StatusPublished: {model.StatusOpen, model.StatusDeleted},
	model.StatusOpen:      {model.StatusPaused, model.StatusClosed},
	model.StatusPaused:    {model.StatusOpen, model.StatusClosed},
	model.StatusClosed:    {model.StatusArchived, model.StatusDeleted},
	model.StatusArchived:  {model.StatusDeleted},
	model.StatusDeleted:   {},
}

// CanTransition reports whether from → to is a legal lifecycle change.
func CanTransition(from, to model.ElectionStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Actor identifies the admin performing a lifecycle operation, for the
// audit trail only — never stored near a ballot.
type Actor struct {
	UID    string
	IPHash string
}

type electionStore interface {
	electionReader
	Create(ctx context.Context, e *model.Election, entry model.AuditLogEntry) error
	Transition(ctx context.Context, id uuid.UUID, from, to model.ElectionStatus, entry model.AuditLogEntry) error
	OpenWithTokens(ctx context.Context, id uuid.UUID, from model.ElectionStatus, tokens []model.VotingToken, entries []model.AuditLogEntry) error
}

type ballotCounter interface {
	CountByElection(ctx context.Context, electionID uuid.UUID) (int, error)
}

// LifecycleService owns election state transitions. Every transition is a
// conditional status update plus an audit entry in one transaction; the
// repo's CAS makes concurrent transitions on the same election safe.
type LifecycleService struct {
	elections    electionStore
	ballots      ballotCounter
	cache        *CacheService
	votingWindow time.Duration
}

func NewLifecycleService(elections electionStore, ballots ballotCounter, cache *CacheService, votingWindow time.Duration) *LifecycleService {
	return &LifecycleService{elections: elections, ballots: ballots, cache: cache, votingWindow: votingWindow}
}

// Create makes a new draft election after validating its configuration.
func (s *LifecycleService) Create(ctx context.Context, req model.CreateElectionRequest, actor Actor) (*model.Election, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if req.Title == "" {
		return nil, model.NewValidationError("title", "title is required")
	}
	if len(req.Answers) < 2 {
		return nil, model.NewValidationError("answers", "at least two answers are required")
	}
	seen := make(map[string]bool, len(req.Answers))
	for _, a := range req.Answers {
		if a.ID == "" {
			return nil, model.NewValidationError("answers", "answer id is required")
		}
		if seen[a.ID] {
			return nil, model.NewValidationError("answers", "duplicate answer id")
		}
		seen[a.ID] = true
	}
	if req.Seats < 1 {
		return nil, model.NewValidationError("seats", "seats must be at least 1")
	}
	if req.Seats > 1 && !req.IsRanked {
		return nil, model.NewValidationError("seats", "multi-seat elections must be ranked")
	}
	if req.Seats > len(req.Answers) {
		return nil, model.NewValidationError("seats", "more seats than answers")
	}

	e := &model.Election{
		ID:        uuid.New(),
		Title:     req.Title,
		Question:  req.Question,
		Answers:   req.Answers,
		IsRanked:  req.IsRanked,
		Seats:     req.Seats,
		Status:    model.StatusDraft,
		CreatedBy: actor.UID,
	}

	entry := auditEntry(model.ActionElectionCreate, actor, &e.ID, nil)
	if err := s.elections.Create(ctx, e, entry); err != nil {
		return nil, mapStoreErr(err)
	}
	return e, nil
}

// Open mints one token per eligible member and, for a published election,
// transitions it to open, all in one transaction. Calling Open on an
// already-open election is the re-issue path: the fresh batch supersedes
// every unconsumed token from earlier batches (they are invalidated in the
// same transaction), so lost or double-distributed plaintexts die with
// their batch. The plaintext tokens are returned exactly once.
func (s *LifecycleService) Open(ctx context.Context, id uuid.UUID, eligibleCount int, actor Actor) (*model.OpenElectionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	e, err := s.elections.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if e.Status != model.StatusPublished && e.Status != model.StatusOpen {
		return nil, &model.StateError{Current: e.Status, Requested: model.StatusOpen}
	}

	expiresAt := time.Now().Add(s.votingWindow)
	batch, err := MintBatch(id, eligibleCount, expiresAt)
	if err != nil {
		return nil, err
	}

	var entries []model.AuditLogEntry
	if e.Status == model.StatusPublished {
		entries = append(entries, auditEntry(model.ActionElectionOpen, actor, &id, nil))
	}
	entries = append(entries, auditEntry(model.ActionTokensIssued, actor, &id, issuanceDetails(batch.BatchID, eligibleCount, expiresAt)))

	if err := s.elections.OpenWithTokens(ctx, id, e.Status, batch.Stored, entries); err != nil {
		return nil, mapStoreErr(err)
	}

	log.Info().
		Str("election_id", id.String()).
		Str("batch_id", batch.BatchID.String()).
		Int("count", eligibleCount).
		Msg("voting tokens issued")

	return &model.OpenElectionResponse{Tokens: batch.Issued, Count: eligibleCount}, nil
}

// Transition performs a simple lifecycle change (publish, pause, resume,
// close, archive, delete). Illegal transitions fail with a StateError naming
// both states before touching the store.
func (s *LifecycleService) Transition(ctx context.Context, id uuid.UUID, to model.ElectionStatus, actor Actor) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	e, err := s.elections.GetByID(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	if !CanTransition(e.Status, to) {
		return &model.StateError{Current: e.Status, Requested: to}
	}

	// The close entry records how many ballots were frozen. Counting is
	// best-effort; a count failure never blocks the close itself.
	var details []byte
	if to == model.StatusClosed && s.ballots != nil {
		if n, err := s.ballots.CountByElection(ctx, id); err != nil {
			log.Warn().Err(err).Str("election_id", id.String()).Msg("ballot count for close audit failed")
		} else {
			details, _ = json.Marshal(map[string]int{"ballots": n})
		}
	}

	entry := auditEntry(actionForStatus(to), actor, &id, details)
	if err := s.elections.Transition(ctx, id, e.Status, to, entry); err != nil {
		return mapStoreErr(err)
	}

	// A close or delete makes any cached tally stale.
	if s.cache != nil && (to == model.StatusClosed || to == model.StatusDeleted) {
		if err := s.cache.InvalidateTally(ctx, id); err != nil {
			log.Warn().Err(err).Str("election_id", id.String()).Msg("cache: invalidate tally failed")
		}
	}
	return nil
}

func actionForStatus(to model.ElectionStatus) string {
	switch to {
	case model.StatusPublished:
		return model.ActionElectionPublish
	case model.StatusOpen:
		return model.ActionElectionResume
	case model.StatusPaused:
		return model.ActionElectionPause
	case model.StatusClosed:
		return model.ActionElectionClose
	case model.StatusArchived:
		return model.ActionElectionArchive
	case model.StatusDeleted:
		return model.ActionElectionDelete
	}
	return "election.transition"
}

func auditEntry(action string, actor Actor, electionID *uuid.UUID, details []byte) model.AuditLogEntry {
	return model.AuditLogEntry{
		ActionType:    action,
		PerformedBy:   actor.UID,
		ElectionID:    electionID,
		Details:       details,
		IPHash:        actor.IPHash,
		CorrelationID: uuid.New(),
	}
}
