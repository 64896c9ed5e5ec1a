package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
	"github.com/sosialistaflokkurinn/ekklesia-elections/pkg/token"
)

func openRankedElection(answerIDs ...string) *model.Election {
	e := rankedElection(2, answerIDs...)
	e.Status = model.StatusOpen
	return e
}

func TestValidateBallotShape_Ranked(t *testing.T) {
	e := openRankedElection("A", "B", "C")

	tests := []struct {
		name    string
		req     model.VoteRequest
		wantErr bool
	}{
		{"full ranking", model.VoteRequest{Rankings: []model.RankedChoice{
			{AnswerID: "A", Rank: 1}, {AnswerID: "B", Rank: 2}, {AnswerID: "C", Rank: 3}}}, false},
		{"partial ranking", model.VoteRequest{Rankings: []model.RankedChoice{
			{AnswerID: "B", Rank: 1}}}, false},
		{"out of order input accepted", model.VoteRequest{Rankings: []model.RankedChoice{
			{AnswerID: "C", Rank: 2}, {AnswerID: "A", Rank: 1}}}, false},
		{"empty rankings", model.VoteRequest{}, true},
		{"plain answer on ranked election", model.VoteRequest{AnswerID: "A"}, true},
		{"unknown answer", model.VoteRequest{Rankings: []model.RankedChoice{
			{AnswerID: "Z", Rank: 1}}}, true},
		{"duplicate answer", model.VoteRequest{Rankings: []model.RankedChoice{
			{AnswerID: "A", Rank: 1}, {AnswerID: "A", Rank: 2}}}, true},
		{"duplicate rank", model.VoteRequest{Rankings: []model.RankedChoice{
			{AnswerID: "A", Rank: 1}, {AnswerID: "B", Rank: 1}}}, true},
		{"rank gap", model.VoteRequest{Rankings: []model.RankedChoice{
			{AnswerID: "A", Rank: 1}, {AnswerID: "B", Rank: 3}}}, true},
		{"rank starts at zero", model.VoteRequest{Rankings: []model.RankedChoice{
			{AnswerID: "A", Rank: 0}, {AnswerID: "B", Rank: 1}}}, true},
		{"more rankings than answers", model.VoteRequest{Rankings: []model.RankedChoice{
			{AnswerID: "A", Rank: 1}, {AnswerID: "B", Rank: 2},
			{AnswerID: "C", Rank: 3}, {AnswerID: "A", Rank: 4}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBallotShape(e, tt.req)
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateBallotShape_Plurality(t *testing.T) {
	e := &model.Election{
		ID:      uuid.New(),
		Answers: []model.Answer{{ID: "yes"}, {ID: "no"}},
		Seats:   1,
		Status:  model.StatusOpen,
	}

	tests := []struct {
		name    string
		req     model.VoteRequest
		wantErr bool
	}{
		{"valid", model.VoteRequest{AnswerID: "yes"}, false},
		{"missing answer", model.VoteRequest{}, true},
		{"unknown answer", model.VoteRequest{AnswerID: "maybe"}, true},
		{"rankings on plurality election", model.VoteRequest{Rankings: []model.RankedChoice{
			{AnswerID: "yes", Rank: 1}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBallotShape(e, tt.req)
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// fakeElectionReader serves a fixed election.
type fakeElectionReader struct {
	election *model.Election
}

func (f *fakeElectionReader) GetByID(_ context.Context, id uuid.UUID) (*model.Election, error) {
	if f.election == nil || f.election.ID != id {
		return nil, model.ErrNotFound
	}
	return f.election, nil
}

// fakeBallotStore mimics the repository's conditional update: a token row
// flips to used exactly once, guarded by a mutex the way the database
// guards it with a row-level conditional write. Redeemability uses the
// same predicate the repository applies.
type fakeBallotStore struct {
	mu      sync.Mutex
	tokens  map[uuid.UUID]*model.VotingToken
	ballots []string // consumed token hashes
}

func newFakeBallotStore() *fakeBallotStore {
	return &fakeBallotStore{tokens: make(map[uuid.UUID]*model.VotingToken)}
}

func (f *fakeBallotStore) addToken(m token.Minted, expiresAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[m.ID] = &model.VotingToken{
		ID:        m.ID,
		Salt:      m.Salt,
		TokenHash: m.Hash,
		ExpiresAt: expiresAt,
	}
}

func (f *fakeBallotStore) invalidateToken(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.tokens[id].InvalidatedAt = &now
}

func (f *fakeBallotStore) Submit(_ context.Context, _ uuid.UUID, tokenID uuid.UUID, secret, _ string, _ []model.RankedChoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.tokens[tokenID]
	if !ok || !token.Verify(secret, row.Salt, row.TokenHash) || !row.Redeemable(time.Now()) {
		return model.ErrTokenRejected
	}
	now := time.Now()
	row.UsedAt = &now
	f.ballots = append(f.ballots, row.TokenHash)
	return nil
}

func TestBallotService_AtMostOncePerToken(t *testing.T) {
	e := openRankedElection("A", "B", "C")
	store := newFakeBallotStore()
	svc := NewBallotService(&fakeElectionReader{election: e}, store)

	minted, err := token.Mint()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	store.addToken(minted, time.Now().Add(time.Hour))

	req := model.VoteRequest{
		Token:    minted.Plaintext,
		Rankings: []model.RankedChoice{{AnswerID: "A", Rank: 1}, {AnswerID: "B", Rank: 2}},
	}

	const attempts = 50
	var accepted, rejected atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Submit(context.Background(), e.ID, req)
			switch {
			case err == nil:
				accepted.Add(1)
			case err == model.ErrTokenRejected:
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("accepted = %d, want exactly 1", accepted.Load())
	}
	if rejected.Load() != attempts-1 {
		t.Errorf("rejected = %d, want %d", rejected.Load(), attempts-1)
	}
	if len(store.ballots) != 1 {
		t.Errorf("stored ballots = %d, want exactly 1", len(store.ballots))
	}
}

func TestBallotService_DistinctTokensAllSucceed(t *testing.T) {
	e := openRankedElection("A", "B")
	store := newFakeBallotStore()
	svc := NewBallotService(&fakeElectionReader{election: e}, store)

	const voters = 20
	plaintexts := make([]string, voters)
	for i := 0; i < voters; i++ {
		m, err := token.Mint()
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		store.addToken(m, time.Now().Add(time.Hour))
		plaintexts[i] = m.Plaintext
	}

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			req := model.VoteRequest{
				Token:    plaintexts[idx],
				Rankings: []model.RankedChoice{{AnswerID: "A", Rank: 1}},
			}
			if err := svc.Submit(context.Background(), e.ID, req); err == nil {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if accepted.Load() != voters {
		t.Errorf("accepted = %d, want %d (unrelated tokens never contend)", accepted.Load(), voters)
	}
	if len(store.ballots) != voters {
		t.Errorf("stored ballots = %d, want %d", len(store.ballots), voters)
	}
}

func TestBallotService_RejectsWhenNotOpen(t *testing.T) {
	for _, status := range []model.ElectionStatus{
		model.StatusDraft, model.StatusPublished, model.StatusPaused,
		model.StatusClosed, model.StatusArchived,
	} {
		t.Run(string(status), func(t *testing.T) {
			e := openRankedElection("A", "B")
			e.Status = status
			svc := NewBallotService(&fakeElectionReader{election: e}, newFakeBallotStore())

			m, _ := token.Mint()
			err := svc.Submit(context.Background(), e.ID, model.VoteRequest{
				Token:    m.Plaintext,
				Rankings: []model.RankedChoice{{AnswerID: "A", Rank: 1}},
			})

			var sErr *model.StateError
			if !asStateError(err, &sErr) {
				t.Fatalf("error = %v, want StateError", err)
			}
			if sErr.Current != status {
				t.Errorf("StateError.Current = %s, want %s", sErr.Current, status)
			}
		})
	}
}

func TestBallotService_ExpiredTokenRejected(t *testing.T) {
	e := openRankedElection("A", "B")
	store := newFakeBallotStore()
	svc := NewBallotService(&fakeElectionReader{election: e}, store)

	m, err := token.Mint()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	store.addToken(m, time.Now().Add(-time.Minute))

	submitErr := svc.Submit(context.Background(), e.ID, model.VoteRequest{
		Token:    m.Plaintext,
		Rankings: []model.RankedChoice{{AnswerID: "A", Rank: 1}},
	})
	if submitErr != model.ErrTokenRejected {
		t.Errorf("error = %v, want ErrTokenRejected", submitErr)
	}
	if len(store.ballots) != 0 {
		t.Errorf("stored ballots = %d, want 0", len(store.ballots))
	}
}

func TestBallotService_InvalidatedTokenRejected(t *testing.T) {
	e := openRankedElection("A", "B")
	store := newFakeBallotStore()
	svc := NewBallotService(&fakeElectionReader{election: e}, store)

	m, err := token.Mint()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	store.addToken(m, time.Now().Add(time.Hour))
	store.invalidateToken(m.ID)

	submitErr := svc.Submit(context.Background(), e.ID, model.VoteRequest{
		Token:    m.Plaintext,
		Rankings: []model.RankedChoice{{AnswerID: "A", Rank: 1}},
	})
	if submitErr != model.ErrTokenRejected {
		t.Errorf("error = %v, want ErrTokenRejected", submitErr)
	}
	if len(store.ballots) != 0 {
		t.Errorf("stored ballots = %d, want 0", len(store.ballots))
	}
}

func TestBallotService_MalformedTokenIsGenericallyRejected(t *testing.T) {
	e := openRankedElection("A", "B")
	svc := NewBallotService(&fakeElectionReader{election: e}, newFakeBallotStore())

	for _, bad := range []string{"garbage", "not-a-uuid.secret", ""} {
		err := svc.Submit(context.Background(), e.ID, model.VoteRequest{
			Token:    bad,
			Rankings: []model.RankedChoice{{AnswerID: "A", Rank: 1}},
		})
		if err != model.ErrTokenRejected {
			t.Errorf("Submit(token=%q) error = %v, want ErrTokenRejected", bad, err)
		}
	}
}

func TestBallotService_UnknownElection(t *testing.T) {
	svc := NewBallotService(&fakeElectionReader{}, newFakeBallotStore())

	m, _ := token.Mint()
	err := svc.Submit(context.Background(), uuid.New(), model.VoteRequest{Token: m.Plaintext, AnswerID: "A"})
	if err != model.ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func asStateError(err error, target **model.StateError) bool {
	se, ok := err.(*model.StateError)
	if ok {
		*target = se
	}
	return ok
}
