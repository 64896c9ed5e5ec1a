package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
	"github.com/sosialistaflokkurinn/ekklesia-elections/pkg/token"
)

type BallotRepo struct {
	pool *pgxpool.Pool
}

func NewBallotRepo(pool *pgxpool.Pool) *BallotRepo {
	return &BallotRepo{pool: pool}
}

// Submit is the correctness-critical path: it redeems the token and inserts
// the ballot as one transaction. The conditional UPDATE on used_at is the
// at-most-once guarantee — when two requests race on the same token, exactly
// one UPDATE reports a row affected and the loser rolls back untouched.
//
// Every token failure surfaces as model.ErrTokenRejected with no further
// detail (anti-enumeration).
func (r *BallotRepo) Submit(ctx context.Context, electionID, tokenID uuid.UUID, secret, answerID string, rankings []model.RankedChoice) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Election must still be open at commit time; read it inside the tx.
	var status model.ElectionStatus
	err = tx.QueryRow(ctx, `SELECT status FROM elections WHERE id = $1`, electionID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}
	if status != model.StatusOpen {
		return &model.StateError{Current: status, Requested: model.StatusOpen}
	}

	var tok model.VotingToken
	err = tx.QueryRow(ctx, `
		SELECT salt, token_hash, expires_at, used_at, invalidated_at
		FROM voting_tokens
		WHERE id = $1 AND election_id = $2`, tokenID, electionID).
		Scan(&tok.Salt, &tok.TokenHash, &tok.ExpiresAt, &tok.UsedAt, &tok.InvalidatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrTokenRejected
	}
	if err != nil {
		return err
	}

	if !token.Verify(secret, tok.Salt, tok.TokenHash) {
		return model.ErrTokenRejected
	}
	if !tok.Redeemable(time.Now()) {
		return model.ErrTokenRejected
	}

	// Mark used, only if currently unused, valid, and unexpired. The row
	// conditions repeat the Redeemable predicate so racing submissions on
	// the same token still have exactly one winner.
	tag, err := tx.Exec(ctx, `
		UPDATE voting_tokens SET used_at = NOW()
		WHERE id = $1
		  AND used_at IS NULL
		  AND invalidated_at IS NULL
		  AND expires_at > NOW()`, tokenID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return model.ErrTokenRejected
	}

	var rankingsJSON []byte
	if len(rankings) > 0 {
		rankingsJSON, err = json.Marshal(rankings)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ballots (election_id, token_hash, answer_id, rankings)
		VALUES ($1, $2, NULLIF($3, ''), $4)`,
		electionID, tok.TokenHash, answerID, rankingsJSON)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListByElection loads the full ballot set for tallying. Only called against
// closed (immutable) elections, so no locking is needed.
func (r *BallotRepo) ListByElection(ctx context.Context, electionID uuid.UUID) ([]model.Ballot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, election_id, token_hash, COALESCE(answer_id, ''), rankings, cast_at
		FROM ballots
		WHERE election_id = $1
		ORDER BY id`, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Ballot
	for rows.Next() {
		var b model.Ballot
		var rankingsJSON []byte
		if err := rows.Scan(&b.ID, &b.ElectionID, &b.TokenHash, &b.AnswerID, &rankingsJSON, &b.CastAt); err != nil {
			return nil, err
		}
		if len(rankingsJSON) > 0 {
			if err := json.Unmarshal(rankingsJSON, &b.Rankings); err != nil {
				return nil, err
			}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CountByElection returns the number of cast ballots.
func (r *BallotRepo) CountByElection(ctx context.Context, electionID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ballots WHERE election_id = $1`, electionID).Scan(&n)
	return n, err
}
