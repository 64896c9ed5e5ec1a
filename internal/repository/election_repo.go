package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
)

type ElectionRepo struct {
	pool *pgxpool.Pool
}

func NewElectionRepo(pool *pgxpool.Pool) *ElectionRepo {
	return &ElectionRepo{pool: pool}
}

// timestampColumns maps a target status to the column stamped on transition.
var timestampColumns = map[model.ElectionStatus]string{
	model.StatusPublished: "published_at",
	model.StatusOpen:      "opened_at",
	model.StatusClosed:    "closed_at",
	model.StatusArchived:  "archived_at",
	model.StatusDeleted:   "deleted_at",
}

const electionColumns = `
	id, title, question, answers, is_ranked, seats, status, created_by,
	created_at, published_at, opened_at, closed_at, archived_at, deleted_at`

// Create inserts a draft election and its audit entry in one transaction.
func (r *ElectionRepo) Create(ctx context.Context, e *model.Election, entry model.AuditLogEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	answers, err := json.Marshal(e.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO elections (id, title, question, answers, is_ranked, seats, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Title, e.Question, answers, e.IsRanked, e.Seats, e.Status, e.CreatedBy)
	if err != nil {
		return err
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetByID returns an election. Soft-deleted elections are invisible.
func (r *ElectionRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Election, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+electionColumns+`
		FROM elections
		WHERE id = $1 AND status != 'deleted'`, id)
	return scanElection(row)
}

// List returns all non-deleted elections, newest first.
func (r *ElectionRepo) List(ctx context.Context) ([]model.Election, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+electionColumns+`
		FROM elections
		WHERE status != 'deleted'
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Election
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Transition performs the conditional status update ("set to, only if
// currently from") plus the matching audit entry, in one transaction.
// Returns a StateError when the CAS loses, so concurrent transitions on the
// same election have exactly one winner.
func (r *ElectionRepo) Transition(ctx context.Context, id uuid.UUID, from, to model.ElectionStatus, entry model.AuditLogEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := transitionTx(ctx, tx, id, from, to); err != nil {
		return err
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// OpenWithTokens runs the open transition as a single unit: CAS to open,
// void all unused tokens from earlier batches, insert the fresh batch, and
// append the audit entries. Any failure rolls the whole thing back.
func (r *ElectionRepo) OpenWithTokens(ctx context.Context, id uuid.UUID, from model.ElectionStatus, tokens []model.VotingToken, entries []model.AuditLogEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if from == model.StatusOpen {
		// Re-issue for an already-open election: no status change, but the
		// row lock serializes against a concurrent close or pause.
		var current model.ElectionStatus
		err := tx.QueryRow(ctx, `SELECT status FROM elections WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		if current != model.StatusOpen {
			return &model.StateError{Current: current, Requested: model.StatusOpen}
		}
	} else if err := transitionTx(ctx, tx, id, from, model.StatusOpen); err != nil {
		return err
	}

	// Invalidate-and-reissue: a new batch supersedes every unconsumed token
	// from prior batches so old plaintexts can never be double-distributed.
	_, err = tx.Exec(ctx, `
		UPDATE voting_tokens SET invalidated_at = NOW()
		WHERE election_id = $1 AND used_at IS NULL AND invalidated_at IS NULL`, id)
	if err != nil {
		return err
	}

	for _, t := range tokens {
		_, err = tx.Exec(ctx, `
			INSERT INTO voting_tokens (id, election_id, batch_id, token_hash, salt, expires_at, issued_for_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, t.ElectionID, t.BatchID, t.TokenHash, t.Salt, t.ExpiresAt, t.IssuedForCount)
		if err != nil {
			return err
		}
	}

	for _, entry := range entries {
		if err := insertAudit(ctx, tx, entry); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// transitionTx is the shared CAS core. The WHERE clause on the current
// status is what makes concurrent lifecycle changes race-safe.
func transitionTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.ElectionStatus) error {
	query := `UPDATE elections SET status = $1 WHERE id = $2 AND status = $3`
	if col, ok := timestampColumns[to]; ok {
		query = fmt.Sprintf(`UPDATE elections SET status = $1, %s = NOW() WHERE id = $2 AND status = $3`, col)
	}

	tag, err := tx.Exec(ctx, query, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		// Lost the CAS — re-read the actual status for the error message.
		var current model.ElectionStatus
		err := tx.QueryRow(ctx, `SELECT status FROM elections WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		return &model.StateError{Current: current, Requested: to}
	}
	return nil
}

func scanElection(row pgx.Row) (*model.Election, error) {
	var e model.Election
	var answers []byte
	err := row.Scan(&e.ID, &e.Title, &e.Question, &answers, &e.IsRanked, &e.Seats,
		&e.Status, &e.CreatedBy, &e.CreatedAt, &e.PublishedAt, &e.OpenedAt,
		&e.ClosedAt, &e.ArchivedAt, &e.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &e.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return &e, nil
}
