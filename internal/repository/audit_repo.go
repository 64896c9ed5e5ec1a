package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Append writes a standalone audit entry (security events, recompute
// triggers). State-changing operations write theirs inside the same
// transaction as the change via insertAudit.
func (r *AuditRepo) Append(ctx context.Context, entry model.AuditLogEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListByElection returns the audit trail for one election, oldest first.
func (r *AuditRepo) ListByElection(ctx context.Context, electionID uuid.UUID) ([]model.AuditLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, action_type, performed_by, election_id, details, ip_hash, correlation_id, created_at
		FROM audit_log
		WHERE election_id = $1
		ORDER BY id`, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.ActionType, &e.PerformedBy, &e.ElectionID,
			&e.Details, &e.IPHash, &e.CorrelationID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeDeleted removes audit entries older than the retention window, but
// only for elections that were soft-deleted. Everything else is kept
// forever.
func (r *AuditRepo) PurgeDeleted(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM audit_log
		WHERE created_at < NOW() - $1::interval
		  AND election_id IN (SELECT id FROM elections WHERE status = 'deleted')`,
		retention.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// insertAudit appends one entry within the caller's transaction, so the
// audit record commits or rolls back together with the state change.
func insertAudit(ctx context.Context, tx pgx.Tx, entry model.AuditLogEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_log (action_type, performed_by, election_id, details, ip_hash, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ActionType, entry.PerformedBy, entry.ElectionID, entry.Details,
		entry.IPHash, entry.CorrelationID)
	return err
}
