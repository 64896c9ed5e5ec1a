package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleRepo is the locally owned source of truth for elevated roles. Claims
// arriving on requests are never trusted on their own; the guard re-derives
// authorization from this table on every privileged call.
type RoleRepo struct {
	pool *pgxpool.Pool
}

func NewRoleRepo(pool *pgxpool.Pool) *RoleRepo {
	return &RoleRepo{pool: pool}
}

// GetRole returns the stored role for a uid, or "" when the uid holds no
// elevated role.
func (r *RoleRepo) GetRole(ctx context.Context, uid string) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT role FROM admin_roles WHERE uid = $1`, uid).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return role, err
}
