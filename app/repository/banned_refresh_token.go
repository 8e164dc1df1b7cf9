package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type BannedRefreshTokenRepository struct {
	db DBTX
}

func NewBannedRefreshTokenRepository(db DBTX) *BannedRefreshTokenRepository {
	return &BannedRefreshTokenRepository{db: db}
}

// Ban inserts jti into the ban list and reports false when it was already
// there. The unique key on jti makes check and insert one atomic step.
func (r *BannedRefreshTokenRepository) Ban(ctx context.Context, jti string) (bool, error) {
	query := `
		INSERT INTO banned_refresh_tokens (jti, created_at, updated_at)
		VALUES (?, ?, ?)
	`
	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, jti, now, now); err != nil {
		if isDuplicateEntry(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert banned refresh token: %w", err)
	}
	return true, nil
}

func (r *BannedRefreshTokenRepository) IsBanned(ctx context.Context, jti string) (bool, error) {
	query := `SELECT 1 FROM banned_refresh_tokens WHERE jti = ? LIMIT 1`

	var one int
	err := r.db.QueryRowContext(ctx, query, jti).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select banned refresh token: %w", err)
	}
	return true, nil
}
