package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
)

type EmailVerificationRepository struct {
	db DBTX
}

func NewEmailVerificationRepository(db DBTX) *EmailVerificationRepository {
	return &EmailVerificationRepository{db: db}
}

func (r *EmailVerificationRepository) FindByEmail(ctx context.Context, email string) (*entity.EmailVerification, error) {
	query := `
		SELECT id, email, code, expires_at, created_at
		FROM email_verifications WHERE email = ?
	`
	v := &entity.EmailVerification{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&v.ID,
		&v.Email,
		&v.Code,
		&v.ExpiresAt,
		&v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select email verification: %w", err)
	}
	return v, nil
}

// Create relies on the unique key on email: a second record for the same
// address yields ErrDuplicate.
func (r *EmailVerificationRepository) Create(ctx context.Context, v *entity.EmailVerification) error {
	query := `
		INSERT INTO email_verifications (email, code, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		v.Email,
		v.Code,
		v.ExpiresAt,
		v.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert email verification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert email verification: %w", err)
	}
	v.ID = uint64(id)
	return nil
}

func (r *EmailVerificationRepository) DeleteByEmail(ctx context.Context, email string) error {
	query := `DELETE FROM email_verifications WHERE email = ?`
	if _, err := r.db.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("delete email verification: %w", err)
	}
	return nil
}
