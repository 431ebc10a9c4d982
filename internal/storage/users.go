package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fileforge/internal/dbx"
	"fileforge/internal/models"
)

// Users is the PostgreSQL repository for registered accounts.
type Users struct {
	db dbx.DBTX
}

// NewUsers constructs a users repository bound to the given DBTX.
func NewUsers(db dbx.DBTX) *Users {
	return &Users{db: db}
}

const userColumns = `id, email, username, hashed_password, full_name, is_active,
	is_verified, role, last_login_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*models.User, error) {
	var u models.User
	err := s.Scan(&u.ID, &u.Email, &u.Username, &u.HashedPassword, &u.FullName,
		&u.IsActive, &u.IsVerified, &u.Role, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &u, nil
}

// Create inserts a new account. Email and username collisions surface
// as ErrDuplicate.
func (r *Users) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, email, username, hashed_password, full_name, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.Email, u.Username, u.HashedPassword, u.FullName, u.Role,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("db error: %w", err)
	}
	u.IsActive = true
	return nil
}

// GetByID returns the account for id, ErrNotFound if absent.
func (r *Users) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail returns the account for email, ErrNotFound if absent.
func (r *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// UpdateProfile applies partial profile changes and returns the fresh row.
func (r *Users) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, username *string) (*models.User, error) {
	query := `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
		    username  = COALESCE($3, username),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id, fullName, username))
	if err != nil && isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	return u, err
}

// UpdateLastLogin stamps the last successful login time.
func (r *Users) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Deactivate flips is_active off. Account rows are never hard-deleted.
func (r *Users) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
