// Package storage implements the PostgreSQL metadata store: users, files and
// jobs repositories over database/sql with the pgx driver.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"fileforge/internal/migrations"
	"fileforge/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible
	// to the requesting owner. The two cases are deliberately the same.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("already exists")

	// ErrConflict is returned when a guarded status update matched no row,
	// e.g. finalizing a job that is no longer processing.
	ErrConflict = errors.New("conflicting state")
)

const pgUniqueViolation = "23505"

// Open opens a PostgreSQL connection pool via the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// ownerCond renders the owner predicate for the mutually-exclusive owner
// columns, using the given placeholder index.
func ownerCond(o models.Owner, idx int) (string, any) {
	if o.IsUser() {
		return fmt.Sprintf("user_id = $%d", idx), *o.UserID
	}
	return fmt.Sprintf("guest_token = $%d", idx), *o.GuestToken
}
