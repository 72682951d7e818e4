// Package pgusers stores the user directory in PostgreSQL.
package pgusers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"parss/internal/domain"
	"parss/internal/users"
)

// Schema creates the users table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS parss_users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	permissions   TEXT[] NOT NULL DEFAULT '{}',
	institutions  TEXT[] NOT NULL DEFAULT '{}',
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

const selectColumns = `id, email, name, role, password_hash, permissions, institutions, is_active, created_at, updated_at`

// DB is the subset of pgxpool.Pool and pgx.Tx used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements users.Directory using PostgreSQL.
type Repository struct {
	db DB
}

// Open connects to databaseURL and verifies connectivity.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgusers: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgusers: ping: %w", err)
	}
	return pool, nil
}

// New constructs a repository.
func New(db DB) *Repository {
	return &Repository{db: db}
}

// Migrate applies Schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgusers: migrate: %w", err)
	}
	return nil
}

// FindByEmail fetches a user by normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (users.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM parss_users WHERE email = $1`, users.NormalizeEmail(email))
	return scanUser(row)
}

// FindByID fetches a user by ID.
func (r *Repository) FindByID(ctx context.Context, id string) (users.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM parss_users WHERE id = $1`, id)
	return scanUser(row)
}

// Create inserts a user. A duplicate email or ID yields domain.ErrConflict.
func (r *Repository) Create(ctx context.Context, u users.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO parss_users (id, email, name, role, password_hash, permissions, institutions, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, users.NormalizeEmail(u.Email), u.Name, string(u.Role), u.PasswordHash,
		encodePermissions(u.Permissions), nonNil(u.Institutions), u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("pgusers: create user: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of a user.
func (r *Repository) Update(ctx context.Context, u users.User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE parss_users
		SET name = $2, role = $3, password_hash = $4, permissions = $5, institutions = $6, is_active = $7, updated_at = $8
		WHERE id = $1`,
		u.ID, u.Name, string(u.Role), u.PasswordHash,
		encodePermissions(u.Permissions), nonNil(u.Institutions), u.IsActive, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("pgusers: update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (users.User, error) {
	var (
		u     users.User
		role  string
		perms []string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &perms, &u.Institutions, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return users.User{}, domain.ErrNotFound
	}
	if err != nil {
		return users.User{}, fmt.Errorf("pgusers: scan user: %w", err)
	}
	u.Role = domain.Role(role)
	u.Permissions = decodePermissions(perms)
	return u, nil
}

func encodePermissions(perms map[domain.Permission]bool) []string {
	out := []string{}
	for p, granted := range perms {
		if granted && p != "" {
			out = append(out, string(p))
		}
	}
	return out
}

func decodePermissions(perms []string) map[domain.Permission]bool {
	if len(perms) == 0 {
		return nil
	}
	out := make(map[domain.Permission]bool, len(perms))
	for _, p := range perms {
		out[domain.Permission(p)] = true
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ users.Directory = (*Repository)(nil)
