// Package users owns the user directory: credential checks, self-registration
// and the claims snapshot embedded in access tokens.
package users

import (
	"context"
	"strings"
	"time"

	"parss/internal/domain"
)

// User is a stored account.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         domain.Role
	PasswordHash string
	Permissions  map[domain.Permission]bool
	Institutions []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Claims returns the token claims for the user.
func (u User) Claims() domain.Claims {
	return domain.Claims{
		Subject:             u.ID,
		Email:               u.Email,
		Name:                u.Name,
		Role:                u.Role,
		ExplicitPermissions: u.Permissions,
		Institutions:        u.Institutions,
	}
}

// Principal returns the user as an authenticated principal.
func (u User) Principal() domain.Principal {
	return u.Claims().Principal()
}

// Directory persists users. Lookups of missing users return domain.ErrNotFound;
// creating a duplicate email returns domain.ErrConflict.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, u User) error
	// Update replaces the mutable fields of an existing user. The email is
	// immutable.
	Update(ctx context.Context, u User) error
}

// NormalizeEmail lowercases and trims an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
