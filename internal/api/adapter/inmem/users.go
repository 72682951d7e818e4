package inmem

import (
	"context"
	"sync"

	"parss/internal/domain"
	"parss/internal/users"
)

// Users is an in-memory user directory.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]users.User
	byEmail map[string]string
}

// NewUsers creates an empty directory.
func NewUsers() *Users {
	return &Users{byID: make(map[string]users.User), byEmail: make(map[string]string)}
}

func (d *Users) FindByEmail(_ context.Context, email string) (users.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[users.NormalizeEmail(email)]
	if !ok {
		return users.User{}, domain.ErrNotFound
	}
	return d.byID[id], nil
}

func (d *Users) FindByID(_ context.Context, id string) (users.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return users.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (d *Users) Create(_ context.Context, u users.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	email := users.NormalizeEmail(u.Email)
	if _, exists := d.byEmail[email]; exists {
		return domain.ErrConflict
	}
	if _, exists := d.byID[u.ID]; exists {
		return domain.ErrConflict
	}
	d.byID[u.ID] = u
	d.byEmail[email] = u.ID
	return nil
}

// Update replaces a stored user, e.g. after a role change. The email is immutable.
func (d *Users) Update(_ context.Context, u users.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[u.ID]; !ok {
		return domain.ErrNotFound
	}
	d.byID[u.ID] = u
	return nil
}

var _ users.Directory = (*Users)(nil)
