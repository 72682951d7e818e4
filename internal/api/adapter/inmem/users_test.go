package inmem_test

import (
	"context"
	"errors"
	"testing"

	"parss/internal/api/adapter/inmem"
	"parss/internal/domain"
	"parss/internal/users"
)

func TestUsersDirectory(t *testing.T) {
	ctx := context.Background()
	d := inmem.NewUsers()

	u := users.User{ID: "u-1", Email: "Dean@Example.edu", Role: domain.RolePrincipal, IsActive: true}
	if err := d.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := d.Create(ctx, users.User{ID: "u-2", Email: "dean@example.edu"}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate email: expected ErrConflict, got %v", err)
	}

	got, err := d.FindByEmail(ctx, "DEAN@example.edu")
	if err != nil || got.ID != "u-1" {
		t.Fatalf("FindByEmail = %+v, %v", got, err)
	}
	if _, err := d.FindByID(ctx, "u-9"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	u.Role = domain.RoleAuditor
	if err := d.Update(ctx, u); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = d.FindByID(ctx, "u-1")
	if got.Role != domain.RoleAuditor {
		t.Errorf("role after update = %q", got.Role)
	}
	if err := d.Update(ctx, users.User{ID: "u-9"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("update missing: expected ErrNotFound, got %v", err)
	}
}
