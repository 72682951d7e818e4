package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"parss/internal/domain"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// SelfServiceRoles are the roles a user may pick when registering.
var SelfServiceRoles = []domain.Role{domain.RoleViewer, domain.RoleFaculty}

// ErrRoleNotAllowed is returned when registration asks for a privileged role.
var ErrRoleNotAllowed = errors.New("role not available for self-registration")

// ErrUnknownRole is returned when an account is given a role outside the
// closed set.
var ErrUnknownRole = errors.New("unknown role")

// ErrWeakPassword is returned when a password is too short.
var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// Service wraps account business rules.
type Service struct {
	dir  Directory
	cost int
	now  func() time.Time
}

// NewService constructs a Service. cost is the bcrypt cost; values below
// bcrypt.MinCost select bcrypt.DefaultCost.
func NewService(dir Directory, cost int) *Service {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{dir: dir, cost: cost, now: time.Now}
}

// Authenticate validates email/password credentials. Every failure is
// reported as domain.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.dir.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("looking up user", "error", err)
		}
		return User{}, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, domain.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterInput holds a self-registration or provisioning request.
// Permissions are explicit grants and are honored by Provision only.
type RegisterInput struct {
	Email        string
	Name         string
	Password     string
	Role         domain.Role
	Institutions []string
	Permissions  []domain.Permission
}

// Register creates an account. An empty role defaults to viewer.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	role := in.Role
	if role == "" {
		role = domain.RoleViewer
	}
	if !slices.Contains(SelfServiceRoles, role) {
		return User{}, ErrRoleNotAllowed
	}
	in.Permissions = nil
	return s.create(ctx, in, role)
}

// Provision creates an account with any known role. It backs seeding and
// operator tooling, never the public registration endpoint.
func (s *Service) Provision(ctx context.Context, in RegisterInput) (User, error) {
	if !in.Role.Known() {
		return User{}, fmt.Errorf("provisioning %s: %w %q", in.Email, ErrUnknownRole, in.Role)
	}
	return s.create(ctx, in, in.Role)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role domain.Role) (User, error) {
	if len(in.Password) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}
	now := s.now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(in.Email),
		Name:         in.Name,
		Role:         role,
		PasswordHash: string(hash),
		Permissions:  grants(in.Permissions),
		Institutions: in.Institutions,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.dir.Create(ctx, user); err != nil {
		return User{}, err
	}
	slog.Info("user created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// UpdateInput changes an account. Nil fields are left alone; a non-nil
// Permissions replaces the explicit grants, so an empty slice clears them.
type UpdateInput struct {
	Role        *domain.Role
	Permissions []domain.Permission
	Active      *bool
}

// Update applies in to the user with the given ID. Role and grant changes
// reach the user's tokens on their next refresh; deactivation makes that
// refresh fail.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (User, error) {
	user, err := s.dir.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if in.Role != nil {
		if !in.Role.Known() {
			return User{}, fmt.Errorf("%w %q", ErrUnknownRole, *in.Role)
		}
		user.Role = *in.Role
	}
	if in.Permissions != nil {
		user.Permissions = grants(in.Permissions)
	}
	if in.Active != nil {
		user.IsActive = *in.Active
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.dir.Update(ctx, user); err != nil {
		return User{}, err
	}
	slog.Info("user updated", "user_id", user.ID, "role", user.Role, "active", user.IsActive, "grants", len(user.Permissions))
	return user, nil
}

func grants(perms []domain.Permission) map[domain.Permission]bool {
	if len(perms) == 0 {
		return nil
	}
	out := make(map[domain.Permission]bool, len(perms))
	for _, p := range perms {
		if p != "" {
			out[p] = true
		}
	}
	return out
}

// Lookup returns the user by ID.
func (s *Service) Lookup(ctx context.Context, id string) (User, error) {
	return s.dir.FindByID(ctx, id)
}

// LoadClaims returns the current claims of an active user. It lets the token
// issuer pick up role changes and deactivations on refresh.
func (s *Service) LoadClaims(ctx context.Context, subject string) (domain.Claims, error) {
	user, err := s.dir.FindByID(ctx, subject)
	if err != nil {
		return domain.Claims{}, err
	}
	if !user.IsActive {
		return domain.Claims{}, fmt.Errorf("user %s is inactive: %w", subject, domain.ErrUnauthenticated)
	}
	return user.Claims(), nil
}

// ParseSeeds parses a comma separated list of
// email:password:role[:institution|institution...[:permission|permission...]]
// entries.
func ParseSeeds(list string) ([]RegisterInput, error) {
	var out []RegisterInput
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 5 {
			return nil, fmt.Errorf("seed entry %q: want email:password:role[:institutions[:permissions]]", entry)
		}
		in := RegisterInput{
			Email:    parts[0],
			Name:     parts[0],
			Password: parts[1],
			Role:     domain.Role(parts[2]),
		}
		if len(parts) >= 4 && parts[3] != "" {
			in.Institutions = strings.Split(parts[3], "|")
		}
		if len(parts) == 5 && parts[4] != "" {
			for _, p := range strings.Split(parts[4], "|") {
				in.Permissions = append(in.Permissions, domain.Permission(p))
			}
		}
		out = append(out, in)
	}
	return out, nil
}

// Seed provisions each account, skipping ones that already exist.
func (s *Service) Seed(ctx context.Context, seeds []RegisterInput) error {
	for _, in := range seeds {
		_, err := s.Provision(ctx, in)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
