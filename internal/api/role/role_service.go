package role

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gopinions/auth-service/internal/api"
)

var _ Service = (*ServiceImpl)(nil)

// Closed role set. Every identity holds exactly one of these.
const (
	AdminRole = "ADMIN_ROLE"
	UserRole  = "USER_ROLE"
)

// DefaultRoles are seeded at startup, before the administrator promotion.
var DefaultRoles = []string{UserRole, AdminRole}

// IdentityDirectory resolves identity references for administrative flows.
// Implemented by the credential store repository.
type IdentityDirectory interface {
	LookupIDByEmail(ctx context.Context, email string) (uuid.UUID, error)
}

// Service maintains the exactly-one-role invariant per identity.
type Service interface {
	// SeedRoles upserts the closed role set.
	SeedRoles(ctx context.Context) error

	// EnsureRole is idempotent: when the identity already holds roleName
	// it performs zero writes. Otherwise all prior assignments are
	// replaced by a single new one.
	EnsureRole(ctx context.Context, userID uuid.UUID, roleName string) error

	// PromoteToRole resolves the identity by email and ensures the role.
	// Returns api.ErrNotFound when the identity or the role is missing.
	PromoteToRole(ctx context.Context, email, roleName string) error

	// RoleOf returns the identity's current role name, or "" when none
	// is assigned.
	RoleOf(ctx context.Context, userID uuid.UUID) (string, error)
}

type ServiceImpl struct {
	logger    *slog.Logger
	repo      Repo
	directory IdentityDirectory
	now       func() time.Time
}

func NewService(repo Repo, directory IdentityDirectory, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:    logger,
		repo:      repo,
		directory: directory,
		now:       time.Now,
	}
}

const assignmentIDMaxLen = 16

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// newAssignmentID composes a bounded identifier from a time component and
// a short random suffix, truncated to 16 characters. Collisions within the
// same millisecond are possible but unlikely; the unique primary key
// rejects them and role_service_test exercises the distribution.
func newAssignmentID(now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 36)

	suffix := make([]byte, 5)
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}

	id := "ur_" + ts + string(suffix)
	if len(id) > assignmentIDMaxLen {
		id = id[:assignmentIDMaxLen]
	}
	return id
}

func (s *ServiceImpl) SeedRoles(ctx context.Context) error {
	for _, name := range DefaultRoles {
		if err := s.repo.UpsertRole(ctx, name); err != nil {
			return fmt.Errorf("seeding role %s: %w", name, err)
		}
	}
	s.logger.InfoContext(ctx, "Roles seeded", slog.Any("roles", DefaultRoles))
	return nil
}

func (s *ServiceImpl) EnsureRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	l := s.logger.With(slog.String("method", "EnsureRole"), slog.String("user_id", userID.String()))

	current, err := s.repo.GetAssignment(ctx, userID)
	if err == nil && current.RoleName == roleName {
		l.DebugContext(ctx, "Identity already holds role", slog.String("role", roleName))
		return nil
	}
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		return err
	}

	role, err := s.repo.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}

	if err := s.repo.ReplaceAssignment(ctx, userID, role.ID, newAssignmentID(s.now())); err != nil {
		return err
	}
	l.InfoContext(ctx, "Role assigned", slog.String("role", roleName))
	return nil
}

func (s *ServiceImpl) PromoteToRole(ctx context.Context, email, roleName string) error {
	userID, err := s.directory.LookupIDByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.EnsureRole(ctx, userID, roleName)
}

func (s *ServiceImpl) RoleOf(ctx context.Context, userID uuid.UUID) (string, error) {
	a, err := s.repo.GetAssignment(ctx, userID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return a.RoleName, nil
}
