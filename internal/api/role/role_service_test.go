package role

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gopinions/auth-service/internal/api"
)

// MockRoleRepo is a mock implementation of the Repo interface
type MockRoleRepo struct {
	mock.Mock
}

func (m *MockRoleRepo) UpsertRole(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockRoleRepo) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Role), args.Error(1)
}

func (m *MockRoleRepo) GetAssignment(ctx context.Context, userID uuid.UUID) (*Assignment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Assignment), args.Error(1)
}

func (m *MockRoleRepo) ReplaceAssignment(ctx context.Context, userID, roleID uuid.UUID, assignmentID string) error {
	args := m.Called(ctx, userID, roleID, assignmentID)
	return args.Error(0)
}

// MockDirectory is a mock implementation of the IdentityDirectory interface
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) LookupIDByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func newRoleFixture(t *testing.T) (*ServiceImpl, *MockRoleRepo, *MockDirectory) {
	t.Helper()
	repo := new(MockRoleRepo)
	directory := new(MockDirectory)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, directory, logger), repo, directory
}

func TestSeedRoles(t *testing.T) {
	service, repo, _ := newRoleFixture(t)
	ctx := context.Background()

	repo.On("UpsertRole", ctx, UserRole).Return(nil)
	repo.On("UpsertRole", ctx, AdminRole).Return(nil)

	require.NoError(t, service.SeedRoles(ctx))
	repo.AssertExpectations(t)
}

func TestEnsureRole_AlreadyHeld(t *testing.T) {
	service, repo, _ := newRoleFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("GetAssignment", ctx, userID).Return(&Assignment{
		ID: "ur_abc123", UserID: userID, RoleID: uuid.New(), RoleName: AdminRole,
	}, nil)

	require.NoError(t, service.EnsureRole(ctx, userID, AdminRole))

	// Same role held means zero writes.
	repo.AssertNotCalled(t, "ReplaceAssignment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "GetRoleByName", mock.Anything, mock.Anything)
}

func TestEnsureRole_ReplacesDifferentRole(t *testing.T) {
	service, repo, _ := newRoleFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	adminRoleID := uuid.New()

	repo.On("GetAssignment", ctx, userID).Return(&Assignment{
		ID: "ur_abc123", UserID: userID, RoleID: uuid.New(), RoleName: UserRole,
	}, nil)
	repo.On("GetRoleByName", ctx, AdminRole).Return(&Role{ID: adminRoleID, Name: AdminRole}, nil)
	repo.On("ReplaceAssignment", ctx, userID, adminRoleID, mock.MatchedBy(func(id string) bool {
		return strings.HasPrefix(id, "ur_") && len(id) <= 16
	})).Return(nil)

	require.NoError(t, service.EnsureRole(ctx, userID, AdminRole))
	repo.AssertExpectations(t)
}

func TestEnsureRole_FirstAssignment(t *testing.T) {
	service, repo, _ := newRoleFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	roleID := uuid.New()

	repo.On("GetAssignment", ctx, userID).Return(nil, api.ErrNotFound)
	repo.On("GetRoleByName", ctx, UserRole).Return(&Role{ID: roleID, Name: UserRole}, nil)
	repo.On("ReplaceAssignment", ctx, userID, roleID, mock.AnythingOfType("string")).Return(nil)

	require.NoError(t, service.EnsureRole(ctx, userID, UserRole))
	repo.AssertExpectations(t)
}

func TestEnsureRole_UnknownRole(t *testing.T) {
	service, repo, _ := newRoleFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("GetAssignment", ctx, userID).Return(nil, api.ErrNotFound)
	repo.On("GetRoleByName", ctx, "SUPER_ROLE").Return(nil, api.ErrNotFound)

	err := service.EnsureRole(ctx, userID, "SUPER_ROLE")
	assert.ErrorIs(t, err, api.ErrNotFound)
	repo.AssertNotCalled(t, "ReplaceAssignment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPromoteToRole(t *testing.T) {
	service, repo, directory := newRoleFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	roleID := uuid.New()

	directory.On("LookupIDByEmail", ctx, "admin@example.com").Return(userID, nil)
	repo.On("GetAssignment", ctx, userID).Return(nil, api.ErrNotFound)
	repo.On("GetRoleByName", ctx, AdminRole).Return(&Role{ID: roleID, Name: AdminRole}, nil)
	repo.On("ReplaceAssignment", ctx, userID, roleID, mock.AnythingOfType("string")).Return(nil)

	require.NoError(t, service.PromoteToRole(ctx, "admin@example.com", AdminRole))
	repo.AssertExpectations(t)
}

func TestPromoteToRole_UnknownEmail(t *testing.T) {
	service, repo, directory := newRoleFixture(t)
	ctx := context.Background()

	directory.On("LookupIDByEmail", ctx, "ghost@example.com").Return(uuid.Nil, api.ErrNotFound)

	err := service.PromoteToRole(ctx, "ghost@example.com", AdminRole)
	assert.ErrorIs(t, err, api.ErrNotFound)
	repo.AssertNotCalled(t, "GetAssignment", mock.Anything, mock.Anything)
}

func TestRoleOf(t *testing.T) {
	service, repo, _ := newRoleFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("GetAssignment", ctx, userID).Return(&Assignment{
		ID: "ur_abc123", UserID: userID, RoleID: uuid.New(), RoleName: UserRole,
	}, nil)

	name, err := service.RoleOf(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, UserRole, name)
}

func TestRoleOf_NoAssignment(t *testing.T) {
	service, repo, _ := newRoleFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("GetAssignment", ctx, userID).Return(nil, api.ErrNotFound)

	name, err := service.RoleOf(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestNewAssignmentID(t *testing.T) {
	now := time.Now()

	id := newAssignmentID(now)
	assert.True(t, strings.HasPrefix(id, "ur_"), "id %q must carry the ur_ prefix", id)
	assert.LessOrEqual(t, len(id), 16)
	for _, c := range id[3:] {
		assert.Contains(t, base36, string(c))
	}
}

func TestNewAssignmentID_SameMillisecondDistribution(t *testing.T) {
	// Within a single millisecond only the random suffix varies; over a
	// small batch the ids should still be overwhelmingly distinct.
	now := time.Now()
	seen := make(map[string]struct{}, 1000)
	collisions := 0
	for i := 0; i < 1000; i++ {
		id := newAssignmentID(now)
		if _, dup := seen[id]; dup {
			collisions++
		}
		seen[id] = struct{}{}
	}
	// 36^5 possible suffixes make more than a handful of collisions in a
	// thousand draws vanishingly unlikely.
	assert.Less(t, collisions, 5)
}
