package projection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gopinions/auth-service/app/observability/metrics"
	"github.com/gopinions/auth-service/internal/api"
	"github.com/gopinions/auth-service/internal/api/auth"
)

func TestMain(m *testing.M) {
	metrics.InitAppMetrics()
	m.Run()
}

// MockProjectionRepo is a mock implementation of the Repo interface
type MockProjectionRepo struct {
	mock.Mock
}

func (m *MockProjectionRepo) GetBySourceID(ctx context.Context, sourceID string) (*ProjectedUser, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProjectedUser), args.Error(1)
}

func (m *MockProjectionRepo) Upsert(ctx context.Context, user ProjectedUser) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockProjectionRepo) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProjectionRepo) Sample(ctx context.Context, limit int64) ([]ProjectedUser, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ProjectedUser), args.Error(1)
}

// MockSource is a mock implementation of the Source interface
type MockSource struct {
	mock.Mock
}

func (m *MockSource) ListAll(ctx context.Context) ([]auth.Identity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]auth.Identity), args.Error(1)
}

func (m *MockSource) GetByID(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Identity), args.Error(1)
}

func newSyncFixture(t *testing.T) (*Synchronizer, *MockProjectionRepo, *MockSource) {
	t.Helper()
	repo := new(MockProjectionRepo)
	source := new(MockSource)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSynchronizer(repo, source, logger), repo, source
}

func testIdentity(username string) auth.Identity {
	return auth.Identity{
		ID:       uuid.New(),
		Name:     "Test",
		Surname:  "User",
		Username: username,
		Email:    username + "@example.com",
		Active:   true,
	}
}

func TestSync_CreatesAndUpdates(t *testing.T) {
	sync, repo, source := newSyncFixture(t)
	ctx := context.Background()

	missing := testIdentity("missing")
	stale := testIdentity("stale")
	current := testIdentity("current")

	source.On("ListAll", ctx).Return([]auth.Identity{missing, stale, current}, nil)

	// No projection yet: created.
	repo.On("GetBySourceID", ctx, missing.ID.String()).Return(nil, api.ErrNotFound)
	repo.On("Upsert", ctx, projectionFrom(&missing)).Return(nil)

	// Projection exists but a mirrored field drifted: updated.
	staleProjection := projectionFrom(&stale)
	staleProjection.Email = "old@example.com"
	repo.On("GetBySourceID", ctx, stale.ID.String()).Return(&staleProjection, nil)
	repo.On("Upsert", ctx, projectionFrom(&stale)).Return(nil)

	// Projection matches: untouched.
	currentProjection := projectionFrom(&current)
	repo.On("GetBySourceID", ctx, current.ID.String()).Return(&currentProjection, nil)

	result, err := sync.Sync(ctx)

	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Updated: 1, Unchanged: 1, Total: 3}, result)
	repo.AssertExpectations(t)
}

func TestSync_SecondPassAllUnchanged(t *testing.T) {
	sync, repo, source := newSyncFixture(t)
	ctx := context.Background()

	first := testIdentity("first")
	second := testIdentity("second")

	source.On("ListAll", ctx).Return([]auth.Identity{first, second}, nil)

	firstProjection := projectionFrom(&first)
	secondProjection := projectionFrom(&second)
	repo.On("GetBySourceID", ctx, first.ID.String()).Return(&firstProjection, nil)
	repo.On("GetBySourceID", ctx, second.ID.String()).Return(&secondProjection, nil)

	result, err := sync.Sync(ctx)

	require.NoError(t, err)
	assert.Equal(t, Result{Created: 0, Updated: 0, Unchanged: 2, Total: 2}, result)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestSync_PerRecordErrorIsolation(t *testing.T) {
	sync, repo, source := newSyncFixture(t)
	ctx := context.Background()

	broken := testIdentity("broken")
	healthy := testIdentity("healthy")

	source.On("ListAll", ctx).Return([]auth.Identity{broken, healthy}, nil)

	// One record fails; the scan continues and the rest still converge.
	repo.On("GetBySourceID", ctx, broken.ID.String()).Return(nil, errors.New("socket closed"))
	repo.On("GetBySourceID", ctx, healthy.ID.String()).Return(nil, api.ErrNotFound)
	repo.On("Upsert", ctx, projectionFrom(&healthy)).Return(nil)

	result, err := sync.Sync(ctx)

	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Updated: 0, Unchanged: 0, Total: 2}, result)
	repo.AssertExpectations(t)
}

func TestSync_SourceFailure(t *testing.T) {
	sync, _, source := newSyncFixture(t)
	ctx := context.Background()

	source.On("ListAll", ctx).Return(nil, errors.New("connection refused"))

	_, err := sync.Sync(ctx)
	assert.Error(t, err)
}

func TestEnsureProjection_CreatesOnMiss(t *testing.T) {
	sync, repo, source := newSyncFixture(t)
	ctx := context.Background()

	ident := testIdentity("lazy")
	repo.On("GetBySourceID", ctx, ident.ID.String()).Return(nil, api.ErrNotFound).Once()
	source.On("GetByID", ctx, ident.ID).Return(&ident, nil).Once()
	repo.On("Upsert", ctx, projectionFrom(&ident)).Return(nil).Once()

	require.NoError(t, sync.EnsureProjection(ctx, ident.ID))

	// Second call hits the recently-ensured cache: no store traffic.
	require.NoError(t, sync.EnsureProjection(ctx, ident.ID))
	repo.AssertExpectations(t)
	source.AssertExpectations(t)
}

func TestEnsureProjection_AlreadyPresent(t *testing.T) {
	sync, repo, source := newSyncFixture(t)
	ctx := context.Background()

	ident := testIdentity("present")
	projection := projectionFrom(&ident)
	repo.On("GetBySourceID", ctx, ident.ID.String()).Return(&projection, nil).Once()

	require.NoError(t, sync.EnsureProjection(ctx, ident.ID))
	source.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestNotify_NeverBlocks(t *testing.T) {
	sync, _, _ := newSyncFixture(t)

	// Far more notifications than the buffer holds; Notify must drop the
	// overflow instead of blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < changeBuffer*3; i++ {
			sync.Notify(uuid.New())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full change queue")
	}
}

func TestStart_AppliesQueuedChanges(t *testing.T) {
	sync, repo, source := newSyncFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ident := testIdentity("changed")
	applied := make(chan struct{})
	source.On("GetByID", mock.Anything, ident.ID).Return(&ident, nil)
	repo.On("Upsert", mock.Anything, projectionFrom(&ident)).
		Run(func(mock.Arguments) { close(applied) }).Return(nil)

	sync.Start(ctx, 0)
	sync.Notify(ident.ID)

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("queued change was never applied")
	}
}

func TestVerify(t *testing.T) {
	sync, repo, _ := newSyncFixture(t)
	ctx := context.Background()

	repo.On("Count", ctx).Return(int64(2), nil)
	repo.On("Sample", ctx, int64(5)).Return([]ProjectedUser{
		{SourceID: uuid.NewString(), Username: "ada", Email: "ada@example.com", Active: true},
		{SourceID: uuid.NewString(), Username: "grace", Email: "grace@example.com", Active: true},
	}, nil)

	require.NoError(t, sync.Verify(ctx))
	repo.AssertExpectations(t)
}
