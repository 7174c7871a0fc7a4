package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/gopinions/auth-service/app/observability/metrics"
	"github.com/gopinions/auth-service/internal/api"
	"github.com/gopinions/auth-service/internal/api/auth"
)

var _ auth.ProjectionNotifier = (*Synchronizer)(nil)

// Source is the authoritative identity store the synchronizer reads from.
// Satisfied by the Postgres auth repository.
type Source interface {
	ListAll(ctx context.Context) ([]auth.Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*auth.Identity, error)
}

const (
	changeBuffer    = 128
	ensureCacheTTL  = 5 * time.Minute
	ensureCacheTidy = 10 * time.Minute
)

// Synchronizer keeps the read-side Mongo projection aligned with the
// authoritative Postgres store. Postgres always wins: projection rows are
// overwritten from source, never the other way around.
type Synchronizer struct {
	logger *slog.Logger
	repo   Repo
	source Source

	// ensured remembers source ids recently confirmed to have a
	// projection, so the hot read path skips the Mongo round trip.
	ensured *gocache.Cache

	changes chan uuid.UUID
}

func NewSynchronizer(repo Repo, source Source, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		logger:  logger,
		repo:    repo,
		source:  source,
		ensured: gocache.New(ensureCacheTTL, ensureCacheTidy),
		changes: make(chan uuid.UUID, changeBuffer),
	}
}

// Sync runs a full reconciliation pass over the authoritative store. Each
// record is handled independently so one bad row cannot abort the scan.
func (s *Synchronizer) Sync(ctx context.Context) (Result, error) {
	l := s.logger.With(slog.String("method", "Sync"))

	identities, err := s.source.ListAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list identities for sync: %w", err)
	}

	m := metrics.Get()
	var result Result
	result.Total = len(identities)

	for i := range identities {
		identity := &identities[i]
		want := projectionFrom(identity)

		existing, err := s.repo.GetBySourceID(ctx, want.SourceID)
		switch {
		case err == nil:
			if !differs(existing, want) {
				result.Unchanged++
				continue
			}
			if err := s.repo.Upsert(ctx, want); err != nil {
				m.SyncErrorsTotal.Add(ctx, 1)
				l.ErrorContext(ctx, "Failed to update projection",
					slog.String("source_id", want.SourceID), slog.Any("error", err))
				continue
			}
			result.Updated++
			m.SyncUpdatedTotal.Add(ctx, 1)
		case errors.Is(err, api.ErrNotFound):
			if err := s.repo.Upsert(ctx, want); err != nil {
				m.SyncErrorsTotal.Add(ctx, 1)
				l.ErrorContext(ctx, "Failed to create projection",
					slog.String("source_id", want.SourceID), slog.Any("error", err))
				continue
			}
			result.Created++
			m.SyncCreatedTotal.Add(ctx, 1)
		default:
			m.SyncErrorsTotal.Add(ctx, 1)
			l.ErrorContext(ctx, "Failed to read projection",
				slog.String("source_id", want.SourceID), slog.Any("error", err))
		}
	}

	l.InfoContext(ctx, "Projection sync complete",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("total", result.Total))
	return result, nil
}

// EnsureProjection guarantees a projection exists for the given identity,
// creating it from the authoritative store when missing. Used on the read
// path so identities registered before the projection store existed are
// backfilled on first access.
func (s *Synchronizer) EnsureProjection(ctx context.Context, sourceID uuid.UUID) error {
	key := sourceID.String()
	if _, ok := s.ensured.Get(key); ok {
		return nil
	}

	_, err := s.repo.GetBySourceID(ctx, key)
	if err == nil {
		s.ensured.SetDefault(key, struct{}{})
		return nil
	}
	if !errors.Is(err, api.ErrNotFound) {
		return fmt.Errorf("failed to check projection for %s: %w", key, err)
	}

	identity, err := s.source.GetByID(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to load identity %s for projection: %w", key, err)
	}
	if err := s.repo.Upsert(ctx, projectionFrom(identity)); err != nil {
		metrics.Get().SyncErrorsTotal.Add(ctx, 1)
		return err
	}
	metrics.Get().SyncCreatedTotal.Add(ctx, 1)
	s.ensured.SetDefault(key, struct{}{})

	s.logger.InfoContext(ctx, "Projection created on access", slog.String("source_id", key))
	return nil
}

// Notify signals that the identity changed in the authoritative store and
// its projection should be refreshed. Never blocks the caller; a full
// Sync will catch anything dropped here.
func (s *Synchronizer) Notify(id uuid.UUID) {
	select {
	case s.changes <- id:
	default:
		s.logger.Warn("Change queue full, deferring to next full sync",
			slog.String("source_id", id.String()))
	}
}

// Start launches the background refresh worker. It applies queued change
// notifications and, when interval is positive, runs a periodic full Sync.
// An interval of zero means sync at startup only.
func (s *Synchronizer) Start(ctx context.Context, interval time.Duration) {
	go func() {
		var tick <-chan time.Time
		if interval > 0 {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case id := <-s.changes:
				s.refresh(ctx, id)
			case <-tick:
				if _, err := s.Sync(ctx); err != nil {
					s.logger.ErrorContext(ctx, "Periodic sync failed", slog.Any("error", err))
				}
			}
		}
	}()
}

func (s *Synchronizer) refresh(ctx context.Context, id uuid.UUID) {
	identity, err := s.source.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load identity for refresh",
			slog.String("source_id", id.String()), slog.Any("error", err))
		return
	}
	if err := s.repo.Upsert(ctx, projectionFrom(identity)); err != nil {
		metrics.Get().SyncErrorsTotal.Add(ctx, 1)
		s.logger.ErrorContext(ctx, "Failed to refresh projection",
			slog.String("source_id", id.String()), slog.Any("error", err))
		return
	}
	s.ensured.SetDefault(id.String(), struct{}{})
}

// Verify logs the projection count and a small sample. Maintenance helper
// for checking the two stores by eye after a migration.
func (s *Synchronizer) Verify(ctx context.Context) error {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	sample, err := s.repo.Sample(ctx, 5)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Projection store state", slog.Int64("count", count))
	for _, u := range sample {
		s.logger.InfoContext(ctx, "Projection sample",
			slog.String("source_id", u.SourceID),
			slog.String("username", u.Username),
			slog.String("email", u.Email),
			slog.Bool("is_active", u.Active))
	}
	return nil
}
