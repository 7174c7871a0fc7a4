package projection

import (
	"log/slog"
	"net/http"

	"github.com/gopinions/auth-service/internal/api/auth"
)

// EnsureMiddleware backfills the projection for the authenticated user on
// first access. Runs AFTER the Authenticate middleware; failures are logged
// and never block the request, the projection is a read-side convenience.
func (s *Synchronizer) EnsureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if userID, err := auth.GetUserIDFromContext(ctx); err == nil {
			if err := s.EnsureProjection(ctx, userID); err != nil {
				s.logger.WarnContext(ctx, "Failed to ensure projection",
					slog.String("source_id", userID.String()), slog.Any("error", err))
			}
		}
		next.ServeHTTP(w, r)
	})
}
