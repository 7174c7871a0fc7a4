package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/gopinions/auth-service/internal/api"
	"github.com/gopinions/auth-service/internal/api/auth"
)

// Config contains dependencies needed for the router setup.
type Config struct {
	AuthHandler            *auth.AuthHandler
	AuthenticateMiddleware func(http.Handler) http.Handler
	ProjectionMiddleware   func(http.Handler) http.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are expected to be
// applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			api.WriteJSONResponse(w, req, http.StatusOK, api.Response{Success: true, Message: "ok"})
		})

		// Public auth routes
		r.Group(func(r chi.Router) {
			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Get("/auth/verify-email/{token}", cfg.AuthHandler.VerifyEmail)
			r.Post("/auth/resend-verification", cfg.AuthHandler.ResendVerification)
			r.Post("/auth/forgot-password", cfg.AuthHandler.ForgotPassword)
			r.Post("/auth/reset-password", cfg.AuthHandler.ResetPassword)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)
			if cfg.ProjectionMiddleware != nil {
				r.Use(cfg.ProjectionMiddleware)
			}

			r.Get("/auth/profile", cfg.AuthHandler.GetProfile)
		})
	})

	return r
}
