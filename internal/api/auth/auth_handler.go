package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gopinions/auth-service/internal/api"
)

type AuthHandler struct {
	authService AuthService
	logger      *slog.Logger
}

func NewAuthHandler(authService AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		authService: authService,
	}
}

// statusFor maps service errors to HTTP status codes. Unknown errors are
// treated as internal and the detail stays out of the response body.
func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, api.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, api.ErrEmailNotVerified), errors.Is(err, api.ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, api.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *AuthHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", slog.Any("error", err))
		message = "internal server error"
	}
	api.ErrorResponse(w, r, status, message)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "Register"))

	var req RegisterRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Surname == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "name, surname, username, email and password are required")
		return
	}

	resp, err := h.authService.Register(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	l.InfoContext(r.Context(), "User registered", slog.String("username", req.Username))
	api.WriteJSONResponse(w, r, http.StatusCreated, resp)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Identifier == "" || req.Password == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "identifier and password are required")
		return
	}

	resp, err := h.authService.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(chi.URLParam(r, "token"))

	result, err := h.authService.VerifyEmail(r.Context(), token)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, result)
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "email is required")
		return
	}

	result, err := h.authService.ResendVerification(r.Context(), req.Email)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, result)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "email is required")
		return
	}

	result, err := h.authService.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, result)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "token and new_password are required")
		return
	}

	result, err := h.authService.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, result)
}

func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	identity, err := h.authService.GetProfile(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, identity)
}
