package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gopinions/auth-service/app/mail"
	"github.com/gopinions/auth-service/app/observability/metrics"
	"github.com/gopinions/auth-service/config"
	"github.com/gopinions/auth-service/internal/api"
	"github.com/gopinions/auth-service/internal/api/role"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// NotificationDispatcher hands notification jobs to a detached worker.
// Enqueue must not block and its outcome is never surfaced to callers.
type NotificationDispatcher interface {
	Enqueue(job mail.Job)
}

// ProjectionNotifier receives change notifications for authoritative
// writes so the secondary projection converges without waiting for the
// next full-scan pass.
type ProjectionNotifier interface {
	Notify(id uuid.UUID)
}

// AuthService exposes the identity lifecycle operations.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Login(ctx context.Context, identifier, password string) (*LoginResponse, error)
	VerifyEmail(ctx context.Context, token string) (*EmailResult, error)

	// ResendVerification and ForgotPassword always report generic success,
	// whatever the account's actual state; only logs distinguish outcomes.
	ResendVerification(ctx context.Context, email string) (*EmailResult, error)
	ForgotPassword(ctx context.Context, email string) (*EmailResult, error)

	ResetPassword(ctx context.Context, token, newPassword string) (*EmailResult, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*Identity, error)
}

type AuthServiceImpl struct {
	logger     *slog.Logger
	repo       AuthRepo
	roles      role.Service
	dispatcher NotificationDispatcher
	projection ProjectionNotifier
	jwtCfg     config.JWTConfig
	now        func() time.Time
}

func NewAuthService(
	repo AuthRepo,
	roles role.Service,
	dispatcher NotificationDispatcher,
	projection ProjectionNotifier,
	jwtCfg config.JWTConfig,
	logger *slog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger:     logger,
		repo:       repo,
		roles:      roles,
		dispatcher: dispatcher,
		projection: projection,
		jwtCfg:     jwtCfg,
		now:        time.Now,
	}
}

// Register persists a new identity, issues a 24h verification token and
// hands the verification email to the detached dispatcher. The insert's
// unique constraint, not the pre-check, decides duplicates.
func (s *AuthServiceImpl) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	l := s.logger.With(slog.String("method", "Register"), slog.String("email", req.Email))

	exists, err := s.repo.ExistsByEmailOrUsername(ctx, req.Email, req.Username)
	if err != nil {
		return nil, fmt.Errorf("registration pre-check failed: %w", err)
	}
	if exists {
		return nil, api.ErrConflict
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ident, err := s.repo.CreateIdentity(ctx, CreateIdentityParams{
		Name:           req.Name,
		Surname:        req.Surname,
		Username:       req.Username,
		Email:          req.Email,
		Phone:          req.Phone,
		ProfilePicture: req.ProfilePicture,
		PasswordHash:   string(hash),
	})
	if err != nil {
		// ErrConflict here means the pre-check raced another registration;
		// the constraint is authoritative either way.
		return nil, err
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	expiry := s.now().Add(VerificationTokenTTL)
	if err := s.repo.SetVerificationToken(ctx, ident.ID, token, expiry); err != nil {
		return nil, err
	}

	s.dispatcher.Enqueue(mail.Job{
		Kind:  mail.JobVerification,
		To:    ident.Email,
		Name:  ident.Name,
		Token: token,
	})
	if s.projection != nil {
		s.projection.Notify(ident.ID)
	}

	metrics.Get().RegistrationsTotal.Add(ctx, 1)
	l.InfoContext(ctx, "Identity registered", slog.String("user_id", ident.ID.String()))

	return &RegisterResponse{
		Success:                   true,
		User:                      ident,
		EmailVerificationRequired: true,
		Message:                   "Registration successful. Please verify your email to activate the account.",
	}, nil
}

// Login validates credentials and mints a signed session token. The gates
// run in a fixed order and each failure is terminal: unknown identifier and
// wrong password are indistinguishable, unverified email is reported before
// a disabled account.
func (s *AuthServiceImpl) Login(ctx context.Context, identifier, password string) (*LoginResponse, error) {
	l := s.logger.With(slog.String("method", "Login"))

	ident, err := s.repo.GetByEmailOrUsername(ctx, identifier)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			metrics.Get().LoginFailuresTotal.Add(ctx, 1)
			return nil, api.ErrUnauthenticated
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		metrics.Get().LoginFailuresTotal.Add(ctx, 1)
		return nil, api.ErrUnauthenticated
	}

	if !ident.Verification.Verified {
		metrics.Get().LoginFailuresTotal.Add(ctx, 1)
		return nil, api.ErrEmailNotVerified
	}

	if !ident.Active {
		metrics.Get().LoginFailuresTotal.Add(ctx, 1)
		return nil, api.ErrAccountDisabled
	}

	roleName, err := s.roles.RoleOf(ctx, ident.ID)
	if err != nil {
		l.WarnContext(ctx, "Role lookup failed, falling back to default",
			slog.String("user_id", ident.ID.String()), slog.Any("error", err))
		roleName = ""
	}
	if roleName == "" {
		// Defensive default, not an error: an identity without an
		// assignment acts as a standard user.
		roleName = role.UserRole
	}

	ttl := ParseExpiresIn(s.jwtCfg.ExpiresIn)
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := api.Claims{
		UserID: ident.ID.String(),
		Role:   roleName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.ID.String(),
			Issuer:    s.jwtCfg.Issuer,
			Audience:  jwt.ClaimStrings{s.jwtCfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtCfg.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	metrics.Get().LoginsTotal.Add(ctx, 1)
	l.InfoContext(ctx, "Login successful", slog.String("user_id", ident.ID.String()), slog.String("role", roleName))

	return &LoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt,
		User: UserDetails{
			ID:             ident.ID.String(),
			Username:       ident.Username,
			ProfilePicture: ident.ProfilePicture,
			Role:           roleName,
		},
	}, nil
}

// VerifyEmail consumes a verification token. Not-found, expired and
// already-verified all collapse into api.ErrInvalidToken so the endpoint
// cannot be used as an oracle.
func (s *AuthServiceImpl) VerifyEmail(ctx context.Context, token string) (*EmailResult, error) {
	l := s.logger.With(slog.String("method", "VerifyEmail"))

	if len(token) < MinTokenLength {
		return nil, api.ErrInvalidToken
	}

	ident, err := s.repo.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, api.ErrInvalidToken
		}
		return nil, err
	}

	if ident.Verification.Verified {
		return nil, api.ErrInvalidToken
	}
	if ident.Verification.Expiry == nil || !s.now().Before(*ident.Verification.Expiry) {
		return nil, api.ErrInvalidToken
	}

	if err := s.repo.MarkEmailVerified(ctx, ident.ID); err != nil {
		return nil, err
	}

	s.dispatcher.Enqueue(mail.Job{
		Kind: mail.JobWelcome,
		To:   ident.Email,
		Name: ident.Name,
	})

	l.InfoContext(ctx, "Email verified", slog.String("user_id", ident.ID.String()))
	return &EmailResult{Email: ident.Email, Verified: true}, nil
}

// ResendVerification issues a fresh token when the account exists and is
// unverified. The response is identical in every case.
func (s *AuthServiceImpl) ResendVerification(ctx context.Context, email string) (*EmailResult, error) {
	l := s.logger.With(slog.String("method", "ResendVerification"))
	generic := &EmailResult{Email: email, Sent: true}

	ident, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			l.InfoContext(ctx, "Resend requested for unknown email")
			return generic, nil
		}
		return nil, err
	}

	if ident.Verification.Verified {
		l.InfoContext(ctx, "Resend requested for already-verified email",
			slog.String("user_id", ident.ID.String()))
		return generic, nil
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetVerificationToken(ctx, ident.ID, token, s.now().Add(VerificationTokenTTL)); err != nil {
		return nil, err
	}

	s.dispatcher.Enqueue(mail.Job{
		Kind:  mail.JobVerification,
		To:    ident.Email,
		Name:  ident.Name,
		Token: token,
	})
	return generic, nil
}

// ForgotPassword initiates a reset. The response never reveals whether the
// email is registered.
func (s *AuthServiceImpl) ForgotPassword(ctx context.Context, email string) (*EmailResult, error) {
	l := s.logger.With(slog.String("method", "ForgotPassword"))
	generic := &EmailResult{Email: email, Initiated: true}

	ident, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			l.InfoContext(ctx, "Reset requested for unknown email")
			return generic, nil
		}
		// Internal failures are logged but still answered generically.
		l.ErrorContext(ctx, "Reset lookup failed", slog.Any("error", err))
		return generic, nil
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPasswordResetToken(ctx, ident.ID, token, s.now().Add(PasswordResetTokenTTL)); err != nil {
		l.ErrorContext(ctx, "Failed to store reset token", slog.Any("error", err))
		return generic, nil
	}

	s.dispatcher.Enqueue(mail.Job{
		Kind:  mail.JobPasswordReset,
		To:    ident.Email,
		Name:  ident.Name,
		Token: token,
	})
	return generic, nil
}

// ResetPassword consumes a reset token and stores the new password hash.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, token, newPassword string) (*EmailResult, error) {
	l := s.logger.With(slog.String("method", "ResetPassword"))

	if len(token) < MinTokenLength {
		return nil, api.ErrInvalidToken
	}

	ident, err := s.repo.FindByPasswordResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, api.ErrInvalidToken
		}
		return nil, err
	}

	if ident.Reset.Token == nil || ident.Reset.Expiry == nil || !s.now().Before(*ident.Reset.Expiry) {
		return nil, api.ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash new password: %w", err)
	}
	if err := s.repo.UpdatePasswordAndClearReset(ctx, ident.ID, string(hash)); err != nil {
		return nil, err
	}

	s.dispatcher.Enqueue(mail.Job{
		Kind: mail.JobPasswordChanged,
		To:   ident.Email,
		Name: ident.Name,
	})

	l.InfoContext(ctx, "Password reset completed", slog.String("user_id", ident.ID.String()))
	return &EmailResult{Email: ident.Email, Reset: true}, nil
}

func (s *AuthServiceImpl) GetProfile(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return s.repo.GetByID(ctx, id)
}
