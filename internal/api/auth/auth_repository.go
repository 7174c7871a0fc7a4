package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gopinions/auth-service/internal/api"
)

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// DB is the subset of pgxpool.Pool the repository uses. pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuthRepo defines the contract for authoritative identity persistence.
type AuthRepo interface {
	// CreateIdentity inserts a new identity record. A unique-constraint
	// violation on email or username returns api.ErrConflict; the store
	// constraint, not the pre-check, is the authoritative duplicate signal.
	CreateIdentity(ctx context.Context, params CreateIdentityParams) (*Identity, error)

	// ExistsByEmailOrUsername is a best-effort pre-check used for friendlier
	// registration errors. Callers must still handle api.ErrConflict from
	// CreateIdentity.
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)

	// GetByEmailOrUsername resolves a login identifier case-insensitively.
	// Returns api.ErrNotFound when no identity matches.
	GetByEmailOrUsername(ctx context.Context, identifier string) (*Identity, error)

	GetByEmail(ctx context.Context, email string) (*Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)

	// ListAll enumerates every identity record. Used by the projection
	// synchronizer's full-scan pass.
	ListAll(ctx context.Context) ([]Identity, error)

	// LookupIDByEmail resolves an identity id for administrative flows.
	LookupIDByEmail(ctx context.Context, email string) (uuid.UUID, error)

	// SetVerificationToken stores a fresh verification token and expiry,
	// replacing any previous one.
	SetVerificationToken(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error

	// FindByVerificationToken matches a token exactly. Returns
	// api.ErrNotFound when nothing matches; expiry and verified-state
	// checks are the caller's responsibility.
	FindByVerificationToken(ctx context.Context, token string) (*Identity, error)

	// MarkEmailVerified flips the verified flag and clears the token and
	// expiry in the same statement, making the token single-use.
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error

	SetPasswordResetToken(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error
	FindByPasswordResetToken(ctx context.Context, token string) (*Identity, error)

	// UpdatePasswordAndClearReset stores the new hash and consumes the
	// reset token atomically.
	UpdatePasswordAndClearReset(ctx context.Context, id uuid.UUID, newHash string) error
}

type PostgresAuthRepo struct {
	logger *slog.Logger
	db     DB
}

func NewPostgresAuthRepo(db DB, logger *slog.Logger) *PostgresAuthRepo {
	return &PostgresAuthRepo{
		logger: logger,
		db:     db,
	}
}

const identityColumns = `id, name, surname, username, email, phone, profile_picture,
	password_hash, status, email_verified, email_verification_token, email_verification_expiry,
	password_reset_token, password_reset_expiry, created_at, updated_at`

func scanIdentity(row pgx.Row) (*Identity, error) {
	var ident Identity
	err := row.Scan(
		&ident.ID, &ident.Name, &ident.Surname, &ident.Username, &ident.Email,
		&ident.Phone, &ident.ProfilePicture, &ident.PasswordHash, &ident.Active,
		&ident.Verification.Verified, &ident.Verification.Token, &ident.Verification.Expiry,
		&ident.Reset.Token, &ident.Reset.Expiry,
		&ident.CreatedAt, &ident.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	return &ident, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresAuthRepo) CreateIdentity(ctx context.Context, params CreateIdentityParams) (*Identity, error) {
	ident := Identity{
		Name:           params.Name,
		Surname:        params.Surname,
		Username:       params.Username,
		Email:          params.Email,
		Phone:          params.Phone,
		ProfilePicture: params.ProfilePicture,
		PasswordHash:   params.PasswordHash,
		Active:         true,
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO users (name, surname, username, email, phone, profile_picture, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		params.Name, params.Surname, params.Username, params.Email,
		params.Phone, params.ProfilePicture, params.PasswordHash,
	).Scan(&ident.ID, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, api.ErrConflict
		}
		return nil, fmt.Errorf("failed to insert identity: %w", err)
	}

	return &ident, nil
}

func (r *PostgresAuthRepo) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) OR LOWER(username) = LOWER($2))`,
		email, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("existence check failed: %w", err)
	}
	return exists, nil
}

func (r *PostgresAuthRepo) GetByEmailOrUsername(ctx context.Context, identifier string) (*Identity, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM users
		 WHERE LOWER(email) = LOWER($1) OR LOWER(username) = LOWER($1)`,
		identifier)
	return scanIdentity(row)
}

func (r *PostgresAuthRepo) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM users WHERE LOWER(email) = LOWER($1)`,
		email)
	return scanIdentity(row)
}

func (r *PostgresAuthRepo) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM users WHERE id = $1`, id)
	return scanIdentity(row)
}

func (r *PostgresAuthRepo) ListAll(ctx context.Context) ([]Identity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+identityColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}
	return identities, nil
}

func (r *PostgresAuthRepo) LookupIDByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`SELECT id FROM users WHERE LOWER(email) = LOWER($1)`, email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, api.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("lookup by email failed: %w", err)
	}
	return id, nil
}

func (r *PostgresAuthRepo) SetVerificationToken(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET email_verification_token = $2, email_verification_expiry = $3, updated_at = now()
		 WHERE id = $1`,
		id, token, expiry)
	if err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return api.ErrNotFound
	}
	return nil
}

func (r *PostgresAuthRepo) FindByVerificationToken(ctx context.Context, token string) (*Identity, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM users WHERE email_verification_token = $1`,
		token)
	return scanIdentity(row)
}

func (r *PostgresAuthRepo) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET email_verified = TRUE,
		        email_verification_token = NULL, email_verification_expiry = NULL,
		        updated_at = now()
		 WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return api.ErrNotFound
	}
	return nil
}

func (r *PostgresAuthRepo) SetPasswordResetToken(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_reset_token = $2, password_reset_expiry = $3, updated_at = now()
		 WHERE id = $1`,
		id, token, expiry)
	if err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return api.ErrNotFound
	}
	return nil
}

func (r *PostgresAuthRepo) FindByPasswordResetToken(ctx context.Context, token string) (*Identity, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM users WHERE password_reset_token = $1`,
		token)
	return scanIdentity(row)
}

func (r *PostgresAuthRepo) UpdatePasswordAndClearReset(ctx context.Context, id uuid.UUID, newHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $2,
		        password_reset_token = NULL, password_reset_expiry = NULL,
		        updated_at = now()
		 WHERE id = $1`,
		id, newHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return api.ErrNotFound
	}
	return nil
}
