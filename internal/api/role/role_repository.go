package role

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gopinions/auth-service/internal/api"
)

var _ Repo = (*PostgresRoleRepo)(nil)

// Role is one member of the closed role set.
type Role struct {
	ID   uuid.UUID
	Name string
}

// Assignment links an identity to exactly one role. The id is bounded to
// 16 characters by schema.
type Assignment struct {
	ID       string
	UserID   uuid.UUID
	RoleID   uuid.UUID
	RoleName string
}

// DB is the subset of pgxpool.Pool the repository uses. pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repo defines role and assignment persistence.
type Repo interface {
	// UpsertRole inserts the role if absent; existing roles are untouched.
	UpsertRole(ctx context.Context, name string) error

	// GetRoleByName returns api.ErrNotFound for roles outside the seeded set.
	GetRoleByName(ctx context.Context, name string) (*Role, error)

	// GetAssignment returns the identity's single active assignment, or
	// api.ErrNotFound when none exists.
	GetAssignment(ctx context.Context, userID uuid.UUID) (*Assignment, error)

	// ReplaceAssignment removes every assignment for the identity and
	// inserts exactly one new row, inside a single transaction so no
	// reader observes the identity role-less.
	ReplaceAssignment(ctx context.Context, userID, roleID uuid.UUID, assignmentID string) error
}

type PostgresRoleRepo struct {
	logger *slog.Logger
	db     DB
}

func NewPostgresRoleRepo(db DB, logger *slog.Logger) *PostgresRoleRepo {
	return &PostgresRoleRepo{
		logger: logger,
		db:     db,
	}
}

func (r *PostgresRoleRepo) UpsertRole(ctx context.Context, name string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return fmt.Errorf("failed to upsert role %s: %w", name, err)
	}
	return nil
}

func (r *PostgresRoleRepo) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := r.db.QueryRow(ctx,
		`SELECT id, name FROM roles WHERE name = $1`, name).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch role %s: %w", name, err)
	}
	return &role, nil
}

func (r *PostgresRoleRepo) GetAssignment(ctx context.Context, userID uuid.UUID) (*Assignment, error) {
	var a Assignment
	err := r.db.QueryRow(ctx,
		`SELECT ur.id, ur.user_id, ur.role_id, ro.name
		 FROM user_roles ur
		 JOIN roles ro ON ro.id = ur.role_id
		 WHERE ur.user_id = $1`,
		userID).Scan(&a.ID, &a.UserID, &a.RoleID, &a.RoleName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch assignment: %w", err)
	}
	return &a, nil
}

func (r *PostgresRoleRepo) ReplaceAssignment(ctx context.Context, userID, roleID uuid.UUID, assignmentID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin assignment transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete prior assignments: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_roles (id, user_id, role_id) VALUES ($1, $2, $3)`,
		assignmentID, userID, roleID); err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit assignment: %w", err)
	}
	return nil
}
