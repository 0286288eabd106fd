package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qzwhatnext/qzwhatnext/internal/identity/domain"
	sharedpersistence "github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/persistence"
)

// PostgresUserRepository is a pgx-backed UserRepository.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

type userRow struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *PostgresUserRepository) Save(ctx context.Context, user *domain.User) error {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `
		INSERT INTO users (id, email, name, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at`
	_, err := exec.Exec(ctx, query,
		user.ID(), user.Email(), user.Name(), user.Timezone(),
		user.CreatedAt(), user.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT id, email, name, timezone, created_at, updated_at FROM users WHERE id = $1`
	return r.scanOne(exec.QueryRow(ctx, query, id))
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT id, email, name, timezone, created_at, updated_at FROM users WHERE email = $1`
	return r.scanOne(exec.QueryRow(ctx, query, email))
}

func (r *PostgresUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT id, email, name, timezone, created_at, updated_at FROM users ORDER BY email`
	rows, err := exec.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var row userRow
		if err := rows.Scan(&row.ID, &row.Email, &row.Name, &row.Timezone, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user, err := domain.RehydrateUser(row.ID, row.Email, row.Name, row.Timezone, row.CreatedAt, row.UpdatedAt)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *PostgresUserRepository) scanOne(row pgx.Row) (*domain.User, error) {
	var u userRow
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Timezone, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return domain.RehydrateUser(u.ID, u.Email, u.Name, u.Timezone, u.CreatedAt, u.UpdatedAt)
}

// PostgresTokenRepository is a pgx-backed AutomationTokenRepository.
type PostgresTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTokenRepository(pool *pgxpool.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

type tokenRow struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Label      string
	Prefix     string
	Hash       string
	RevokedAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const tokenColumns = `id, user_id, label, prefix, token_hash, revoked_at, last_used_at, created_at, updated_at`

func (r *PostgresTokenRepository) Save(ctx context.Context, token *domain.AutomationToken) error {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `
		INSERT INTO automation_tokens (id, user_id, label, prefix, token_hash, revoked_at, last_used_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			revoked_at = EXCLUDED.revoked_at,
			last_used_at = EXCLUDED.last_used_at,
			updated_at = EXCLUDED.updated_at`
	_, err := exec.Exec(ctx, query,
		token.ID(), token.UserID(), token.Label(), token.Prefix(), token.Hash(),
		token.RevokedAt(), token.LastUsedAt(), token.CreatedAt(), token.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save automation token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.AutomationToken, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + tokenColumns + ` FROM automation_tokens WHERE id = $1`
	var row tokenRow
	err := exec.QueryRow(ctx, query, id).Scan(
		&row.ID, &row.UserID, &row.Label, &row.Prefix, &row.Hash,
		&row.RevokedAt, &row.LastUsedAt, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan automation token: %w", err)
	}
	return rehydrateToken(row), nil
}

func (r *PostgresTokenRepository) FindByPrefix(ctx context.Context, prefix string) ([]*domain.AutomationToken, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + tokenColumns + ` FROM automation_tokens WHERE prefix = $1`
	return r.queryMany(ctx, exec, query, prefix)
}

func (r *PostgresTokenRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.AutomationToken, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + tokenColumns + ` FROM automation_tokens WHERE user_id = $1 ORDER BY created_at`
	return r.queryMany(ctx, exec, query, userID)
}

func (r *PostgresTokenRepository) queryMany(ctx context.Context, exec sharedpersistence.DBExecutor, query string, arg any) ([]*domain.AutomationToken, error) {
	rows, err := exec.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*domain.AutomationToken
	for rows.Next() {
		var row tokenRow
		if err := rows.Scan(
			&row.ID, &row.UserID, &row.Label, &row.Prefix, &row.Hash,
			&row.RevokedAt, &row.LastUsedAt, &row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan automation token: %w", err)
		}
		tokens = append(tokens, rehydrateToken(row))
	}
	return tokens, rows.Err()
}

func rehydrateToken(row tokenRow) *domain.AutomationToken {
	return domain.RehydrateAutomationToken(
		row.ID, row.UserID, row.Label, row.Prefix, row.Hash,
		row.RevokedAt, row.LastUsedAt, row.CreatedAt, row.UpdatedAt,
	)
}
