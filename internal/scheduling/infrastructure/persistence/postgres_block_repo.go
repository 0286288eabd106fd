package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qzwhatnext/qzwhatnext/internal/scheduling/domain"
	sharedpersistence "github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/persistence"
)

const blockColumns = `id, user_id, task_id, start_at, end_at, scheduled_by, locked,
	calendar_event_id, calendar_etag, calendar_updated, sync_pending, created_at, updated_at`

// PostgresBlockRepository is a pgx-backed BlockRepository.
type PostgresBlockRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresBlockRepository(pool *pgxpool.Pool) *PostgresBlockRepository {
	return &PostgresBlockRepository{pool: pool}
}

func (r *PostgresBlockRepository) Save(ctx context.Context, block *domain.ScheduledBlock) error {
	exec := sharedpersistence.Executor(ctx, r.pool)
	s := block.State()
	query := `
		INSERT INTO scheduled_blocks (` + blockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			start_at = EXCLUDED.start_at,
			end_at = EXCLUDED.end_at,
			scheduled_by = EXCLUDED.scheduled_by,
			locked = EXCLUDED.locked,
			calendar_event_id = EXCLUDED.calendar_event_id,
			calendar_etag = EXCLUDED.calendar_etag,
			calendar_updated = EXCLUDED.calendar_updated,
			sync_pending = EXCLUDED.sync_pending,
			updated_at = EXCLUDED.updated_at`
	_, err := exec.Exec(ctx, query,
		s.ID, s.UserID, s.TaskID, s.Start, s.End, string(s.ScheduledBy), s.Locked,
		s.CalendarEventID, s.CalendarEtag, s.CalendarUpdated, s.SyncPending,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save scheduled block: %w", err)
	}
	return nil
}

func (r *PostgresBlockRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.ScheduledBlock, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + blockColumns + ` FROM scheduled_blocks WHERE user_id = $1 AND id = $2`
	block, err := scanBlock(exec.QueryRow(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBlockNotFound
		}
		return nil, err
	}
	return block, nil
}

func (r *PostgresBlockRepository) ListInWindow(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.ScheduledBlock, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + blockColumns + ` FROM scheduled_blocks
		WHERE user_id = $1 AND start_at < $3 AND end_at > $2
		ORDER BY start_at, id`
	rows, err := exec.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled blocks: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (r *PostgresBlockRepository) ListByTask(ctx context.Context, userID, taskID uuid.UUID) ([]*domain.ScheduledBlock, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + blockColumns + ` FROM scheduled_blocks
		WHERE user_id = $1 AND task_id = $2
		ORDER BY start_at, id`
	rows, err := exec.Query(ctx, query, userID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks by task: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (r *PostgresBlockRepository) ListSynced(ctx context.Context, userID uuid.UUID) ([]*domain.ScheduledBlock, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + blockColumns + ` FROM scheduled_blocks
		WHERE user_id = $1 AND calendar_event_id IS NOT NULL
		ORDER BY start_at, id`
	rows, err := exec.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list synced blocks: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (r *PostgresBlockRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	exec := sharedpersistence.Executor(ctx, r.pool)
	tag, err := exec.Exec(ctx, `DELETE FROM scheduled_blocks WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBlockNotFound
	}
	return nil
}

func (r *PostgresBlockRepository) RemoveForTask(ctx context.Context, userID, taskID uuid.UUID) error {
	exec := sharedpersistence.Executor(ctx, r.pool)
	_, err := exec.Exec(ctx, `DELETE FROM scheduled_blocks WHERE user_id = $1 AND task_id = $2`, userID, taskID)
	if err != nil {
		return fmt.Errorf("failed to remove blocks for task: %w", err)
	}
	return nil
}

type blockRowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row blockRowScanner) (*domain.ScheduledBlock, error) {
	var s domain.BlockState
	var scheduledBy string
	if err := row.Scan(
		&s.ID, &s.UserID, &s.TaskID, &s.Start, &s.End, &scheduledBy, &s.Locked,
		&s.CalendarEventID, &s.CalendarEtag, &s.CalendarUpdated, &s.SyncPending,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.ScheduledBy = domain.ScheduledBy(scheduledBy)
	return domain.RehydrateBlock(s), nil
}

func scanBlocks(rows pgx.Rows) ([]*domain.ScheduledBlock, error) {
	var out []*domain.ScheduledBlock
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled block: %w", err)
		}
		out = append(out, block)
	}
	return out, rows.Err()
}
