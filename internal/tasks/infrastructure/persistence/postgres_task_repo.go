package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	sharedpersistence "github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/persistence"
	"github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

const pgUniqueViolation = "23505"

// PostgresTaskRepository is a pgx-backed TaskRepository. The dedupe key
// (user_id, source_type, source_id, series_id, occurrence_start) is
// enforced by a partial unique index; violations map to ErrDuplicateTask.
type PostgresTaskRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTaskRepository(pool *pgxpool.Pool) *PostgresTaskRepository {
	return &PostgresTaskRepository{pool: pool}
}

const taskColumns = `id, user_id, title, notes, status, deadline, start_after, due_by,
	estimated_duration, duration_confidence, category, energy, risk_score, impact_score,
	dependencies, flex_earliest_start, flex_latest_end, ai_excluded, title_auto_generated,
	manual_priority_locked, user_locked, manually_scheduled, last_tier,
	source_type, source_id, series_id, occurrence_start,
	completed_at, deleted_at, created_at, updated_at`

func (r *PostgresTaskRepository) Save(ctx context.Context, task *domain.Task) error {
	exec := sharedpersistence.Executor(ctx, r.pool)
	s := task.State()

	var startAfter, dueBy *string
	if s.StartAfter != nil {
		v := s.StartAfter.String()
		startAfter = &v
	}
	if s.DueBy != nil {
		v := s.DueBy.String()
		dueBy = &v
	}
	var flexEarliest, flexLatest *time.Time
	if s.FlexWindow != nil {
		flexEarliest = &s.FlexWindow.EarliestStart
		flexLatest = &s.FlexWindow.LatestEnd
	}
	var sourceType, sourceID *string
	if s.Source != nil {
		sourceType = &s.Source.Type
		sourceID = &s.Source.ID
	}
	deps := s.Dependencies
	if deps == nil {
		deps = []uuid.UUID{}
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			notes = EXCLUDED.notes,
			status = EXCLUDED.status,
			deadline = EXCLUDED.deadline,
			start_after = EXCLUDED.start_after,
			due_by = EXCLUDED.due_by,
			estimated_duration = EXCLUDED.estimated_duration,
			duration_confidence = EXCLUDED.duration_confidence,
			category = EXCLUDED.category,
			energy = EXCLUDED.energy,
			risk_score = EXCLUDED.risk_score,
			impact_score = EXCLUDED.impact_score,
			dependencies = EXCLUDED.dependencies,
			flex_earliest_start = EXCLUDED.flex_earliest_start,
			flex_latest_end = EXCLUDED.flex_latest_end,
			ai_excluded = EXCLUDED.ai_excluded,
			title_auto_generated = EXCLUDED.title_auto_generated,
			manual_priority_locked = EXCLUDED.manual_priority_locked,
			user_locked = EXCLUDED.user_locked,
			manually_scheduled = EXCLUDED.manually_scheduled,
			last_tier = EXCLUDED.last_tier,
			completed_at = EXCLUDED.completed_at,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = EXCLUDED.updated_at`

	_, err := exec.Exec(ctx, query,
		s.ID, s.UserID, s.Title, s.Notes, string(s.Status), s.Deadline, startAfter, dueBy,
		s.EstimatedDuration, s.DurationConfidence, string(s.Category), string(s.Energy),
		s.RiskScore, s.ImpactScore, deps, flexEarliest, flexLatest,
		s.AIExcluded, s.TitleAutoGenerated, s.ManualPriorityLock, s.UserLocked,
		s.ManuallyScheduled, s.LastTier, sourceType, sourceID, s.SeriesID, s.OccurrenceStart,
		s.CompletedAt, s.DeletedAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrDuplicateTask
		}
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (r *PostgresTaskRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND id = $2`
	task, err := scanTask(exec.QueryRow(ctx, query, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return task, err
}

func (r *PostgresTaskRepository) List(ctx context.Context, userID uuid.UUID, filter domain.ListFilter) ([]*domain.Task, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{userID}
	if !filter.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if filter.SeriesID != nil {
		args = append(args, *filter.SeriesID)
		query += fmt.Sprintf(` AND series_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at, id`

	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *PostgresTaskRepository) ListOpenBySeries(ctx context.Context, userID, seriesID uuid.UUID) ([]*domain.Task, error) {
	status := domain.StatusOpen
	return r.List(ctx, userID, domain.ListFilter{Status: &status, SeriesID: &seriesID})
}

func (r *PostgresTaskRepository) FindByOccurrence(ctx context.Context, userID, seriesID uuid.UUID, occurrenceStart time.Time) (*domain.Task, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = $1 AND series_id = $2 AND occurrence_start = $3`
	task, err := scanTask(exec.QueryRow(ctx, query, userID, seriesID, occurrenceStart))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return task, err
}

func (r *PostgresTaskRepository) Purge(ctx context.Context, userID, id uuid.UUID) error {
	exec := sharedpersistence.Executor(ctx, r.pool)
	tag, err := exec.Exec(ctx, `DELETE FROM tasks WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to purge task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		s                        domain.TaskState
		status, category, energy string
		startAfter, dueBy        *string
		flexEarliest, flexLatest *time.Time
		sourceType, sourceID     *string
		deps                     []uuid.UUID
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.Title, &s.Notes, &status, &s.Deadline, &startAfter, &dueBy,
		&s.EstimatedDuration, &s.DurationConfidence, &category, &energy,
		&s.RiskScore, &s.ImpactScore, &deps, &flexEarliest, &flexLatest,
		&s.AIExcluded, &s.TitleAutoGenerated, &s.ManualPriorityLock, &s.UserLocked,
		&s.ManuallyScheduled, &s.LastTier, &sourceType, &sourceID, &s.SeriesID, &s.OccurrenceStart,
		&s.CompletedAt, &s.DeletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = domain.Status(status)
	s.Category = domain.Category(category)
	s.Energy = domain.EnergyIntensity(energy)
	s.Dependencies = deps
	if startAfter != nil {
		d, err := domain.ParseLocalDate(*startAfter)
		if err != nil {
			return nil, fmt.Errorf("corrupt start_after for task %s: %w", s.ID, err)
		}
		s.StartAfter = &d
	}
	if dueBy != nil {
		d, err := domain.ParseLocalDate(*dueBy)
		if err != nil {
			return nil, fmt.Errorf("corrupt due_by for task %s: %w", s.ID, err)
		}
		s.DueBy = &d
	}
	if flexEarliest != nil && flexLatest != nil {
		s.FlexWindow = &domain.FlexibilityWindow{EarliestStart: *flexEarliest, LatestEnd: *flexLatest}
	}
	if sourceType != nil && sourceID != nil {
		s.Source = &domain.SourceRef{Type: *sourceType, ID: *sourceID}
	}
	return domain.RehydrateTask(s), nil
}

func scanTasks(rows pgx.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
