package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// SQLiteTaskRepository is a database/sql-backed TaskRepository for local
// mode. Times are stored as RFC 3339 strings, dependencies as a JSON array.
type SQLiteTaskRepository struct {
	db *sql.DB
}

func NewSQLiteTaskRepository(db *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: db}
}

// EnsureSchema creates the tasks table and its dedupe index.
func (r *SQLiteTaskRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			deadline TEXT,
			start_after TEXT,
			due_by TEXT,
			estimated_duration INTEGER NOT NULL,
			duration_confidence REAL NOT NULL DEFAULT 0,
			category TEXT NOT NULL,
			energy TEXT NOT NULL,
			risk_score REAL NOT NULL,
			impact_score REAL NOT NULL,
			dependencies TEXT NOT NULL DEFAULT '[]',
			flex_earliest_start TEXT,
			flex_latest_end TEXT,
			ai_excluded INTEGER NOT NULL DEFAULT 0,
			title_auto_generated INTEGER NOT NULL DEFAULT 0,
			manual_priority_locked INTEGER NOT NULL DEFAULT 0,
			user_locked INTEGER NOT NULL DEFAULT 0,
			manually_scheduled INTEGER NOT NULL DEFAULT 0,
			last_tier INTEGER NOT NULL DEFAULT 0,
			source_type TEXT,
			source_id TEXT,
			series_id TEXT,
			occurrence_start TEXT,
			completed_at TEXT,
			deleted_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, deleted_at);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_dedupe ON tasks(
			user_id, coalesce(source_type, ''), coalesce(source_id, ''),
			coalesce(series_id, ''), coalesce(occurrence_start, '')
		) WHERE source_type IS NOT NULL OR series_id IS NOT NULL;`)
	return err
}

const sqliteTaskColumns = `id, user_id, title, notes, status, deadline, start_after, due_by,
	estimated_duration, duration_confidence, category, energy, risk_score, impact_score,
	dependencies, flex_earliest_start, flex_latest_end, ai_excluded, title_auto_generated,
	manual_priority_locked, user_locked, manually_scheduled, last_tier,
	source_type, source_id, series_id, occurrence_start,
	completed_at, deleted_at, created_at, updated_at`

func (r *SQLiteTaskRepository) Save(ctx context.Context, task *domain.Task) error {
	s := task.State()

	deps, err := json.Marshal(uuidStrings(s.Dependencies))
	if err != nil {
		return fmt.Errorf("failed to encode dependencies: %w", err)
	}
	var flexEarliest, flexLatest *string
	if s.FlexWindow != nil {
		flexEarliest = fmtTimePtr(&s.FlexWindow.EarliestStart)
		flexLatest = fmtTimePtr(&s.FlexWindow.LatestEnd)
	}
	var sourceType, sourceID *string
	if s.Source != nil {
		sourceType = &s.Source.Type
		sourceID = &s.Source.ID
	}
	var seriesID *string
	if s.SeriesID != nil {
		v := s.SeriesID.String()
		seriesID = &v
	}
	var startAfter, dueBy *string
	if s.StartAfter != nil {
		v := s.StartAfter.String()
		startAfter = &v
	}
	if s.DueBy != nil {
		v := s.DueBy.String()
		dueBy = &v
	}

	query := `
		INSERT INTO tasks (` + sqliteTaskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			notes = excluded.notes,
			status = excluded.status,
			deadline = excluded.deadline,
			start_after = excluded.start_after,
			due_by = excluded.due_by,
			estimated_duration = excluded.estimated_duration,
			duration_confidence = excluded.duration_confidence,
			category = excluded.category,
			energy = excluded.energy,
			risk_score = excluded.risk_score,
			impact_score = excluded.impact_score,
			dependencies = excluded.dependencies,
			flex_earliest_start = excluded.flex_earliest_start,
			flex_latest_end = excluded.flex_latest_end,
			ai_excluded = excluded.ai_excluded,
			title_auto_generated = excluded.title_auto_generated,
			manual_priority_locked = excluded.manual_priority_locked,
			user_locked = excluded.user_locked,
			manually_scheduled = excluded.manually_scheduled,
			last_tier = excluded.last_tier,
			completed_at = excluded.completed_at,
			deleted_at = excluded.deleted_at,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		s.ID.String(), s.UserID.String(), s.Title, s.Notes, string(s.Status),
		fmtTimePtr(s.Deadline), startAfter, dueBy,
		s.EstimatedDuration, s.DurationConfidence, string(s.Category), string(s.Energy),
		s.RiskScore, s.ImpactScore, string(deps), flexEarliest, flexLatest,
		s.AIExcluded, s.TitleAutoGenerated, s.ManualPriorityLock, s.UserLocked,
		s.ManuallyScheduled, s.LastTier, sourceType, sourceID, seriesID, fmtTimePtr(s.OccurrenceStart),
		fmtTimePtr(s.CompletedAt), fmtTimePtr(s.DeletedAt), fmtTime(s.CreatedAt), fmtTime(s.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrDuplicateTask
		}
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (r *SQLiteTaskRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM tasks WHERE user_id = ? AND id = ?`
	task, err := scanSQLiteTask(r.db.QueryRowContext(ctx, query, userID.String(), id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return task, err
}

func (r *SQLiteTaskRepository) List(ctx context.Context, userID uuid.UUID, filter domain.ListFilter) ([]*domain.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{userID.String()}
	if !filter.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.Category != nil {
		query += ` AND category = ?`
		args = append(args, string(*filter.Category))
	}
	if filter.SeriesID != nil {
		query += ` AND series_id = ?`
		args = append(args, filter.SeriesID.String())
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *SQLiteTaskRepository) ListOpenBySeries(ctx context.Context, userID, seriesID uuid.UUID) ([]*domain.Task, error) {
	status := domain.StatusOpen
	return r.List(ctx, userID, domain.ListFilter{Status: &status, SeriesID: &seriesID})
}

func (r *SQLiteTaskRepository) FindByOccurrence(ctx context.Context, userID, seriesID uuid.UUID, occurrenceStart time.Time) (*domain.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM tasks
		WHERE user_id = ? AND series_id = ? AND occurrence_start = ?`
	task, err := scanSQLiteTask(r.db.QueryRowContext(ctx, query,
		userID.String(), seriesID.String(), fmtTime(occurrenceStart)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return task, err
}

func (r *SQLiteTaskRepository) Purge(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?`,
		userID.String(), id.String())
	if err != nil {
		return fmt.Errorf("failed to purge task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func scanSQLiteTask(row rowScanner) (*domain.Task, error) {
	var (
		s                                                        domain.TaskState
		id, userID, status, category, energy, depsJSON           string
		deadline, startAfter, dueBy, flexEarliest, flexLatest    *string
		sourceType, sourceID, seriesID, occurrence               *string
		completedAt, deletedAt                                   *string
		createdAt, updatedAt                                     string
	)
	err := row.Scan(
		&id, &userID, &s.Title, &s.Notes, &status, &deadline, &startAfter, &dueBy,
		&s.EstimatedDuration, &s.DurationConfidence, &category, &energy,
		&s.RiskScore, &s.ImpactScore, &depsJSON, &flexEarliest, &flexLatest,
		&s.AIExcluded, &s.TitleAutoGenerated, &s.ManualPriorityLock, &s.UserLocked,
		&s.ManuallyScheduled, &s.LastTier, &sourceType, &sourceID, &seriesID, &occurrence,
		&completedAt, &deletedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt task id %q: %w", id, err)
	}
	if s.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", userID, err)
	}
	s.Status = domain.Status(status)
	s.Category = domain.Category(category)
	s.Energy = domain.EnergyIntensity(energy)

	var depStrings []string
	if err := json.Unmarshal([]byte(depsJSON), &depStrings); err != nil {
		return nil, fmt.Errorf("corrupt dependencies for task %s: %w", id, err)
	}
	for _, d := range depStrings {
		dep, err := uuid.Parse(d)
		if err != nil {
			return nil, fmt.Errorf("corrupt dependency id %q: %w", d, err)
		}
		s.Dependencies = append(s.Dependencies, dep)
	}

	if s.Deadline, err = parseTimePtr(deadline); err != nil {
		return nil, err
	}
	if startAfter != nil {
		d, err := domain.ParseLocalDate(*startAfter)
		if err != nil {
			return nil, err
		}
		s.StartAfter = &d
	}
	if dueBy != nil {
		d, err := domain.ParseLocalDate(*dueBy)
		if err != nil {
			return nil, err
		}
		s.DueBy = &d
	}
	if flexEarliest != nil && flexLatest != nil {
		earliest, err := parseTimePtr(flexEarliest)
		if err != nil {
			return nil, err
		}
		latest, err := parseTimePtr(flexLatest)
		if err != nil {
			return nil, err
		}
		s.FlexWindow = &domain.FlexibilityWindow{EarliestStart: *earliest, LatestEnd: *latest}
	}
	if sourceType != nil && sourceID != nil {
		s.Source = &domain.SourceRef{Type: *sourceType, ID: *sourceID}
	}
	if seriesID != nil {
		sid, err := uuid.Parse(*seriesID)
		if err != nil {
			return nil, fmt.Errorf("corrupt series id %q: %w", *seriesID, err)
		}
		s.SeriesID = &sid
	}
	if s.OccurrenceStart, err = parseTimePtr(occurrence); err != nil {
		return nil, err
	}
	if s.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	if s.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return domain.RehydrateTask(s), nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := fmtTime(*t)
	return &v
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
