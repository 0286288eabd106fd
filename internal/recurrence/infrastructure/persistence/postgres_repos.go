package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qzwhatnext/qzwhatnext/internal/recurrence/domain"
	sharedpersistence "github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/persistence"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// presetJSON is the stored shape of a recurrence preset.
type presetJSON struct {
	Frequency      string `json:"frequency"`
	Interval       int    `json:"interval,omitempty"`
	ByWeekday      []int  `json:"by_weekday,omitempty"`
	CountPerPeriod int    `json:"count_per_period,omitempty"`
	Window         string `json:"window,omitempty"`
}

func encodePreset(p domain.Preset) ([]byte, error) {
	enc := presetJSON{
		Frequency:      string(p.Frequency),
		Interval:       p.Interval,
		CountPerPeriod: p.CountPerPeriod,
		Window:         string(p.Window),
	}
	for _, wd := range p.ByWeekday {
		enc.ByWeekday = append(enc.ByWeekday, int(wd))
	}
	return json.Marshal(enc)
}

func decodePreset(raw []byte) (domain.Preset, error) {
	var enc presetJSON
	if err := json.Unmarshal(raw, &enc); err != nil {
		return domain.Preset{}, fmt.Errorf("corrupt recurrence preset: %w", err)
	}
	p := domain.Preset{
		Frequency:      domain.Frequency(enc.Frequency),
		Interval:       enc.Interval,
		CountPerPeriod: enc.CountPerPeriod,
		Window:         domain.TimeOfDayWindow(enc.Window),
	}
	for _, wd := range enc.ByWeekday {
		p.ByWeekday = append(p.ByWeekday, time.Weekday(wd))
	}
	return p, nil
}

// PostgresSeriesRepository is a pgx-backed SeriesRepository.
type PostgresSeriesRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSeriesRepository(pool *pgxpool.Pool) *PostgresSeriesRepository {
	return &PostgresSeriesRepository{pool: pool}
}

const seriesColumns = `id, user_id, title_template, notes_template, duration_default,
	category_default, preset, ai_excluded, anchor, deleted_at, created_at, updated_at`

func (r *PostgresSeriesRepository) Save(ctx context.Context, series *domain.TaskSeries) error {
	exec := sharedpersistence.Executor(ctx, r.pool)
	preset, err := encodePreset(series.Preset())
	if err != nil {
		return err
	}
	query := `
		INSERT INTO recurring_task_series (` + seriesColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			title_template = EXCLUDED.title_template,
			notes_template = EXCLUDED.notes_template,
			duration_default = EXCLUDED.duration_default,
			category_default = EXCLUDED.category_default,
			preset = EXCLUDED.preset,
			ai_excluded = EXCLUDED.ai_excluded,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = EXCLUDED.updated_at`
	_, err = exec.Exec(ctx, query,
		series.ID(), series.UserID(), series.TitleTemplate(), series.NotesTemplate(),
		series.DurationDefault(), string(series.CategoryDefault()), preset,
		series.AIExcluded(), series.Anchor(), series.DeletedAt(),
		series.CreatedAt(), series.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save series: %w", err)
	}
	return nil
}

func (r *PostgresSeriesRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.TaskSeries, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + seriesColumns + ` FROM recurring_task_series WHERE user_id = $1 AND id = $2`
	series, err := scanSeries(exec.QueryRow(ctx, query, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSeriesNotFound
	}
	return series, err
}

func (r *PostgresSeriesRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.TaskSeries, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + seriesColumns + ` FROM recurring_task_series
		WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at, id`
	rows, err := exec.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	defer rows.Close()

	var out []*domain.TaskSeries
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, series)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeries(row rowScanner) (*domain.TaskSeries, error) {
	var (
		id, userID           uuid.UUID
		title, notes         string
		duration             int
		category             string
		presetRaw            []byte
		aiExcluded           bool
		anchor               time.Time
		deletedAt            *time.Time
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &userID, &title, &notes, &duration, &category, &presetRaw,
		&aiExcluded, &anchor, &deletedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	preset, err := decodePreset(presetRaw)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateTaskSeries(id, userID, title, notes, duration,
		taskdomain.Category(category), preset, aiExcluded, anchor, deletedAt,
		createdAt, updatedAt), nil
}

// PostgresTimeBlockRepository is a pgx-backed TimeBlockRepository.
type PostgresTimeBlockRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTimeBlockRepository(pool *pgxpool.Pool) *PostgresTimeBlockRepository {
	return &PostgresTimeBlockRepository{pool: pool}
}

const timeBlockColumns = `id, user_id, title, preset, duration_minutes,
	calendar_event_id, deleted_at, created_at, updated_at`

func (r *PostgresTimeBlockRepository) Save(ctx context.Context, block *domain.TimeBlock) error {
	exec := sharedpersistence.Executor(ctx, r.pool)
	preset, err := encodePreset(block.Preset())
	if err != nil {
		return err
	}
	query := `
		INSERT INTO recurring_time_blocks (` + timeBlockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			preset = EXCLUDED.preset,
			duration_minutes = EXCLUDED.duration_minutes,
			calendar_event_id = EXCLUDED.calendar_event_id,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = EXCLUDED.updated_at`
	_, err = exec.Exec(ctx, query,
		block.ID(), block.UserID(), block.Title(), preset, block.DurationMinutes(),
		block.CalendarEventID(), block.DeletedAt(), block.CreatedAt(), block.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save time block: %w", err)
	}
	return nil
}

func (r *PostgresTimeBlockRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.TimeBlock, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + timeBlockColumns + ` FROM recurring_time_blocks WHERE user_id = $1 AND id = $2`
	block, err := scanTimeBlock(exec.QueryRow(ctx, query, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBlockNotFound
	}
	return block, err
}

func (r *PostgresTimeBlockRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.TimeBlock, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `SELECT ` + timeBlockColumns + ` FROM recurring_time_blocks
		WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at, id`
	rows, err := exec.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list time blocks: %w", err)
	}
	defer rows.Close()

	var out []*domain.TimeBlock
	for rows.Next() {
		block, err := scanTimeBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}
	return out, rows.Err()
}

func scanTimeBlock(row rowScanner) (*domain.TimeBlock, error) {
	var (
		id, userID           uuid.UUID
		title                string
		presetRaw            []byte
		duration             int
		calendarEventID      *string
		deletedAt            *time.Time
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &userID, &title, &presetRaw, &duration,
		&calendarEventID, &deletedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	preset, err := decodePreset(presetRaw)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateTimeBlock(id, userID, title, preset, duration,
		calendarEventID, deletedAt, createdAt, updatedAt), nil
}
