package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	sharedpersistence "github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/persistence"
)

// PostgresAuditRepository is a pgx-backed append-only audit store.
type PostgresAuditRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAuditRepository(pool *pgxpool.Pool) *PostgresAuditRepository {
	return &PostgresAuditRepository{pool: pool}
}

func (r *PostgresAuditRepository) Append(ctx context.Context, events ...*domain.AuditEvent) error {
	exec := sharedpersistence.Executor(ctx, r.pool)
	query := `
		INSERT INTO audit_events (id, user_id, event_type, target_id, target_type, rebuild_id, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, e := range events {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		var rebuildID *uuid.UUID
		if e.RebuildID != uuid.Nil {
			rebuildID = &e.RebuildID
		}
		if _, err := exec.Exec(ctx, query,
			e.ID, e.UserID, string(e.Type), e.TargetID, e.TargetType, rebuildID, details, e.OccurredAt,
		); err != nil {
			return fmt.Errorf("failed to append audit event: %w", err)
		}
	}
	return nil
}

func (r *PostgresAuditRepository) List(ctx context.Context, userID uuid.UUID, filter domain.Filter) ([]*domain.AuditEvent, error) {
	exec := sharedpersistence.Executor(ctx, r.pool)

	query := `SELECT id, user_id, event_type, target_id, target_type, rebuild_id, details, occurred_at
		FROM audit_events WHERE user_id = $1`
	args := []any{userID}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		query += fmt.Sprintf(` AND event_type = $%d`, len(args))
	}
	if filter.TargetID != nil {
		args = append(args, *filter.TargetID)
		query += fmt.Sprintf(` AND target_id = $%d`, len(args))
	}
	if filter.RebuildID != nil {
		args = append(args, *filter.RebuildID)
		query += fmt.Sprintf(` AND rebuild_id = $%d`, len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(` AND occurred_at >= $%d`, len(args))
	}
	query += ` ORDER BY occurred_at, id`

	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		var (
			e          domain.AuditEvent
			eventType  string
			rebuildID  *uuid.UUID
			detailsRaw []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &eventType, &e.TargetID, &e.TargetType, &rebuildID, &detailsRaw, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = domain.EventType(eventType)
		if rebuildID != nil {
			e.RebuildID = *rebuildID
		}
		if err := json.Unmarshal(detailsRaw, &e.Details); err != nil {
			return nil, fmt.Errorf("corrupt audit details for event %s: %w", e.ID, err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
