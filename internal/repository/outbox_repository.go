package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preschool-homework-api/internal/models"
)

// OutboxRepository persists deferred side effects and their delivery state.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an outbox repository.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// insertOutboxEvent writes the event using the caller's transaction.
func insertOutboxEvent(ctx context.Context, tx *sqlx.Tx, event *models.OutboxEvent) error {
	if event == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = models.OutboxPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	query := tx.Rebind(`INSERT INTO outbox_events (id, event_type, aggregate_id, payload, status, attempts, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query, event.ID, event.EventType, event.AggregateID, []byte(event.Payload), event.Status, event.Attempts, event.CreatedAt); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

const outboxColumns = `id, event_type, aggregate_id, payload, status, attempts, last_error, created_at, locked_at, processed_at`

// Claim moves a pending (or stale processing) event to processing and returns it. ok is false when
// another worker already owns the event or it is finished.
func (r *OutboxRepository) Claim(ctx context.Context, id string, now, staleBefore time.Time) (event *models.OutboxEvent, ok bool, err error) {
	update := r.db.Rebind(`UPDATE outbox_events
SET status = ?, locked_at = ?, attempts = attempts + 1
WHERE id = ? AND (status = ? OR (status = ? AND locked_at < ?))`)
	res, err := r.db.ExecContext(ctx, update, models.OutboxProcessing, now, id, models.OutboxPending, models.OutboxProcessing, staleBefore)
	if err != nil {
		return nil, false, fmt.Errorf("claim outbox event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("claim outbox event rows: %w", err)
	}
	if affected == 0 {
		return nil, false, nil
	}

	event, err = r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return event, true, nil
}

// FindByID returns an event or sql.ErrNoRows.
func (r *OutboxRepository) FindByID(ctx context.Context, id string) (*models.OutboxEvent, error) {
	query := r.db.Rebind(`SELECT ` + outboxColumns + ` FROM outbox_events WHERE id = ?`)
	var event models.OutboxEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, fmt.Errorf("find outbox event %s: %w", id, err)
	}
	return &event, nil
}

// Release returns a claimed event to pending so it can be retried.
func (r *OutboxRepository) Release(ctx context.Context, id, reason string) error {
	query := r.db.Rebind(`UPDATE outbox_events SET status = ?, locked_at = NULL, last_error = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.OutboxPending, reason, id); err != nil {
		return fmt.Errorf("release outbox event: %w", err)
	}
	return nil
}

// MarkDone records successful delivery.
func (r *OutboxRepository) MarkDone(ctx context.Context, id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE outbox_events SET status = ?, processed_at = ?, locked_at = NULL WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.OutboxDone, at, id); err != nil {
		return fmt.Errorf("mark outbox event done: %w", err)
	}
	return nil
}

// MarkFailed parks an event that exhausted its attempts.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	query := r.db.Rebind(`UPDATE outbox_events SET status = ?, last_error = ?, processed_at = ?, locked_at = NULL WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.OutboxFailed, reason, at, id); err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	return nil
}

// ListRecoverable returns ids of pending events plus processing events whose lock went stale.
func (r *OutboxRepository) ListRecoverable(ctx context.Context, staleBefore time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.Rebind(fmt.Sprintf(`SELECT id FROM outbox_events
WHERE status = ? OR (status = ? AND locked_at < ?)
ORDER BY created_at ASC
LIMIT %d`, limit))
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.OutboxPending, models.OutboxProcessing, staleBefore); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("list recoverable outbox events: %w", err)
	}
	return ids, nil
}
