package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
)

// NotificationRepository stores in-app notifications and resolves their recipients.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// DistinctParentsForClass returns each parent with at least one child in the class exactly once.
func (r *NotificationRepository) DistinctParentsForClass(ctx context.Context, classID string) ([]string, error) {
	query := r.db.Rebind(`SELECT DISTINCT parent_id FROM children WHERE class_id = ? ORDER BY parent_id`)
	var parents []string
	if err := r.db.SelectContext(ctx, &parents, query, classID); err != nil {
		return nil, fmt.Errorf("resolve class parents: %w", err)
	}
	return parents, nil
}

// DistinctParentsForAssignments returns each parent of an individually assigned child exactly once.
func (r *NotificationRepository) DistinctParentsForAssignments(ctx context.Context, homeworkID string) ([]string, error) {
	query := r.db.Rebind(`SELECT DISTINCT ch.parent_id
FROM homework_individual_assignments hia
JOIN children ch ON ch.id = hia.child_id
WHERE hia.homework_id = ?
ORDER BY ch.parent_id`)
	var parents []string
	if err := r.db.SelectContext(ctx, &parents, query, homeworkID); err != nil {
		return nil, fmt.Errorf("resolve assigned parents: %w", err)
	}
	return parents, nil
}

// Create inserts a single notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	query := r.db.Rebind(`INSERT INTO notifications (id, user_id, user_type, title, body, type, is_read, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, query,
		notification.ID, notification.UserID, notification.UserType, notification.Title, notification.Body,
		notification.Type, notification.IsRead, notification.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// FindByID returns a notification or sql.ErrNoRows.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query := r.db.Rebind(`SELECT id, user_id, user_type, title, body, type, is_read, created_at, read_at FROM notifications WHERE id = ?`)
	var notification models.Notification
	if err := r.db.GetContext(ctx, &notification, query, id); err != nil {
		return nil, fmt.Errorf("find notification %s: %w", id, err)
	}
	return &notification, nil
}

// List returns a page of the user's notifications, newest first, plus the total count.
func (r *NotificationRepository) List(ctx context.Context, filter dto.NotificationFilter) ([]models.Notification, int, error) {
	where := ` FROM notifications WHERE user_id = ? AND user_type = ?`
	args := []interface{}{filter.UserID, filter.UserType}
	if filter.UnreadOnly {
		where += ` AND is_read = ?`
		args = append(args, false)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := r.db.Rebind(`SELECT id, user_id, user_type, title, body, type, is_read, created_at, read_at` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, size, (page-1)*size))
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*)`+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}

// CountUnread returns the number of unread notifications of the user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string, userType models.NotificationUserType) (int, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND user_type = ? AND is_read = ?`)
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, userType, false); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flips the read flag of one notification.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE notifications SET is_read = ?, read_at = ? WHERE id = ? AND is_read = ?`)
	if _, err := r.db.ExecContext(ctx, query, true, at, id, false); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead flips every unread notification of the user and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, userType models.NotificationUserType, at time.Time) (int64, error) {
	query := r.db.Rebind(`UPDATE notifications SET is_read = ?, read_at = ? WHERE user_id = ? AND user_type = ? AND is_read = ?`)
	res, err := r.db.ExecContext(ctx, query, true, at, userID, userType, false)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows: %w", err)
	}
	return affected, nil
}
