package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	appErrors "github.com/noah-isme/preschool-homework-api/pkg/errors"
)

type notificationStore interface {
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	List(ctx context.Context, filter dto.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string, userType models.NotificationUserType) (int, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, userType models.NotificationUserType, at time.Time) (int64, error)
}

// NotificationService exposes a user's own in-app notifications.
type NotificationService struct {
	store  notificationStore
	logger *zap.Logger
	now    func() time.Time
}

// NewNotificationService constructs the service.
func NewNotificationService(store notificationStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, logger: logger, now: time.Now}
}

// recipientType maps a token role onto the notification audience.
func recipientType(claims *models.JWTClaims) (models.NotificationUserType, error) {
	if claims == nil || claims.UserID == "" {
		return "", appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleParent {
		return models.NotifyParent, nil
	}
	return models.NotifyStaff, nil
}

// List returns a page of the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, claims *models.JWTClaims, unreadOnly bool, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	userType, err := recipientType(claims)
	if err != nil {
		return nil, nil, err
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	items, total, err := s.store.List(ctx, dto.NotificationFilter{
		UserID:     claims.UserID,
		UserType:   userType,
		UnreadOnly: unreadOnly,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		s.logger.Error("list notifications failed", zap.String("user_id", claims.UserID), zap.Error(err))
		return nil, nil, appErrors.Internal(err, "failed to load notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UnreadCount returns how many of the caller's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, claims *models.JWTClaims) (*dto.UnreadCountResponse, error) {
	userType, err := recipientType(claims)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountUnread(ctx, claims.UserID, userType)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count notifications")
	}
	return &dto.UnreadCountResponse{Unread: count}, nil
}

// MarkRead flips the read flag of one notification. Notifications of other users are reported
// as not found.
func (s *NotificationService) MarkRead(ctx context.Context, claims *models.JWTClaims, id string) (*models.Notification, error) {
	userType, err := recipientType(claims)
	if err != nil {
		return nil, err
	}
	notification, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return nil, appErrors.Internal(err, "failed to load notification")
	}
	if notification.UserID != claims.UserID || notification.UserType != userType {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	if notification.IsRead {
		return notification, nil
	}

	at := s.now().UTC()
	if err := s.store.MarkRead(ctx, notification.ID, at); err != nil {
		return nil, appErrors.Internal(err, "failed to update notification")
	}
	notification.IsRead = true
	notification.ReadAt = &at
	return notification, nil
}

// MarkAllRead flips every unread notification of the caller.
func (s *NotificationService) MarkAllRead(ctx context.Context, claims *models.JWTClaims) (*dto.MarkAllReadResponse, error) {
	userType, err := recipientType(claims)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.MarkAllRead(ctx, claims.UserID, userType, s.now().UTC())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update notifications")
	}
	return &dto.MarkAllReadResponse{Updated: updated}, nil
}
