package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	appErrors "github.com/noah-isme/preschool-homework-api/pkg/errors"
)

type notificationStoreStub struct {
	items      map[string]*models.Notification
	lastFilter dto.NotificationFilter
	markedRead []string
	markAllFor string
}

func (s *notificationStoreStub) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	n, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *n
	return &cp, nil
}

func (s *notificationStoreStub) List(ctx context.Context, filter dto.NotificationFilter) ([]models.Notification, int, error) {
	s.lastFilter = filter
	var out []models.Notification
	for _, n := range s.items {
		if n.UserID == filter.UserID && n.UserType == filter.UserType && (!filter.UnreadOnly || !n.IsRead) {
			out = append(out, *n)
		}
	}
	return out, len(out), nil
}

func (s *notificationStoreStub) CountUnread(ctx context.Context, userID string, userType models.NotificationUserType) (int, error) {
	count := 0
	for _, n := range s.items {
		if n.UserID == userID && n.UserType == userType && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *notificationStoreStub) MarkRead(ctx context.Context, id string, at time.Time) error {
	s.markedRead = append(s.markedRead, id)
	s.items[id].IsRead = true
	return nil
}

func (s *notificationStoreStub) MarkAllRead(ctx context.Context, userID string, userType models.NotificationUserType, at time.Time) (int64, error) {
	s.markAllFor = userID
	var updated int64
	for _, n := range s.items {
		if n.UserID == userID && n.UserType == userType && !n.IsRead {
			n.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func newNotificationFixture() *notificationStoreStub {
	return &notificationStoreStub{items: map[string]*models.Notification{
		"n-1": {ID: "n-1", UserID: "parent-1", UserType: models.NotifyParent, Title: "New homework"},
		"n-2": {ID: "n-2", UserID: "parent-1", UserType: models.NotifyParent, Title: "Graded", IsRead: true},
		"n-3": {ID: "n-3", UserID: "parent-2", UserType: models.NotifyParent, Title: "Other"},
		"n-4": {ID: "n-4", UserID: "teacher-t", UserType: models.NotifyStaff, Title: "Submission"},
	}}
}

func TestNotificationListScopesToCaller(t *testing.T) {
	store := newNotificationFixture()
	svc := NewNotificationService(store, nil)

	items, page, err := svc.List(context.Background(), claimsFor("parent-1", models.RoleParent), true, 0, 500)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n-1", items[0].ID)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 100, TotalCount: 1}, page)
	assert.Equal(t, models.NotifyParent, store.lastFilter.UserType)

	staffItems, _, err := svc.List(context.Background(), claimsFor("teacher-t", models.RoleTeacher), false, 1, 10)
	require.NoError(t, err)
	require.Len(t, staffItems, 1)
	assert.Equal(t, models.NotifyStaff, store.lastFilter.UserType)
}

func TestNotificationMarkReadOwnerOnly(t *testing.T) {
	store := newNotificationFixture()
	svc := NewNotificationService(store, nil)
	svc.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	_, err := svc.MarkRead(ctx, claimsFor("parent-2", models.RoleParent), "n-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.MarkRead(ctx, claimsFor("teacher-t", models.RoleTeacher), "n-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	n, err := svc.MarkRead(ctx, claimsFor("parent-1", models.RoleParent), "n-1")
	require.NoError(t, err)
	assert.True(t, n.IsRead)
	assert.Equal(t, fixedNow, *n.ReadAt)
	assert.Equal(t, []string{"n-1"}, store.markedRead)

	// already read is left alone
	_, err = svc.MarkRead(ctx, claimsFor("parent-1", models.RoleParent), "n-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"n-1"}, store.markedRead)

	_, err = svc.MarkRead(ctx, claimsFor("parent-1", models.RoleParent), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestNotificationCountsAndMarkAll(t *testing.T) {
	store := newNotificationFixture()
	svc := NewNotificationService(store, nil)
	ctx := context.Background()

	count, err := svc.UnreadCount(ctx, claimsFor("parent-1", models.RoleParent))
	require.NoError(t, err)
	assert.Equal(t, 1, count.Unread)

	res, err := svc.MarkAllRead(ctx, claimsFor("parent-1", models.RoleParent))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Updated)
	assert.False(t, store.items["n-3"].IsRead)

	_, err = svc.UnreadCount(ctx, nil)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
