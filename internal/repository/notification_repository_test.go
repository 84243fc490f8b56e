package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
)

func TestNotificationRepositoryDistinctParentsForClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT parent_id FROM children WHERE class_id = ?`)).
		WithArgs("class-panda").
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow("parent-1").AddRow("parent-2").AddRow("parent-3"))

	parents, err := repo.DistinctParentsForClass(context.Background(), "class-panda")
	require.NoError(t, err)
	assert.Equal(t, []string{"parent-1", "parent-2", "parent-3"}, parents)
}

func TestNotificationRepositoryListUnreadPage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM notifications WHERE user_id = ? AND user_type = ? AND is_read = ? ORDER BY created_at DESC, id DESC LIMIT 10 OFFSET 10`)).
		WithArgs("parent-1", models.NotifyParent, false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "user_type", "title", "body", "type", "is_read", "created_at", "read_at"}).
			AddRow("n-1", "parent-1", "parent", "New homework", "Count to ten", models.NotificationHomeworkAssigned, false, now, nil))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND user_type = ? AND is_read = ?`)).
		WithArgs("parent-1", models.NotifyParent, false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	items, total, err := repo.List(context.Background(), dto.NotificationFilter{
		UserID: "parent-1", UserType: models.NotifyParent, UnreadOnly: true, Page: 2, PageSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 11, total)
	assert.Equal(t, models.NotificationHomeworkAssigned, items[0].Type)
}

func TestNotificationRepositoryMarkAllRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET is_read = ?, read_at = ? WHERE user_id = ? AND user_type = ? AND is_read = ?`)).
		WithArgs(true, at, "t-1", models.NotifyStaff, false).
		WillReturnResult(sqlmock.NewResult(0, 4))

	updated, err := repo.MarkAllRead(context.Background(), "t-1", models.NotifyStaff, at)
	require.NoError(t, err)
	assert.EqualValues(t, 4, updated)
}
