package models

import "time"

// NotificationUserType identifies which account table a notification targets.
type NotificationUserType string

const (
	NotifyParent NotificationUserType = "parent"
	NotifyStaff  NotificationUserType = "staff"
)

// Notification types written by the homework flows.
const (
	NotificationHomeworkAssigned  = "homework_assigned"
	NotificationHomeworkSubmitted = "homework_submitted"
	NotificationSubmissionNotice  = "submission_received"
	NotificationHomeworkGraded    = "homework_graded"
)

// Notification is an in-app message; only the read flag is ever mutated.
type Notification struct {
	ID        string               `db:"id" json:"id"`
	UserID    string               `db:"user_id" json:"userId"`
	UserType  NotificationUserType `db:"user_type" json:"userType"`
	Title     string               `db:"title" json:"title"`
	Body      string               `db:"body" json:"body"`
	Type      string               `db:"type" json:"type"`
	IsRead    bool                 `db:"is_read" json:"isRead"`
	CreatedAt time.Time            `db:"created_at" json:"createdAt"`
	ReadAt    *time.Time           `db:"read_at" json:"readAt,omitempty"`
}
