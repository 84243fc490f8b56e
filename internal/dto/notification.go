package dto

import "github.com/noah-isme/preschool-homework-api/internal/models"

// NotificationFilter narrows the caller's own notifications.
type NotificationFilter struct {
	UserID     string
	UserType   models.NotificationUserType
	UnreadOnly bool
	Page       int
	PageSize   int
}

// UnreadCountResponse reports unread notifications.
type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

// MarkAllReadResponse reports how many notifications were flipped to read.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}
