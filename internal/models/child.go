package models

import "time"

// Child is a student owned by a parent account. ClassName mirrors the legacy free-text
// class column and is only rewritten by the normalization job.
type Child struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ClassID   *string   `db:"class_id" json:"classId,omitempty"`
	ClassName *string   `db:"class_name" json:"className,omitempty"`
	ParentID  string    `db:"parent_id" json:"parentId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ChildSummary is the projection returned alongside a parent's homework list.
type ChildSummary struct {
	ID        string  `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	ClassID   *string `db:"class_id" json:"classId,omitempty"`
	ClassName *string `db:"class_name" json:"className,omitempty"`
}
