package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Outbox event types.
const (
	EventHomeworkCreated   = "homework.created"
	EventHomeworkSubmitted = "homework.submitted"
	EventHomeworkGraded    = "homework.graded"
)

// OutboxStatus tracks delivery of a deferred side effect.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxDone       OutboxStatus = "done"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEvent is written in the same transaction as the primary change and consumed by the
// dispatcher afterwards.
type OutboxEvent struct {
	ID          string         `db:"id" json:"id"`
	EventType   string         `db:"event_type" json:"eventType"`
	AggregateID string         `db:"aggregate_id" json:"aggregateId"`
	Payload     types.JSONText `db:"payload" json:"payload"`
	Status      OutboxStatus   `db:"status" json:"status"`
	Attempts    int            `db:"attempts" json:"attempts"`
	LastError   *string        `db:"last_error" json:"lastError,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	LockedAt    *time.Time     `db:"locked_at" json:"lockedAt,omitempty"`
	ProcessedAt *time.Time     `db:"processed_at" json:"processedAt,omitempty"`
}

// HomeworkCreatedPayload fans out an assignment notice to parents.
type HomeworkCreatedPayload struct {
	HomeworkID     string         `json:"homeworkId"`
	Title          string         `json:"title"`
	ClassID        string         `json:"classId,omitempty"`
	AssignmentType AssignmentType `json:"assignmentType"`
	ChildIDs       []string       `json:"childIds,omitempty"`
	DueDate        time.Time      `json:"dueDate"`
}

// HomeworkSubmittedPayload confirms a submission to the parent and informs the teacher.
type HomeworkSubmittedPayload struct {
	SubmissionID string `json:"submissionId"`
	HomeworkID   string `json:"homeworkId"`
	Title        string `json:"title"`
	ChildID      string `json:"childId"`
	ChildName    string `json:"childName"`
	ParentID     string `json:"parentId"`
	TeacherID    string `json:"teacherId"`
}

// HomeworkGradedPayload tells the parent a grade is available.
type HomeworkGradedPayload struct {
	SubmissionID string `json:"submissionId"`
	HomeworkID   string `json:"homeworkId"`
	Title        string `json:"title"`
	ChildName    string `json:"childName"`
	ParentID     string `json:"parentId"`
	Grade        string `json:"grade,omitempty"`
}
