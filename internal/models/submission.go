package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// SubmissionStatus follows none -> submitted -> graded; there is no way back.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
)

// Submission is the single submission row for a (homework, child) pair.
type Submission struct {
	ID          string           `db:"id" json:"id"`
	HomeworkID  string           `db:"homework_id" json:"homeworkId"`
	ChildID     string           `db:"child_id" json:"childId"`
	ParentID    string           `db:"parent_id" json:"parentId"`
	FileURL     *string          `db:"file_url" json:"fileUrl,omitempty"`
	AnswerText  *string          `db:"answer_text" json:"answerText,omitempty"`
	Status      SubmissionStatus `db:"status" json:"status"`
	Score       *float64         `db:"score" json:"score,omitempty"`
	Grade       *string          `db:"grade" json:"grade,omitempty"`
	Feedback    *string          `db:"feedback" json:"feedback,omitempty"`
	SubmittedAt time.Time        `db:"submitted_at" json:"submittedAt"`
	GradedAt    *time.Time       `db:"graded_at" json:"gradedAt,omitempty"`
}

// HomeworkCompletion stores the structured answers of an interactive homework.
type HomeworkCompletion struct {
	ID          string         `db:"id" json:"id"`
	HomeworkID  string         `db:"homework_id" json:"homeworkId"`
	ChildID     string         `db:"child_id" json:"childId"`
	Answers     types.JSONText `db:"answers" json:"answers"`
	CompletedAt time.Time      `db:"completed_at" json:"completedAt"`
}
