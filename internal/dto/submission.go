package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/preschool-homework-api/internal/models"
)

// SubmitHomeworkRequest records a child's completion of a homework.
type SubmitHomeworkRequest struct {
	HomeworkID string          `json:"homeworkId" validate:"required"`
	ChildID    string          `json:"childId" validate:"required"`
	FileURL    *string         `json:"fileUrl" validate:"omitempty,max=1024"`
	AnswerText *string         `json:"answerText" validate:"omitempty,max=10000"`
	Answers    json.RawMessage `json:"answers"`
}

// HasAnswers reports whether a structured answer payload was supplied.
func (r SubmitHomeworkRequest) HasAnswers() bool {
	trimmed := string(r.Answers)
	return trimmed != "" && trimmed != "null"
}

// SubmitHomeworkResponse is returned with 201 on success.
type SubmitHomeworkResponse struct {
	SubmissionID string `json:"submissionId"`
}

// GradeSubmissionRequest grades a submitted homework. Omitted fields keep their previous value on
// a re-grade; supplied fields overwrite it.
type GradeSubmissionRequest struct {
	Score    *float64 `json:"score" validate:"omitempty,gte=0,lte=100"`
	Grade    *string  `json:"grade" validate:"omitempty,max=16"`
	Feedback *string  `json:"feedback" validate:"omitempty,max=5000"`
}

// SubmissionDetail is a submission joined with the child name.
type SubmissionDetail struct {
	models.Submission
	ChildName string `db:"child_name" json:"childName"`
}

// StudentStatus is one targeted child with their per-homework status.
type StudentStatus struct {
	ChildID      string               `db:"child_id" json:"childId"`
	ChildName    string               `db:"child_name" json:"childName"`
	ParentID     string               `db:"parent_id" json:"parentId"`
	SubmissionID *string              `db:"submission_id" json:"submissionId,omitempty"`
	Status       models.DerivedStatus `db:"-" json:"status"`
	RawStatus    *string              `db:"submission_status" json:"-"`
	SubmittedAt  *time.Time           `db:"submitted_at" json:"submittedAt,omitempty"`
	Grade        *string              `db:"grade" json:"grade,omitempty"`
}

// HomeworkSubmissionsResponse is returned to teachers reviewing a homework.
type HomeworkSubmissionsResponse struct {
	Homework           *models.Homework   `json:"homework"`
	Submissions        []SubmissionDetail `json:"submissions"`
	StudentsWithStatus []StudentStatus    `json:"studentsWithStatus"`
}
