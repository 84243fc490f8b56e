package dto

import (
	"time"

	"github.com/noah-isme/preschool-homework-api/internal/models"
)

// HomeworkStatusFilter narrows a visibility listing by derived status.
type HomeworkStatusFilter string

const (
	FilterAll       HomeworkStatusFilter = "all"
	FilterPending   HomeworkStatusFilter = "pending"
	FilterSubmitted HomeworkStatusFilter = "submitted"
	FilterOverdue   HomeworkStatusFilter = "overdue"
)

// ParseStatusFilter normalises the query value; unknown values report ok=false.
func ParseStatusFilter(raw string) (HomeworkStatusFilter, bool) {
	switch HomeworkStatusFilter(raw) {
	case "", FilterAll:
		return FilterAll, true
	case FilterPending, FilterSubmitted, FilterOverdue:
		return HomeworkStatusFilter(raw), true
	}
	return "", false
}

// VisibleHomeworkRow is one row of the parent visibility query.
type VisibleHomeworkRow struct {
	ID               string                `db:"id"`
	Title            string                `db:"title"`
	Description      string                `db:"description"`
	DueDate          time.Time             `db:"due_date"`
	TeacherID        string                `db:"teacher_id"`
	TeacherName      *string               `db:"teacher_name"`
	ClassID          *string               `db:"class_id"`
	ClassName        *string               `db:"class_name"`
	AssignmentType   models.AssignmentType `db:"assignment_type"`
	ContentType      models.ContentType    `db:"content_type"`
	Status           models.HomeworkStatus `db:"status"`
	SubmissionID     *string               `db:"submission_id"`
	SubmissionStatus *string               `db:"submission_status"`
	SubmittedAt      *time.Time            `db:"submitted_at"`
	FileURL          *string               `db:"file_url"`
	AnswerText       *string               `db:"answer_text"`
	Score            *float64              `db:"score"`
	Grade            *string               `db:"grade"`
	Feedback         *string               `db:"feedback"`
}

// VisibleHomework is the per-viewer homework record returned to parents.
type VisibleHomework struct {
	ID               string                `json:"id"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	DueDate          time.Time             `json:"dueDate"`
	TeacherID        string                `json:"teacherId"`
	TeacherName      string                `json:"teacherName,omitempty"`
	ClassID          string                `json:"classId,omitempty"`
	ClassName        string                `json:"className,omitempty"`
	AssignmentType   models.AssignmentType `json:"assignmentType"`
	ContentType      models.ContentType    `json:"contentType"`
	HomeworkStatus   models.HomeworkStatus `json:"homeworkStatus"`
	Status           models.DerivedStatus  `json:"status"`
	SubmissionID     *string               `json:"submissionId,omitempty"`
	SubmissionStatus *string               `json:"submissionStatus,omitempty"`
	SubmittedAt      *time.Time            `json:"submittedAt,omitempty"`
	FileURL          *string               `json:"fileUrl,omitempty"`
	AnswerText       *string               `json:"answerText,omitempty"`
	Score            *float64              `json:"score,omitempty"`
	Grade            *string               `json:"grade,omitempty"`
	Feedback         *string               `json:"feedback,omitempty"`
}

// StatusCounts tallies derived statuses over the unfiltered list.
type StatusCounts struct {
	Pending   int `json:"pending"`
	Submitted int `json:"submitted"`
	Overdue   int `json:"overdue"`
}

// ChildHomeworkResponse is returned by the parent listing.
type ChildHomeworkResponse struct {
	Homeworks []VisibleHomework     `json:"homeworks"`
	Children  []models.ChildSummary `json:"children"`
	Counts    StatusCounts          `json:"counts"`
}

// TeacherHomeworkRow is one row of the teacher listing query.
type TeacherHomeworkRow struct {
	models.Homework
	ClassName      *string `db:"class_name"`
	SubmittedCount int     `db:"submitted_count"`
	GradedCount    int     `db:"graded_count"`
	TargetCount    int     `db:"target_count"`
}

// TeacherHomework is a homework with aggregate submission progress.
type TeacherHomework struct {
	models.Homework
	ClassName      string               `json:"className,omitempty"`
	DerivedStatus  models.DerivedStatus `json:"derivedStatus"`
	SubmittedCount int                  `json:"submittedCount"`
	GradedCount    int                  `json:"gradedCount"`
	TargetCount    int                  `json:"targetCount"`
}

// TeacherHomeworkResponse is returned by the teacher listing.
type TeacherHomeworkResponse struct {
	Homeworks      []TeacherHomework `json:"homeworks"`
	TotalHomeworks int               `json:"totalHomeworks"`
	ClassID        string            `json:"classId,omitempty"`
	ClassName      string            `json:"className,omitempty"`
}

// CreateHomeworkRequest is the payload accepted when a teacher creates homework. ClassName is
// accepted for older clients and resolved to a class id.
type CreateHomeworkRequest struct {
	Title          string                `json:"title" validate:"required,max=255"`
	Description    string                `json:"description" validate:"max=5000"`
	Instructions   string                `json:"instructions" validate:"max=5000"`
	DueDate        string                `json:"dueDate" validate:"required"`
	ClassID        string                `json:"classId"`
	ClassName      string                `json:"className"`
	AssignmentType models.AssignmentType `json:"assignmentType" validate:"omitempty,oneof=class individual"`
	ContentType    models.ContentType    `json:"contentType" validate:"omitempty,oneof=traditional interactive project"`
	ChildIDs       []string              `json:"childIds" validate:"required_if=AssignmentType individual,omitempty,dive,required"`
}

// UpdateHomeworkRequest carries the mutable homework fields; nil fields are left untouched.
type UpdateHomeworkRequest struct {
	Title       *string                `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string                `json:"description" validate:"omitempty,max=5000"`
	DueDate     *string                `json:"dueDate"`
	ContentType *models.ContentType    `json:"contentType" validate:"omitempty,oneof=traditional interactive project"`
	Status      *models.HomeworkStatus `json:"status" validate:"omitempty,oneof=active completed archived"`
}

// CreateHomeworkResponse is returned with 201 on creation.
type CreateHomeworkResponse struct {
	HomeworkID string           `json:"homeworkId"`
	Homework   *models.Homework `json:"homework"`
}

// HomeworkDetail is a homework plus its individual assignments.
type HomeworkDetail struct {
	models.Homework
	ClassName   string                                `json:"className,omitempty"`
	TeacherName string                                `json:"teacherName,omitempty"`
	Assignments []models.HomeworkIndividualAssignment `json:"assignments,omitempty"`
}
