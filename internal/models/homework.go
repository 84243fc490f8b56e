package models

import "time"

// AssignmentType selects how a homework is targeted.
type AssignmentType string

const (
	AssignmentClass      AssignmentType = "class"
	AssignmentIndividual AssignmentType = "individual"
)

// ContentType describes how a homework is completed.
type ContentType string

const (
	ContentTraditional ContentType = "traditional"
	ContentInteractive ContentType = "interactive"
	ContentProject     ContentType = "project"
)

// HomeworkStatus is the lifecycle status stored on the homework row.
type HomeworkStatus string

const (
	HomeworkActive    HomeworkStatus = "active"
	HomeworkCompleted HomeworkStatus = "completed"
	HomeworkArchived  HomeworkStatus = "archived"
)

// DerivedStatus is computed per viewer at read time and never stored.
type DerivedStatus string

const (
	DerivedPending   DerivedStatus = "pending"
	DerivedSubmitted DerivedStatus = "submitted"
	DerivedOverdue   DerivedStatus = "overdue"
	DerivedGraded    DerivedStatus = "graded"
	DerivedCompleted DerivedStatus = "completed"
	DerivedArchived  DerivedStatus = "archived"
)

// Homework is a single assignment created by a teacher.
type Homework struct {
	ID             string         `db:"id" json:"id"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	DueDate        time.Time      `db:"due_date" json:"dueDate"`
	TeacherID      string         `db:"teacher_id" json:"teacherId"`
	ClassID        *string        `db:"class_id" json:"classId,omitempty"`
	AssignmentType AssignmentType `db:"assignment_type" json:"assignmentType"`
	ContentType    ContentType    `db:"content_type" json:"contentType"`
	Status         HomeworkStatus `db:"status" json:"status"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}

// IsPastDue returns true when the deadline has passed at the reference time.
func (h Homework) IsPastDue(reference time.Time) bool {
	return reference.After(h.DueDate)
}

// IndividualAssignmentStatus tracks a per-child assignment row.
type IndividualAssignmentStatus string

const (
	IndividualAssigned  IndividualAssignmentStatus = "assigned"
	IndividualSubmitted IndividualAssignmentStatus = "submitted"
	IndividualGraded    IndividualAssignmentStatus = "graded"
)

// HomeworkIndividualAssignment targets one child; unique per (homework, child).
type HomeworkIndividualAssignment struct {
	ID         string                     `db:"id" json:"id"`
	HomeworkID string                     `db:"homework_id" json:"homeworkId"`
	ChildID    string                     `db:"child_id" json:"childId"`
	Status     IndividualAssignmentStatus `db:"status" json:"status"`
	CreatedAt  time.Time                  `db:"created_at" json:"createdAt"`
}
