package models

import "time"

// StaffRole distinguishes teachers from administrators in the staff table.
type StaffRole string

const (
	StaffRoleTeacher StaffRole = "teacher"
	StaffRoleAdmin   StaffRole = "admin"
)

// Staff is a teacher or administrator. A teacher owns at most one class at a time.
type Staff struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Role      StaffRole `db:"role" json:"role"`
	ClassID   *string   `db:"class_id" json:"classId,omitempty"`
	ClassName *string   `db:"class_name" json:"className,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// OwnsClass reports whether the staff member is assigned to classID.
func (s *Staff) OwnsClass(classID string) bool {
	return s != nil && s.ClassID != nil && classID != "" && *s.ClassID == classID
}
