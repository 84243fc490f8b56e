package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
)

// HomeworkRepository persists homework, individual assignments and resolves visibility.
type HomeworkRepository struct {
	db *sqlx.DB
}

// NewHomeworkRepository constructs the repository.
func NewHomeworkRepository(db *sqlx.DB) *HomeworkRepository {
	return &HomeworkRepository{db: db}
}

const homeworkColumns = `h.id, h.title, h.description, h.due_date, h.teacher_id, h.class_id, h.assignment_type,
	h.content_type, h.status, h.created_at, h.updated_at`

// ListVisibleForChild returns class-wide homework of the child's class and individual homework
// assigned to the child, each joined with the child's own submission. Archived homework and
// class-wide rows without a class are never returned.
func (r *HomeworkRepository) ListVisibleForChild(ctx context.Context, childID string, classID *string) ([]dto.VisibleHomeworkRow, error) {
	query := r.db.Rebind(`
SELECT
	h.id, h.title, h.description, h.due_date, h.teacher_id,
	st.name AS teacher_name,
	h.class_id,
	cl.name AS class_name,
	h.assignment_type, h.content_type, h.status,
	sub.id AS submission_id,
	sub.status AS submission_status,
	sub.submitted_at,
	sub.file_url,
	sub.answer_text,
	sub.score,
	sub.grade,
	sub.feedback
FROM homework h
LEFT JOIN staff st ON st.id = h.teacher_id
LEFT JOIN classes cl ON cl.id = h.class_id
LEFT JOIN homework_submissions sub ON sub.homework_id = h.id AND sub.child_id = ?
WHERE h.status <> 'archived'
AND (
	(h.assignment_type = 'class' AND h.class_id IS NOT NULL AND h.class_id = ?)
	OR (h.assignment_type = 'individual' AND EXISTS (
		SELECT 1 FROM homework_individual_assignments hia
		WHERE hia.homework_id = h.id AND hia.child_id = ?
	))
)
ORDER BY h.due_date ASC, h.id ASC`)

	var rows []dto.VisibleHomeworkRow
	if err := r.db.SelectContext(ctx, &rows, query, childID, classID, childID); err != nil {
		return nil, fmt.Errorf("list visible homework: %w", err)
	}
	return rows, nil
}

// ListForTeacher returns homework of the class plus any homework authored by the teacher, with
// submission progress.
func (r *HomeworkRepository) ListForTeacher(ctx context.Context, teacherID, classID string) ([]dto.TeacherHomeworkRow, error) {
	query := r.db.Rebind(`
SELECT ` + homeworkColumns + `,
	cl.name AS class_name,
	(SELECT COUNT(*) FROM homework_submissions sub WHERE sub.homework_id = h.id) AS submitted_count,
	(SELECT COUNT(*) FROM homework_submissions sub WHERE sub.homework_id = h.id AND sub.status = 'graded') AS graded_count,
	CASE WHEN h.assignment_type = 'individual'
		THEN (SELECT COUNT(*) FROM homework_individual_assignments hia WHERE hia.homework_id = h.id)
		ELSE (SELECT COUNT(*) FROM children ch WHERE ch.class_id = h.class_id)
	END AS target_count
FROM homework h
LEFT JOIN classes cl ON cl.id = h.class_id
WHERE h.class_id = ? OR h.teacher_id = ?
ORDER BY h.due_date ASC, h.id ASC`)

	var rows []dto.TeacherHomeworkRow
	if err := r.db.SelectContext(ctx, &rows, query, classID, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher homework: %w", err)
	}
	return rows, nil
}

// FindByID returns the homework or sql.ErrNoRows.
func (r *HomeworkRepository) FindByID(ctx context.Context, id string) (*models.Homework, error) {
	query := r.db.Rebind(`SELECT ` + homeworkColumns + ` FROM homework h WHERE h.id = ?`)
	var homework models.Homework
	if err := r.db.GetContext(ctx, &homework, query, id); err != nil {
		return nil, fmt.Errorf("find homework %s: %w", id, err)
	}
	return &homework, nil
}

// ListAssignments returns the individual assignment rows of a homework.
func (r *HomeworkRepository) ListAssignments(ctx context.Context, homeworkID string) ([]models.HomeworkIndividualAssignment, error) {
	query := r.db.Rebind(`SELECT id, homework_id, child_id, status, created_at
FROM homework_individual_assignments WHERE homework_id = ? ORDER BY created_at ASC, child_id ASC`)
	var assignments []models.HomeworkIndividualAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, homeworkID); err != nil {
		return nil, fmt.Errorf("list homework assignments: %w", err)
	}
	return assignments, nil
}

// HasAssignment reports whether the child has an individual assignment row for the homework.
func (r *HomeworkRepository) HasAssignment(ctx context.Context, homeworkID, childID string) (bool, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM homework_individual_assignments WHERE homework_id = ? AND child_id = ?`)
	var count int
	if err := r.db.GetContext(ctx, &count, query, homeworkID, childID); err != nil {
		return false, fmt.Errorf("check homework assignment: %w", err)
	}
	return count > 0, nil
}

// Create inserts the homework, its individual assignments and the creation event atomically.
func (r *HomeworkRepository) Create(ctx context.Context, homework *models.Homework, childIDs []string, event *models.OutboxEvent) (err error) {
	now := time.Now().UTC()
	if homework.ID == "" {
		homework.ID = uuid.NewString()
	}
	if homework.Status == "" {
		homework.Status = models.HomeworkActive
	}
	if homework.CreatedAt.IsZero() {
		homework.CreatedAt = now
	}
	homework.UpdatedAt = homework.CreatedAt

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin homework transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insert := tx.Rebind(`INSERT INTO homework
	(id, title, description, due_date, teacher_id, class_id, assignment_type, content_type, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err = tx.ExecContext(ctx, insert,
		homework.ID, homework.Title, homework.Description, homework.DueDate, homework.TeacherID, homework.ClassID,
		homework.AssignmentType, homework.ContentType, homework.Status, homework.CreatedAt, homework.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert homework: %w", err)
	}

	assign := tx.Rebind(`INSERT INTO homework_individual_assignments (id, homework_id, child_id, status, created_at)
	VALUES (?, ?, ?, ?, ?)`)
	for _, childID := range childIDs {
		if _, err = tx.ExecContext(ctx, assign, uuid.NewString(), homework.ID, childID, models.IndividualAssigned, homework.CreatedAt); err != nil {
			return fmt.Errorf("insert homework assignment for child %s: %w", childID, err)
		}
	}

	if event != nil {
		event.AggregateID = homework.ID
		if err = insertOutboxEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit homework transaction: %w", err)
	}
	return nil
}

// Update persists the mutable homework columns.
func (r *HomeworkRepository) Update(ctx context.Context, homework *models.Homework) error {
	homework.UpdatedAt = time.Now().UTC()
	query := r.db.Rebind(`UPDATE homework
SET title = ?, description = ?, due_date = ?, content_type = ?, status = ?, updated_at = ?
WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query,
		homework.Title, homework.Description, homework.DueDate, homework.ContentType, homework.Status, homework.UpdatedAt, homework.ID,
	); err != nil {
		return fmt.Errorf("update homework: %w", err)
	}
	return nil
}

// Delete removes a homework together with its assignments, completions and submissions.
func (r *HomeworkRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin homework delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"homework_completions", "homework_submissions", "homework_individual_assignments"} {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM `+table+` WHERE homework_id = ?`), id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM homework WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete homework: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit homework delete: %w", err)
	}
	return nil
}

// ListMissingClass returns homework rows whose class reference is missing.
func (r *HomeworkRepository) ListMissingClass(ctx context.Context) ([]models.Homework, error) {
	query := `SELECT ` + homeworkColumns + ` FROM homework h WHERE h.class_id IS NULL ORDER BY h.created_at ASC`
	var homework []models.Homework
	if err := r.db.SelectContext(ctx, &homework, query); err != nil {
		return nil, fmt.Errorf("list homework without class: %w", err)
	}
	return homework, nil
}

// AssignedClassIDs returns the distinct classes of children individually assigned to a homework.
func (r *HomeworkRepository) AssignedClassIDs(ctx context.Context, homeworkID string) ([]string, error) {
	query := r.db.Rebind(`SELECT DISTINCT ch.class_id
FROM homework_individual_assignments hia
JOIN children ch ON ch.id = hia.child_id
WHERE hia.homework_id = ? AND ch.class_id IS NOT NULL
ORDER BY ch.class_id`)
	var classIDs []string
	if err := r.db.SelectContext(ctx, &classIDs, query, homeworkID); err != nil {
		return nil, fmt.Errorf("list assigned classes: %w", err)
	}
	return classIDs, nil
}

// SetClass fills a missing class reference; rows that already have a class are left untouched.
func (r *HomeworkRepository) SetClass(ctx context.Context, homeworkID, classID string) (bool, error) {
	query := r.db.Rebind(`UPDATE homework SET class_id = ?, updated_at = ? WHERE id = ? AND class_id IS NULL`)
	res, err := r.db.ExecContext(ctx, query, classID, time.Now().UTC(), homeworkID)
	if err != nil {
		return false, fmt.Errorf("set homework class: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set homework class rows: %w", err)
	}
	return affected > 0, nil
}
