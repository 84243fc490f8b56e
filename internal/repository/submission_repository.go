package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	"github.com/noah-isme/preschool-homework-api/pkg/database"
)

// SubmissionRepository records submissions; the (homework_id, child_id) unique key is the
// source of truth for the one-submission-per-pair rule.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// CreateSubmissionParams groups the writes performed when a submission is recorded.
type CreateSubmissionParams struct {
	Submission *models.Submission
	// Answers, when set, is upserted into homework_completions for the same pair.
	Answers types.JSONText
	// MarkAssignment flips the individual assignment row to submitted.
	MarkAssignment bool
	Event          *models.OutboxEvent
}

// Create inserts the submission and its companion rows in one transaction. A concurrent or
// repeated submission for the pair yields ErrDuplicateSubmission.
func (r *SubmissionRepository) Create(ctx context.Context, params CreateSubmissionParams) (err error) {
	sub := params.Submission
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = models.SubmissionSubmitted
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submission transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insert := tx.Rebind(`INSERT INTO homework_submissions
	(id, homework_id, child_id, parent_id, file_url, answer_text, status, submitted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err = tx.ExecContext(ctx, insert,
		sub.ID, sub.HomeworkID, sub.ChildID, sub.ParentID, sub.FileURL, sub.AnswerText, sub.Status, sub.SubmittedAt,
	); err != nil {
		if database.IsUniqueViolation(err) {
			err = ErrDuplicateSubmission
			return err
		}
		return fmt.Errorf("insert submission: %w", err)
	}

	if len(params.Answers) > 0 {
		if err = upsertCompletion(ctx, tx, sub.HomeworkID, sub.ChildID, params.Answers, sub.SubmittedAt); err != nil {
			return err
		}
	}

	if params.MarkAssignment {
		mark := tx.Rebind(`UPDATE homework_individual_assignments SET status = ? WHERE homework_id = ? AND child_id = ?`)
		if _, err = tx.ExecContext(ctx, mark, models.IndividualSubmitted, sub.HomeworkID, sub.ChildID); err != nil {
			return fmt.Errorf("mark assignment submitted: %w", err)
		}
	}

	if params.Event != nil {
		params.Event.AggregateID = sub.ID
		if err = insertOutboxEvent(ctx, tx, params.Event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit submission transaction: %w", err)
	}
	return nil
}

// upsertCompletion updates the pair's completion row, inserting it when none exists.
func upsertCompletion(ctx context.Context, tx *sqlx.Tx, homeworkID, childID string, answers types.JSONText, at time.Time) error {
	update := tx.Rebind(`UPDATE homework_completions SET answers = ?, completed_at = ? WHERE homework_id = ? AND child_id = ?`)
	res, err := tx.ExecContext(ctx, update, answers, at, homeworkID, childID)
	if err != nil {
		return fmt.Errorf("update completion: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		return nil
	}
	insert := tx.Rebind(`INSERT INTO homework_completions (id, homework_id, child_id, answers, completed_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), homeworkID, childID, answers, at); err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}
	return nil
}

const submissionColumns = `s.id, s.homework_id, s.child_id, s.parent_id, s.file_url, s.answer_text, s.status, s.score,
	s.grade, s.feedback, s.submitted_at, s.graded_at`

// FindByID returns a submission or sql.ErrNoRows.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := r.db.Rebind(`SELECT ` + submissionColumns + ` FROM homework_submissions s WHERE s.id = ?`)
	var sub models.Submission
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		return nil, fmt.Errorf("find submission %s: %w", id, err)
	}
	return &sub, nil
}

// ListByHomework returns every submission of a homework with the child's name.
func (r *SubmissionRepository) ListByHomework(ctx context.Context, homeworkID string) ([]dto.SubmissionDetail, error) {
	query := r.db.Rebind(`SELECT ` + submissionColumns + `, ch.name AS child_name
FROM homework_submissions s
JOIN children ch ON ch.id = s.child_id
WHERE s.homework_id = ?
ORDER BY s.submitted_at ASC`)
	var subs []dto.SubmissionDetail
	if err := r.db.SelectContext(ctx, &subs, query, homeworkID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

// ListTargets returns every child targeted by the homework with their submission, if any:
// the class roster for class-wide homework, the assigned children otherwise.
func (r *SubmissionRepository) ListTargets(ctx context.Context, homework *models.Homework) ([]dto.StudentStatus, error) {
	const projection = `SELECT ch.id AS child_id, ch.name AS child_name, ch.parent_id, s.id AS submission_id,
	s.status AS submission_status, s.submitted_at, s.grade`

	var (
		query string
		args  []interface{}
	)
	switch {
	case homework.AssignmentType == models.AssignmentIndividual:
		query = projection + `
FROM homework_individual_assignments hia
JOIN children ch ON ch.id = hia.child_id
LEFT JOIN homework_submissions s ON s.homework_id = hia.homework_id AND s.child_id = ch.id
WHERE hia.homework_id = ?
ORDER BY ch.name ASC`
		args = []interface{}{homework.ID}
	case homework.ClassID != nil:
		query = projection + `
FROM children ch
LEFT JOIN homework_submissions s ON s.homework_id = ? AND s.child_id = ch.id
WHERE ch.class_id = ?
ORDER BY ch.name ASC`
		args = []interface{}{homework.ID, *homework.ClassID}
	default:
		return nil, nil
	}

	var targets []dto.StudentStatus
	if err := r.db.SelectContext(ctx, &targets, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list homework targets: %w", err)
	}
	return targets, nil
}

// GradeParams holds the grading values applied to a submission.
type GradeParams struct {
	SubmissionID string
	HomeworkID   string
	ChildID      string
	Score        *float64
	Grade        *string
	Feedback     *string
	GradedAt     time.Time
	Event        *models.OutboxEvent
}

// Grade marks the submission graded, mirrors the status onto the individual assignment row and
// writes the grading event.
func (r *SubmissionRepository) Grade(ctx context.Context, params GradeParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grade transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	update := tx.Rebind(`UPDATE homework_submissions
SET status = ?, score = COALESCE(?, score), grade = COALESCE(?, grade), feedback = COALESCE(?, feedback), graded_at = ?
WHERE id = ?`)
	if _, err = tx.ExecContext(ctx, update, models.SubmissionGraded, params.Score, params.Grade, params.Feedback, params.GradedAt, params.SubmissionID); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}

	mark := tx.Rebind(`UPDATE homework_individual_assignments SET status = ? WHERE homework_id = ? AND child_id = ?`)
	if _, err = tx.ExecContext(ctx, mark, models.IndividualGraded, params.HomeworkID, params.ChildID); err != nil {
		return fmt.Errorf("mark assignment graded: %w", err)
	}

	if params.Event != nil {
		params.Event.AggregateID = params.SubmissionID
		if err = insertOutboxEvent(ctx, tx, params.Event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit grade transaction: %w", err)
	}
	return nil
}
