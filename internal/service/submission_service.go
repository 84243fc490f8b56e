package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	"github.com/noah-isme/preschool-homework-api/internal/repository"
	appErrors "github.com/noah-isme/preschool-homework-api/pkg/errors"
)

type submissionStore interface {
	Create(ctx context.Context, params repository.CreateSubmissionParams) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	Grade(ctx context.Context, params repository.GradeParams) error
}

type homeworkReader interface {
	FindByID(ctx context.Context, id string) (*models.Homework, error)
	HasAssignment(ctx context.Context, homeworkID, childID string) (bool, error)
}

type submissionLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// SubmissionConfig tunes the submission guard.
type SubmissionConfig struct {
	LockTTL time.Duration
}

// SubmissionService records and grades homework submissions.
type SubmissionService struct {
	submissions submissionStore
	homework    homeworkReader
	children    childReader
	staff       staffReader
	locker      submissionLocker
	notifier    eventNotifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	lockTTL     time.Duration
	now         func() time.Time
}

// NewSubmissionService wires the submission workflow.
func NewSubmissionService(
	submissions submissionStore,
	homework homeworkReader,
	children childReader,
	staff staffReader,
	locker submissionLocker,
	notifier eventNotifier,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg SubmissionConfig,
) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = noopLocker{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	return &SubmissionService{
		submissions: submissions,
		homework:    homework,
		children:    children,
		staff:       staff,
		locker:      locker,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		lockTTL:     cfg.LockTTL,
		now:         time.Now,
	}
}

// Submit records the single submission of a child for a homework.
func (s *SubmissionService) Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitHomeworkRequest) (*dto.SubmitHomeworkResponse, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleParent {
		return nil, appErrors.ErrForbidden
	}
	req.HomeworkID = strings.TrimSpace(req.HomeworkID)
	req.ChildID = strings.TrimSpace(req.ChildID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	req.FileURL = trimmedOrNil(req.FileURL)
	req.AnswerText = trimmedOrNil(req.AnswerText)

	child, err := s.children.FindByID(ctx, req.ChildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrForbidden
		}
		return nil, appErrors.Internal(err, "failed to load child")
	}
	if child.ParentID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}

	homework, err := s.homework.FindByID(ctx, req.HomeworkID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "homework not found")
		}
		return nil, appErrors.Internal(err, "failed to load homework")
	}
	visible, err := s.visibleToChild(ctx, homework, child)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "homework not found")
	}
	if homework.Status == models.HomeworkArchived {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "homework is archived")
	}
	if err := checkSubmissionContent(homework.ContentType, req); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, repository.SubmissionLockKey(homework.ID, child.ID), s.lockTTL)
	switch {
	case errors.Is(err, repository.ErrLockHeld):
		s.metrics.RecordSubmission("in_progress")
		return nil, appErrors.ErrSubmissionInProgress
	case err != nil:
		// the unique key still guards the pair
		s.logger.Warn("submission lock unavailable", zap.String("homework_id", homework.ID), zap.String("child_id", child.ID), zap.Error(err))
	default:
		defer release()
	}

	submission := &models.Submission{
		ID:          uuid.NewString(),
		HomeworkID:  homework.ID,
		ChildID:     child.ID,
		ParentID:    claims.UserID,
		FileURL:     req.FileURL,
		AnswerText:  req.AnswerText,
		Status:      models.SubmissionSubmitted,
		SubmittedAt: s.now().UTC(),
	}
	event, err := newOutboxEvent(models.EventHomeworkSubmitted, models.HomeworkSubmittedPayload{
		SubmissionID: submission.ID,
		HomeworkID:   homework.ID,
		Title:        homework.Title,
		ChildID:      child.ID,
		ChildName:    child.Name,
		ParentID:     claims.UserID,
		TeacherID:    homework.TeacherID,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to encode submission event")
	}

	params := repository.CreateSubmissionParams{
		Submission:     submission,
		MarkAssignment: homework.AssignmentType == models.AssignmentIndividual,
		Event:          event,
	}
	if req.HasAnswers() {
		params.Answers = types.JSONText(req.Answers)
	}

	if err := s.submissions.Create(ctx, params); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			s.metrics.RecordSubmission("duplicate")
			return nil, appErrors.ErrAlreadySubmitted
		}
		s.metrics.RecordSubmission("error")
		s.logger.Error("record submission failed",
			zap.String("homework_id", homework.ID),
			zap.String("child_id", child.ID),
			zap.Error(err),
		)
		return nil, appErrors.Internal(err, "failed to record submission")
	}

	s.metrics.RecordSubmission("created")
	s.logger.Info("homework submitted",
		zap.String("submission_id", submission.ID),
		zap.String("homework_id", homework.ID),
		zap.String("child_id", child.ID),
	)
	if s.notifier != nil {
		s.notifier.Notify(event.ID)
	}
	return &dto.SubmitHomeworkResponse{SubmissionID: submission.ID}, nil
}

// Grade sets score, grade and feedback on a submission. Grading again overwrites the values.
func (s *SubmissionService) Grade(ctx context.Context, claims *models.JWTClaims, submissionID string, req dto.GradeSubmissionRequest) (*models.Submission, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if req.Score == nil && req.Grade == nil && req.Feedback == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score, grade or feedback is required")
	}

	submission, err := s.submissions.FindByID(ctx, strings.TrimSpace(submissionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Internal(err, "failed to load submission")
	}
	homework, err := s.homework.FindByID(ctx, submission.HomeworkID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load homework")
	}
	if err := authorizeHomeworkStaff(ctx, s.staff, claims, homework); err != nil {
		return nil, err
	}

	childName := ""
	if child, err := s.children.FindByID(ctx, submission.ChildID); err == nil {
		childName = child.Name
	}

	if req.Score != nil {
		submission.Score = req.Score
	}
	if req.Grade != nil {
		submission.Grade = req.Grade
	}
	if req.Feedback != nil {
		submission.Feedback = req.Feedback
	}

	gradedAt := s.now().UTC()
	event, err := newOutboxEvent(models.EventHomeworkGraded, models.HomeworkGradedPayload{
		SubmissionID: submission.ID,
		HomeworkID:   homework.ID,
		Title:        homework.Title,
		ChildName:    childName,
		ParentID:     submission.ParentID,
		Grade:        deref(submission.Grade),
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to encode grade event")
	}

	if err := s.submissions.Grade(ctx, repository.GradeParams{
		SubmissionID: submission.ID,
		HomeworkID:   submission.HomeworkID,
		ChildID:      submission.ChildID,
		Score:        req.Score,
		Grade:        req.Grade,
		Feedback:     req.Feedback,
		GradedAt:     gradedAt,
		Event:        event,
	}); err != nil {
		s.logger.Error("grade submission failed", zap.String("submission_id", submission.ID), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to grade submission")
	}

	submission.Status = models.SubmissionGraded
	submission.GradedAt = &gradedAt

	s.logger.Info("submission graded", zap.String("submission_id", submission.ID), zap.String("staff_id", claims.UserID))
	if s.notifier != nil {
		s.notifier.Notify(event.ID)
	}
	return submission, nil
}

func (s *SubmissionService) visibleToChild(ctx context.Context, homework *models.Homework, child *models.Child) (bool, error) {
	if homework.AssignmentType == models.AssignmentIndividual {
		ok, err := s.homework.HasAssignment(ctx, homework.ID, child.ID)
		if err != nil {
			return false, appErrors.Internal(err, "failed to check assignment")
		}
		return ok, nil
	}
	return homework.ClassID != nil && child.ClassID != nil && *homework.ClassID == *child.ClassID, nil
}

// checkSubmissionContent enforces the payload each content type needs.
func checkSubmissionContent(contentType models.ContentType, req dto.SubmitHomeworkRequest) error {
	hasFile := req.FileURL != nil
	hasText := req.AnswerText != nil
	switch contentType {
	case models.ContentInteractive:
		if !hasFile && !hasText && !req.HasAnswers() {
			return appErrors.Clone(appErrors.ErrValidation, "answers, answerText or fileUrl is required")
		}
	default:
		if !hasFile && !hasText {
			return appErrors.Clone(appErrors.ErrValidation, "fileUrl or answerText is required")
		}
		if req.HasAnswers() {
			return appErrors.Clone(appErrors.ErrValidation, "answers are only accepted for interactive homework")
		}
	}
	return nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
