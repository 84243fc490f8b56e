package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	appErrors "github.com/noah-isme/preschool-homework-api/pkg/errors"
)

type homeworkStore interface {
	ListVisibleForChild(ctx context.Context, childID string, classID *string) ([]dto.VisibleHomeworkRow, error)
	ListForTeacher(ctx context.Context, teacherID, classID string) ([]dto.TeacherHomeworkRow, error)
	FindByID(ctx context.Context, id string) (*models.Homework, error)
	ListAssignments(ctx context.Context, homeworkID string) ([]models.HomeworkIndividualAssignment, error)
	HasAssignment(ctx context.Context, homeworkID, childID string) (bool, error)
	Create(ctx context.Context, homework *models.Homework, childIDs []string, event *models.OutboxEvent) error
	Update(ctx context.Context, homework *models.Homework) error
	Delete(ctx context.Context, id string) error
}

type childReader interface {
	FindByID(ctx context.Context, id string) (*models.Child, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Child, error)
	ListByParent(ctx context.Context, parentID string) ([]models.ChildSummary, error)
}

type staffReader interface {
	FindByID(ctx context.Context, id string) (*models.Staff, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindByName(ctx context.Context, name string) (*models.Class, error)
}

type submissionLister interface {
	ListByHomework(ctx context.Context, homeworkID string) ([]dto.SubmissionDetail, error)
	ListTargets(ctx context.Context, homework *models.Homework) ([]dto.StudentStatus, error)
}

// eventNotifier is told about committed outbox events so they are delivered without waiting for
// the next poll.
type eventNotifier interface {
	Notify(eventID string)
}

// HomeworkConfig tunes homework rules.
type HomeworkConfig struct {
	Location *time.Location
}

// HomeworkService orchestrates homework creation, visibility and review.
type HomeworkService struct {
	homework    homeworkStore
	children    childReader
	staff       staffReader
	classes     classReader
	submissions submissionLister
	notifier    eventNotifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	location    *time.Location
	now         func() time.Time
}

// NewHomeworkService builds a HomeworkService with sane defaults.
func NewHomeworkService(
	homework homeworkStore,
	children childReader,
	staff staffReader,
	classes classReader,
	submissions submissionLister,
	notifier eventNotifier,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg HomeworkConfig,
) *HomeworkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &HomeworkService{
		homework:    homework,
		children:    children,
		staff:       staff,
		classes:     classes,
		submissions: submissions,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		location:    cfg.Location,
		now:         time.Now,
	}
}

// ListForChild returns the homework visible to a child with per-child derived status.
func (s *HomeworkService) ListForChild(ctx context.Context, claims *models.JWTClaims, childID, status string) (*dto.ChildHomeworkResponse, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	childID = strings.TrimSpace(childID)
	if childID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "childId is required")
	}
	filter, ok := dto.ParseStatusFilter(status)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of all, pending, submitted, overdue")
	}
	if claims.Role != models.RoleParent && claims.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}

	child, err := s.children.FindByID(ctx, childID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// unknown and foreign children are indistinguishable to the caller
			return nil, appErrors.ErrForbidden
		}
		s.logger.Error("load child failed", zap.String("child_id", childID), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to load child")
	}
	if !claims.IsAdmin() && child.ParentID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}

	rows, err := s.homework.ListVisibleForChild(ctx, child.ID, child.ClassID)
	if err != nil {
		s.logger.Error("list visible homework failed", zap.String("child_id", child.ID), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to load homework")
	}
	if child.ClassID == nil {
		s.logger.Warn("child has no class; only individual homework is visible", zap.String("child_id", child.ID))
	}

	items := buildVisibleHomework(rows, s.now())

	siblings, err := s.children.ListByParent(ctx, child.ParentID)
	if err != nil {
		s.logger.Error("list children failed", zap.String("parent_id", child.ParentID), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to load children")
	}
	if siblings == nil {
		siblings = []models.ChildSummary{}
	}

	return &dto.ChildHomeworkResponse{
		Homeworks: filterVisibleHomework(items, filter),
		Children:  siblings,
		Counts:    countStatuses(items),
	}, nil
}

// ListForTeacher returns homework of the teacher's class with submission progress.
func (s *HomeworkService) ListForTeacher(ctx context.Context, claims *models.JWTClaims, teacherID, status string) (*dto.TeacherHomeworkResponse, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter, ok := dto.ParseStatusFilter(status)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of all, pending, submitted, overdue")
	}
	teacherID = strings.TrimSpace(teacherID)
	if teacherID == "" {
		teacherID = claims.UserID
	}
	switch claims.Role {
	case models.RoleAdmin:
	case models.RoleTeacher:
		if teacherID != claims.UserID {
			return nil, appErrors.ErrForbidden
		}
	default:
		return nil, appErrors.ErrForbidden
	}

	staff, err := s.staff.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Internal(err, "failed to load teacher")
	}

	resp := &dto.TeacherHomeworkResponse{Homeworks: []dto.TeacherHomework{}}
	if staff.ClassID == nil || *staff.ClassID == "" {
		return resp, nil
	}
	resp.ClassID = *staff.ClassID
	resp.ClassName = deref(staff.ClassName)

	rows, err := s.homework.ListForTeacher(ctx, staff.ID, *staff.ClassID)
	if err != nil {
		s.logger.Error("list teacher homework failed", zap.String("teacher_id", staff.ID), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to load homework")
	}

	now := s.now()
	for _, row := range rows {
		item := dto.TeacherHomework{
			Homework:       row.Homework,
			ClassName:      deref(row.ClassName),
			DerivedStatus:  deriveTeacherStatus(row.Status, row.DueDate, now),
			SubmittedCount: row.SubmittedCount,
			GradedCount:    row.GradedCount,
			TargetCount:    row.TargetCount,
		}
		if item.ClassName != "" && resp.ClassName == "" && row.ClassID != nil && *row.ClassID == resp.ClassID {
			resp.ClassName = item.ClassName
		}
		if matchesTeacherFilter(item, filter) {
			resp.Homeworks = append(resp.Homeworks, item)
		}
	}
	resp.TotalHomeworks = len(resp.Homeworks)
	return resp, nil
}

// Create stores a homework with its targeting and queues the assignment notification.
func (s *HomeworkService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateHomeworkRequest) (*dto.CreateHomeworkResponse, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleTeacher && claims.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if req.AssignmentType == "" {
		req.AssignmentType = models.AssignmentClass
	}
	if req.ContentType == "" {
		req.ContentType = models.ContentTraditional
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid homework payload")
	}
	dueDate, err := parseDueDate(req.DueDate, s.location)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "dueDate must be RFC3339 or YYYY-MM-DD")
	}

	class, err := s.resolveRequestedClass(ctx, req.ClassID, req.ClassName)
	if err != nil {
		return nil, err
	}

	childIDs := uniqueStrings(req.ChildIDs)
	var children []models.Child
	if req.AssignmentType == models.AssignmentIndividual {
		if children, err = s.loadChildren(ctx, childIDs); err != nil {
			return nil, err
		}
	} else {
		childIDs = nil
	}

	classID, err := s.resolveTargetClass(ctx, claims, class, req.AssignmentType, children)
	if err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = req.Instructions
	}
	homework := &models.Homework{
		Title:          req.Title,
		Description:    description,
		DueDate:        dueDate,
		TeacherID:      claims.UserID,
		ClassID:        classID,
		AssignmentType: req.AssignmentType,
		ContentType:    req.ContentType,
		Status:         models.HomeworkActive,
	}

	homework.ID = uuid.NewString()

	event, err := newOutboxEvent(models.EventHomeworkCreated, models.HomeworkCreatedPayload{
		HomeworkID:     homework.ID,
		Title:          homework.Title,
		ClassID:        deref(classID),
		AssignmentType: homework.AssignmentType,
		ChildIDs:       childIDs,
		DueDate:        dueDate,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to encode homework event")
	}
	if err := s.homework.Create(ctx, homework, childIDs, event); err != nil {
		s.logger.Error("create homework failed", zap.String("teacher_id", claims.UserID), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to create homework")
	}

	s.metrics.RecordHomeworkCreated()
	s.logger.Info("homework created",
		zap.String("homework_id", homework.ID),
		zap.String("teacher_id", homework.TeacherID),
		zap.String("class_id", deref(homework.ClassID)),
		zap.String("assignment_type", string(homework.AssignmentType)),
		zap.Int("children", len(childIDs)),
	)
	if s.notifier != nil {
		s.notifier.Notify(event.ID)
	}

	return &dto.CreateHomeworkResponse{HomeworkID: homework.ID, Homework: homework}, nil
}

// Get returns a homework with its individual assignments.
func (s *HomeworkService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*dto.HomeworkDetail, error) {
	homework, err := s.loadAuthorized(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	detail := &dto.HomeworkDetail{Homework: *homework}
	if homework.AssignmentType == models.AssignmentIndividual {
		assignments, err := s.homework.ListAssignments(ctx, homework.ID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load assignments")
		}
		detail.Assignments = assignments
	}
	if homework.ClassID != nil {
		if class, err := s.classes.FindByID(ctx, *homework.ClassID); err == nil {
			detail.ClassName = class.Name
		}
	}
	if teacher, err := s.staff.FindByID(ctx, homework.TeacherID); err == nil {
		detail.TeacherName = teacher.Name
	}
	return detail, nil
}

// Update changes title, description, due date, content type or lifecycle status.
func (s *HomeworkService) Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateHomeworkRequest) (*models.Homework, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid homework payload")
	}
	homework, err := s.loadAuthorized(ctx, claims, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "title cannot be empty")
		}
		homework.Title = title
	}
	if req.Description != nil {
		homework.Description = *req.Description
	}
	if req.DueDate != nil {
		dueDate, err := parseDueDate(*req.DueDate, s.location)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "dueDate must be RFC3339 or YYYY-MM-DD")
		}
		homework.DueDate = dueDate
	}
	if req.ContentType != nil {
		homework.ContentType = *req.ContentType
	}
	if req.Status != nil {
		homework.Status = *req.Status
	}

	if err := s.homework.Update(ctx, homework); err != nil {
		s.logger.Error("update homework failed", zap.String("homework_id", id), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to update homework")
	}
	return homework, nil
}

// Delete removes a homework and everything recorded against it. Admin only.
func (s *HomeworkService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if !claims.IsAdmin() {
		return appErrors.ErrForbidden
	}
	if _, err := s.findHomework(ctx, id); err != nil {
		return err
	}
	if err := s.homework.Delete(ctx, id); err != nil {
		s.logger.Error("delete homework failed", zap.String("homework_id", id), zap.Error(err))
		return appErrors.Internal(err, "failed to delete homework")
	}
	s.logger.Info("homework deleted", zap.String("homework_id", id), zap.String("admin_id", claims.UserID))
	return nil
}

// ListSubmissions returns the submissions of a homework and the status of every targeted child.
func (s *HomeworkService) ListSubmissions(ctx context.Context, claims *models.JWTClaims, homeworkID string) (*dto.HomeworkSubmissionsResponse, error) {
	homework, err := s.loadAuthorized(ctx, claims, homeworkID)
	if err != nil {
		return nil, err
	}

	submissions, err := s.submissions.ListByHomework(ctx, homework.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load submissions")
	}
	targets, err := s.submissions.ListTargets(ctx, homework)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load targeted children")
	}

	now := s.now()
	for i := range targets {
		targets[i].Status = deriveTargetStatus(targets[i], homework.DueDate, now)
	}
	if submissions == nil {
		submissions = []dto.SubmissionDetail{}
	}
	if targets == nil {
		targets = []dto.StudentStatus{}
	}
	return &dto.HomeworkSubmissionsResponse{Homework: homework, Submissions: submissions, StudentsWithStatus: targets}, nil
}

func (s *HomeworkService) findHomework(ctx context.Context, id string) (*models.Homework, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "homework id is required")
	}
	homework, err := s.homework.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "homework not found")
		}
		return nil, appErrors.Internal(err, "failed to load homework")
	}
	return homework, nil
}

func (s *HomeworkService) loadAuthorized(ctx context.Context, claims *models.JWTClaims, id string) (*models.Homework, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	homework, err := s.findHomework(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeHomeworkStaff(ctx, s.staff, claims, homework); err != nil {
		return nil, err
	}
	return homework, nil
}

// authorizeHomeworkStaff allows admins, the author, and the teacher owning the homework's class.
func authorizeHomeworkStaff(ctx context.Context, staff staffReader, claims *models.JWTClaims, homework *models.Homework) error {
	switch claims.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
	default:
		return appErrors.ErrForbidden
	}
	if homework.TeacherID == claims.UserID {
		return nil
	}
	teacher, err := staff.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrForbidden
		}
		return appErrors.Internal(err, "failed to load teacher")
	}
	if homework.ClassID != nil && teacher.OwnsClass(*homework.ClassID) {
		return nil
	}
	return appErrors.ErrForbidden
}

func (s *HomeworkService) resolveRequestedClass(ctx context.Context, classID, className string) (*models.Class, error) {
	classID = strings.TrimSpace(classID)
	className = strings.TrimSpace(className)
	var (
		class *models.Class
		err   error
	)
	switch {
	case classID != "":
		class, err = s.classes.FindByID(ctx, classID)
	case className != "":
		class, err = s.classes.FindByName(ctx, className)
	default:
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	return class, nil
}

func (s *HomeworkService) loadChildren(ctx context.Context, ids []string) ([]models.Child, error) {
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "childIds are required for individual homework")
	}
	children, err := s.children.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load children")
	}
	if len(children) != len(ids) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "one or more children do not exist")
	}
	return children, nil
}

// resolveTargetClass decides the homework's class. Teachers may only target their own class and
// only assign children enrolled in it; admins may target any class.
func (s *HomeworkService) resolveTargetClass(ctx context.Context, claims *models.JWTClaims, requested *models.Class, assignment models.AssignmentType, children []models.Child) (*string, error) {
	if claims.Role == models.RoleTeacher {
		teacher, err := s.staff.FindByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrForbidden
			}
			return nil, appErrors.Internal(err, "failed to load teacher")
		}
		if teacher.ClassID == nil || *teacher.ClassID == "" {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "teacher has no class assigned")
		}
		if requested != nil && !teacher.OwnsClass(requested.ID) {
			return nil, appErrors.ErrForbidden
		}
		for _, child := range children {
			if child.ClassID == nil || !teacher.OwnsClass(*child.ClassID) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "child is not in the teacher's class")
			}
		}
		classID := *teacher.ClassID
		return &classID, nil
	}

	if requested != nil {
		classID := requested.ID
		return &classID, nil
	}
	if assignment == models.AssignmentClass {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId is required for class homework")
	}
	if classID, ok := singleClass(children); ok {
		return &classID, nil
	}
	return nil, nil
}

func singleClass(children []models.Child) (string, bool) {
	var classID string
	for _, child := range children {
		if child.ClassID == nil {
			return "", false
		}
		if classID != "" && classID != *child.ClassID {
			return "", false
		}
		classID = *child.ClassID
	}
	return classID, classID != ""
}

// parseDueDate accepts RFC3339 timestamps or plain dates, which mean end of that day locally.
func parseDueDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse due date %q: %w", raw, err)
	}
	return day.Add(24*time.Hour - time.Second).UTC(), nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func newOutboxEvent(eventType string, payload interface{}) (*models.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &models.OutboxEvent{EventType: eventType, Payload: raw}, nil
}
