package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/preschool-homework-api/internal/models"
	"github.com/noah-isme/preschool-homework-api/pkg/jobs"
)

type outboxStore interface {
	Claim(ctx context.Context, id string, now, staleBefore time.Time) (*models.OutboxEvent, bool, error)
	Release(ctx context.Context, id, reason string) error
	MarkDone(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
	ListRecoverable(ctx context.Context, staleBefore time.Time, limit int) ([]string, error)
}

type parentResolver interface {
	DistinctParentsForClass(ctx context.Context, classID string) ([]string, error)
	DistinctParentsForAssignments(ctx context.Context, homeworkID string) ([]string, error)
}

type notificationWriter interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// DispatcherConfig tunes outbox delivery.
type DispatcherConfig struct {
	Workers      int
	BufferSize   int
	MaxAttempts  int
	RetryDelay   time.Duration
	PollInterval time.Duration
	BatchSize    int
	StaleAfter   time.Duration
}

// OutboxDispatcher turns committed outbox events into notifications. Events are pushed by the
// services right after commit and recovered by a poller after restarts or dropped pushes.
type OutboxDispatcher struct {
	outbox        outboxStore
	parents       parentResolver
	notifications notificationWriter
	metrics       *MetricsService
	logger        *zap.Logger
	queue         *jobs.Queue
	cfg           DispatcherConfig
	now           func() time.Time
}

// NewOutboxDispatcher builds the dispatcher and its worker queue.
func NewOutboxDispatcher(outbox outboxStore, parents parentResolver, notifications notificationWriter, metrics *MetricsService, logger *zap.Logger, cfg DispatcherConfig) *OutboxDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}

	d := &OutboxDispatcher{
		outbox:        outbox,
		parents:       parents,
		notifications: notifications,
		metrics:       metrics,
		logger:        logger,
		cfg:           cfg,
		now:           time.Now,
	}
	d.queue = jobs.NewQueue("outbox", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxAttempts - 1,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		DeadLetter: func(_ context.Context, job jobs.Job, err error) {
			logger.Error("outbox event left for the poller", zap.String("event_id", job.ID), zap.Error(err))
		},
	})
	return d
}

// Notify schedules delivery of a committed event without blocking the caller. A full queue is
// not an error: the poller picks the event up later.
func (d *OutboxDispatcher) Notify(eventID string) {
	if d == nil || eventID == "" {
		return
	}
	if err := d.queue.TryEnqueue(jobs.Job{ID: eventID, Type: "outbox"}); err != nil {
		d.logger.Warn("outbox enqueue deferred to poller", zap.String("event_id", eventID), zap.Error(err))
	}
}

// Run starts the workers and polls for recoverable events until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) error {
	d.queue.Start(ctx)
	defer d.queue.Stop()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *OutboxDispatcher) poll(ctx context.Context) {
	ids, err := d.outbox.ListRecoverable(ctx, d.now().Add(-d.cfg.StaleAfter), d.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("poll outbox failed", zap.Error(err))
		}
		return
	}
	for _, id := range ids {
		if err := d.queue.TryEnqueue(jobs.Job{ID: id, Type: "outbox"}); err != nil {
			// the rest waits for the next tick
			return
		}
	}
}

// recipient is one notification to write for an event.
type recipient struct {
	userID   string
	userType models.NotificationUserType
	kind     string
	title    string
	body     string
}

func (d *OutboxDispatcher) handle(ctx context.Context, job jobs.Job) error {
	now := d.now()
	event, ok, err := d.outbox.Claim(ctx, job.ID, now, now.Add(-d.cfg.StaleAfter))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	recipients, err := d.resolve(ctx, event)
	if err != nil {
		return d.retryOrFail(ctx, event, err)
	}

	delivered := 0
	for _, r := range recipients {
		notification := &models.Notification{
			UserID:   r.userID,
			UserType: r.userType,
			Title:    r.title,
			Body:     r.body,
			Type:     r.kind,
		}
		if err := d.notifications.Create(ctx, notification); err != nil {
			d.metrics.RecordNotification(r.kind, false)
			d.logger.Warn("notification insert failed",
				zap.String("event_id", event.ID),
				zap.String("user_id", r.userID),
				zap.Error(err),
			)
			continue
		}
		d.metrics.RecordNotification(r.kind, true)
		delivered++
	}

	if err := d.outbox.MarkDone(ctx, event.ID, d.now().UTC()); err != nil {
		d.logger.Error("mark outbox event done failed", zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}
	d.metrics.RecordOutboxEvent(event.EventType, "done")
	d.logger.Info("outbox event delivered",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.Int("recipients", len(recipients)),
		zap.Int("delivered", delivered),
	)
	return nil
}

// retryOrFail releases the event for another attempt or parks it once attempts are exhausted.
func (d *OutboxDispatcher) retryOrFail(ctx context.Context, event *models.OutboxEvent, cause error) error {
	if event.Attempts >= d.cfg.MaxAttempts || isPermanent(cause) {
		d.logger.Error("outbox event failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.EventType),
			zap.Int("attempts", event.Attempts),
			zap.Error(cause),
		)
		if err := d.outbox.MarkFailed(ctx, event.ID, cause.Error(), d.now().UTC()); err != nil {
			d.logger.Error("mark outbox event failed errored", zap.String("event_id", event.ID), zap.Error(err))
		}
		d.metrics.RecordOutboxEvent(event.EventType, "failed")
		return nil
	}

	if err := d.outbox.Release(ctx, event.ID, cause.Error()); err != nil {
		d.logger.Error("release outbox event failed", zap.String("event_id", event.ID), zap.Error(err))
	}
	d.metrics.RecordOutboxEvent(event.EventType, "retry")
	return cause
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	_, ok := err.(permanentError)
	return ok
}

func (d *OutboxDispatcher) resolve(ctx context.Context, event *models.OutboxEvent) ([]recipient, error) {
	switch event.EventType {
	case models.EventHomeworkCreated:
		var payload models.HomeworkCreatedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, permanentError{fmt.Errorf("decode %s payload: %w", event.EventType, err)}
		}
		return d.assignedRecipients(ctx, payload)
	case models.EventHomeworkSubmitted:
		var payload models.HomeworkSubmittedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, permanentError{fmt.Errorf("decode %s payload: %w", event.EventType, err)}
		}
		return submittedRecipients(payload), nil
	case models.EventHomeworkGraded:
		var payload models.HomeworkGradedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, permanentError{fmt.Errorf("decode %s payload: %w", event.EventType, err)}
		}
		return gradedRecipients(payload), nil
	default:
		return nil, permanentError{fmt.Errorf("unknown outbox event type %q", event.EventType)}
	}
}

func (d *OutboxDispatcher) assignedRecipients(ctx context.Context, payload models.HomeworkCreatedPayload) ([]recipient, error) {
	var (
		parents []string
		err     error
	)
	switch {
	case payload.AssignmentType == models.AssignmentIndividual:
		parents, err = d.parents.DistinctParentsForAssignments(ctx, payload.HomeworkID)
	case payload.ClassID != "":
		parents, err = d.parents.DistinctParentsForClass(ctx, payload.ClassID)
	default:
		d.logger.Warn("class homework without class; nobody to notify", zap.String("homework_id", payload.HomeworkID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf("New homework %q is due %s.", payload.Title, payload.DueDate.Format("2006-01-02 15:04"))
	seen := make(map[string]struct{}, len(parents))
	out := make([]recipient, 0, len(parents))
	for _, parentID := range parents {
		if _, dup := seen[parentID]; dup || parentID == "" {
			continue
		}
		seen[parentID] = struct{}{}
		out = append(out, recipient{
			userID:   parentID,
			userType: models.NotifyParent,
			kind:     models.NotificationHomeworkAssigned,
			title:    "New homework assigned",
			body:     body,
		})
	}
	return out, nil
}

func submittedRecipients(payload models.HomeworkSubmittedPayload) []recipient {
	out := []recipient{{
		userID:   payload.ParentID,
		userType: models.NotifyParent,
		kind:     models.NotificationHomeworkSubmitted,
		title:    "Homework submitted",
		body:     fmt.Sprintf("%s's homework %q was submitted.", payload.ChildName, payload.Title),
	}}
	if payload.TeacherID != "" {
		out = append(out, recipient{
			userID:   payload.TeacherID,
			userType: models.NotifyStaff,
			kind:     models.NotificationSubmissionNotice,
			title:    "New submission",
			body:     fmt.Sprintf("%s submitted %q.", payload.ChildName, payload.Title),
		})
	}
	return out
}

func gradedRecipients(payload models.HomeworkGradedPayload) []recipient {
	body := fmt.Sprintf("%s's homework %q has been reviewed.", payload.ChildName, payload.Title)
	if payload.Grade != "" {
		body = fmt.Sprintf("%s's homework %q was graded %s.", payload.ChildName, payload.Title, payload.Grade)
	}
	return []recipient{{
		userID:   payload.ParentID,
		userType: models.NotifyParent,
		kind:     models.NotificationHomeworkGraded,
		title:    "Homework graded",
		body:     body,
	}}
}
