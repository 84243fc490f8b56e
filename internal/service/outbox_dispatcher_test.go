package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/noah-isme/preschool-homework-api/internal/models"
	"github.com/noah-isme/preschool-homework-api/pkg/jobs"
)

type outboxStub struct {
	mu     sync.Mutex
	events map[string]*models.OutboxEvent
}

func newOutboxStub(events ...*models.OutboxEvent) *outboxStub {
	stub := &outboxStub{events: map[string]*models.OutboxEvent{}}
	for _, e := range events {
		if e.Status == "" {
			e.Status = models.OutboxPending
		}
		stub.events[e.ID] = e
	}
	return stub
}

func (s *outboxStub) Claim(ctx context.Context, id string, now, staleBefore time.Time) (*models.OutboxEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, false, nil
	}
	stale := e.Status == models.OutboxProcessing && e.LockedAt != nil && e.LockedAt.Before(staleBefore)
	if e.Status != models.OutboxPending && !stale {
		return nil, false, nil
	}
	e.Status = models.OutboxProcessing
	e.LockedAt = &now
	e.Attempts++
	cp := *e
	return &cp, true, nil
}

func (s *outboxStub) Release(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id].Status = models.OutboxPending
	s.events[id].LastError = &reason
	return nil
}

func (s *outboxStub) MarkDone(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id].Status = models.OutboxDone
	s.events[id].ProcessedAt = &at
	return nil
}

func (s *outboxStub) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id].Status = models.OutboxFailed
	s.events[id].LastError = &reason
	return nil
}

func (s *outboxStub) ListRecoverable(ctx context.Context, staleBefore time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, e := range s.events {
		if e.Status == models.OutboxPending {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *outboxStub) status(id string) models.OutboxStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id].Status
}

type parentResolverStub struct {
	classParents      map[string][]string
	assignmentParents map[string][]string
	err               error
	calls             int
}

func (s *parentResolverStub) DistinctParentsForClass(ctx context.Context, classID string) ([]string, error) {
	s.calls++
	return s.classParents[classID], s.err
}

func (s *parentResolverStub) DistinctParentsForAssignments(ctx context.Context, homeworkID string) ([]string, error) {
	s.calls++
	return s.assignmentParents[homeworkID], s.err
}

type notificationWriterStub struct {
	mu      sync.Mutex
	written []models.Notification
	failFor map[string]bool
}

func (s *notificationWriterStub) Create(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[n.UserID] {
		return errors.New("insert failed")
	}
	s.written = append(s.written, *n)
	return nil
}

func (s *notificationWriterStub) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.written))
	for _, n := range s.written {
		out = append(out, n.UserID)
	}
	return out
}

func mustEvent(t *testing.T, id, eventType string, payload interface{}) *models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &models.OutboxEvent{ID: id, EventType: eventType, Payload: raw}
}

func TestDispatcherNotifiesEachParentOnce(t *testing.T) {
	event := mustEvent(t, "evt-1", models.EventHomeworkCreated, models.HomeworkCreatedPayload{
		HomeworkID: "hw-1", Title: "Leaf collage", ClassID: "class-panda", AssignmentType: models.AssignmentClass, DueDate: fixedNow,
	})
	outbox := newOutboxStub(event)
	parents := &parentResolverStub{classParents: map[string][]string{
		"class-panda": {"parent-1", "parent-1", "parent-2", "parent-3"},
	}}
	writer := &notificationWriterStub{}
	d := NewOutboxDispatcher(outbox, parents, writer, NewMetricsService(), nil, DispatcherConfig{MaxAttempts: 3})

	require.NoError(t, d.handle(context.Background(), jobs.Job{ID: "evt-1"}))

	assert.ElementsMatch(t, []string{"parent-1", "parent-2", "parent-3"}, writer.recipients())
	for _, n := range writer.written {
		assert.Equal(t, models.NotifyParent, n.UserType)
		assert.Equal(t, models.NotificationHomeworkAssigned, n.Type)
	}
	assert.Equal(t, models.OutboxDone, outbox.status("evt-1"))

	// a second delivery of the same id is a no-op
	require.NoError(t, d.handle(context.Background(), jobs.Job{ID: "evt-1"}))
	assert.Len(t, writer.written, 3)
}

func TestDispatcherIndividualHomeworkUsesAssignments(t *testing.T) {
	event := mustEvent(t, "evt-1", models.EventHomeworkCreated, models.HomeworkCreatedPayload{
		HomeworkID: "hw-3", ClassID: "class-panda", AssignmentType: models.AssignmentIndividual, ChildIDs: []string{"child-x"},
	})
	parents := &parentResolverStub{
		classParents:      map[string][]string{"class-panda": {"parent-1", "parent-2"}},
		assignmentParents: map[string][]string{"hw-3": {"parent-1"}},
	}
	writer := &notificationWriterStub{}
	d := NewOutboxDispatcher(newOutboxStub(event), parents, writer, nil, nil, DispatcherConfig{})

	require.NoError(t, d.handle(context.Background(), jobs.Job{ID: "evt-1"}))
	assert.Equal(t, []string{"parent-1"}, writer.recipients())
}

func TestDispatcherSkipsFailedInserts(t *testing.T) {
	event := mustEvent(t, "evt-1", models.EventHomeworkCreated, models.HomeworkCreatedPayload{
		HomeworkID: "hw-1", ClassID: "class-panda", AssignmentType: models.AssignmentClass,
	})
	outbox := newOutboxStub(event)
	parents := &parentResolverStub{classParents: map[string][]string{"class-panda": {"parent-1", "parent-2", "parent-3"}}}
	writer := &notificationWriterStub{failFor: map[string]bool{"parent-2": true}}
	d := NewOutboxDispatcher(outbox, parents, writer, NewMetricsService(), nil, DispatcherConfig{})

	require.NoError(t, d.handle(context.Background(), jobs.Job{ID: "evt-1"}))
	assert.Equal(t, []string{"parent-1", "parent-3"}, writer.recipients())
	assert.Equal(t, models.OutboxDone, outbox.status("evt-1"))
}

func TestDispatcherRetriesResolutionThenFails(t *testing.T) {
	event := mustEvent(t, "evt-1", models.EventHomeworkCreated, models.HomeworkCreatedPayload{
		HomeworkID: "hw-1", ClassID: "class-panda", AssignmentType: models.AssignmentClass,
	})
	outbox := newOutboxStub(event)
	parents := &parentResolverStub{err: errors.New("db down")}
	d := NewOutboxDispatcher(outbox, parents, &notificationWriterStub{}, nil, nil, DispatcherConfig{MaxAttempts: 2})
	ctx := context.Background()

	err := d.handle(ctx, jobs.Job{ID: "evt-1"})
	require.Error(t, err)
	assert.Equal(t, models.OutboxPending, outbox.status("evt-1"))

	require.NoError(t, d.handle(ctx, jobs.Job{ID: "evt-1"}))
	assert.Equal(t, models.OutboxFailed, outbox.status("evt-1"))
	assert.Equal(t, 2, parents.calls)
}

func TestDispatcherUnknownEventFailsImmediately(t *testing.T) {
	outbox := newOutboxStub(&models.OutboxEvent{ID: "evt-x", EventType: "homework.exploded", Payload: []byte(`{}`)})
	d := NewOutboxDispatcher(outbox, &parentResolverStub{}, &notificationWriterStub{}, nil, nil, DispatcherConfig{MaxAttempts: 5})

	require.NoError(t, d.handle(context.Background(), jobs.Job{ID: "evt-x"}))
	assert.Equal(t, models.OutboxFailed, outbox.status("evt-x"))
}

func TestDispatcherSubmittedAndGradedRecipients(t *testing.T) {
	submitted := mustEvent(t, "evt-s", models.EventHomeworkSubmitted, models.HomeworkSubmittedPayload{
		SubmissionID: "sub-1", HomeworkID: "hw-1", Title: "Leaf collage", ChildName: "Xena", ParentID: "parent-1", TeacherID: "teacher-t",
	})
	graded := mustEvent(t, "evt-g", models.EventHomeworkGraded, models.HomeworkGradedPayload{
		SubmissionID: "sub-1", HomeworkID: "hw-1", Title: "Leaf collage", ChildName: "Xena", ParentID: "parent-1", Grade: "A",
	})
	writer := &notificationWriterStub{}
	d := NewOutboxDispatcher(newOutboxStub(submitted, graded), &parentResolverStub{}, writer, nil, nil, DispatcherConfig{})

	require.NoError(t, d.handle(context.Background(), jobs.Job{ID: "evt-s"}))
	require.NoError(t, d.handle(context.Background(), jobs.Job{ID: "evt-g"}))

	require.Len(t, writer.written, 3)
	assert.Equal(t, models.NotificationHomeworkSubmitted, writer.written[0].Type)
	assert.Equal(t, models.NotifyParent, writer.written[0].UserType)
	assert.Equal(t, "teacher-t", writer.written[1].UserID)
	assert.Equal(t, models.NotifyStaff, writer.written[1].UserType)
	assert.Equal(t, models.NotificationSubmissionNotice, writer.written[1].Type)
	assert.Equal(t, models.NotificationHomeworkGraded, writer.written[2].Type)
	assert.Contains(t, writer.written[2].Body, "graded A")
}

func TestDispatcherRunDeliversAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	pending := mustEvent(t, "evt-old", models.EventHomeworkGraded, models.HomeworkGradedPayload{ParentID: "parent-1", Title: "Old"})
	fresh := mustEvent(t, "evt-new", models.EventHomeworkGraded, models.HomeworkGradedPayload{ParentID: "parent-2", Title: "New"})
	outbox := newOutboxStub(pending)
	writer := &notificationWriterStub{}
	d := NewOutboxDispatcher(outbox, &parentResolverStub{}, writer, nil, nil, DispatcherConfig{Workers: 2, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// the poller recovers events committed before start
	require.Eventually(t, func() bool { return outbox.status("evt-old") == models.OutboxDone }, 2*time.Second, 5*time.Millisecond)

	outbox.mu.Lock()
	fresh.Status = models.OutboxPending
	outbox.events[fresh.ID] = fresh
	outbox.mu.Unlock()
	d.Notify(fresh.ID)
	require.Eventually(t, func() bool { return outbox.status("evt-new") == models.OutboxDone }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.ElementsMatch(t, []string{"parent-1", "parent-2"}, writer.recipients())
}
