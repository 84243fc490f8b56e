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

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	"github.com/noah-isme/preschool-homework-api/internal/repository"
	appErrors "github.com/noah-isme/preschool-homework-api/pkg/errors"
)

func newSubmissionServiceForTest(db *memoryDB, locker submissionLocker) (*SubmissionService, *notifierStub) {
	notifier := &notifierStub{}
	svc := NewSubmissionService(
		memorySubmissions{db},
		memoryHomework{db},
		memoryChildren{db},
		memoryStaff{db},
		locker,
		notifier,
		NewMetricsService(),
		nil,
		nil,
		SubmissionConfig{LockTTL: time.Second},
	)
	svc.now = func() time.Time { return fixedNow }
	return svc, notifier
}

func seedPandaHomework(db *memoryDB, id string, content models.ContentType) {
	db.addHomework(models.Homework{
		ID: id, Title: "Leaf collage", DueDate: fixedNow.Add(48 * time.Hour), TeacherID: "teacher-t",
		ClassID: strPtr("class-panda"), AssignmentType: models.AssignmentClass, ContentType: content, Status: models.HomeworkActive,
	})
}

func TestSubmitThenDuplicateRejected(t *testing.T) {
	db := pandaFixture()
	seedPandaHomework(db, "hw-1", models.ContentInteractive)
	subs, notifier := newSubmissionServiceForTest(db, &lockerStub{})
	homework, _ := newHomeworkServiceForTest(db)
	ctx := context.Background()
	parent := claimsFor("parent-1", models.RoleParent)

	resp, err := subs.Submit(ctx, parent, dto.SubmitHomeworkRequest{
		HomeworkID: "hw-1",
		ChildID:    "child-x",
		Answers:    json.RawMessage(`{"q1":"red"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SubmissionID)
	assert.Equal(t, `{"q1":"red"}`, db.completions[pairKey("hw-1", "child-x")])
	assert.Equal(t, []string{"evt-" + resp.SubmissionID}, notifier.ids)

	list, err := homework.ListForChild(ctx, parent, "child-x", "")
	require.NoError(t, err)
	hw := findVisible(list, "hw-1")
	require.NotNil(t, hw)
	assert.Equal(t, models.DerivedSubmitted, hw.Status)

	_, err = subs.Submit(ctx, parent, dto.SubmitHomeworkRequest{HomeworkID: "hw-1", ChildID: "child-x", AnswerText: strPtr("again")})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAlreadySubmitted)
	assert.False(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 1, db.submissionCount("hw-1", "child-x"))
}

func TestConcurrentSubmissionsKeepOneRow(t *testing.T) {
	db := pandaFixture()
	seedPandaHomework(db, "hw-1", models.ContentTraditional)
	subs, _ := newSubmissionServiceForTest(db, nil)
	parent := claimsFor("parent-1", models.RoleParent)

	const attempts = 10
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := subs.Submit(context.Background(), parent, dto.SubmitHomeworkRequest{HomeworkID: "hw-1", ChildID: "child-x", FileURL: strPtr("https://files/x.jpg")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, appErrors.ErrAlreadySubmitted):
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, duplicates)
	assert.Equal(t, 1, db.submissionCount("hw-1", "child-x"))
}

func TestSubmitRules(t *testing.T) {
	ctx := context.Background()
	parent := claimsFor("parent-1", models.RoleParent)
	text := strPtr("done")

	cases := []struct {
		name  string
		setup func(db *memoryDB)
		claim *models.JWTClaims
		req   dto.SubmitHomeworkRequest
		want  *appErrors.Error
	}{
		{
			name:  "foreign child",
			claim: claimsFor("parent-2", models.RoleParent),
			req:   dto.SubmitHomeworkRequest{HomeworkID: "hw-1", ChildID: "child-x", AnswerText: text},
			want:  appErrors.ErrForbidden,
		},
		{
			name:  "teacher cannot submit",
			claim: claimsFor("teacher-t", models.RoleTeacher),
			req:   dto.SubmitHomeworkRequest{HomeworkID: "hw-1", ChildID: "child-x", AnswerText: text},
			want:  appErrors.ErrForbidden,
		},
		{
			name:  "missing homework",
			claim: parent,
			req:   dto.SubmitHomeworkRequest{HomeworkID: "nope", ChildID: "child-x", AnswerText: text},
			want:  appErrors.ErrNotFound,
		},
		{
			name: "homework of another class",
			setup: func(db *memoryDB) {
				db.addHomework(models.Homework{ID: "hw-h", DueDate: fixedNow, TeacherID: "teacher-h", ClassID: strPtr("class-hawks"), AssignmentType: models.AssignmentClass, Status: models.HomeworkActive})
			},
			claim: parent,
			req:   dto.SubmitHomeworkRequest{HomeworkID: "hw-h", ChildID: "child-x", AnswerText: text},
			want:  appErrors.ErrNotFound,
		},
		{
			name: "individual homework not assigned",
			setup: func(db *memoryDB) {
				db.addHomework(models.Homework{ID: "hw-i", DueDate: fixedNow, TeacherID: "teacher-t", ClassID: strPtr("class-panda"), AssignmentType: models.AssignmentIndividual, Status: models.HomeworkActive}, "child-z")
			},
			claim: parent,
			req:   dto.SubmitHomeworkRequest{HomeworkID: "hw-i", ChildID: "child-x", AnswerText: text},
			want:  appErrors.ErrNotFound,
		},
		{
			name: "archived",
			setup: func(db *memoryDB) {
				db.homework["hw-1"].Status = models.HomeworkArchived
			},
			claim: parent,
			req:   dto.SubmitHomeworkRequest{HomeworkID: "hw-1", ChildID: "child-x", AnswerText: text},
			want:  appErrors.ErrPreconditionFailed,
		},
		{
			name:  "empty traditional submission",
			claim: parent,
			req:   dto.SubmitHomeworkRequest{HomeworkID: "hw-1", ChildID: "child-x", AnswerText: strPtr("  ")},
			want:  appErrors.ErrValidation,
		},
		{
			name:  "answers on traditional homework",
			claim: parent,
			req:   dto.SubmitHomeworkRequest{HomeworkID: "hw-1", ChildID: "child-x", AnswerText: text, Answers: json.RawMessage(`{"a":1}`)},
			want:  appErrors.ErrValidation,
		},
		{
			name:  "missing ids",
			claim: parent,
			req:   dto.SubmitHomeworkRequest{AnswerText: text},
			want:  appErrors.ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := pandaFixture()
			seedPandaHomework(db, "hw-1", models.ContentTraditional)
			if tc.setup != nil {
				tc.setup(db)
			}
			svc, notifier := newSubmissionServiceForTest(db, &lockerStub{})

			_, err := svc.Submit(ctx, tc.claim, tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, notifier.ids)
			assert.Empty(t, db.submissions)
		})
	}
}

func TestSubmitIndividualMarksAssignment(t *testing.T) {
	db := pandaFixture()
	db.addHomework(models.Homework{
		ID: "hw-i", DueDate: fixedNow.Add(time.Hour), TeacherID: "teacher-t", ClassID: strPtr("class-panda"),
		AssignmentType: models.AssignmentIndividual, ContentType: models.ContentProject, Status: models.HomeworkActive,
	}, "child-x")
	svc, _ := newSubmissionServiceForTest(db, &lockerStub{})

	_, err := svc.Submit(context.Background(), claimsFor("parent-1", models.RoleParent), dto.SubmitHomeworkRequest{HomeworkID: "hw-i", ChildID: "child-x", FileURL: strPtr("https://files/p.pdf")})
	require.NoError(t, err)
	assert.Equal(t, models.IndividualSubmitted, db.assignments["hw-i"][0].Status)

	require.Len(t, db.events, 1)
	var payload models.HomeworkSubmittedPayload
	require.NoError(t, json.Unmarshal(db.events[0].Payload, &payload))
	assert.Equal(t, "teacher-t", payload.TeacherID)
	assert.Equal(t, "parent-1", payload.ParentID)
	assert.Equal(t, "Xena", payload.ChildName)
}

func TestSubmitLockHeld(t *testing.T) {
	db := pandaFixture()
	seedPandaHomework(db, "hw-1", models.ContentTraditional)
	locker := &lockerStub{err: repository.ErrLockHeld}
	svc, _ := newSubmissionServiceForTest(db, locker)

	_, err := svc.Submit(context.Background(), claimsFor("parent-1", models.RoleParent), dto.SubmitHomeworkRequest{HomeworkID: "hw-1", ChildID: "child-x", AnswerText: strPtr("done")})
	assert.ErrorIs(t, err, appErrors.ErrSubmissionInProgress)
	assert.Equal(t, []string{repository.SubmissionLockKey("hw-1", "child-x")}, locker.keys)
	assert.Empty(t, db.submissions)
}

func TestSubmitProceedsWhenLockUnavailable(t *testing.T) {
	db := pandaFixture()
	seedPandaHomework(db, "hw-1", models.ContentTraditional)
	svc, _ := newSubmissionServiceForTest(db, &lockerStub{err: errors.New("redis down")})

	_, err := svc.Submit(context.Background(), claimsFor("parent-1", models.RoleParent), dto.SubmitHomeworkRequest{HomeworkID: "hw-1", ChildID: "child-x", AnswerText: strPtr("done")})
	require.NoError(t, err)
	assert.Equal(t, 1, db.submissionCount("hw-1", "child-x"))
}

func TestSubmitReleasesLock(t *testing.T) {
	db := pandaFixture()
	seedPandaHomework(db, "hw-1", models.ContentTraditional)
	locker := &lockerStub{}
	svc, _ := newSubmissionServiceForTest(db, locker)

	_, err := svc.Submit(context.Background(), claimsFor("parent-1", models.RoleParent), dto.SubmitHomeworkRequest{HomeworkID: "hw-1", ChildID: "child-x", AnswerText: strPtr("done")})
	require.NoError(t, err)
	assert.Equal(t, 1, locker.released)
}

func TestGradeSubmission(t *testing.T) {
	db := pandaFixture()
	db.addHomework(models.Homework{
		ID: "hw-i", Title: "Solo", DueDate: fixedNow, TeacherID: "teacher-t", ClassID: strPtr("class-panda"),
		AssignmentType: models.AssignmentIndividual, Status: models.HomeworkActive,
	}, "child-x")
	db.submissions["sub-1"] = &models.Submission{ID: "sub-1", HomeworkID: "hw-i", ChildID: "child-x", ParentID: "parent-1", Status: models.SubmissionSubmitted, SubmittedAt: fixedNow}
	svc, notifier := newSubmissionServiceForTest(db, nil)
	ctx := context.Background()

	score := 95.0
	graded, err := svc.Grade(ctx, claimsFor("teacher-t", models.RoleTeacher), "sub-1", dto.GradeSubmissionRequest{Score: &score, Grade: strPtr("A"), Feedback: strPtr("Lovely")})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionGraded, graded.Status)
	assert.Equal(t, fixedNow, *graded.GradedAt)
	assert.Equal(t, models.SubmissionGraded, db.submissions["sub-1"].Status)
	assert.Equal(t, []string{"evt-grade-sub-1"}, notifier.ids)

	var payload models.HomeworkGradedPayload
	require.NoError(t, json.Unmarshal(db.events[0].Payload, &payload))
	assert.Equal(t, "parent-1", payload.ParentID)
	assert.Equal(t, "A", payload.Grade)

	regraded, err := svc.Grade(ctx, claimsFor("admin-1", models.RoleAdmin), "sub-1", dto.GradeSubmissionRequest{Grade: strPtr("A+")})
	require.NoError(t, err)
	assert.Equal(t, "A+", *regraded.Grade)
	require.NotNil(t, regraded.Score)
	assert.Equal(t, 95.0, *regraded.Score, "omitted score keeps the previous value")
	assert.Equal(t, "Lovely", *regraded.Feedback)
	stored := db.submissions["sub-1"]
	assert.Equal(t, 95.0, *stored.Score)
	assert.Equal(t, "A+", *stored.Grade)
	assert.Equal(t, "Lovely", *stored.Feedback)

	_, err = svc.Grade(ctx, claimsFor("teacher-h", models.RoleTeacher), "sub-1", dto.GradeSubmissionRequest{Grade: strPtr("B")})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Grade(ctx, claimsFor("teacher-t", models.RoleTeacher), "sub-1", dto.GradeSubmissionRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	tooHigh := 150.0
	_, err = svc.Grade(ctx, claimsFor("teacher-t", models.RoleTeacher), "sub-1", dto.GradeSubmissionRequest{Score: &tooHigh})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Grade(ctx, claimsFor("teacher-t", models.RoleTeacher), "missing", dto.GradeSubmissionRequest{Grade: strPtr("B")})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
