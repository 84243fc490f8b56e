package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	"github.com/noah-isme/preschool-homework-api/internal/repository"
)

// memoryDB is an in-memory stand-in for the homework tables, used to exercise the services
// end to end without SQL.
type memoryDB struct {
	mu          sync.Mutex
	homework    map[string]*models.Homework
	assignments map[string][]models.HomeworkIndividualAssignment
	submissions map[string]*models.Submission
	completions map[string]string
	children    map[string]*models.Child
	staff       map[string]*models.Staff
	classes     map[string]*models.Class
	events      []*models.OutboxEvent

	createErr error
	listErr   error
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		homework:    map[string]*models.Homework{},
		assignments: map[string][]models.HomeworkIndividualAssignment{},
		submissions: map[string]*models.Submission{},
		completions: map[string]string{},
		children:    map[string]*models.Child{},
		staff:       map[string]*models.Staff{},
		classes:     map[string]*models.Class{},
	}
}

func (db *memoryDB) addClass(id, name string) {
	db.classes[id] = &models.Class{ID: id, Name: name}
}

func (db *memoryDB) addChild(id, name, classID, parentID string) {
	child := &models.Child{ID: id, Name: name, ParentID: parentID}
	if classID != "" {
		child.ClassID = strPtr(classID)
		if class, ok := db.classes[classID]; ok {
			child.ClassName = strPtr(class.Name)
		}
	}
	db.children[id] = child
}

func (db *memoryDB) addTeacher(id, name, classID string) {
	teacher := &models.Staff{ID: id, Name: name, Role: models.StaffRoleTeacher}
	if classID != "" {
		teacher.ClassID = strPtr(classID)
		if class, ok := db.classes[classID]; ok {
			teacher.ClassName = strPtr(class.Name)
		}
	}
	db.staff[id] = teacher
}

func (db *memoryDB) addHomework(hw models.Homework, childIDs ...string) {
	cp := hw
	db.homework[hw.ID] = &cp
	for _, childID := range childIDs {
		db.assignments[hw.ID] = append(db.assignments[hw.ID], models.HomeworkIndividualAssignment{
			ID: hw.ID + "-" + childID, HomeworkID: hw.ID, ChildID: childID, Status: models.IndividualAssigned,
		})
	}
}

func (db *memoryDB) assigned(homeworkID, childID string) bool {
	for _, a := range db.assignments[homeworkID] {
		if a.ChildID == childID {
			return true
		}
	}
	return false
}

func pairKey(homeworkID, childID string) string { return homeworkID + "|" + childID }

func (db *memoryDB) submissionFor(homeworkID, childID string) *models.Submission {
	for _, sub := range db.submissions {
		if sub.HomeworkID == homeworkID && sub.ChildID == childID {
			return sub
		}
	}
	return nil
}

func (db *memoryDB) submissionCount(homeworkID, childID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	count := 0
	for _, sub := range db.submissions {
		if sub.HomeworkID == homeworkID && sub.ChildID == childID {
			count++
		}
	}
	return count
}

type memoryHomework struct{ db *memoryDB }

func (m memoryHomework) ListVisibleForChild(ctx context.Context, childID string, classID *string) ([]dto.VisibleHomeworkRow, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.listErr != nil {
		return nil, m.db.listErr
	}
	var rows []dto.VisibleHomeworkRow
	for _, hw := range m.db.homework {
		if hw.Status == models.HomeworkArchived {
			continue
		}
		classMatch := hw.AssignmentType == models.AssignmentClass && classID != nil && hw.ClassID != nil && *hw.ClassID == *classID
		individual := hw.AssignmentType == models.AssignmentIndividual && m.db.assigned(hw.ID, childID)
		if !classMatch && !individual {
			continue
		}
		row := dto.VisibleHomeworkRow{
			ID: hw.ID, Title: hw.Title, Description: hw.Description, DueDate: hw.DueDate,
			TeacherID: hw.TeacherID, ClassID: hw.ClassID, AssignmentType: hw.AssignmentType,
			ContentType: hw.ContentType, Status: hw.Status,
		}
		if sub := m.db.submissionFor(hw.ID, childID); sub != nil {
			status := string(sub.Status)
			submittedAt := sub.SubmittedAt
			row.SubmissionID = strPtr(sub.ID)
			row.SubmissionStatus = &status
			row.SubmittedAt = &submittedAt
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (m memoryHomework) ListForTeacher(ctx context.Context, teacherID, classID string) ([]dto.TeacherHomeworkRow, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var rows []dto.TeacherHomeworkRow
	for _, hw := range m.db.homework {
		if hw.TeacherID != teacherID && (hw.ClassID == nil || *hw.ClassID != classID) {
			continue
		}
		row := dto.TeacherHomeworkRow{Homework: *hw}
		for _, sub := range m.db.submissions {
			if sub.HomeworkID != hw.ID {
				continue
			}
			row.SubmittedCount++
			if sub.Status == models.SubmissionGraded {
				row.GradedCount++
			}
		}
		if hw.AssignmentType == models.AssignmentIndividual {
			row.TargetCount = len(m.db.assignments[hw.ID])
		} else {
			for _, child := range m.db.children {
				if child.ClassID != nil && hw.ClassID != nil && *child.ClassID == *hw.ClassID {
					row.TargetCount++
				}
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DueDate.Before(rows[j].DueDate) })
	return rows, nil
}

func (m memoryHomework) FindByID(ctx context.Context, id string) (*models.Homework, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	hw, ok := m.db.homework[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *hw
	return &cp, nil
}

func (m memoryHomework) ListAssignments(ctx context.Context, homeworkID string) ([]models.HomeworkIndividualAssignment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.assignments[homeworkID], nil
}

func (m memoryHomework) HasAssignment(ctx context.Context, homeworkID, childID string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.assigned(homeworkID, childID), nil
}

func (m memoryHomework) Create(ctx context.Context, hw *models.Homework, childIDs []string, event *models.OutboxEvent) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.createErr != nil {
		return m.db.createErr
	}
	hw.CreatedAt = time.Now().UTC()
	hw.UpdatedAt = hw.CreatedAt
	m.db.addHomework(*hw, childIDs...)
	if event != nil {
		event.ID = "evt-" + hw.ID
		event.AggregateID = hw.ID
		m.db.events = append(m.db.events, event)
	}
	return nil
}

func (m memoryHomework) Update(ctx context.Context, hw *models.Homework) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *hw
	m.db.homework[hw.ID] = &cp
	return nil
}

func (m memoryHomework) Delete(ctx context.Context, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.homework, id)
	delete(m.db.assignments, id)
	for key, sub := range m.db.submissions {
		if sub.HomeworkID == id {
			delete(m.db.submissions, key)
		}
	}
	return nil
}

type memorySubmissions struct{ db *memoryDB }

func (m memorySubmissions) Create(ctx context.Context, params repository.CreateSubmissionParams) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	sub := params.Submission
	if m.db.submissionFor(sub.HomeworkID, sub.ChildID) != nil {
		return repository.ErrDuplicateSubmission
	}
	cp := *sub
	m.db.submissions[sub.ID] = &cp
	if len(params.Answers) > 0 {
		m.db.completions[pairKey(sub.HomeworkID, sub.ChildID)] = string(params.Answers)
	}
	if params.MarkAssignment {
		for i, a := range m.db.assignments[sub.HomeworkID] {
			if a.ChildID == sub.ChildID {
				m.db.assignments[sub.HomeworkID][i].Status = models.IndividualSubmitted
			}
		}
	}
	if params.Event != nil {
		params.Event.ID = "evt-" + sub.ID
		params.Event.AggregateID = sub.ID
		m.db.events = append(m.db.events, params.Event)
	}
	return nil
}

func (m memorySubmissions) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	sub, ok := m.db.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *sub
	return &cp, nil
}

func (m memorySubmissions) Grade(ctx context.Context, params repository.GradeParams) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	sub, ok := m.db.submissions[params.SubmissionID]
	if !ok {
		return sql.ErrNoRows
	}
	sub.Status = models.SubmissionGraded
	if params.Score != nil {
		sub.Score = params.Score
	}
	if params.Grade != nil {
		sub.Grade = params.Grade
	}
	if params.Feedback != nil {
		sub.Feedback = params.Feedback
	}
	gradedAt := params.GradedAt
	sub.GradedAt = &gradedAt
	if params.Event != nil {
		params.Event.ID = "evt-grade-" + sub.ID
		params.Event.AggregateID = sub.ID
		m.db.events = append(m.db.events, params.Event)
	}
	return nil
}

func (m memorySubmissions) ListByHomework(ctx context.Context, homeworkID string) ([]dto.SubmissionDetail, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []dto.SubmissionDetail
	for _, sub := range m.db.submissions {
		if sub.HomeworkID != homeworkID {
			continue
		}
		detail := dto.SubmissionDetail{Submission: *sub}
		if child, ok := m.db.children[sub.ChildID]; ok {
			detail.ChildName = child.Name
		}
		out = append(out, detail)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChildName < out[j].ChildName })
	return out, nil
}

func (m memorySubmissions) ListTargets(ctx context.Context, hw *models.Homework) ([]dto.StudentStatus, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []dto.StudentStatus
	for _, child := range m.db.children {
		targeted := false
		if hw.AssignmentType == models.AssignmentIndividual {
			targeted = m.db.assigned(hw.ID, child.ID)
		} else {
			targeted = hw.ClassID != nil && child.ClassID != nil && *hw.ClassID == *child.ClassID
		}
		if !targeted {
			continue
		}
		status := dto.StudentStatus{ChildID: child.ID, ChildName: child.Name, ParentID: child.ParentID}
		if sub := m.db.submissionFor(hw.ID, child.ID); sub != nil {
			raw := string(sub.Status)
			submittedAt := sub.SubmittedAt
			status.SubmissionID = strPtr(sub.ID)
			status.RawStatus = &raw
			status.SubmittedAt = &submittedAt
			status.Grade = sub.Grade
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChildName < out[j].ChildName })
	return out, nil
}

type memoryChildren struct{ db *memoryDB }

func (m memoryChildren) FindByID(ctx context.Context, id string) (*models.Child, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	child, ok := m.db.children[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *child
	return &cp, nil
}

func (m memoryChildren) FindByIDs(ctx context.Context, ids []string) ([]models.Child, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Child
	for _, id := range ids {
		if child, ok := m.db.children[id]; ok {
			out = append(out, *child)
		}
	}
	return out, nil
}

func (m memoryChildren) ListByParent(ctx context.Context, parentID string) ([]models.ChildSummary, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.ChildSummary
	for _, child := range m.db.children {
		if child.ParentID == parentID {
			out = append(out, models.ChildSummary{ID: child.ID, Name: child.Name, ClassID: child.ClassID, ClassName: child.ClassName})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memoryStaff struct{ db *memoryDB }

func (m memoryStaff) FindByID(ctx context.Context, id string) (*models.Staff, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	staff, ok := m.db.staff[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *staff
	return &cp, nil
}

type memoryClasses struct{ db *memoryDB }

func (m memoryClasses) FindByID(ctx context.Context, id string) (*models.Class, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	class, ok := m.db.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *class
	return &cp, nil
}

func (m memoryClasses) FindByName(ctx context.Context, name string) (*models.Class, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, class := range m.db.classes {
		if class.Name == name {
			cp := *class
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memoryClasses) List(ctx context.Context) ([]models.Class, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Class
	for _, class := range m.db.classes {
		out = append(out, *class)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type notifierStub struct {
	mu  sync.Mutex
	ids []string
}

func (n *notifierStub) Notify(eventID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, eventID)
}

type lockerStub struct {
	err      error
	keys     []string
	released int
}

func (l *lockerStub) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	return func() { l.released++ }, nil
}

func strPtr(v string) *string { return &v }

func claimsFor(userID string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: role}
}

// pandaFixture seeds two classes, a teacher for Panda, three parents and four children.
func pandaFixture() *memoryDB {
	db := newMemoryDB()
	db.addClass("class-panda", "Panda")
	db.addClass("class-hawks", "Hawks")
	db.addTeacher("teacher-t", "Teacher T", "class-panda")
	db.addTeacher("teacher-h", "Teacher H", "class-hawks")
	db.staff["admin-1"] = &models.Staff{ID: "admin-1", Name: "Admin", Role: models.StaffRoleAdmin}
	db.addChild("child-x", "Xena", "class-panda", "parent-1")
	db.addChild("child-z", "Zack", "class-panda", "parent-2")
	db.addChild("child-w", "Wren", "class-panda", "parent-1")
	db.addChild("child-v", "Vera", "class-panda", "parent-3")
	db.addChild("child-y", "Yuri", "class-hawks", "parent-4")
	return db
}
