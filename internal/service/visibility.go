package service

import (
	"sort"
	"time"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
)

// deriveChildStatus computes the per-viewer status: any submission wins over the deadline.
func deriveChildStatus(hasSubmission bool, dueDate, now time.Time) models.DerivedStatus {
	switch {
	case hasSubmission:
		return models.DerivedSubmitted
	case now.After(dueDate):
		return models.DerivedOverdue
	default:
		return models.DerivedPending
	}
}

// buildVisibleHomework maps query rows to records, keeping one record per homework id and
// ordering by due date. When a homework appears twice the row carrying a submission is kept.
func buildVisibleHomework(rows []dto.VisibleHomeworkRow, now time.Time) []dto.VisibleHomework {
	index := make(map[string]int, len(rows))
	result := make([]dto.VisibleHomework, 0, len(rows))
	for _, row := range rows {
		item := toVisibleHomework(row, now)
		if pos, seen := index[row.ID]; seen {
			if result[pos].SubmissionID == nil && item.SubmissionID != nil {
				result[pos] = item
			}
			continue
		}
		index[row.ID] = len(result)
		result = append(result, item)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].DueDate.Equal(result[j].DueDate) {
			return result[i].ID < result[j].ID
		}
		return result[i].DueDate.Before(result[j].DueDate)
	})
	return result
}

func toVisibleHomework(row dto.VisibleHomeworkRow, now time.Time) dto.VisibleHomework {
	return dto.VisibleHomework{
		ID:               row.ID,
		Title:            row.Title,
		Description:      row.Description,
		DueDate:          row.DueDate,
		TeacherID:        row.TeacherID,
		TeacherName:      deref(row.TeacherName),
		ClassID:          deref(row.ClassID),
		ClassName:        deref(row.ClassName),
		AssignmentType:   row.AssignmentType,
		ContentType:      row.ContentType,
		HomeworkStatus:   row.Status,
		Status:           deriveChildStatus(row.SubmissionID != nil, row.DueDate, now),
		SubmissionID:     row.SubmissionID,
		SubmissionStatus: row.SubmissionStatus,
		SubmittedAt:      row.SubmittedAt,
		FileURL:          row.FileURL,
		AnswerText:       row.AnswerText,
		Score:            row.Score,
		Grade:            row.Grade,
		Feedback:         row.Feedback,
	}
}

func countStatuses(items []dto.VisibleHomework) dto.StatusCounts {
	var counts dto.StatusCounts
	for _, item := range items {
		switch item.Status {
		case models.DerivedPending:
			counts.Pending++
		case models.DerivedSubmitted:
			counts.Submitted++
		case models.DerivedOverdue:
			counts.Overdue++
		}
	}
	return counts
}

func filterVisibleHomework(items []dto.VisibleHomework, filter dto.HomeworkStatusFilter) []dto.VisibleHomework {
	if filter == dto.FilterAll || filter == "" {
		return items
	}
	filtered := make([]dto.VisibleHomework, 0, len(items))
	for _, item := range items {
		if string(item.Status) == string(filter) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// deriveTeacherStatus passes completed/archived through and otherwise reports the deadline state.
func deriveTeacherStatus(status models.HomeworkStatus, dueDate, now time.Time) models.DerivedStatus {
	switch status {
	case models.HomeworkCompleted:
		return models.DerivedCompleted
	case models.HomeworkArchived:
		return models.DerivedArchived
	}
	if now.After(dueDate) {
		return models.DerivedOverdue
	}
	return models.DerivedPending
}

// matchesTeacherFilter applies a listing filter to a teacher's homework; "submitted" selects
// homework every targeted child has submitted.
func matchesTeacherFilter(item dto.TeacherHomework, filter dto.HomeworkStatusFilter) bool {
	switch filter {
	case dto.FilterAll, "":
		return true
	case dto.FilterSubmitted:
		return item.TargetCount > 0 && item.SubmittedCount >= item.TargetCount
	default:
		return string(item.DerivedStatus) == string(filter)
	}
}

// deriveTargetStatus reports a targeted child's status on the teacher's submissions view.
func deriveTargetStatus(target dto.StudentStatus, dueDate, now time.Time) models.DerivedStatus {
	if target.SubmissionID != nil {
		if target.RawStatus != nil && *target.RawStatus == string(models.SubmissionGraded) {
			return models.DerivedGraded
		}
		return models.DerivedSubmitted
	}
	return deriveChildStatus(false, dueDate, now)
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
