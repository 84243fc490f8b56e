package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	appErrors "github.com/noah-isme/preschool-homework-api/pkg/errors"
	"github.com/noah-isme/preschool-homework-api/pkg/export"
)

type submissionsReviewer interface {
	ListSubmissions(ctx context.Context, claims *models.JWTClaims, homeworkID string) (*dto.HomeworkSubmissionsResponse, error)
}

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// Export formats.
const (
	ExportCSV = "csv"
	ExportPDF = "pdf"
)

// ExportFile is a rendered document ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the submission overview of a homework as CSV or PDF.
type ExportService struct {
	reviewer  submissionsReviewer
	renderers map[string]renderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService with the default renderers.
func NewExportService(reviewer submissionsReviewer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		reviewer: reviewer,
		renderers: map[string]renderer{
			ExportCSV: export.NewCSVExporter(),
			ExportPDF: export.NewPDFExporter(),
		},
		logger: logger,
	}
}

var submissionColumns = []export.Column{
	{Key: "child", Label: "Child"},
	{Key: "status", Label: "Status"},
	{Key: "submitted_at", Label: "Submitted At"},
	{Key: "score", Label: "Score"},
	{Key: "grade", Label: "Grade"},
	{Key: "feedback", Label: "Feedback"},
}

// ExportSubmissions renders one row per targeted child with their submission status.
func (s *ExportService) ExportSubmissions(ctx context.Context, claims *models.JWTClaims, homeworkID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportCSV
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	overview, err := s.reviewer.ListSubmissions(ctx, claims, homeworkID)
	if err != nil {
		return nil, err
	}

	data, err := r.Render(submissionDataset(overview))
	if err != nil {
		s.logger.Error("render submissions export failed", zap.String("homework_id", homeworkID), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to render export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("homework-%s-submissions.%s", overview.Homework.ID, r.Extension()),
		ContentType: r.ContentType(),
		Data:        data,
	}, nil
}

func submissionDataset(overview *dto.HomeworkSubmissionsResponse) export.Dataset {
	byChild := make(map[string]dto.SubmissionDetail, len(overview.Submissions))
	for _, sub := range overview.Submissions {
		byChild[sub.ChildID] = sub
	}

	rows := make([]map[string]string, 0, len(overview.StudentsWithStatus))
	for _, target := range overview.StudentsWithStatus {
		row := map[string]string{
			"child":  target.ChildName,
			"status": string(target.Status),
		}
		if sub, ok := byChild[target.ChildID]; ok {
			row["submitted_at"] = sub.SubmittedAt.Format("2006-01-02 15:04")
			if sub.Score != nil {
				row["score"] = strconv.FormatFloat(*sub.Score, 'f', -1, 64)
			}
			row["grade"] = deref(sub.Grade)
			row["feedback"] = deref(sub.Feedback)
		}
		rows = append(rows, row)
	}

	return export.Dataset{
		Title:   "Submissions: " + overview.Homework.Title,
		Columns: submissionColumns,
		Rows:    rows,
	}
}
