package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	"github.com/noah-isme/preschool-homework-api/internal/service"
	appErrors "github.com/noah-isme/preschool-homework-api/pkg/errors"
	"github.com/noah-isme/preschool-homework-api/pkg/response"
)

type homeworkService interface {
	ListForChild(ctx context.Context, claims *models.JWTClaims, childID, status string) (*dto.ChildHomeworkResponse, error)
	ListForTeacher(ctx context.Context, claims *models.JWTClaims, teacherID, status string) (*dto.TeacherHomeworkResponse, error)
	Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateHomeworkRequest) (*dto.CreateHomeworkResponse, error)
	Get(ctx context.Context, claims *models.JWTClaims, id string) (*dto.HomeworkDetail, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateHomeworkRequest) (*models.Homework, error)
	Delete(ctx context.Context, claims *models.JWTClaims, id string) error
	ListSubmissions(ctx context.Context, claims *models.JWTClaims, homeworkID string) (*dto.HomeworkSubmissionsResponse, error)
}

type submissionExporter interface {
	ExportSubmissions(ctx context.Context, claims *models.JWTClaims, homeworkID, format string) (*service.ExportFile, error)
}

// HomeworkHandler exposes homework endpoints for parents, teachers and admins.
type HomeworkHandler struct {
	service  homeworkService
	exporter submissionExporter
}

// NewHomeworkHandler builds a new handler.
func NewHomeworkHandler(service homeworkService, exporter submissionExporter) *HomeworkHandler {
	return &HomeworkHandler{service: service, exporter: exporter}
}

// ListForChild godoc
// @Summary List homework visible to a child
// @Description Each homework carries the child's derived status (pending, submitted, overdue).
// @Tags Homework
// @Produce json
// @Param childId query string true "Child ID"
// @Param status query string false "all | pending | submitted | overdue"
// @Success 200 {object} response.Envelope{data=dto.ChildHomeworkResponse}
// @Failure 403 {object} response.Envelope
// @Router /parent/homework [get]
func (h *HomeworkHandler) ListForChild(c *gin.Context) {
	resp, err := h.service.ListForChild(c.Request.Context(), claimsFromContext(c), c.Query("childId"), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// ListForTeacher godoc
// @Summary List homework of a teacher's class
// @Tags Homework
// @Produce json
// @Param teacherId query string false "Teacher ID (defaults to caller)"
// @Param status query string false "all | pending | submitted | overdue"
// @Success 200 {object} response.Envelope{data=dto.TeacherHomeworkResponse}
// @Router /teacher/homework [get]
func (h *HomeworkHandler) ListForTeacher(c *gin.Context) {
	resp, err := h.service.ListForTeacher(c.Request.Context(), claimsFromContext(c), c.Query("teacherId"), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Create godoc
// @Summary Create homework
// @Tags Homework
// @Accept json
// @Produce json
// @Param payload body dto.CreateHomeworkRequest true "Homework payload"
// @Success 201 {object} response.Envelope{data=dto.CreateHomeworkResponse}
// @Failure 400 {object} response.Envelope
// @Router /homework [post]
func (h *HomeworkHandler) Create(c *gin.Context) {
	var req dto.CreateHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid homework payload"))
		return
	}
	resp, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "homework created", resp)
}

// Get godoc
// @Summary Get homework detail
// @Tags Homework
// @Produce json
// @Param id path string true "Homework ID"
// @Success 200 {object} response.Envelope{data=dto.HomeworkDetail}
// @Failure 404 {object} response.Envelope
// @Router /homework/{id} [get]
func (h *HomeworkHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Update homework
// @Tags Homework
// @Accept json
// @Produce json
// @Param id path string true "Homework ID"
// @Param payload body dto.UpdateHomeworkRequest true "Fields to change"
// @Success 200 {object} response.Envelope{data=models.Homework}
// @Router /homework/{id} [put]
func (h *HomeworkHandler) Update(c *gin.Context) {
	var req dto.UpdateHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid homework payload"))
		return
	}
	homework, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, homework, nil)
}

// Delete godoc
// @Summary Delete homework with its submissions
// @Tags Homework
// @Param id path string true "Homework ID"
// @Success 204
// @Router /homework/{id} [delete]
func (h *HomeworkHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSubmissions godoc
// @Summary List submissions and per-child status for a homework
// @Tags Submissions
// @Produce json
// @Param id path string true "Homework ID"
// @Success 200 {object} response.Envelope{data=dto.HomeworkSubmissionsResponse}
// @Router /homework/{id}/submissions [get]
func (h *HomeworkHandler) ListSubmissions(c *gin.Context) {
	resp, err := h.service.ListSubmissions(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// ExportSubmissions godoc
// @Summary Download the submissions of a homework
// @Tags Submissions
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Homework ID"
// @Param format query string false "csv | pdf"
// @Success 200 {file} file
// @Router /homework/{id}/submissions/export [get]
func (h *HomeworkHandler) ExportSubmissions(c *gin.Context) {
	file, err := h.exporter.ExportSubmissions(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
