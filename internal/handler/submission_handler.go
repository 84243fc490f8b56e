package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	appErrors "github.com/noah-isme/preschool-homework-api/pkg/errors"
	"github.com/noah-isme/preschool-homework-api/pkg/response"
)

type submissionService interface {
	Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitHomeworkRequest) (*dto.SubmitHomeworkResponse, error)
	Grade(ctx context.Context, claims *models.JWTClaims, submissionID string, req dto.GradeSubmissionRequest) (*models.Submission, error)
}

// SubmissionHandler handles parent submissions and teacher grading.
type SubmissionHandler struct {
	service submissionService
}

// NewSubmissionHandler builds a new handler.
func NewSubmissionHandler(service submissionService) *SubmissionHandler {
	return &SubmissionHandler{service: service}
}

// Submit godoc
// @Summary Submit homework for a child
// @Description At most one submission exists per homework and child; repeats return 409 ALREADY_SUBMITTED.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Homework ID"
// @Param payload body dto.SubmitHomeworkRequest true "Submission payload"
// @Success 201 {object} response.Envelope{data=dto.SubmitHomeworkResponse}
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /homework/{id}/submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	var req dto.SubmitHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	if id := c.Param("id"); id != "" {
		req.HomeworkID = id
	}
	resp, err := h.service.Submit(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "homework submitted", resp)
}

// Grade godoc
// @Summary Grade a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.GradeSubmissionRequest true "Grade payload"
// @Success 200 {object} response.Envelope{data=models.Submission}
// @Router /submissions/{id}/grade [put]
func (h *SubmissionHandler) Grade(c *gin.Context) {
	var req dto.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}
	submission, err := h.service.Grade(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}
