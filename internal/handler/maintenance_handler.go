package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	appErrors "github.com/noah-isme/preschool-homework-api/pkg/errors"
	"github.com/noah-isme/preschool-homework-api/pkg/response"
)

type classRepairer interface {
	RepairHomeworkClasses(ctx context.Context, dryRun bool) (*dto.RepairHomeworkClassesResult, error)
}

// MaintenanceHandler exposes admin data repair jobs.
type MaintenanceHandler struct {
	service classRepairer
}

// NewMaintenanceHandler builds a new handler.
func NewMaintenanceHandler(service classRepairer) *MaintenanceHandler {
	return &MaintenanceHandler{service: service}
}

// RepairHomeworkClasses godoc
// @Summary Fill missing homework classes
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.RepairRequest false "Dry run toggle"
// @Success 200 {object} response.Envelope{data=dto.RepairHomeworkClassesResult}
// @Router /admin/homework/repair-classes [post]
func (h *MaintenanceHandler) RepairHomeworkClasses(c *gin.Context) {
	var req dto.RepairRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid repair payload"))
			return
		}
	}
	result, err := h.service.RepairHomeworkClasses(c.Request.Context(), req.DryRun)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
