package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unicampus/credits-api/internal/service"
	appErrors "github.com/unicampus/credits-api/pkg/errors"
	"github.com/unicampus/credits-api/pkg/response"
)

// GradeHandler exposes grading endpoints for professors.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Roster godoc
// @Summary List active enrollments in a group
// @Tags Grades
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/roster [get]
func (h *GradeHandler) Roster(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	roster, err := h.grades.Roster(c.Request.Context(), claims.ProfessorID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// Assign godoc
// @Summary Record a grade for an enrollment
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.AssignGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Assign(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.AssignGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.Assign(c.Request.Context(), claims.ProfessorID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// Update godoc
// @Summary Correct a previously recorded grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path int true "Grade ID"
// @Param payload body service.UpdateGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /grades/{id} [put]
func (h *GradeHandler) Update(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.Update(c.Request.Context(), claims.ProfessorID, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// CloseGroup godoc
// @Summary Close a group, completing every active enrollment
// @Tags Grades
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/close [post]
func (h *GradeHandler) CloseGroup(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	completed, err := h.grades.CloseGroup(c.Request.Context(), claims.ProfessorID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"completed_enrollments": completed}, nil)
}
