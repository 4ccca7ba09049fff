package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sd-enrollment-api/internal/dto"
	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/pkg/response"
)

type sectionService interface {
	Create(ctx context.Context, req dto.CreateSectionRequest, actor string) (*models.Section, error)
	Get(ctx context.Context, id string) (*models.Section, error)
	List(ctx context.Context, gradeLevel string, includeArchived bool) ([]models.Section, error)
	Update(ctx context.Context, id string, req dto.UpdateSectionRequest, actor string) (*models.Section, error)
	Archive(ctx context.Context, id, actor string) error
	Recount(ctx context.Context, id string) (*models.SectionDrift, error)
	RecountAll(ctx context.Context) ([]models.SectionDrift, error)
}

// SectionHandler exposes section administration.
type SectionHandler struct {
	sections sectionService
}

// NewSectionHandler constructs SectionHandler.
func NewSectionHandler(sections sectionService) *SectionHandler {
	return &SectionHandler{sections: sections}
}

// List godoc
// @Summary List sections
// @Tags Sections
// @Produce json
// @Param grade_level query string false "Filter by grade level"
// @Param include_archived query bool false "Include archived sections"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	includeArchived, _ := strconv.ParseBool(c.DefaultQuery("include_archived", "false"))
	sections, err := h.sections.List(c.Request.Context(), c.Query("grade_level"), includeArchived)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, nil)
}

// Get godoc
// @Summary Get section detail
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id} [get]
func (h *SectionHandler) Get(c *gin.Context) {
	section, err := h.sections.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Create godoc
// @Summary Create section
// @Tags Sections
// @Accept json
// @Produce json
// @Param payload body dto.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /sections [post]
func (h *SectionHandler) Create(c *gin.Context) {
	var req dto.CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	section, err := h.sections.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, section)
}

// Update godoc
// @Summary Update section capacity and adviser
// @Tags Sections
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body dto.UpdateSectionRequest true "Section payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id} [put]
func (h *SectionHandler) Update(c *gin.Context) {
	var req dto.UpdateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	section, err := h.sections.Update(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Archive godoc
// @Summary Archive an empty section
// @Tags Sections
// @Param id path string true "Section ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id} [delete]
func (h *SectionHandler) Archive(c *gin.Context) {
	if err := h.sections.Archive(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Recount godoc
// @Summary Recompute a section's student count
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id}/recount [post]
func (h *SectionHandler) Recount(c *gin.Context) {
	drift, err := h.sections.Recount(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, drift, nil)
}

// RecountAll godoc
// @Summary Integrity sweep over every section
// @Description Returns the sections whose stored count was corrected.
// @Tags Sections
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/recount [post]
func (h *SectionHandler) RecountAll(c *gin.Context) {
	drifts, err := h.sections.RecountAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, drifts, nil, map[string]interface{}{"drifted": len(drifts)})
}
