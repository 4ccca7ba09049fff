package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sd-enrollment-api/internal/dto"
	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/internal/service"
	"github.com/noah-isme/sd-enrollment-api/pkg/response"
)

type snapshotService interface {
	TakeSnapshot(ctx context.Context, req dto.CreateSnapshotRequest, actor string) (*models.SnapshotGroup, error)
	List(ctx context.Context) ([]models.SnapshotGroup, error)
	Get(ctx context.Context, id string) (*models.SnapshotDetail, error)
	Delete(ctx context.Context, id, actor string) error
	Export(ctx context.Context, id, format, sectionID string) (*service.ExportedDocument, error)
}

// SnapshotHandler exposes roster snapshots.
type SnapshotHandler struct {
	snapshots snapshotService
}

// NewSnapshotHandler constructs SnapshotHandler.
func NewSnapshotHandler(snapshots snapshotService) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

// Create godoc
// @Summary Take a roster snapshot
// @Tags Snapshots
// @Accept json
// @Produce json
// @Param payload body dto.CreateSnapshotRequest true "Snapshot name"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /snapshots [post]
func (h *SnapshotHandler) Create(c *gin.Context) {
	var req dto.CreateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	group, err := h.snapshots.TakeSnapshot(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// List godoc
// @Summary List roster snapshots
// @Tags Snapshots
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /snapshots [get]
func (h *SnapshotHandler) List(c *gin.Context) {
	groups, err := h.snapshots.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Get godoc
// @Summary Get a snapshot with its sections and students
// @Tags Snapshots
// @Produce json
// @Param id path string true "Snapshot ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /snapshots/{id} [get]
func (h *SnapshotHandler) Get(c *gin.Context) {
	detail, err := h.snapshots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Delete a snapshot
// @Tags Snapshots
// @Param id path string true "Snapshot ID"
// @Success 204
// @Security BearerAuth
// @Router /snapshots/{id} [delete]
func (h *SnapshotHandler) Delete(c *gin.Context) {
	if err := h.snapshots.Delete(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Download a snapshot roster
// @Tags Snapshots
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Snapshot ID"
// @Param format query string false "csv (default) or pdf"
// @Param section_id query string false "Limit to one section"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /snapshots/{id}/export [get]
func (h *SnapshotHandler) Export(c *gin.Context) {
	doc, err := h.snapshots.Export(c.Request.Context(), c.Param("id"), c.Query("format"), c.Query("section_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, doc.Filename, doc.ContentType, doc.Body)
}
