package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sd-enrollment-api/internal/dto"
	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/pkg/response"
)

type enrollmentService interface {
	Submit(ctx context.Context, payload dto.ApplicantPayload) (*models.EnrollmentRequest, error)
	StatusByToken(ctx context.Context, token string) (*models.RequestStatusView, error)
	Review(ctx context.Context, requestID string, req dto.ReviewEnrollmentRequest, reviewerID string) (*models.ReviewOutcome, error)
	Promote(ctx context.Context, requestID string) (*models.Student, error)
	Get(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	List(ctx context.Context, query dto.EnrollmentRequestQuery) ([]models.EnrollmentRequest, *models.Pagination, error)
	ArchiveRequest(ctx context.Context, id, actor string) (*models.EnrollmentRequest, error)
	UnarchiveRequest(ctx context.Context, id, actor string) (*models.EnrollmentRequest, error)
	CorrectApplicant(ctx context.Context, applicantID string, payload dto.ApplicantPayload, actor string) (*models.EarlyRegistration, error)
}

// EnrollmentHandler exposes the public submission endpoints and the staff
// review queue.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs an EnrollmentHandler.
func NewEnrollmentHandler(service enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: service}
}

// Submit godoc
// @Summary Submit an enrollment application
// @Description Anonymous endpoint. The returned request token is the only credential for status lookups.
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body dto.ApplicantPayload true "Applicant data"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /public/enrollments [post]
func (h *EnrollmentHandler) Submit(c *gin.Context) {
	var payload dto.ApplicantPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	request, err := h.service.Submit(c.Request.Context(), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.SubmitEnrollmentResponse{
		RequestID:    request.ID,
		RequestToken: request.RequestToken,
		Status:       string(request.Status),
	})
}

// Status godoc
// @Summary Look up an application by request token
// @Tags Enrollment
// @Produce json
// @Param token path string true "Request token (XXXX-XXXX-XXXX)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /public/enrollments/{token} [get]
func (h *EnrollmentHandler) Status(c *gin.Context) {
	view, err := h.service.StatusByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// List godoc
// @Summary List enrollment requests
// @Description Ordered by grade level, last name, first name.
// @Tags Enrollment
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param grade_level query string false "Grade level"
// @Param include_archived query bool false "Include archived requests"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollment-requests [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var query dto.EnrollmentRequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidQuery(err))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get an enrollment request
// @Tags Enrollment
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollment-requests/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Review godoc
// @Summary Approve or reject a pending request
// @Description Approval creates the student record in the same transaction. Rejection requires a reason.
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReviewEnrollmentRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollment-requests/{id}/review [post]
func (h *EnrollmentHandler) Review(c *gin.Context) {
	var req dto.ReviewEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	outcome, err := h.service.Review(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Promote godoc
// @Summary Create the student record of an approved request
// @Description Idempotent: returns the existing student when already promoted.
// @Tags Enrollment
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollment-requests/{id}/promote [post]
func (h *EnrollmentHandler) Promote(c *gin.Context) {
	student, err := h.service.Promote(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Archive godoc
// @Summary Archive an enrollment request
// @Tags Enrollment
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollment-requests/{id}/archive [post]
func (h *EnrollmentHandler) Archive(c *gin.Context) {
	request, err := h.service.ArchiveRequest(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Unarchive godoc
// @Summary Restore an archived enrollment request
// @Tags Enrollment
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollment-requests/{id}/unarchive [post]
func (h *EnrollmentHandler) Unarchive(c *gin.Context) {
	request, err := h.service.UnarchiveRequest(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// CorrectApplicant godoc
// @Summary Correct early-registration data
// @Description Submitted requests keep their own copy and are not changed.
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param id path string true "Applicant ID"
// @Param payload body dto.ApplicantPayload true "Corrected applicant data"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applicants/{id} [put]
func (h *EnrollmentHandler) CorrectApplicant(c *gin.Context) {
	var payload dto.ApplicantPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	reg, err := h.service.CorrectApplicant(c.Request.Context(), c.Param("id"), payload, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}
