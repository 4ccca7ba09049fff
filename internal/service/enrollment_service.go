package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sd-enrollment-api/internal/dto"
	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/internal/repository"
	"github.com/noah-isme/sd-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/sd-enrollment-api/pkg/errors"
	"github.com/noah-isme/sd-enrollment-api/pkg/token"
)

type enrollmentRequestStore interface {
	TokenExists(ctx context.Context, token string) (bool, error)
	Create(ctx context.Context, applicant *models.EarlyRegistration, request *models.EnrollmentRequest) error
	FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	FindByToken(ctx context.Context, token string) (*models.EnrollmentRequest, error)
	List(ctx context.Context, filter models.EnrollmentRequestFilter) ([]models.EnrollmentRequest, int, error)
	Review(ctx context.Context, params repository.ReviewParams) (*models.ReviewOutcome, error)
	Archive(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	Unarchive(ctx context.Context, id string) (*models.EnrollmentRequest, error)
}

type studentPromoter interface {
	Promote(ctx context.Context, requestID string) (*models.Student, error)
}

type applicantStore interface {
	FindByID(ctx context.Context, id string) (*models.EarlyRegistration, error)
	Update(ctx context.Context, reg *models.EarlyRegistration) error
}

type statusCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, keys ...string)
}

type notificationSink interface {
	Dispatch(n models.Notification)
}

const statusCacheKeyPrefix = "enrollment:status:"

func statusCacheKey(tok string) string {
	return statusCacheKeyPrefix + tok
}

// EnrollmentService runs the request lifecycle: submission, review,
// promotion and archival.
type EnrollmentService struct {
	requests   enrollmentRequestStore
	students   studentPromoter
	applicants applicantStore
	tokens     *token.Generator
	validator  *validator.Validate
	logger     *zap.Logger

	audit    auditWriter
	cache    statusCache
	cacheTTL time.Duration
	notify   notificationSink
	metrics  *MetricsService
	pageSize int
	now      func() time.Time
}

// EnrollmentServiceOption configures optional collaborators.
type EnrollmentServiceOption func(*EnrollmentService)

// WithEnrollmentAudit records review and archive actions.
func WithEnrollmentAudit(w auditWriter) EnrollmentServiceOption {
	return func(s *EnrollmentService) { s.audit = w }
}

// WithStatusCache caches anonymous status lookups for ttl.
func WithStatusCache(cache statusCache, ttl time.Duration) EnrollmentServiceOption {
	return func(s *EnrollmentService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithNotifications dispatches post-commit notifications.
func WithNotifications(sink notificationSink) EnrollmentServiceOption {
	return func(s *EnrollmentService) { s.notify = sink }
}

// WithEnrollmentMetrics records workflow counters.
func WithEnrollmentMetrics(m *MetricsService) EnrollmentServiceOption {
	return func(s *EnrollmentService) { s.metrics = m }
}

// WithPendingPageSize sets the default page size of request listings.
func WithPendingPageSize(size int) EnrollmentServiceOption {
	return func(s *EnrollmentService) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// NewEnrollmentService constructs the workflow service.
func NewEnrollmentService(requests enrollmentRequestStore, students studentPromoter, applicants applicantStore, tokens *token.Generator, validate *validator.Validate, logger *zap.Logger, opts ...EnrollmentServiceOption) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = dto.NewValidator()
	}
	if tokens == nil {
		tokens = token.NewGenerator(token.DefaultMaxAttempts)
	}
	svc := &EnrollmentService{
		requests:   requests,
		students:   students,
		applicants: applicants,
		tokens:     tokens,
		validator:  validate,
		logger:     logger,
		pageSize:   25,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit validates an applicant, allocates a request token and stores the
// applicant together with its pending request.
func (s *EnrollmentService) Submit(ctx context.Context, payload dto.ApplicantPayload) (*models.EnrollmentRequest, error) {
	applicant, err := s.applicantFromPayload(payload)
	if err != nil {
		return nil, err
	}

	var request *models.EnrollmentRequest
	_, err = s.tokens.Claim(ctx, s.requests.TokenExists, func(ctx context.Context, tok string) error {
		reg := &models.EarlyRegistration{Applicant: applicant}
		candidate := &models.EnrollmentRequest{RequestToken: tok}
		err := s.requests.Create(ctx, reg, candidate)
		if errors.Is(err, repository.ErrDuplicateToken) {
			s.logger.Info("request token collided at insert, retrying")
			return token.ErrTaken
		}
		if err != nil {
			return err
		}
		request = candidate
		return nil
	})
	if err != nil {
		if errors.Is(err, token.ErrExhausted) {
			return nil, appErrors.Wrap(err, appErrors.ErrTokenExhausted.Code, appErrors.ErrTokenExhausted.Status, appErrors.ErrTokenExhausted.Message)
		}
		return nil, appErrors.Storage(err, "failed to store enrollment request")
	}

	s.metrics.RecordSubmission(string(request.GradeLevel))
	s.logger.Info("enrollment request submitted", zap.String("request_id", request.ID), zap.String("grade_level", string(request.GradeLevel)))
	s.dispatch(models.NotificationSubmitted, request)
	return request, nil
}

// StatusByToken resolves the anonymous status view for a request token.
func (s *EnrollmentService) StatusByToken(ctx context.Context, raw string) (*models.RequestStatusView, error) {
	tok := token.Normalize(raw)
	if !token.Valid(tok) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "request token must look like XXXX-XXXX-XXXX")
	}

	var cached models.RequestStatusView
	if s.cache != nil && s.cache.Get(ctx, statusCacheKey(tok), &cached) {
		return &cached, nil
	}

	request, err := s.requests.FindByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
		}
		return nil, appErrors.Storage(err, "failed to load enrollment request")
	}
	view := request.StatusView()
	if s.cache != nil {
		s.cache.Set(ctx, statusCacheKey(tok), view, s.cacheTTL)
	}
	return &view, nil
}

// Review approves or rejects a pending request. Approval promotes the
// applicant to a Student in the same transaction.
func (s *EnrollmentService) Review(ctx context.Context, requestID string, req dto.ReviewEnrollmentRequest, reviewerID string) (*models.ReviewOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid review payload")
	}
	decision := models.RequestStatus(req.Decision)
	var reason *string
	if req.Reason != nil {
		if trimmed := strings.TrimSpace(*req.Reason); trimmed != "" {
			reason = &trimmed
		}
	}
	if decision == models.RequestStatusRejected && reason == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required when rejecting a request")
	}
	if decision == models.RequestStatusApproved {
		reason = nil
	}

	outcome, err := s.requests.Review(ctx, repository.ReviewParams{
		RequestID:  requestID,
		Decision:   decision,
		Reason:     reason,
		ReviewerID: reviewerID,
		ReviewedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, s.translate(err, "failed to review enrollment request")
	}

	s.metrics.RecordReview(string(decision))
	if s.cache != nil {
		s.cache.Invalidate(ctx, statusCacheKey(outcome.Request.RequestToken))
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{
		Actor:      reviewerID,
		Action:     models.AuditActionRequestReview,
		Resource:   "enrollment_request",
		ResourceID: outcome.Request.ID,
		Old:        map[string]string{"status": string(models.RequestStatusPending)},
		New:        map[string]interface{}{"status": outcome.Request.Status, "reason": outcome.Request.RejectionReason},
	})
	kind := models.NotificationApproved
	if decision == models.RequestStatusRejected {
		kind = models.NotificationRejected
	}
	s.dispatch(kind, &outcome.Request)
	return outcome, nil
}

// Promote creates the Student for an approved request, returning the
// existing one when it was already promoted.
func (s *EnrollmentService) Promote(ctx context.Context, requestID string) (*models.Student, error) {
	student, err := s.students.Promote(ctx, requestID)
	if err != nil {
		return nil, s.translate(err, "failed to promote enrollment request")
	}
	return student, nil
}

// Get returns one request for staff.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "failed to load enrollment request")
	}
	return request, nil
}

// List returns requests matching the query in review order.
func (s *EnrollmentService) List(ctx context.Context, query dto.EnrollmentRequestQuery) ([]models.EnrollmentRequest, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, validationError(err, "invalid query parameters")
	}
	filter := models.EnrollmentRequestFilter{
		Status:          models.RequestStatus(query.Status),
		IncludeArchived: query.IncludeArchived,
		Page:            query.Page,
		PageSize:        query.PageSize,
	}
	if query.GradeLevel != "" {
		grade, _ := models.ParseGradeLevel(query.GradeLevel)
		filter.GradeLevel = grade
	}
	return s.list(ctx, filter)
}

// ListPending returns the pending queue ordered by grade rank, then name.
func (s *EnrollmentService) ListPending(ctx context.Context, page, size int) ([]models.EnrollmentRequest, *models.Pagination, error) {
	return s.list(ctx, models.EnrollmentRequestFilter{Status: models.RequestStatusPending, Page: page, PageSize: size})
}

func (s *EnrollmentService) list(ctx context.Context, filter models.EnrollmentRequestFilter) ([]models.EnrollmentRequest, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = s.pageSize
	}
	items, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Storage(err, "failed to list enrollment requests")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ArchiveRequest soft-deletes a request and its early registration.
func (s *EnrollmentService) ArchiveRequest(ctx context.Context, id, actor string) (*models.EnrollmentRequest, error) {
	request, err := s.requests.Archive(ctx, id)
	if err != nil {
		return nil, s.translate(err, "failed to archive enrollment request")
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{Actor: actor, Action: models.AuditActionRequestArchive, Resource: "enrollment_request", ResourceID: id})
	if s.cache != nil {
		s.cache.Invalidate(ctx, statusCacheKey(request.RequestToken))
	}
	return request, nil
}

// UnarchiveRequest reverses ArchiveRequest.
func (s *EnrollmentService) UnarchiveRequest(ctx context.Context, id, actor string) (*models.EnrollmentRequest, error) {
	request, err := s.requests.Unarchive(ctx, id)
	if err != nil {
		return nil, s.translate(err, "failed to unarchive enrollment request")
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{Actor: actor, Action: models.AuditActionRequestUnarchive, Resource: "enrollment_request", ResourceID: id})
	if s.cache != nil {
		s.cache.Invalidate(ctx, statusCacheKey(request.RequestToken))
	}
	return request, nil
}

// CorrectApplicant fixes the early-registration row. Requests already
// submitted keep the copy they were reviewed against.
func (s *EnrollmentService) CorrectApplicant(ctx context.Context, applicantID string, payload dto.ApplicantPayload, actor string) (*models.EarlyRegistration, error) {
	applicant, err := s.applicantFromPayload(payload)
	if err != nil {
		return nil, err
	}
	current, err := s.applicants.FindByID(ctx, applicantID)
	if err != nil {
		return nil, s.translate(err, "failed to load applicant")
	}
	if current.ArchivedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "applicant is archived")
	}
	before := current.Applicant
	current.Applicant = applicant
	current.UpdatedAt = s.now().UTC()
	if err := s.applicants.Update(ctx, current); err != nil {
		return nil, s.translate(err, "failed to update applicant")
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{
		Actor:      actor,
		Action:     models.AuditActionApplicantCorrect,
		Resource:   "early_registration",
		ResourceID: applicantID,
		Old:        before,
		New:        current.Applicant,
	})
	return current, nil
}

func (s *EnrollmentService) applicantFromPayload(payload dto.ApplicantPayload) (models.Applicant, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Applicant{}, validationError(err, "invalid applicant data")
	}
	email := trimmedOrNil(payload.GuardianEmail)
	phone := trimmedOrNil(payload.GuardianPhone)
	if email == nil && phone == nil {
		return models.Applicant{}, appErrors.Clone(appErrors.ErrValidation, "invalid applicant data: guardian_email or guardian_phone is required")
	}
	birth, err := time.Parse("2006-01-02", payload.BirthDate)
	if err != nil {
		return models.Applicant{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid applicant data: birth_date")
	}
	if birth.After(s.now()) {
		return models.Applicant{}, appErrors.Clone(appErrors.ErrValidation, "invalid applicant data: birth_date is in the future")
	}
	grade, _ := models.ParseGradeLevel(payload.GradeLevel)

	applicant := models.Applicant{
		LastName:              strings.TrimSpace(payload.LastName),
		FirstName:             strings.TrimSpace(payload.FirstName),
		MiddleName:            trimmedOrNil(payload.MiddleName),
		ExtensionName:         trimmedOrNil(payload.ExtensionName),
		BirthDate:             birth,
		Sex:                   payload.Sex,
		LRN:                   trimmedOrNil(payload.LRN),
		GradeLevel:            grade,
		GuardianName:          strings.TrimSpace(payload.GuardianName),
		GuardianRelationship:  strings.TrimSpace(payload.GuardianRelationship),
		GuardianEmail:         email,
		GuardianPhone:         phone,
		Address:               strings.TrimSpace(payload.Address),
		IsIndigenous:          payload.IsIndigenous,
		Is4Ps:                 payload.Is4Ps,
		HasDisability:         payload.HasDisability,
		DisabilityDescription: trimmedOrNil(payload.DisabilityDescription),
	}
	if !applicant.HasDisability {
		applicant.DisabilityDescription = nil
	}
	return applicant, nil
}

func (s *EnrollmentService) dispatch(kind models.NotificationKind, request *models.EnrollmentRequest) {
	if s.notify == nil || request == nil {
		return
	}
	payload := map[string]string{
		"request_token": request.RequestToken,
		"learner_name":  request.FullName(),
		"grade_level":   string(request.GradeLevel),
		"status":        string(request.Status),
	}
	if request.RejectionReason != nil {
		payload["reason"] = *request.RejectionReason
	}
	s.notify.Dispatch(models.Notification{
		Kind:      kind,
		Recipient: request.Contact(),
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	})
}

// translate maps repository failures onto the error taxonomy.
func (s *EnrollmentService) translate(err error, message string) error {
	return translateRepoError(err, message, s.metrics)
}

func translateRepoError(err error, message string, metrics *MetricsService) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, repository.ErrSectionUnavailable), database.IsInvalidText(err):
		msg := "resource not found"
		if errors.Is(err, repository.ErrSectionUnavailable) {
			msg = "section not found or archived"
		}
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, msg)
	case errors.Is(err, repository.ErrInvalidTransition):
		return appErrors.Wrap(err, appErrors.ErrInvalidTransition.Code, appErrors.ErrInvalidTransition.Status, message+": "+appErrors.ErrInvalidTransition.Message)
	case errors.Is(err, repository.ErrCapacityExceeded):
		metrics.RecordCapacityRejection()
		return appErrors.Wrap(err, appErrors.ErrCapacityExceeded.Code, appErrors.ErrCapacityExceeded.Status, appErrors.ErrCapacityExceeded.Message)
	case errors.Is(err, repository.ErrCapacityBelowCount):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "max_capacity cannot be below the current count")
	case errors.Is(err, repository.ErrSectionOccupied):
		return appErrors.Wrap(err, appErrors.ErrInvalidTransition.Code, appErrors.ErrInvalidTransition.Status, "section still has active students")
	case errors.Is(err, repository.ErrDuplicateSectionKey), errors.Is(err, repository.ErrDuplicateSnapshot):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, err.Error())
	default:
		return appErrors.Storage(err, message)
	}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
