package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sd-enrollment-api/internal/dto"
	"github.com/noah-isme/sd-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/sd-enrollment-api/pkg/errors"
)

type sectionStore interface {
	Create(ctx context.Context, section *models.Section) error
	FindByID(ctx context.Context, id string) (*models.Section, error)
	List(ctx context.Context, filter models.SectionFilter) ([]models.Section, error)
	UpdateDetails(ctx context.Context, id string, capacity int, adviser *string) (*models.Section, error)
	Archive(ctx context.Context, id string) error
	Recount(ctx context.Context, id string) (models.SectionDrift, error)
	RecountAll(ctx context.Context) ([]models.SectionDrift, error)
}

// SectionService administers sections and the capacity ledger sweep.
type SectionService struct {
	repo      sectionStore
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditWriter
	metrics   *MetricsService
}

// NewSectionService constructs a SectionService.
func NewSectionService(repo sectionStore, validate *validator.Validate, logger *zap.Logger, audit auditWriter, metrics *MetricsService) *SectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = dto.NewValidator()
	}
	return &SectionService{repo: repo, validator: validate, logger: logger, audit: audit, metrics: metrics}
}

// Create registers a new, empty section.
func (s *SectionService) Create(ctx context.Context, req dto.CreateSectionRequest, actor string) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid section payload")
	}
	grade, _ := models.ParseGradeLevel(req.GradeLevel)
	section := &models.Section{
		Name:        strings.TrimSpace(req.Name),
		GradeLevel:  grade,
		MaxCapacity: req.MaxCapacity,
		AdviserName: trimmedOrNil(req.AdviserName),
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, translateRepoError(err, "failed to create section", s.metrics)
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{Actor: actor, Action: models.AuditActionSectionCreate, Resource: "section", ResourceID: section.ID, New: section})
	return section, nil
}

// Get returns a section by id.
func (s *SectionService) Get(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, "failed to load section", s.metrics)
	}
	return section, nil
}

// List returns sections ordered by grade rank then name.
func (s *SectionService) List(ctx context.Context, gradeLevel string, includeArchived bool) ([]models.Section, error) {
	filter := models.SectionFilter{IncludeArchived: includeArchived}
	if gradeLevel != "" {
		grade, ok := models.ParseGradeLevel(gradeLevel)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid grade_level")
		}
		filter.GradeLevel = grade
	}
	sections, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, translateRepoError(err, "failed to list sections", s.metrics)
	}
	return sections, nil
}

// Update changes capacity and adviser. Capacity may not drop below the
// number of students already seated.
func (s *SectionService) Update(ctx context.Context, id string, req dto.UpdateSectionRequest, actor string) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid section payload")
	}
	section, err := s.repo.UpdateDetails(ctx, id, req.MaxCapacity, trimmedOrNil(req.AdviserName))
	if err != nil {
		return nil, translateRepoError(err, "failed to update section", s.metrics)
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{
		Actor:      actor,
		Action:     models.AuditActionSectionUpdate,
		Resource:   "section",
		ResourceID: id,
		New:        map[string]interface{}{"max_capacity": section.MaxCapacity, "adviser_name": section.AdviserName},
	})
	return section, nil
}

// Archive retires an empty section.
func (s *SectionService) Archive(ctx context.Context, id, actor string) error {
	if err := s.repo.Archive(ctx, id); err != nil {
		return translateRepoError(err, "failed to archive section", s.metrics)
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{Actor: actor, Action: models.AuditActionSectionArchive, Resource: "section", ResourceID: id})
	return nil
}

// Recount recomputes one section's count from its active students.
func (s *SectionService) Recount(ctx context.Context, id string) (*models.SectionDrift, error) {
	drift, err := s.repo.Recount(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, "failed to recount section", s.metrics)
	}
	if drift.Stored != drift.Actual {
		s.metrics.RecordSectionDrift(1)
		s.logger.Warn("section count drift corrected", zap.String("section_id", id), zap.Int("stored", drift.Stored), zap.Int("actual", drift.Actual))
	}
	return &drift, nil
}

// RecountAll sweeps every section and reports the ones that drifted.
func (s *SectionService) RecountAll(ctx context.Context) ([]models.SectionDrift, error) {
	drifts, err := s.repo.RecountAll(ctx)
	if err != nil {
		return nil, translateRepoError(err, "failed to recount sections", s.metrics)
	}
	s.metrics.RecordSectionDrift(len(drifts))
	for _, d := range drifts {
		s.logger.Warn("section count drift corrected", zap.String("section_id", d.SectionID), zap.Int("stored", d.Stored), zap.Int("actual", d.Actual))
	}
	if drifts == nil {
		drifts = []models.SectionDrift{}
	}
	return drifts, nil
}
