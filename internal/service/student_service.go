package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sd-enrollment-api/internal/dto"
	"github.com/noah-isme/sd-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/sd-enrollment-api/pkg/errors"
)

type studentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	AssignSection(ctx context.Context, studentID string, sectionID *string) (*models.Student, error)
	UpdateGrade(ctx context.Context, studentID string, grade models.GradeLevel, actor string, at time.Time) (*models.Student, error)
	Archive(ctx context.Context, studentID string) (*models.Student, error)
	Unarchive(ctx context.Context, studentID string) (*models.Student, error)
}

// StudentService provides business logic for enrolled students.
type StudentService struct {
	repo      studentStore
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditWriter
	metrics   *MetricsService
	now       func() time.Time
}

// NewStudentService constructs a new StudentService.
func NewStudentService(repo studentStore, validate *validator.Validate, logger *zap.Logger, audit auditWriter, metrics *MetricsService) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = dto.NewValidator()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger, audit: audit, metrics: metrics, now: time.Now}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, query dto.StudentQuery) ([]models.Student, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, validationError(err, "invalid query parameters")
	}
	filter := models.StudentFilter{
		Search:     strings.TrimSpace(query.Search),
		SectionID:  query.SectionID,
		Unassigned: query.Unassigned,
		Status:     models.StudentStatus(query.Status),
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if query.GradeLevel != "" {
		filter.GradeLevel, _ = models.ParseGradeLevel(query.GradeLevel)
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 25
	}

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Storage(err, "failed to list students")
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a student by ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, "failed to load student", s.metrics)
	}
	return student, nil
}

// AssignSection moves a student into a section, or out of any section when
// the request carries no section id.
func (s *StudentService) AssignSection(ctx context.Context, studentID string, req dto.AssignSectionRequest, actor string) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid section assignment")
	}
	target := trimmedOrNil(req.SectionID)

	before, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		return nil, translateRepoError(err, "failed to load student", s.metrics)
	}

	student, err := s.repo.AssignSection(ctx, studentID, target)
	if err != nil {
		return nil, translateRepoError(err, "failed to assign section", s.metrics)
	}

	s.logger.Info("student section changed",
		zap.String("student_id", studentID),
		zap.Stringp("from", before.SectionID),
		zap.Stringp("to", student.SectionID),
	)
	emitAudit(ctx, s.audit, s.logger, auditEntry{
		Actor:      actor,
		Action:     models.AuditActionSectionAssign,
		Resource:   "student",
		ResourceID: studentID,
		Old:        map[string]*string{"section_id": before.SectionID},
		New:        map[string]*string{"section_id": student.SectionID},
	})
	return student, nil
}

// UpdateGrade changes the student's grade level. Any grade in the enumeration
// is accepted, including lateral moves and demotions.
func (s *StudentService) UpdateGrade(ctx context.Context, studentID string, req dto.UpdateGradeRequest, actor string) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade level")
	}
	grade, _ := models.ParseGradeLevel(req.GradeLevel)

	student, err := s.repo.UpdateGrade(ctx, studentID, grade, actor, s.now().UTC())
	if err != nil {
		return nil, translateRepoError(err, "failed to update grade level", s.metrics)
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{
		Actor:      actor,
		Action:     models.AuditActionGradeUpdate,
		Resource:   "student",
		ResourceID: studentID,
		Old:        map[string]interface{}{"grade_level": student.PreviousGradeLevel},
		New:        map[string]interface{}{"grade_level": student.GradeLevel},
	})
	return student, nil
}

// Archive soft-deletes a student, releasing its seat.
func (s *StudentService) Archive(ctx context.Context, studentID, actor string) (*models.Student, error) {
	student, err := s.repo.Archive(ctx, studentID)
	if err != nil {
		return nil, translateRepoError(err, "failed to archive student", s.metrics)
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{Actor: actor, Action: models.AuditActionStudentArchive, Resource: "student", ResourceID: studentID})
	return student, nil
}

// Unarchive reactivates a student in its previous section when a seat is
// still free.
func (s *StudentService) Unarchive(ctx context.Context, studentID, actor string) (*models.Student, error) {
	student, err := s.repo.Unarchive(ctx, studentID)
	if err != nil {
		return nil, translateRepoError(err, "failed to unarchive student", s.metrics)
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{
		Actor:      actor,
		Action:     models.AuditActionStudentUnarchive,
		Resource:   "student",
		ResourceID: studentID,
		New:        map[string]*string{"section_id": student.SectionID},
	})
	return student, nil
}

// History reconstructs what the single history slot can tell: the previous
// grade (when of unknown date) followed by the current one.
func (s *StudentService) History(ctx context.Context, studentID string) ([]models.GradeChange, error) {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		return nil, translateRepoError(err, "failed to load student", s.metrics)
	}
	return GradeHistory(*student), nil
}

// GradeHistory is the pure form of History.
func GradeHistory(student models.Student) []models.GradeChange {
	if student.PreviousGradeLevel == nil {
		enrolled := student.CreatedAt
		return []models.GradeChange{{Grade: student.GradeLevel, ChangedAt: &enrolled}}
	}
	return []models.GradeChange{
		{Grade: *student.PreviousGradeLevel},
		{Grade: student.GradeLevel, ChangedAt: student.GradeLevelUpdatedDate, ChangedBy: student.GradeLevelUpdatedBy},
	}
}
