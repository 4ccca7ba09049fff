package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sd-enrollment-api/internal/dto"
	"github.com/noah-isme/sd-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/sd-enrollment-api/pkg/errors"
	"github.com/noah-isme/sd-enrollment-api/pkg/export"
)

type snapshotStore interface {
	Create(ctx context.Context, name, actor string) (*models.SnapshotGroup, error)
	List(ctx context.Context) ([]models.SnapshotGroup, error)
	Get(ctx context.Context, id string) (*models.SnapshotDetail, error)
	Delete(ctx context.Context, id string) error
}

type documentRenderer interface {
	Render(format export.Format, data export.Dataset) ([]byte, error)
}

// ExportedDocument is a rendered roster ready to be sent as an attachment.
type ExportedDocument struct {
	Filename    string
	ContentType string
	Body        []byte
}

var rosterHeaders = []string{"Section", "Grade Level", "LRN", "Last Name", "First Name", "Middle Name", "Sex"}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SnapshotService takes, browses and exports roster snapshots.
type SnapshotService struct {
	repo      snapshotStore
	renderer  documentRenderer
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditWriter
	metrics   *MetricsService
}

// NewSnapshotService constructs a SnapshotService.
func NewSnapshotService(repo snapshotStore, renderer documentRenderer, validate *validator.Validate, logger *zap.Logger, audit auditWriter, metrics *MetricsService) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = dto.NewValidator()
	}
	if renderer == nil {
		renderer = export.NewRenderer()
	}
	return &SnapshotService{repo: repo, renderer: renderer, validator: validate, logger: logger, audit: audit, metrics: metrics}
}

// TakeSnapshot captures every active section and student under name.
func (s *SnapshotService) TakeSnapshot(ctx context.Context, req dto.CreateSnapshotRequest, actor string) (*models.SnapshotGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid snapshot payload")
	}
	group, err := s.repo.Create(ctx, strings.TrimSpace(req.Name), actor)
	if err != nil {
		return nil, translateRepoError(err, "failed to take snapshot", s.metrics)
	}
	s.metrics.RecordSnapshot()
	s.logger.Info("roster snapshot taken",
		zap.String("snapshot_id", group.ID),
		zap.String("name", group.Name),
		zap.Int("sections", group.SectionCount),
		zap.Int("students", group.StudentCount),
	)
	emitAudit(ctx, s.audit, s.logger, auditEntry{Actor: actor, Action: models.AuditActionSnapshotCreate, Resource: "snapshot_group", ResourceID: group.ID, New: group})
	return group, nil
}

// List returns every snapshot group, newest first.
func (s *SnapshotService) List(ctx context.Context) ([]models.SnapshotGroup, error) {
	groups, err := s.repo.List(ctx)
	if err != nil {
		return nil, translateRepoError(err, "failed to list snapshots", s.metrics)
	}
	if groups == nil {
		groups = []models.SnapshotGroup{}
	}
	return groups, nil
}

// Get returns a snapshot with its captured rows.
func (s *SnapshotService) Get(ctx context.Context, id string) (*models.SnapshotDetail, error) {
	detail, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, "failed to load snapshot", s.metrics)
	}
	return detail, nil
}

// Delete removes a snapshot and its captured rows.
func (s *SnapshotService) Delete(ctx context.Context, id, actor string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return translateRepoError(err, "failed to delete snapshot", s.metrics)
	}
	emitAudit(ctx, s.audit, s.logger, auditEntry{Actor: actor, Action: models.AuditActionSnapshotDelete, Resource: "snapshot_group", ResourceID: id})
	return nil
}

// Export renders the roster of a snapshot, optionally limited to one of its
// sections.
func (s *SnapshotService) Export(ctx context.Context, id, rawFormat, sectionID string) (*ExportedDocument, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	data := RosterDataset(*detail, sectionID)
	body, err := s.renderer.Render(format, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	name := unsafeFilename.ReplaceAllString(detail.Name, "_")
	return &ExportedDocument{
		Filename:    fmt.Sprintf("roster_%s.%s", strings.Trim(name, "_"), format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

// RosterDataset flattens a snapshot into export rows. Students without a
// section are listed as "Unassigned".
func RosterDataset(detail models.SnapshotDetail, sectionID string) export.Dataset {
	data := export.Dataset{
		Title:    "Class Roster",
		Subtitle: fmt.Sprintf("%s (taken %s by %s)", detail.Name, detail.CreatedAt.Format("2006-01-02 15:04"), detail.CreatedBy),
		Headers:  rosterHeaders,
		Rows:     make([]map[string]string, 0, len(detail.Students)),
	}
	for _, st := range detail.Students {
		if sectionID != "" && (st.SectionID == nil || *st.SectionID != sectionID) {
			continue
		}
		data.Rows = append(data.Rows, map[string]string{
			"Section":     valueOr(st.SectionName, "Unassigned"),
			"Grade Level": string(st.GradeLevel),
			"LRN":         valueOr(st.LRN, ""),
			"Last Name":   st.LastName,
			"First Name":  st.FirstName,
			"Middle Name": valueOr(st.MiddleName, ""),
			"Sex":         st.Sex,
		})
	}
	return data
}

func valueOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}
