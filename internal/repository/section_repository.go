package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/pkg/database"
)

const sectionNameConstraint = "sections_grade_level_name_key"

// SectionRepository persists sections and maintains their seat ledger.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// Create inserts a section with an empty ledger.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	section.CurrentCount = 0
	section.CreatedAt = now
	section.UpdatedAt = now
	const query = `INSERT INTO sections (id, name, grade_level, max_capacity, current_count, adviser_name, created_at, updated_at)
	VALUES (:id, :name, :grade_level, :max_capacity, :current_count, :adviser_name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		if database.IsUniqueViolation(err, sectionNameConstraint) {
			return ErrDuplicateSectionKey
		}
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// FindByID returns a section; sql.ErrNoRows when missing.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	var section models.Section
	if err := r.db.GetContext(ctx, &section, `SELECT `+sectionColumns+` FROM sections WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// List returns sections ordered by grade rank then name.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if !filter.IncludeArchived {
		conditions = append(conditions, "archived_at IS NULL")
	}
	if filter.GradeLevel != "" {
		args = append(args, filter.GradeLevel)
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)))
	}
	query := `SELECT ` + sectionColumns + ` FROM sections`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY " + gradeRankExpr("grade_level") + ", name, id"

	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// UpdateDetails changes capacity and adviser. Capacity may not drop below the
// number of seats already taken.
func (r *SectionRepository) UpdateDetails(ctx context.Context, id string, capacity int, adviser *string) (*models.Section, error) {
	var updated models.Section
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		locked, err := lockSections(ctx, tx, id)
		if err != nil {
			return err
		}
		section := locked[id]
		if section.ArchivedAt != nil {
			return ErrSectionUnavailable
		}
		if capacity < section.CurrentCount {
			return ErrCapacityBelowCount
		}
		const query = `UPDATE sections SET max_capacity = $2, adviser_name = $3, updated_at = NOW()
		WHERE id = $1 RETURNING ` + sectionColumns
		if err := tx.GetContext(ctx, &updated, query, id, capacity, adviser); err != nil {
			return fmt.Errorf("update section: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Archive hides an empty section from assignment and snapshots. Occupancy is
// recomputed from the students table, not read from the cached count.
func (r *SectionRepository) Archive(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		locked, err := lockSections(ctx, tx, id)
		if err != nil {
			return err
		}
		section := locked[id]
		if section.ArchivedAt != nil {
			return ErrInvalidTransition
		}
		occupied, err := recountSection(ctx, tx, id)
		if err != nil {
			return err
		}
		if occupied > 0 {
			return ErrSectionOccupied
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sections SET archived_at = NOW(), updated_at = NOW() WHERE id = $1`, id); err != nil {
			return fmt.Errorf("archive section: %w", err)
		}
		return nil
	})
}

// Recount reconciles the cached count of one section and returns the
// previously stored and recomputed values.
func (r *SectionRepository) Recount(ctx context.Context, id string) (models.SectionDrift, error) {
	var drift models.SectionDrift
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		locked, err := lockSections(ctx, tx, id)
		if err != nil {
			return err
		}
		actual, err := recountSection(ctx, tx, id)
		if err != nil {
			return err
		}
		section := locked[id]
		drift = models.SectionDrift{SectionID: id, Name: section.Name, Stored: section.CurrentCount, Actual: actual}
		return nil
	})
	return drift, err
}

// RecountAll reconciles every section, one transaction per section, and
// reports the ones whose cached count had drifted.
func (r *SectionRepository) RecountAll(ctx context.Context) ([]models.SectionDrift, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM sections ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list section ids: %w", err)
	}
	drifts := make([]models.SectionDrift, 0)
	for _, id := range ids {
		drift, err := r.Recount(ctx, id)
		if errors.Is(err, ErrSectionUnavailable) {
			continue
		}
		if err != nil {
			return drifts, err
		}
		if drift.Stored != drift.Actual {
			drifts = append(drifts, drift)
		}
	}
	return drifts, nil
}
