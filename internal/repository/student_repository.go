package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/pkg/database"
)

const studentColumns = `id, enrollment_request_id, lrn, last_name, first_name, middle_name, extension_name, birth_date, sex,
	guardian_name, guardian_email, guardian_phone, address, grade_level, section_id, enrollment_status, has_been_assigned,
	previous_grade_level, grade_level_updated_date, grade_level_updated_by, created_at, updated_at`

// StudentRepository persists enrolled students and keeps section seats in
// step with their assignments.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student; sql.ErrNoRows when missing.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// List returns students matching filter ordered by name, plus the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("enrollment_status = $%d", len(args)))
	}
	if filter.GradeLevel != "" {
		args = append(args, filter.GradeLevel)
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)))
	}
	if filter.Unassigned {
		conditions = append(conditions, "section_id IS NULL")
	} else if filter.SectionID != "" {
		args = append(args, filter.SectionID)
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(last_name) LIKE $%[1]d OR LOWER(first_name) LIKE $%[1]d OR lrn LIKE $%[1]d)", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM students`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := `SELECT ` + studentColumns + ` FROM students` + where +
		fmt.Sprintf(" ORDER BY last_name, first_name, id LIMIT %d OFFSET %d", size, (page-1)*size)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	return students, total, nil
}

// Promote creates the student for an approved request, or returns the one
// already created for it.
func (r *StudentRepository) Promote(ctx context.Context, requestID string) (*models.Student, error) {
	var student *models.Student
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		req, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestStatusApproved || req.ArchivedAt != nil {
			return ErrInvalidTransition
		}
		student, err = promoteTx(ctx, tx, *req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return student, nil
}

// promoteTx inserts the student row for req unless one already exists for the
// same request or LRN, in which case the existing row is returned.
func promoteTx(ctx context.Context, tx *sqlx.Tx, req models.EnrollmentRequest) (*models.Student, error) {
	if existing, err := findPromoted(ctx, tx, req); err != nil || existing != nil {
		return existing, err
	}

	now := time.Now().UTC()
	student := models.StudentFromRequest(req)
	student.ID = uuid.NewString()
	student.CreatedAt = now
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, enrollment_request_id, lrn, last_name, first_name, middle_name, extension_name, birth_date, sex,
	guardian_name, guardian_email, guardian_phone, address, grade_level, enrollment_status, has_been_assigned, created_at, updated_at)
	VALUES (:id, :enrollment_request_id, :lrn, :last_name, :first_name, :middle_name, :extension_name, :birth_date, :sex,
	:guardian_name, :guardian_email, :guardian_phone, :address, :grade_level, :enrollment_status, :has_been_assigned, :created_at, :updated_at)
	ON CONFLICT DO NOTHING`
	res, err := tx.NamedExecContext(ctx, query, &student)
	if err != nil {
		return nil, fmt.Errorf("insert student: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check student insert rows: %w", err)
	}
	if rows == 0 {
		// a concurrent promotion committed first
		existing, err := findPromoted(ctx, tx, req)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("insert student: conflicting row not visible")
		}
		return existing, nil
	}
	return &student, nil
}

func findPromoted(ctx context.Context, tx *sqlx.Tx, req models.EnrollmentRequest) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE enrollment_request_id = $1`
	args := []interface{}{req.ID}
	if req.LRN != nil && *req.LRN != "" {
		query += ` OR lrn = $2`
		args = append(args, *req.LRN)
	}
	query += ` ORDER BY created_at LIMIT 1`

	var student models.Student
	err := tx.GetContext(ctx, &student, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find promoted student: %w", err)
	}
	return &student, nil
}

// AssignSection moves the student to sectionID, or unassigns when nil. Old
// and new section rows are locked in ascending id order; on
// ErrCapacityExceeded the whole move is rolled back.
func (r *StudentRepository) AssignSection(ctx context.Context, studentID string, sectionID *string) (*models.Student, error) {
	var updated models.Student
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		student, err := lockStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if !student.Active() {
			return ErrInvalidTransition
		}
		if sameSection(student.SectionID, sectionID) {
			updated = *student
			return nil
		}

		var oldID, newID string
		if student.SectionID != nil {
			oldID = *student.SectionID
		}
		if sectionID != nil {
			newID = *sectionID
		}
		locked, err := lockSections(ctx, tx, oldID, newID)
		if err != nil {
			return err
		}
		if oldID != "" {
			if err := releaseSeat(ctx, tx, oldID); err != nil {
				return err
			}
		}
		if newID != "" {
			if err := reserveSeat(ctx, tx, locked[newID]); err != nil {
				return err
			}
		}

		const query = `UPDATE students
		SET section_id = $2, has_been_assigned = has_been_assigned OR $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + studentColumns
		return tx.GetContext(ctx, &updated, query, studentID, sectionID, sectionID != nil)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// UpdateGrade sets a new grade, moving the old one into the single history
// slot and stamping who changed it and when.
func (r *StudentRepository) UpdateGrade(ctx context.Context, studentID string, grade models.GradeLevel, actor string, at time.Time) (*models.Student, error) {
	var updated models.Student
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		student, err := lockStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if !student.Active() {
			return ErrInvalidTransition
		}
		const query = `UPDATE students
		SET previous_grade_level = grade_level, grade_level = $2, grade_level_updated_date = $3, grade_level_updated_by = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + studentColumns
		if err := tx.GetContext(ctx, &updated, query, studentID, grade, at, actor); err != nil {
			return fmt.Errorf("update student grade: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Archive soft-deletes an active student and frees its seat. The section
// reference is kept so Unarchive can restore it.
func (r *StudentRepository) Archive(ctx context.Context, studentID string) (*models.Student, error) {
	var updated models.Student
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		student, err := lockStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if !student.Active() {
			return ErrInvalidTransition
		}
		if student.SectionID != nil {
			if _, err := lockSections(ctx, tx, *student.SectionID); err != nil && !errors.Is(err, ErrSectionUnavailable) {
				return err
			}
			if err := releaseSeat(ctx, tx, *student.SectionID); err != nil {
				return err
			}
		}
		return setStudentStatus(ctx, tx, &updated, studentID, models.StudentStatusArchived, student.SectionID)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Unarchive reactivates a student and re-reserves the seat of its section.
// If the section was archived meanwhile the student comes back unassigned;
// if it filled up the call fails with ErrCapacityExceeded.
func (r *StudentRepository) Unarchive(ctx context.Context, studentID string) (*models.Student, error) {
	var updated models.Student
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		student, err := lockStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if student.Active() {
			return ErrInvalidTransition
		}
		sectionID := student.SectionID
		if sectionID != nil {
			locked, err := lockSections(ctx, tx, *sectionID)
			switch {
			case errors.Is(err, ErrSectionUnavailable):
				sectionID = nil
			case err != nil:
				return err
			default:
				err = reserveSeat(ctx, tx, locked[*sectionID])
				if errors.Is(err, ErrSectionUnavailable) {
					sectionID = nil
				} else if err != nil {
					return err
				}
			}
		}
		return setStudentStatus(ctx, tx, &updated, studentID, models.StudentStatusActive, sectionID)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func setStudentStatus(ctx context.Context, tx *sqlx.Tx, dest *models.Student, id string, status models.StudentStatus, sectionID *string) error {
	const query = `UPDATE students SET enrollment_status = $2, section_id = $3, updated_at = NOW()
	WHERE id = $1
	RETURNING ` + studentColumns
	if err := tx.GetContext(ctx, dest, query, id, status, sectionID); err != nil {
		return fmt.Errorf("update student status: %w", err)
	}
	return nil
}

func lockStudent(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error) {
	var student models.Student
	err := tx.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("lock student: %w", err)
	}
	return &student, nil
}

func sameSection(current, next *string) bool {
	if current == nil || next == nil {
		return current == nil && next == nil
	}
	return *current == *next
}
