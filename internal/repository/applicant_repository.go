package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
)

const earlyRegistrationColumns = `id, ` + applicantColumns + `, created_at, updated_at, archived_at`

// ApplicantRepository reads and corrects early registration rows.
type ApplicantRepository struct {
	db *sqlx.DB
}

// NewApplicantRepository constructs the repository.
func NewApplicantRepository(db *sqlx.DB) *ApplicantRepository {
	return &ApplicantRepository{db: db}
}

// FindByID returns an applicant; sql.ErrNoRows when missing.
func (r *ApplicantRepository) FindByID(ctx context.Context, id string) (*models.EarlyRegistration, error) {
	var reg models.EarlyRegistration
	if err := r.db.GetContext(ctx, &reg, `SELECT `+earlyRegistrationColumns+` FROM early_registrations WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Update overwrites the applicant fields of the row. Request copies taken at
// submission are left as they were.
func (r *ApplicantRepository) Update(ctx context.Context, reg *models.EarlyRegistration) error {
	reg.UpdatedAt = time.Now().UTC()
	const query = `UPDATE early_registrations SET
	last_name = :last_name, first_name = :first_name, middle_name = :middle_name, extension_name = :extension_name,
	birth_date = :birth_date, sex = :sex, lrn = :lrn, grade_level = :grade_level,
	guardian_name = :guardian_name, guardian_relationship = :guardian_relationship, guardian_email = :guardian_email,
	guardian_phone = :guardian_phone, address = :address, is_ip = :is_ip, is_4ps = :is_4ps,
	has_disability = :has_disability, disability_description = :disability_description, updated_at = :updated_at
	WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, reg)
	if err != nil {
		return fmt.Errorf("update early registration: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check early registration update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
