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

const (
	applicantColumns = `last_name, first_name, middle_name, extension_name, birth_date, sex, lrn, grade_level,
	guardian_name, guardian_relationship, guardian_email, guardian_phone, address, is_ip, is_4ps, has_disability, disability_description`
	applicantParams = `:last_name, :first_name, :middle_name, :extension_name, :birth_date, :sex, :lrn, :grade_level,
	:guardian_name, :guardian_relationship, :guardian_email, :guardian_phone, :address, :is_ip, :is_4ps, :has_disability, :disability_description`

	requestColumns = `id, applicant_id, ` + applicantColumns + `, request_token, status, rejection_reason, submitted_at, reviewed_at, reviewed_by, archived_at`

	requestTokenConstraint = "enrollment_requests_request_token_key"
)

// EnrollmentRequestRepository persists applicants and their review requests.
type EnrollmentRequestRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRequestRepository constructs the repository.
func NewEnrollmentRequestRepository(db *sqlx.DB) *EnrollmentRequestRepository {
	return &EnrollmentRequestRepository{db: db}
}

// TokenExists reports whether a request already carries token.
func (r *EnrollmentRequestRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM enrollment_requests WHERE request_token = $1)`, token); err != nil {
		return false, fmt.Errorf("check request token: %w", err)
	}
	return exists, nil
}

// Create stores the applicant row and a pending request holding a copy of
// its fields in one transaction. A token clash at insert time returns
// ErrDuplicateToken so the caller can retry with a fresh token.
func (r *EnrollmentRequestRepository) Create(ctx context.Context, applicant *models.EarlyRegistration, request *models.EnrollmentRequest) error {
	now := time.Now().UTC()
	if applicant.ID == "" {
		applicant.ID = uuid.NewString()
	}
	applicant.CreatedAt = now
	applicant.UpdatedAt = now

	request.ID = uuid.NewString()
	request.ApplicantID = applicant.ID
	request.Applicant = applicant.Applicant
	request.Status = models.RequestStatusPending
	request.SubmittedAt = now

	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		const insertApplicant = `INSERT INTO early_registrations (id, ` + applicantColumns + `, created_at, updated_at)
		VALUES (:id, ` + applicantParams + `, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insertApplicant, applicant); err != nil {
			return fmt.Errorf("insert early registration: %w", err)
		}

		const insertRequest = `INSERT INTO enrollment_requests (id, applicant_id, ` + applicantColumns + `, request_token, status, submitted_at)
		VALUES (:id, :applicant_id, ` + applicantParams + `, :request_token, :status, :submitted_at)`
		if _, err := tx.NamedExecContext(ctx, insertRequest, request); err != nil {
			if database.IsUniqueViolation(err, requestTokenConstraint) {
				return ErrDuplicateToken
			}
			return fmt.Errorf("insert enrollment request: %w", err)
		}
		return nil
	})
}

// FindByID returns a request; sql.ErrNoRows when missing.
func (r *EnrollmentRequestRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	var req models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &req, `SELECT `+requestColumns+` FROM enrollment_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// FindByToken returns the request carrying token; sql.ErrNoRows when missing.
func (r *EnrollmentRequestRepository) FindByToken(ctx context.Context, token string) (*models.EnrollmentRequest, error) {
	var req models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &req, `SELECT `+requestColumns+` FROM enrollment_requests WHERE request_token = $1`, token); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests in review order (grade rank, last name, first name,
// id) together with the total matching count.
func (r *EnrollmentRequestRepository) List(ctx context.Context, filter models.EnrollmentRequestFilter) ([]models.EnrollmentRequest, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if !filter.IncludeArchived {
		conditions = append(conditions, "archived_at IS NULL")
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.GradeLevel != "" {
		args = append(args, filter.GradeLevel)
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM enrollment_requests`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollment requests: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := `SELECT ` + requestColumns + ` FROM enrollment_requests` + where +
		` ORDER BY ` + gradeRankExpr("grade_level") + `, last_name, first_name, id` +
		fmt.Sprintf(" LIMIT %d OFFSET %d", size, (page-1)*size)

	var requests []models.EnrollmentRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollment requests: %w", err)
	}
	return requests, total, nil
}

// ReviewParams carries a review decision.
type ReviewParams struct {
	RequestID  string
	Decision   models.RequestStatus
	Reason     *string
	ReviewerID string
	ReviewedAt time.Time
}

// Review records the decision on a pending request. Approval promotes the
// request into a student inside the same transaction.
func (r *EnrollmentRequestRepository) Review(ctx context.Context, params ReviewParams) (*models.ReviewOutcome, error) {
	var outcome models.ReviewOutcome
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		req, err := lockRequest(ctx, tx, params.RequestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestStatusPending || req.ArchivedAt != nil {
			return ErrInvalidTransition
		}

		const query = `UPDATE enrollment_requests
		SET status = $2, rejection_reason = $3, reviewed_at = $4, reviewed_by = $5
		WHERE id = $1 AND status = 'pending'`
		res, err := tx.ExecContext(ctx, query, req.ID, params.Decision, params.Reason, params.ReviewedAt, params.ReviewerID)
		if err != nil {
			return fmt.Errorf("update request status: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check request update rows: %w", err)
		}
		if rows == 0 {
			return ErrInvalidTransition
		}

		req.Status = params.Decision
		req.RejectionReason = params.Reason
		reviewedAt := params.ReviewedAt
		reviewer := params.ReviewerID
		req.ReviewedAt = &reviewedAt
		req.ReviewedBy = &reviewer
		outcome.Request = *req

		if params.Decision == models.RequestStatusApproved {
			student, err := promoteTx(ctx, tx, *req)
			if err != nil {
				return err
			}
			outcome.Student = student
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// Archive soft-deletes the request and its early registration row.
func (r *EnrollmentRequestRepository) Archive(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	return r.setArchived(ctx, id, true)
}

// Unarchive reverses Archive.
func (r *EnrollmentRequestRepository) Unarchive(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	return r.setArchived(ctx, id, false)
}

func (r *EnrollmentRequestRepository) setArchived(ctx context.Context, id string, archive bool) (*models.EnrollmentRequest, error) {
	var result *models.EnrollmentRequest
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		req, err := lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if (req.ArchivedAt != nil) == archive {
			return ErrInvalidTransition
		}
		var archivedAt *time.Time
		if archive {
			now := time.Now().UTC()
			archivedAt = &now
		}
		if _, err := tx.ExecContext(ctx, `UPDATE enrollment_requests SET archived_at = $2 WHERE id = $1`, id, archivedAt); err != nil {
			return fmt.Errorf("archive enrollment request: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE early_registrations SET archived_at = $2, updated_at = NOW() WHERE id = $1`, req.ApplicantID, archivedAt); err != nil {
			return fmt.Errorf("archive early registration: %w", err)
		}
		req.ArchivedAt = archivedAt
		result = req
		return nil
	})
	return result, err
}

func lockRequest(ctx context.Context, tx *sqlx.Tx, id string) (*models.EnrollmentRequest, error) {
	var req models.EnrollmentRequest
	err := tx.GetContext(ctx, &req, `SELECT `+requestColumns+` FROM enrollment_requests WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("lock enrollment request: %w", err)
	}
	return &req, nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 25
	}
	return page, size
}
