package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
)

func sampleRegistration() *models.EarlyRegistration {
	email := "maria@example.com"
	return &models.EarlyRegistration{Applicant: models.Applicant{
		LastName:             "Dela Cruz",
		FirstName:            "Juan",
		BirthDate:            time.Date(2017, 3, 14, 0, 0, 0, 0, time.UTC),
		Sex:                  "M",
		GradeLevel:           models.Grade3,
		GuardianName:         "Maria Dela Cruz",
		GuardianRelationship: "Mother",
		GuardianEmail:        &email,
		Address:              "Quezon City",
	}}
}

func TestEnrollmentRequestRepositoryCreateCopiesApplicant(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO early_registrations")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_requests")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reg := sampleRegistration()
	req := &models.EnrollmentRequest{RequestToken: "ABCD-EFGH-JKLM"}
	require.NoError(t, repo.Create(context.Background(), reg, req))

	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, reg.ID, req.ApplicantID)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Equal(t, "Dela Cruz", req.LastName)
	assert.False(t, req.SubmittedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRequestRepositoryCreateReportsTokenClash(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO early_registrations")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_requests")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollment_requests_request_token_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleRegistration(), &models.EnrollmentRequest{RequestToken: "ABCD-EFGH-JKLM"})
	require.ErrorIs(t, err, ErrDuplicateToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRequestRepositoryTokenExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM enrollment_requests WHERE request_token = $1)")).
		WithArgs("ABCD-EFGH-JKLM").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.TokenExists(context.Background(), "ABCD-EFGH-JKLM")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEnrollmentRequestRepositoryReviewApprovePromotes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRequestRepository(db)

	at := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").WillReturnRows(requestRow("req-1", "pending", nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests")).
		WithArgs("req-1", models.RequestStatusApproved, nil, at, "admin-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(findPromotedSQL)).WithArgs("req-1").WillReturnRows(sqlmock.NewRows(studentCols))
	mock.ExpectExec(regexp.QuoteMeta(insertStudentSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.Review(context.Background(), ReviewParams{
		RequestID:  "req-1",
		Decision:   models.RequestStatusApproved,
		ReviewerID: "admin-1",
		ReviewedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, outcome.Request.Status)
	require.NotNil(t, outcome.Request.ReviewedAt)
	require.NotNil(t, outcome.Student)
	assert.Equal(t, "req-1", outcome.Student.EnrollmentRequestID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRequestRepositoryReviewRejectDoesNotPromote(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRequestRepository(db)

	reason := "incomplete documents"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").WillReturnRows(requestRow("req-1", "pending", nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.Review(context.Background(), ReviewParams{
		RequestID:  "req-1",
		Decision:   models.RequestStatusRejected,
		Reason:     &reason,
		ReviewerID: "admin-1",
		ReviewedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, outcome.Student)
	assert.Equal(t, &reason, outcome.Request.RejectionReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRequestRepositoryReviewTwiceFails(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").WillReturnRows(requestRow("req-1", "approved", nil))
	mock.ExpectRollback()

	_, err := repo.Review(context.Background(), ReviewParams{RequestID: "req-1", Decision: models.RequestStatusApproved, ReviewerID: "admin-1", ReviewedAt: time.Now()})
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRequestRepositoryReviewMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-x").WillReturnRows(sqlmock.NewRows(requestCols))
	mock.ExpectRollback()

	_, err := repo.Review(context.Background(), ReviewParams{RequestID: "req-x", Decision: models.RequestStatusApproved, ReviewerID: "admin-1", ReviewedAt: time.Now()})
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEnrollmentRequestRepositoryListPendingInReviewOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollment_requests WHERE archived_at IS NULL AND status = $1")).
		WithArgs(models.RequestStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ELSE 8 END, last_name, first_name, id LIMIT 10 OFFSET 10")).
		WithArgs(models.RequestStatusPending).
		WillReturnRows(requestRow("req-1", "pending", nil))

	items, total, err := repo.List(context.Background(), models.EnrollmentRequestFilter{Status: models.RequestStatusPending, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, models.Grade3, items[0].GradeLevel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRequestRepositoryArchiveAlsoArchivesApplicant(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").WillReturnRows(requestRow("req-1", "rejected", nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET archived_at = $2")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE early_registrations SET archived_at = $2")).WithArgs("app-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req, err := repo.Archive(context.Background(), "req-1")
	require.NoError(t, err)
	assert.NotNil(t, req.ArchivedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRequestRepositoryUnarchiveActiveFails(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").WillReturnRows(requestRow("req-1", "pending", nil))
	mock.ExpectRollback()

	_, err := repo.Unarchive(context.Background(), "req-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}
