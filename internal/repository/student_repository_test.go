package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
)

const (
	lockStudentSQL   = "FROM students WHERE id = $1 FOR UPDATE"
	lockRequestSQL   = "FROM enrollment_requests WHERE id = $1 FOR UPDATE"
	assignSQL        = "SET section_id = $2, has_been_assigned = has_been_assigned OR $3"
	findPromotedSQL  = "FROM students WHERE enrollment_request_id = $1"
	insertStudentSQL = "INSERT INTO students"
)

func strPtr(s string) *string { return &s }

func TestStudentRepositoryAssignLocksSectionsInAscendingOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockStudentSQL)).WithArgs("stu-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", sectionID: "sec-b", assigned: true}))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionSQL)).WithArgs("sec-a").WillReturnRows(sectionRow("sec-a", 40, 10, nil))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionSQL)).WithArgs("sec-b").WillReturnRows(sectionRow("sec-b", 40, 20, nil))
	mock.ExpectExec(regexp.QuoteMeta(releaseSQL)).WithArgs("sec-b").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(reserveSQL)).WithArgs("sec-a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(assignSQL)).WithArgs("stu-1", "sec-a", true).
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", sectionID: "sec-a", assigned: true}))
	mock.ExpectCommit()

	student, err := repo.AssignSection(context.Background(), "stu-1", strPtr("sec-a"))
	require.NoError(t, err)
	require.NotNil(t, student.SectionID)
	assert.Equal(t, "sec-a", *student.SectionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAssignFullSectionRollsBackRelease(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockStudentSQL)).WithArgs("stu-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", sectionID: "sec-a", assigned: true}))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionSQL)).WithArgs("sec-a").WillReturnRows(sectionRow("sec-a", 40, 10, nil))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionSQL)).WithArgs("sec-b").WillReturnRows(sectionRow("sec-b", 40, 40, nil))
	mock.ExpectExec(regexp.QuoteMeta(releaseSQL)).WithArgs("sec-a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := repo.AssignSection(context.Background(), "stu-1", strPtr("sec-b"))
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAssignSameSectionIsNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockStudentSQL)).WithArgs("stu-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", sectionID: "sec-a", assigned: true}))
	mock.ExpectCommit()

	student, err := repo.AssignSection(context.Background(), "stu-1", strPtr("sec-a"))
	require.NoError(t, err)
	assert.Equal(t, "sec-a", *student.SectionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUnassignKeepsStickyFlag(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockStudentSQL)).WithArgs("stu-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", sectionID: "sec-a", assigned: true}))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionSQL)).WithArgs("sec-a").WillReturnRows(sectionRow("sec-a", 40, 10, nil))
	mock.ExpectExec(regexp.QuoteMeta(releaseSQL)).WithArgs("sec-a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(assignSQL)).WithArgs("stu-1", nil, false).
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", assigned: true}))
	mock.ExpectCommit()

	student, err := repo.AssignSection(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	assert.Nil(t, student.SectionID)
	assert.True(t, student.HasBeenAssigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAssignArchivedStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockStudentSQL)).WithArgs("stu-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", status: "archived"}))
	mock.ExpectRollback()

	_, err := repo.AssignSection(context.Background(), "stu-1", strPtr("sec-a"))
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryPromoteReturnsExistingStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").WillReturnRows(requestRow("req-1", "approved", nil))
	mock.ExpectQuery(regexp.QuoteMeta(findPromotedSQL)).WithArgs("req-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1"}))
	mock.ExpectCommit()

	student, err := repo.Promote(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", student.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryPromoteInsertsOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").WillReturnRows(requestRow("req-1", "approved", nil))
	mock.ExpectQuery(regexp.QuoteMeta(findPromotedSQL)).WithArgs("req-1").WillReturnRows(sqlmock.NewRows(studentCols))
	mock.ExpectExec(regexp.QuoteMeta(insertStudentSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	student, err := repo.Promote(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", student.EnrollmentRequestID)
	assert.Equal(t, models.StudentStatusActive, student.EnrollmentStatus)
	assert.Nil(t, student.SectionID)
	assert.False(t, student.HasBeenAssigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryPromoteConflictReturnsWinner(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").WillReturnRows(requestRow("req-1", "approved", nil))
	mock.ExpectQuery(regexp.QuoteMeta(findPromotedSQL)).WithArgs("req-1").WillReturnRows(sqlmock.NewRows(studentCols))
	mock.ExpectExec(regexp.QuoteMeta(insertStudentSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(findPromotedSQL)).WithArgs("req-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-9", requestID: "req-1"}))
	mock.ExpectCommit()

	student, err := repo.Promote(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-9", student.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryPromoteRequiresApproval(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").WillReturnRows(requestRow("req-1", "pending", nil))
	mock.ExpectRollback()

	_, err := repo.Promote(context.Background(), "req-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryPromoteRefusesArchivedRequest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").WillReturnRows(requestRow("req-1", "approved", time.Now()))
	mock.ExpectRollback()

	_, err := repo.Promote(context.Background(), "req-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdateGradeFillsHistorySlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockStudentSQL)).WithArgs("stu-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", grade: "Grade 3"}))
	mock.ExpectQuery(regexp.QuoteMeta("SET previous_grade_level = grade_level, grade_level = $2")).
		WithArgs("stu-1", models.Grade4, at, "admin-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", grade: "Grade 4", previous: "Grade 3"}))
	mock.ExpectCommit()

	student, err := repo.UpdateGrade(context.Background(), "stu-1", models.Grade4, "admin-1", at)
	require.NoError(t, err)
	assert.Equal(t, models.Grade4, student.GradeLevel)
	require.NotNil(t, student.PreviousGradeLevel)
	assert.Equal(t, models.Grade3, *student.PreviousGradeLevel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryArchiveReleasesSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockStudentSQL)).WithArgs("stu-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", sectionID: "sec-a", assigned: true}))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionSQL)).WithArgs("sec-a").WillReturnRows(sectionRow("sec-a", 40, 10, nil))
	mock.ExpectExec(regexp.QuoteMeta(releaseSQL)).WithArgs("sec-a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE students SET enrollment_status = $2, section_id = $3")).
		WithArgs("stu-1", models.StudentStatusArchived, "sec-a").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", sectionID: "sec-a", assigned: true, status: "archived"}))
	mock.ExpectCommit()

	student, err := repo.Archive(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusArchived, student.EnrollmentStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUnarchiveIntoFullSectionFails(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockStudentSQL)).WithArgs("stu-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", sectionID: "sec-a", assigned: true, status: "archived"}))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionSQL)).WithArgs("sec-a").WillReturnRows(sectionRow("sec-a", 40, 40, nil))
	mock.ExpectRollback()

	_, err := repo.Unarchive(context.Background(), "stu-1")
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUnarchiveFromArchivedSectionComesBackUnassigned(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockStudentSQL)).WithArgs("stu-1").
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", sectionID: "sec-a", assigned: true, status: "archived"}))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionSQL)).WithArgs("sec-a").WillReturnRows(sectionRow("sec-a", 40, 0, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE students SET enrollment_status = $2, section_id = $3")).
		WithArgs("stu-1", models.StudentStatusActive, nil).
		WillReturnRows(studentRow(studentRowOpts{id: "stu-1", requestID: "req-1", assigned: true}))
	mock.ExpectCommit()

	student, err := repo.Unarchive(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Nil(t, student.SectionID)
	require.NoError(t, mock.ExpectationsWereMet())
}
