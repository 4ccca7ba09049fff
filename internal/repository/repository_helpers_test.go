package repository

import (
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var (
	sectionCols = []string{"id", "name", "grade_level", "max_capacity", "current_count", "adviser_name", "created_at", "updated_at", "archived_at"}
	studentCols = []string{"id", "enrollment_request_id", "lrn", "last_name", "first_name", "middle_name", "extension_name", "birth_date", "sex",
		"guardian_name", "guardian_email", "guardian_phone", "address", "grade_level", "section_id", "enrollment_status", "has_been_assigned",
		"previous_grade_level", "grade_level_updated_date", "grade_level_updated_by", "created_at", "updated_at"}
	requestCols = []string{"id", "applicant_id", "last_name", "first_name", "middle_name", "extension_name", "birth_date", "sex", "lrn", "grade_level",
		"guardian_name", "guardian_relationship", "guardian_email", "guardian_phone", "address", "is_ip", "is_4ps", "has_disability", "disability_description",
		"request_token", "status", "rejection_reason", "submitted_at", "reviewed_at", "reviewed_by", "archived_at"}
)

func sectionRow(id string, capacity, count int, archivedAt interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(sectionCols).AddRow(id, "Adelfa", "Grade 3", capacity, count, nil, now, now, archivedAt)
}

type studentRowOpts struct {
	id        string
	requestID string
	lrn       interface{}
	sectionID interface{}
	status    string
	assigned  bool
	grade     string
	previous  interface{}
}

func studentRow(o studentRowOpts) *sqlmock.Rows {
	now := time.Now()
	if o.status == "" {
		o.status = "active"
	}
	if o.grade == "" {
		o.grade = "Grade 3"
	}
	values := []driver.Value{o.id, o.requestID, o.lrn, "Dela Cruz", "Juan", nil, nil, now, "M",
		"Maria Dela Cruz", "maria@example.com", nil, "Quezon City", o.grade, o.sectionID, o.status, o.assigned,
		o.previous, nil, nil, now, now}
	return sqlmock.NewRows(studentCols).AddRow(values...)
}

func requestRow(id, status string, archivedAt interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(requestCols).AddRow(id, "app-1", "Dela Cruz", "Juan", nil, nil, now, "M", nil, "Grade 3",
		"Maria Dela Cruz", "Mother", "maria@example.com", nil, "Quezon City", false, false, false, nil,
		"ABCD-EFGH-JKLM", status, nil, now, nil, nil, archivedAt)
}
