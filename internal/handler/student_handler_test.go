package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sd-enrollment-api/internal/dto"
	"github.com/noah-isme/sd-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/sd-enrollment-api/pkg/errors"
)

type studentServiceMock struct {
	assignErr  error
	lastAssign dto.AssignSectionRequest
	lastGrade  dto.UpdateGradeRequest
	lastActor  string
	history    []models.GradeChange
}

func (m *studentServiceMock) List(ctx context.Context, query dto.StudentQuery) ([]models.Student, *models.Pagination, error) {
	return []models.Student{}, &models.Pagination{Page: 1, PageSize: 25}, nil
}

func (m *studentServiceMock) Get(ctx context.Context, id string) (*models.Student, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
}

func (m *studentServiceMock) AssignSection(ctx context.Context, studentID string, req dto.AssignSectionRequest, actor string) (*models.Student, error) {
	m.lastAssign = req
	m.lastActor = actor
	if m.assignErr != nil {
		return nil, m.assignErr
	}
	return &models.Student{ID: studentID, SectionID: req.SectionID, HasBeenAssigned: req.SectionID != nil}, nil
}

func (m *studentServiceMock) UpdateGrade(ctx context.Context, studentID string, req dto.UpdateGradeRequest, actor string) (*models.Student, error) {
	m.lastGrade = req
	return &models.Student{ID: studentID, GradeLevel: models.GradeLevel(req.GradeLevel)}, nil
}

func (m *studentServiceMock) Archive(ctx context.Context, studentID, actor string) (*models.Student, error) {
	return &models.Student{ID: studentID, EnrollmentStatus: models.StudentStatusArchived}, nil
}

func (m *studentServiceMock) Unarchive(ctx context.Context, studentID, actor string) (*models.Student, error) {
	return &models.Student{ID: studentID, EnrollmentStatus: models.StudentStatusActive}, nil
}

func (m *studentServiceMock) History(ctx context.Context, studentID string) ([]models.GradeChange, error) {
	return m.history, nil
}

func TestStudentHandlerAssignSectionNullUnassigns(t *testing.T) {
	mock := &studentServiceMock{}
	h := NewStudentHandler(mock)

	c, w := newTestContext(http.MethodPut, "/students/stu-1/section", `{"section_id":null}`)
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}
	asStaff(c)
	h.AssignSection(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, mock.lastAssign.SectionID)
	assert.Equal(t, "registrar-1", mock.lastActor)
}

func TestStudentHandlerAssignSectionCapacityExceeded(t *testing.T) {
	mock := &studentServiceMock{assignErr: appErrors.Clone(appErrors.ErrCapacityExceeded, "")}
	h := NewStudentHandler(mock)

	c, w := newTestContext(http.MethodPut, "/students/stu-1/section", `{"section_id":"sec-1"}`)
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}
	asStaff(c)
	h.AssignSection(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CAPACITY_EXCEEDED", decode(t, w).Error.Code)
}

func TestStudentHandlerGetNotFound(t *testing.T) {
	h := NewStudentHandler(&studentServiceMock{})
	c, w := newTestContext(http.MethodGet, "/students/nobody", "")
	c.Params = gin.Params{{Key: "id", Value: "nobody"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentHandlerHistory(t *testing.T) {
	mock := &studentServiceMock{history: []models.GradeChange{{Grade: models.Grade1}, {Grade: models.Grade2}}}
	h := NewStudentHandler(mock)
	c, w := newTestContext(http.MethodGet, "/students/stu-1/grade-history", "")
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}
	h.History(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"grade":"Grade 1"},{"grade":"Grade 2"}]`, string(decode(t, w).Data))
}
