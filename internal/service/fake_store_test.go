package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories. A single
// mutex plays the role of the row locks.
type memStore struct {
	mu          sync.Mutex
	seq         int
	applicants  map[string]*models.EarlyRegistration
	requests    map[string]*models.EnrollmentRequest
	students    map[string]*models.Student
	sections    map[string]*models.Section
	snapshots   map[string]*models.SnapshotDetail
	collideNext int
	takenNext   int
	lookups     int
	audits      []*models.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		applicants: map[string]*models.EarlyRegistration{},
		requests:   map[string]*models.EnrollmentRequest{},
		students:   map[string]*models.Student{},
		sections:   map[string]*models.Section{},
		snapshots:  map[string]*models.SnapshotDetail{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%03d", prefix, m.seq)
}

func (m *memStore) addSection(id, name string, grade models.GradeLevel, capacity, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections[id] = &models.Section{ID: id, Name: name, GradeLevel: grade, MaxCapacity: capacity, CurrentCount: count}
}

func (m *memStore) addStudent(id string, grade models.GradeLevel) *models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &models.Student{ID: id, LastName: "Student", FirstName: id, GradeLevel: grade, EnrollmentStatus: models.StudentStatusActive, CreatedAt: time.Now()}
	m.students[id] = st
	return st
}

func (m *memStore) activeIn(sectionID string) int {
	n := 0
	for _, st := range m.students {
		if st.Active() && st.SectionID != nil && *st.SectionID == sectionID {
			n++
		}
	}
	return n
}

type memRequests struct{ *memStore }

func (r memRequests) TokenExists(_ context.Context, tok string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.takenNext > 0 {
		r.takenNext--
		return true, nil
	}
	for _, req := range r.requests {
		if req.RequestToken == tok {
			return true, nil
		}
	}
	return false, nil
}

func (r memRequests) Create(_ context.Context, applicant *models.EarlyRegistration, request *models.EnrollmentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.collideNext > 0 {
		r.collideNext--
		return repository.ErrDuplicateToken
	}
	now := time.Now().UTC()
	applicant.ID = r.nextID("app")
	applicant.CreatedAt, applicant.UpdatedAt = now, now
	request.ID = r.nextID("req")
	request.ApplicantID = applicant.ID
	request.Applicant = applicant.Applicant
	request.Status = models.RequestStatusPending
	request.SubmittedAt = now
	a, q := *applicant, *request
	r.applicants[a.ID] = &a
	r.requests[q.ID] = &q
	return nil
}

func (r memRequests) FindByID(_ context.Context, id string) (*models.EnrollmentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *req
	return &cp, nil
}

func (r memRequests) FindByToken(_ context.Context, tok string) (*models.EnrollmentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.RequestToken == tok {
			cp := *req
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memRequests) List(_ context.Context, filter models.EnrollmentRequestFilter) ([]models.EnrollmentRequest, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EnrollmentRequest
	for _, req := range r.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if !filter.IncludeArchived && req.ArchivedAt != nil {
			continue
		}
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.GradeLevel.Rank() != b.GradeLevel.Rank() {
			return a.GradeLevel.Rank() < b.GradeLevel.Rank()
		}
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
	total := len(out)
	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r memRequests) Review(_ context.Context, p repository.ReviewParams) (*models.ReviewOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[p.RequestID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if req.Status != models.RequestStatusPending || req.ArchivedAt != nil {
		return nil, repository.ErrInvalidTransition
	}
	req.Status = p.Decision
	req.RejectionReason = p.Reason
	at := p.ReviewedAt
	req.ReviewedAt = &at
	reviewer := p.ReviewerID
	req.ReviewedBy = &reviewer
	outcome := &models.ReviewOutcome{Request: *req}
	if p.Decision == models.RequestStatusApproved {
		outcome.Student = memStudents{r.memStore}.promoteLocked(req)
	}
	return outcome, nil
}

func (r memRequests) setArchived(id string, archive bool) (*models.EnrollmentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if (req.ArchivedAt != nil) == archive {
		return nil, repository.ErrInvalidTransition
	}
	if archive {
		now := time.Now()
		req.ArchivedAt = &now
	} else {
		req.ArchivedAt = nil
	}
	cp := *req
	return &cp, nil
}

func (r memRequests) Archive(_ context.Context, id string) (*models.EnrollmentRequest, error) {
	return r.setArchived(id, true)
}

func (r memRequests) Unarchive(_ context.Context, id string) (*models.EnrollmentRequest, error) {
	return r.setArchived(id, false)
}

type memApplicants struct{ *memStore }

func (a memApplicants) FindByID(_ context.Context, id string) (*models.EarlyRegistration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reg, ok := a.applicants[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *reg
	return &cp, nil
}

func (a memApplicants) Update(_ context.Context, reg *models.EarlyRegistration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.applicants[reg.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *reg
	a.applicants[reg.ID] = &cp
	return nil
}

type memStudents struct{ *memStore }

func (s memStudents) promoteLocked(req *models.EnrollmentRequest) *models.Student {
	for _, st := range s.students {
		if st.EnrollmentRequestID == req.ID || (req.LRN != nil && st.LRN != nil && *st.LRN == *req.LRN) {
			cp := *st
			return &cp
		}
	}
	st := models.StudentFromRequest(*req)
	st.ID = s.nextID("stu")
	st.CreatedAt = time.Now().UTC()
	s.students[st.ID] = &st
	cp := st
	return &cp
}

func (s memStudents) Promote(_ context.Context, requestID string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if req.Status != models.RequestStatusApproved || req.ArchivedAt != nil {
		return nil, repository.ErrInvalidTransition
	}
	return s.promoteLocked(req), nil
}

func (s memStudents) FindByID(_ context.Context, id string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *st
	return &cp, nil
}

func (s memStudents) List(_ context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Student
	for _, st := range s.students {
		if filter.Unassigned && st.SectionID != nil {
			continue
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s memStudents) AssignSection(_ context.Context, studentID string, sectionID *string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if !st.Active() {
		return nil, repository.ErrInvalidTransition
	}
	if (st.SectionID == nil && sectionID == nil) || (st.SectionID != nil && sectionID != nil && *st.SectionID == *sectionID) {
		cp := *st
		return &cp, nil
	}
	if sectionID != nil {
		target, ok := s.sections[*sectionID]
		if !ok || target.ArchivedAt != nil {
			return nil, repository.ErrSectionUnavailable
		}
		if target.Full() {
			return nil, repository.ErrCapacityExceeded
		}
		target.CurrentCount++
	}
	if st.SectionID != nil {
		if old, ok := s.sections[*st.SectionID]; ok && old.CurrentCount > 0 {
			old.CurrentCount--
		}
	}
	if sectionID != nil {
		id := *sectionID
		st.SectionID = &id
		st.HasBeenAssigned = true
	} else {
		st.SectionID = nil
	}
	cp := *st
	return &cp, nil
}

func (s memStudents) UpdateGrade(_ context.Context, studentID string, grade models.GradeLevel, actor string, at time.Time) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if !st.Active() {
		return nil, repository.ErrInvalidTransition
	}
	prev := st.GradeLevel
	st.PreviousGradeLevel = &prev
	st.GradeLevel = grade
	st.GradeLevelUpdatedDate = &at
	by := actor
	st.GradeLevelUpdatedBy = &by
	cp := *st
	return &cp, nil
}

func (s memStudents) Archive(_ context.Context, studentID string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if !st.Active() {
		return nil, repository.ErrInvalidTransition
	}
	if st.SectionID != nil {
		if sec, ok := s.sections[*st.SectionID]; ok && sec.CurrentCount > 0 {
			sec.CurrentCount--
		}
	}
	st.EnrollmentStatus = models.StudentStatusArchived
	cp := *st
	return &cp, nil
}

func (s memStudents) Unarchive(_ context.Context, studentID string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if st.Active() {
		return nil, repository.ErrInvalidTransition
	}
	if st.SectionID != nil {
		sec, ok := s.sections[*st.SectionID]
		switch {
		case !ok || sec.ArchivedAt != nil:
			st.SectionID = nil
		case sec.Full():
			return nil, repository.ErrCapacityExceeded
		default:
			sec.CurrentCount++
		}
	}
	st.EnrollmentStatus = models.StudentStatusActive
	cp := *st
	return &cp, nil
}

type memSections struct{ *memStore }

func (s memSections) Create(_ context.Context, section *models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sections {
		if existing.GradeLevel == section.GradeLevel && existing.Name == section.Name {
			return repository.ErrDuplicateSectionKey
		}
	}
	section.ID = s.nextID("sec")
	section.CurrentCount = 0
	cp := *section
	s.sections[cp.ID] = &cp
	return nil
}

func (s memSections) FindByID(_ context.Context, id string) (*models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *sec
	return &cp, nil
}

func (s memSections) List(_ context.Context, filter models.SectionFilter) ([]models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Section
	for _, sec := range s.sections {
		if filter.GradeLevel != "" && sec.GradeLevel != filter.GradeLevel {
			continue
		}
		if !filter.IncludeArchived && sec.ArchivedAt != nil {
			continue
		}
		out = append(out, *sec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memSections) UpdateDetails(_ context.Context, id string, capacity int, adviser *string) (*models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[id]
	if !ok || sec.ArchivedAt != nil {
		return nil, repository.ErrSectionUnavailable
	}
	if capacity < sec.CurrentCount {
		return nil, repository.ErrCapacityBelowCount
	}
	sec.MaxCapacity = capacity
	sec.AdviserName = adviser
	cp := *sec
	return &cp, nil
}

func (s memSections) Archive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[id]
	if !ok {
		return repository.ErrSectionUnavailable
	}
	if sec.ArchivedAt != nil {
		return repository.ErrInvalidTransition
	}
	if sec.CurrentCount > 0 {
		return repository.ErrSectionOccupied
	}
	now := time.Now()
	sec.ArchivedAt = &now
	return nil
}

func (s memSections) Recount(_ context.Context, id string) (models.SectionDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[id]
	if !ok {
		return models.SectionDrift{}, repository.ErrSectionUnavailable
	}
	drift := models.SectionDrift{SectionID: id, Name: sec.Name, Stored: sec.CurrentCount, Actual: s.activeIn(id)}
	sec.CurrentCount = drift.Actual
	return drift, nil
}

func (s memSections) RecountAll(ctx context.Context) ([]models.SectionDrift, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sections))
	for id := range s.sections {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	var drifts []models.SectionDrift
	for _, id := range ids {
		d, err := s.Recount(ctx, id)
		if err != nil {
			return nil, err
		}
		if d.Stored != d.Actual {
			drifts = append(drifts, d)
		}
	}
	return drifts, nil
}

type memSnapshots struct{ *memStore }

func (s memSnapshots) Create(_ context.Context, name, actor string) (*models.SnapshotGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.snapshots {
		if existing.Name == name {
			return nil, repository.ErrDuplicateSnapshot
		}
	}
	detail := &models.SnapshotDetail{SnapshotGroup: models.SnapshotGroup{ID: s.nextID("snap"), Name: name, CreatedBy: actor, CreatedAt: time.Now().UTC()}}
	for _, sec := range s.sections {
		if sec.ArchivedAt != nil {
			continue
		}
		detail.Sections = append(detail.Sections, models.SnapshotItem{
			GroupID: detail.ID, SectionID: sec.ID, SectionName: sec.Name, GradeLevel: sec.GradeLevel,
			MaxCapacity: sec.MaxCapacity, CurrentCount: sec.CurrentCount, AdviserName: sec.AdviserName,
		})
	}
	for _, st := range s.students {
		if !st.Active() {
			continue
		}
		row := models.SnapshotStudent{
			GroupID: detail.ID, StudentID: st.ID, LRN: st.LRN, LastName: st.LastName, FirstName: st.FirstName,
			MiddleName: st.MiddleName, Sex: st.Sex, GradeLevel: st.GradeLevel,
		}
		if st.SectionID != nil {
			id := *st.SectionID
			row.SectionID = &id
			if sec, ok := s.sections[id]; ok {
				name := sec.Name
				row.SectionName = &name
			}
		}
		detail.Students = append(detail.Students, row)
	}
	sort.Slice(detail.Students, func(i, j int) bool { return detail.Students[i].StudentID < detail.Students[j].StudentID })
	detail.SectionCount = len(detail.Sections)
	detail.StudentCount = len(detail.Students)
	s.snapshots[detail.ID] = detail
	group := detail.SnapshotGroup
	return &group, nil
}

func (s memSnapshots) List(_ context.Context) ([]models.SnapshotGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SnapshotGroup
	for _, d := range s.snapshots {
		out = append(out, d.SnapshotGroup)
	}
	return out, nil
}

func (s memSnapshots) Get(_ context.Context, id string) (*models.SnapshotDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.snapshots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *d
	cp.Sections = append([]models.SnapshotItem(nil), d.Sections...)
	cp.Students = append([]models.SnapshotStudent(nil), d.Students...)
	return &cp, nil
}

func (s memSnapshots) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.snapshots, id)
	return nil
}

type memAudit struct{ *memStore }

func (a memAudit) Create(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audits = append(a.audits, log)
	return nil
}

func (m *memStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.audits))
	for _, l := range m.audits {
		out = append(out, l.Action)
	}
	return out
}

type capturedNotifications struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (c *capturedNotifications) Dispatch(n models.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *capturedNotifications) kinds() []models.NotificationKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(c.sent))
	for _, n := range c.sent {
		out = append(out, n.Kind)
	}
	return out
}
