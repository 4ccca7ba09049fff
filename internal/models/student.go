package models

import "time"

// StudentStatus is the enrollment status of a student row.
type StudentStatus string

// Possible student statuses.
const (
	StudentStatusActive   StudentStatus = "active"
	StudentStatusArchived StudentStatus = "archived"
)

// Student represents an enrolled learner promoted from an approved request.
type Student struct {
	ID                    string        `db:"id" json:"id"`
	EnrollmentRequestID   string        `db:"enrollment_request_id" json:"enrollment_request_id"`
	LRN                   *string       `db:"lrn" json:"lrn,omitempty"`
	LastName              string        `db:"last_name" json:"last_name"`
	FirstName             string        `db:"first_name" json:"first_name"`
	MiddleName            *string       `db:"middle_name" json:"middle_name,omitempty"`
	ExtensionName         *string       `db:"extension_name" json:"extension_name,omitempty"`
	BirthDate             time.Time     `db:"birth_date" json:"birth_date"`
	Sex                   string        `db:"sex" json:"sex"`
	GuardianName          string        `db:"guardian_name" json:"guardian_name"`
	GuardianEmail         *string       `db:"guardian_email" json:"guardian_email,omitempty"`
	GuardianPhone         *string       `db:"guardian_phone" json:"guardian_phone,omitempty"`
	Address               string        `db:"address" json:"address"`
	GradeLevel            GradeLevel    `db:"grade_level" json:"grade_level"`
	SectionID             *string       `db:"section_id" json:"section_id"`
	EnrollmentStatus      StudentStatus `db:"enrollment_status" json:"enrollment_status"`
	HasBeenAssigned       bool          `db:"has_been_assigned" json:"has_been_assigned"`
	PreviousGradeLevel    *GradeLevel   `db:"previous_grade_level" json:"previous_grade_level,omitempty"`
	GradeLevelUpdatedDate *time.Time    `db:"grade_level_updated_date" json:"grade_level_updated_date,omitempty"`
	GradeLevelUpdatedBy   *string       `db:"grade_level_updated_by" json:"grade_level_updated_by,omitempty"`
	CreatedAt             time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at" json:"updated_at"`
}

// Active reports whether the student counts toward section occupancy.
func (s Student) Active() bool {
	return s.EnrollmentStatus == StudentStatusActive
}

// StudentFromRequest copies the applicant snapshot of an approved request.
func StudentFromRequest(req EnrollmentRequest) Student {
	return Student{
		EnrollmentRequestID: req.ID,
		LRN:                 req.LRN,
		LastName:            req.LastName,
		FirstName:           req.FirstName,
		MiddleName:          req.MiddleName,
		ExtensionName:       req.ExtensionName,
		BirthDate:           req.BirthDate,
		Sex:                 req.Sex,
		GuardianName:        req.GuardianName,
		GuardianEmail:       req.GuardianEmail,
		GuardianPhone:       req.GuardianPhone,
		Address:             req.Address,
		GradeLevel:          req.GradeLevel,
		EnrollmentStatus:    StudentStatusActive,
	}
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	SectionID  string
	Unassigned bool
	GradeLevel GradeLevel
	Status     StudentStatus
	Page       int
	PageSize   int
}

// GradeChange is one entry of a student's grade history.
type GradeChange struct {
	Grade     GradeLevel `json:"grade"`
	ChangedAt *time.Time `json:"changed_at,omitempty"`
	ChangedBy *string    `json:"changed_by,omitempty"`
}
