package models

import "time"

// Applicant holds the learner data captured at early registration. The same
// columns are copied into every EnrollmentRequest at submission time.
type Applicant struct {
	LastName              string     `db:"last_name" json:"last_name"`
	FirstName             string     `db:"first_name" json:"first_name"`
	MiddleName            *string    `db:"middle_name" json:"middle_name,omitempty"`
	ExtensionName         *string    `db:"extension_name" json:"extension_name,omitempty"`
	BirthDate             time.Time  `db:"birth_date" json:"birth_date"`
	Sex                   string     `db:"sex" json:"sex"`
	LRN                   *string    `db:"lrn" json:"lrn,omitempty"`
	GradeLevel            GradeLevel `db:"grade_level" json:"grade_level"`
	GuardianName          string     `db:"guardian_name" json:"guardian_name"`
	GuardianRelationship  string     `db:"guardian_relationship" json:"guardian_relationship"`
	GuardianEmail         *string    `db:"guardian_email" json:"guardian_email,omitempty"`
	GuardianPhone         *string    `db:"guardian_phone" json:"guardian_phone,omitempty"`
	Address               string     `db:"address" json:"address"`
	IsIndigenous          bool       `db:"is_ip" json:"is_ip"`
	Is4Ps                 bool       `db:"is_4ps" json:"is_4ps"`
	HasDisability         bool       `db:"has_disability" json:"has_disability"`
	DisabilityDescription *string    `db:"disability_description" json:"disability_description,omitempty"`
}

// FullName renders "Last, First Middle".
func (a Applicant) FullName() string {
	name := a.LastName + ", " + a.FirstName
	if a.MiddleName != nil && *a.MiddleName != "" {
		name += " " + *a.MiddleName
	}
	if a.ExtensionName != nil && *a.ExtensionName != "" {
		name += " " + *a.ExtensionName
	}
	return name
}

// Contact returns the preferred guardian contact: email first, then phone.
func (a Applicant) Contact() string {
	if a.GuardianEmail != nil && *a.GuardianEmail != "" {
		return *a.GuardianEmail
	}
	if a.GuardianPhone != nil {
		return *a.GuardianPhone
	}
	return ""
}

// EarlyRegistration is the stored applicant row.
type EarlyRegistration struct {
	ID string `db:"id" json:"id"`
	Applicant
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	ArchivedAt *time.Time `db:"archived_at" json:"archived_at,omitempty"`
}
