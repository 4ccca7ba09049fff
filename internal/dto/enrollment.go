package dto

// ApplicantPayload carries the learner data of a public submission or an
// administrative correction.
type ApplicantPayload struct {
	LastName              string  `json:"last_name" validate:"required,max=100"`
	FirstName             string  `json:"first_name" validate:"required,max=100"`
	MiddleName            *string `json:"middle_name" validate:"omitempty,max=100"`
	ExtensionName         *string `json:"extension_name" validate:"omitempty,max=10"`
	BirthDate             string  `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Sex                   string  `json:"sex" validate:"required,oneof=M F"`
	LRN                   *string `json:"lrn" validate:"omitempty,numeric,len=12"`
	GradeLevel            string  `json:"grade_level" validate:"required,gradelevel"`
	GuardianName          string  `json:"guardian_name" validate:"required,max=150"`
	GuardianRelationship  string  `json:"guardian_relationship" validate:"omitempty,max=50"`
	GuardianEmail         *string `json:"guardian_email" validate:"omitempty,email"`
	GuardianPhone         *string `json:"guardian_phone" validate:"omitempty,min=7,max=20"`
	Address               string  `json:"address" validate:"omitempty,max=255"`
	IsIndigenous          bool    `json:"is_ip"`
	Is4Ps                 bool    `json:"is_4ps"`
	HasDisability         bool    `json:"has_disability"`
	DisabilityDescription *string `json:"disability_description" validate:"omitempty,max=255"`
}

// ReviewEnrollmentRequest is the decision body for a pending request.
type ReviewEnrollmentRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=approved rejected"`
	Reason   *string `json:"reason" validate:"omitempty,max=500"`
}

// SubmitEnrollmentResponse is returned to the anonymous applicant.
type SubmitEnrollmentResponse struct {
	RequestID    string `json:"request_id"`
	RequestToken string `json:"request_token"`
	Status       string `json:"status"`
}

// EnrollmentRequestQuery binds list query parameters.
type EnrollmentRequestQuery struct {
	Status          string `form:"status" validate:"omitempty,oneof=pending approved rejected"`
	GradeLevel      string `form:"grade_level" validate:"omitempty,gradelevel"`
	IncludeArchived bool   `form:"include_archived"`
	Page            int    `form:"page" validate:"omitempty,min=1"`
	PageSize        int    `form:"page_size" validate:"omitempty,min=1,max=200"`
}
