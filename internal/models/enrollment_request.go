package models

import "time"

// RequestStatus represents the review state of an enrollment request.
type RequestStatus string

// Possible request statuses.
const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// Terminal reports whether the status admits no further review.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

// EnrollmentRequest is the reviewable case wrapping an applicant snapshot.
type EnrollmentRequest struct {
	ID          string `db:"id" json:"id"`
	ApplicantID string `db:"applicant_id" json:"applicant_id"`
	Applicant
	RequestToken    string        `db:"request_token" json:"request_token"`
	Status          RequestStatus `db:"status" json:"status"`
	RejectionReason *string       `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time     `db:"submitted_at" json:"submitted_at"`
	ReviewedAt      *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy      *string       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ArchivedAt      *time.Time    `db:"archived_at" json:"archived_at,omitempty"`
}

// EnrollmentRequestFilter narrows request listings.
type EnrollmentRequestFilter struct {
	Status          RequestStatus
	GradeLevel      GradeLevel
	IncludeArchived bool
	Page            int
	PageSize        int
}

// RequestStatusView is the anonymous, token-scoped projection of a request.
type RequestStatusView struct {
	Token           string        `json:"request_token"`
	LearnerName     string        `json:"learner_name"`
	GradeLevel      GradeLevel    `json:"grade_level"`
	Status          RequestStatus `json:"status"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	ReviewedAt      *time.Time    `json:"reviewed_at,omitempty"`
}

// StatusView projects the request for anonymous lookup.
func (r EnrollmentRequest) StatusView() RequestStatusView {
	return RequestStatusView{
		Token:           r.RequestToken,
		LearnerName:     r.FullName(),
		GradeLevel:      r.GradeLevel,
		Status:          r.Status,
		RejectionReason: r.RejectionReason,
		SubmittedAt:     r.SubmittedAt,
		ReviewedAt:      r.ReviewedAt,
	}
}

// ReviewOutcome is the result of a review: the updated request plus the
// student row when the decision promoted it.
type ReviewOutcome struct {
	Request EnrollmentRequest `json:"request"`
	Student *Student          `json:"student,omitempty"`
}
