package dto

// AssignSectionRequest moves a student. A null section unassigns.
type AssignSectionRequest struct {
	SectionID *string `json:"section_id" validate:"omitempty,min=1"`
}

// UpdateGradeRequest changes a student's grade level.
type UpdateGradeRequest struct {
	GradeLevel string `json:"grade_level" validate:"required,gradelevel"`
}

// StudentQuery binds student list query parameters.
type StudentQuery struct {
	Search     string `form:"search"`
	SectionID  string `form:"section_id"`
	Unassigned bool   `form:"unassigned"`
	GradeLevel string `form:"grade_level" validate:"omitempty,gradelevel"`
	Status     string `form:"status" validate:"omitempty,oneof=active archived"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"page_size" validate:"omitempty,min=1,max=200"`
}
