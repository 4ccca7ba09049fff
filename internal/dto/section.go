package dto

// CreateSectionRequest defines payload for creating a section.
type CreateSectionRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	GradeLevel  string  `json:"grade_level" validate:"required,gradelevel"`
	MaxCapacity int     `json:"max_capacity" validate:"required,min=1,max=100"`
	AdviserName *string `json:"adviser_name" validate:"omitempty,max=150"`
}

// UpdateSectionRequest changes capacity and adviser.
type UpdateSectionRequest struct {
	MaxCapacity int     `json:"max_capacity" validate:"required,min=1,max=100"`
	AdviserName *string `json:"adviser_name" validate:"omitempty,max=150"`
}
