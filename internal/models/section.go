package models

import "time"

// Section is a classroom grouping with bounded capacity. CurrentCount is a
// cached aggregate of the active students referencing the section.
type Section struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	GradeLevel   GradeLevel `db:"grade_level" json:"grade_level"`
	MaxCapacity  int        `db:"max_capacity" json:"max_capacity"`
	CurrentCount int        `db:"current_count" json:"current_count"`
	AdviserName  *string    `db:"adviser_name" json:"adviser_name,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	ArchivedAt   *time.Time `db:"archived_at" json:"archived_at,omitempty"`
}

// Full reports whether no seat is left.
func (s Section) Full() bool {
	return s.CurrentCount >= s.MaxCapacity
}

// SectionFilter narrows section listings.
type SectionFilter struct {
	GradeLevel      GradeLevel
	IncludeArchived bool
}

// SectionDrift describes a section whose cached count disagreed with the
// recomputed one during a recount sweep.
type SectionDrift struct {
	SectionID string `db:"id" json:"section_id"`
	Name      string `db:"name" json:"name"`
	Stored    int    `db:"stored" json:"stored"`
	Actual    int    `db:"actual" json:"actual"`
}
