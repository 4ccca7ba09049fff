package models

import "time"

// SnapshotGroup is a named, immutable capture of the roster.
type SnapshotGroup struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	CreatedBy    string    `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	SectionCount int       `db:"section_count" json:"section_count"`
	StudentCount int       `db:"student_count" json:"student_count"`
}

// SnapshotItem is the value copy of a section at capture time.
type SnapshotItem struct {
	ID           string     `db:"id" json:"id"`
	GroupID      string     `db:"group_id" json:"group_id"`
	SectionID    string     `db:"section_id" json:"section_id"`
	SectionName  string     `db:"section_name" json:"section_name"`
	GradeLevel   GradeLevel `db:"grade_level" json:"grade_level"`
	MaxCapacity  int        `db:"max_capacity" json:"max_capacity"`
	CurrentCount int        `db:"current_count" json:"current_count"`
	AdviserName  *string    `db:"adviser_name" json:"adviser_name,omitempty"`
}

// SnapshotStudent is the value copy of a student at capture time.
type SnapshotStudent struct {
	ID          string     `db:"id" json:"id"`
	GroupID     string     `db:"group_id" json:"group_id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	SectionID   *string    `db:"section_id" json:"section_id,omitempty"`
	SectionName *string    `db:"section_name" json:"section_name,omitempty"`
	LRN         *string    `db:"lrn" json:"lrn,omitempty"`
	LastName    string     `db:"last_name" json:"last_name"`
	FirstName   string     `db:"first_name" json:"first_name"`
	MiddleName  *string    `db:"middle_name" json:"middle_name,omitempty"`
	Sex         string     `db:"sex" json:"sex"`
	GradeLevel  GradeLevel `db:"grade_level" json:"grade_level"`
}

// SnapshotDetail bundles a group with its captured rows.
type SnapshotDetail struct {
	SnapshotGroup
	Sections []SnapshotItem    `json:"sections"`
	Students []SnapshotStudent `json:"students"`
}
