package models

import "strings"

// GradeLevel is one of the fixed elementary grade levels.
type GradeLevel string

// Grade levels in review order.
const (
	GradeKindergarten GradeLevel = "Kindergarten"
	Grade1            GradeLevel = "Grade 1"
	Grade2            GradeLevel = "Grade 2"
	Grade3            GradeLevel = "Grade 3"
	Grade4            GradeLevel = "Grade 4"
	Grade5            GradeLevel = "Grade 5"
	Grade6            GradeLevel = "Grade 6"
	GradeNonGraded    GradeLevel = "Non-Graded"
)

// GradeLevels lists every grade level by ascending rank.
var GradeLevels = []GradeLevel{
	GradeKindergarten,
	Grade1,
	Grade2,
	Grade3,
	Grade4,
	Grade5,
	Grade6,
	GradeNonGraded,
}

// Rank returns the review-order position of the grade, or -1 when unknown.
func (g GradeLevel) Rank() int {
	for i, level := range GradeLevels {
		if level == g {
			return i
		}
	}
	return -1
}

// Valid reports whether g is a known grade level.
func (g GradeLevel) Valid() bool {
	return g.Rank() >= 0
}

// ParseGradeLevel matches input case-insensitively against the known levels.
func ParseGradeLevel(raw string) (GradeLevel, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, level := range GradeLevels {
		if strings.EqualFold(string(level), trimmed) {
			return level, true
		}
	}
	return "", false
}
