package repository

import (
	"fmt"
	"strings"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
)

// gradeRankExpr renders a CASE expression ranking column by the fixed grade
// order. Unknown values sort last.
func gradeRankExpr(column string) string {
	var b strings.Builder
	b.WriteString("CASE ")
	b.WriteString(column)
	for i, level := range models.GradeLevels {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", level, i)
	}
	fmt.Fprintf(&b, " ELSE %d END", len(models.GradeLevels))
	return b.String()
}
