package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/pkg/database"
)

const (
	snapshotGroupColumns   = `id, name, created_by, created_at, section_count, student_count`
	snapshotItemColumns    = `id, group_id, section_id, section_name, grade_level, max_capacity, current_count, adviser_name`
	snapshotStudentColumns = `id, group_id, student_id, section_id, section_name, lrn, last_name, first_name, middle_name, sex, grade_level`

	snapshotNameConstraint = "snapshot_groups_name_key"
)

// SnapshotRepository captures and reads immutable roster snapshots.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository constructs the repository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create copies every active section and active student into a new group.
// It runs in one REPEATABLE READ transaction holding share locks on the
// active sections so no seat can change while the copy is taken.
func (r *SnapshotRepository) Create(ctx context.Context, name, actor string) (*models.SnapshotGroup, error) {
	group := models.SnapshotGroup{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: actor,
		CreatedAt: time.Now().UTC(),
	}
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	err := database.WithTx(ctx, r.db, opts, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT id FROM sections WHERE archived_at IS NULL ORDER BY id FOR SHARE`); err != nil {
			return fmt.Errorf("lock sections for snapshot: %w", err)
		}

		const insertGroup = `INSERT INTO snapshot_groups (id, name, created_by, created_at, section_count, student_count)
		VALUES (:id, :name, :created_by, :created_at, 0, 0)`
		if _, err := tx.NamedExecContext(ctx, insertGroup, &group); err != nil {
			if database.IsUniqueViolation(err, snapshotNameConstraint) {
				return ErrDuplicateSnapshot
			}
			return fmt.Errorf("insert snapshot group: %w", err)
		}

		const copySections = `INSERT INTO snapshot_items (` + snapshotItemColumns + `)
		SELECT gen_random_uuid(), $1, id, name, grade_level, max_capacity, current_count, adviser_name
		FROM sections WHERE archived_at IS NULL`
		sections, err := execCount(ctx, tx, copySections, group.ID)
		if err != nil {
			return fmt.Errorf("copy sections: %w", err)
		}

		const copyStudents = `INSERT INTO snapshot_students (` + snapshotStudentColumns + `)
		SELECT gen_random_uuid(), $1, st.id, st.section_id, sec.name, st.lrn, st.last_name, st.first_name, st.middle_name, st.sex, st.grade_level
		FROM students st
		LEFT JOIN sections sec ON sec.id = st.section_id
		WHERE st.enrollment_status = 'active'`
		students, err := execCount(ctx, tx, copyStudents, group.ID)
		if err != nil {
			return fmt.Errorf("copy students: %w", err)
		}

		group.SectionCount = int(sections)
		group.StudentCount = int(students)
		if _, err := tx.ExecContext(ctx, `UPDATE snapshot_groups SET section_count = $2, student_count = $3 WHERE id = $1`,
			group.ID, group.SectionCount, group.StudentCount); err != nil {
			return fmt.Errorf("update snapshot totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// List returns snapshot groups, newest first.
func (r *SnapshotRepository) List(ctx context.Context) ([]models.SnapshotGroup, error) {
	var groups []models.SnapshotGroup
	if err := r.db.SelectContext(ctx, &groups, `SELECT `+snapshotGroupColumns+` FROM snapshot_groups ORDER BY created_at DESC, name`); err != nil {
		return nil, fmt.Errorf("list snapshot groups: %w", err)
	}
	return groups, nil
}

// Get returns a group with its captured sections and students; sql.ErrNoRows
// when missing.
func (r *SnapshotRepository) Get(ctx context.Context, id string) (*models.SnapshotDetail, error) {
	var detail models.SnapshotDetail
	if err := r.db.GetContext(ctx, &detail.SnapshotGroup, `SELECT `+snapshotGroupColumns+` FROM snapshot_groups WHERE id = $1`, id); err != nil {
		return nil, err
	}
	itemsQuery := `SELECT ` + snapshotItemColumns + ` FROM snapshot_items WHERE group_id = $1 ORDER BY ` + gradeRankExpr("grade_level") + `, section_name`
	if err := r.db.SelectContext(ctx, &detail.Sections, itemsQuery, id); err != nil {
		return nil, fmt.Errorf("list snapshot items: %w", err)
	}
	studentsQuery := `SELECT ` + snapshotStudentColumns + ` FROM snapshot_students WHERE group_id = $1
	ORDER BY ` + gradeRankExpr("grade_level") + `, section_name NULLS LAST, last_name, first_name, id`
	if err := r.db.SelectContext(ctx, &detail.Students, studentsQuery, id); err != nil {
		return nil, fmt.Errorf("list snapshot students: %w", err)
	}
	return &detail, nil
}

// Delete removes a group; items and students go with it by cascade.
func (r *SnapshotRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshot_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot group: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check snapshot delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func execCount(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
