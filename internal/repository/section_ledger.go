package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
)

const sectionColumns = `id, name, grade_level, max_capacity, current_count, adviser_name, created_at, updated_at, archived_at`

// lockSections takes row locks on the given sections in ascending id order
// and returns them keyed by id. Missing ids are reported as
// ErrSectionUnavailable.
func lockSections(ctx context.Context, tx *sqlx.Tx, ids ...string) (map[string]models.Section, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	locked := make(map[string]models.Section, len(unique))
	for _, id := range unique {
		var section models.Section
		err := tx.GetContext(ctx, &section, `SELECT `+sectionColumns+` FROM sections WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSectionUnavailable
		}
		if err != nil {
			return nil, fmt.Errorf("lock section %s: %w", id, err)
		}
		locked[id] = section
	}
	return locked, nil
}

// reserveSeat increments the cached count of a locked section when a seat is
// free. A full or archived section is left untouched.
func reserveSeat(ctx context.Context, tx *sqlx.Tx, section models.Section) error {
	if section.ArchivedAt != nil {
		return ErrSectionUnavailable
	}
	if section.Full() {
		return ErrCapacityExceeded
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sections SET current_count = current_count + 1, updated_at = NOW() WHERE id = $1`, section.ID); err != nil {
		return fmt.Errorf("reserve seat in %s: %w", section.ID, err)
	}
	return nil
}

// releaseSeat decrements the cached count of a locked section, never below zero.
func releaseSeat(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE sections SET current_count = GREATEST(current_count - 1, 0), updated_at = NOW() WHERE id = $1`, sectionID); err != nil {
		return fmt.Errorf("release seat in %s: %w", sectionID, err)
	}
	return nil
}

// recountSection overwrites the cached count of a locked section with the
// number of active students referencing it.
func recountSection(ctx context.Context, tx *sqlx.Tx, sectionID string) (int, error) {
	const query = `UPDATE sections
	SET current_count = (SELECT COUNT(*) FROM students WHERE section_id = $1 AND enrollment_status = 'active'), updated_at = NOW()
	WHERE id = $1
	RETURNING current_count`
	var count int
	if err := tx.GetContext(ctx, &count, query, sectionID); err != nil {
		return 0, fmt.Errorf("recount section %s: %w", sectionID, err)
	}
	return count, nil
}
