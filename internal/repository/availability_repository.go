package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sahabatquran/classgen-api/internal/models"
)

// AvailabilityRepository reads teacher availability submissions.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByTerm returns all availability windows submitted for a term.
func (r *AvailabilityRepository) ListByTerm(ctx context.Context, termID string) ([]models.TeacherAvailability, error) {
	const query = `SELECT id, teacher_id, teacher_name, term_id, day_of_week, session, is_available,
       max_classes_per_week, submitted_at, created_at
FROM teacher_availability WHERE term_id = $1
ORDER BY teacher_id ASC, day_of_week ASC, session ASC`
	var windows []models.TeacherAvailability
	if err := r.db.SelectContext(ctx, &windows, query, termID); err != nil {
		return nil, fmt.Errorf("list teacher availability: %w", err)
	}
	return windows, nil
}

// CountSubmittedTeachers returns how many distinct teachers submitted
// availability for the term.
func (r *AvailabilityRepository) CountSubmittedTeachers(ctx context.Context, termID string) (int, error) {
	const query = `SELECT COUNT(DISTINCT teacher_id) FROM teacher_availability
WHERE term_id = $1 AND submitted_at IS NOT NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, termID); err != nil {
		return 0, fmt.Errorf("count submitted teachers: %w", err)
	}
	return count, nil
}
