package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sahabatquran/classgen-api/internal/models"
)

// LevelAssignmentRepository reads teacher-level competency assignments.
type LevelAssignmentRepository struct {
	db *sqlx.DB
}

// NewLevelAssignmentRepository constructs the repository.
func NewLevelAssignmentRepository(db *sqlx.DB) *LevelAssignmentRepository {
	return &LevelAssignmentRepository{db: db}
}

// ListByTerm returns all level assignments active for a term.
func (r *LevelAssignmentRepository) ListByTerm(ctx context.Context, termID string) ([]models.TeacherLevelAssignment, error) {
	const query = `SELECT id, teacher_id, teacher_name, level_id, level_name, term_id, competency_level,
       max_classes_for_level, specialization, assigned_at
FROM teacher_level_assignments WHERE term_id = $1
ORDER BY teacher_id ASC, level_id ASC`
	var assignments []models.TeacherLevelAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, termID); err != nil {
		return nil, fmt.Errorf("list level assignments: %w", err)
	}
	return assignments, nil
}

// CountAssignedTeachers returns how many distinct teachers hold at least one
// level assignment for the term.
func (r *LevelAssignmentRepository) CountAssignedTeachers(ctx context.Context, termID string) (int, error) {
	const query = `SELECT COUNT(DISTINCT teacher_id) FROM teacher_level_assignments WHERE term_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, termID); err != nil {
		return 0, fmt.Errorf("count assigned teachers: %w", err)
	}
	return count, nil
}
