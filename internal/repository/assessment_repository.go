package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sahabatquran/classgen-api/internal/models"
)

// AssessmentRepository reads placement assessment results.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

const assessmentColumns = `id, student_id, student_name, term_id, student_category, determined_level_id,
       level_name, assessment_score, assessment_grade, special_needs, is_validated, created_at`

// ListValidatedByTerm returns the validated assessments that feed generation.
func (r *AssessmentRepository) ListValidatedByTerm(ctx context.Context, termID string) ([]models.StudentAssessment, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_assessments
WHERE term_id = $1 AND is_validated = TRUE AND determined_level_id IS NOT NULL
ORDER BY student_id ASC`, assessmentColumns)
	var assessments []models.StudentAssessment
	if err := r.db.SelectContext(ctx, &assessments, query, termID); err != nil {
		return nil, fmt.Errorf("list validated assessments: %w", err)
	}
	return assessments, nil
}

// CountByTerm returns total and validated assessment counts for a term.
func (r *AssessmentRepository) CountByTerm(ctx context.Context, termID string) (total int, validated int, err error) {
	const query = `SELECT COUNT(*) AS total,
       COUNT(*) FILTER (WHERE is_validated = TRUE AND determined_level_id IS NOT NULL) AS validated
FROM student_assessments WHERE term_id = $1`
	row := struct {
		Total     int `db:"total"`
		Validated int `db:"validated"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, termID); err != nil {
		return 0, 0, fmt.Errorf("count assessments: %w", err)
	}
	return row.Total, row.Validated, nil
}
