package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sahabatquran/classgen-api/internal/models"
)

// GenerationLogRepository persists the append-only generation audit trail.
type GenerationLogRepository struct {
	db *sqlx.DB
}

// NewGenerationLogRepository constructs the repository.
func NewGenerationLogRepository(db *sqlx.DB) *GenerationLogRepository {
	return &GenerationLogRepository{db: db}
}

const generationLogColumns = `id, term_id, proposal_id, action_type, action_description, old_data, new_data,
       performed_by, performed_at`

// Insert appends one audit record.
func (r *GenerationLogRepository) Insert(ctx context.Context, entry *models.ClassGenerationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_generation_logs
	(id, term_id, proposal_id, action_type, action_description, old_data, new_data, performed_by, performed_at)
	VALUES (:id, :term_id, :proposal_id, :action_type, :action_description, :old_data, :new_data, :performed_by, :performed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}

// List returns audit records matching the filter, latest first.
func (r *GenerationLogRepository) List(ctx context.Context, filter models.GenerationLogFilter) ([]models.ClassGenerationLog, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + generationLogColumns + ` FROM class_generation_logs`)

	conditions := make([]string, 0, 6)
	if filter.TermID != "" {
		args = append(args, filter.TermID)
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)))
	}
	if filter.ProposalID != "" {
		args = append(args, filter.ProposalID)
		conditions = append(conditions, fmt.Sprintf("proposal_id = $%d", len(args)))
	}
	if filter.PerformedBy != "" {
		args = append(args, filter.PerformedBy)
		conditions = append(conditions, fmt.Sprintf("performed_by = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action_type = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("performed_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("performed_at <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY performed_at DESC")

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize))

	var entries []models.ClassGenerationLog
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list generation logs: %w", err)
	}
	return entries, nil
}

// Count returns how many audit records match the filter.
func (r *GenerationLogRepository) Count(ctx context.Context, filter models.GenerationLogFilter) (int, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT COUNT(*) FROM class_generation_logs`)

	conditions := make([]string, 0, 6)
	if filter.TermID != "" {
		args = append(args, filter.TermID)
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)))
	}
	if filter.ProposalID != "" {
		args = append(args, filter.ProposalID)
		conditions = append(conditions, fmt.Sprintf("proposal_id = $%d", len(args)))
	}
	if filter.PerformedBy != "" {
		args = append(args, filter.PerformedBy)
		conditions = append(conditions, fmt.Sprintf("performed_by = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action_type = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("performed_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("performed_at <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	var count int
	if err := r.db.GetContext(ctx, &count, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count generation logs: %w", err)
	}
	return count, nil
}
