package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sahabatquran/classgen-api/internal/models"
)

// ProposalRepository persists generated class proposals.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository constructs the repository.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

const proposalColumns = `id, term_id, generation_run, proposal_data, optimization_score, conflict_count,
       manual_overrides, generation_parameters, generated_by, generated_at, is_approved, approved_by, approved_at`

// ErrRunConflict signals a concurrent generation claimed the same run number.
var ErrRunConflict = fmt.Errorf("generation run already claimed")

// Create inserts a proposal, claiming the term's next run number inside the
// statement. A unique index on (term_id, generation_run) turns a lost race
// into ErrRunConflict instead of a duplicate run.
func (r *ProposalRepository) Create(ctx context.Context, proposal *models.GeneratedClassProposal) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.GeneratedAt.IsZero() {
		proposal.GeneratedAt = time.Now().UTC()
	}
	const query = `INSERT INTO generated_class_proposals
	(id, term_id, generation_run, proposal_data, optimization_score, conflict_count,
	 manual_overrides, generation_parameters, generated_by, generated_at, is_approved)
VALUES ($1, $2,
        (SELECT COALESCE(MAX(generation_run), 0) + 1 FROM generated_class_proposals WHERE term_id = $2),
        $3, $4, $5, $6, $7, $8, $9, FALSE)
RETURNING generation_run`
	err := r.db.GetContext(ctx, &proposal.GenerationRun, query,
		proposal.ID, proposal.TermID, proposal.ProposalData, proposal.OptimizationScore,
		proposal.ConflictCount, proposal.ManualOverrides, proposal.GenerationParameters,
		proposal.GeneratedBy, proposal.GeneratedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return ErrRunConflict
		}
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

// FindByID fetches a proposal by identifier.
func (r *ProposalRepository) FindByID(ctx context.Context, id string) (*models.GeneratedClassProposal, error) {
	query := fmt.Sprintf(`SELECT %s FROM generated_class_proposals WHERE id = $1`, proposalColumns)
	var proposal models.GeneratedClassProposal
	if err := r.db.GetContext(ctx, &proposal, query, id); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// ListByTerm returns proposals of a term ordered by run or score.
func (r *ProposalRepository) ListByTerm(ctx context.Context, termID string, order models.ProposalOrder, limit, offset int) ([]models.GeneratedClassProposal, error) {
	orderBy := "generation_run DESC"
	if order == models.ProposalOrderByScore {
		orderBy = "optimization_score DESC, generation_run DESC"
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM generated_class_proposals WHERE term_id = $1
ORDER BY %s LIMIT %d OFFSET %d`, proposalColumns, orderBy, limit, offset)
	var proposals []models.GeneratedClassProposal
	if err := r.db.SelectContext(ctx, &proposals, query, termID); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, nil
}

// CountByTerm returns the number of proposals generated for a term.
func (r *ProposalRepository) CountByTerm(ctx context.Context, termID string) (int, error) {
	const query = `SELECT COUNT(*) FROM generated_class_proposals WHERE term_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, termID); err != nil {
		return 0, fmt.Errorf("count proposals: %w", err)
	}
	return count, nil
}

// FindApprovedByTerm returns the term's approved proposal, or sql.ErrNoRows.
func (r *ProposalRepository) FindApprovedByTerm(ctx context.Context, termID string) (*models.GeneratedClassProposal, error) {
	query := fmt.Sprintf(`SELECT %s FROM generated_class_proposals
WHERE term_id = $1 AND is_approved = TRUE`, proposalColumns)
	var proposal models.GeneratedClassProposal
	if err := r.db.GetContext(ctx, &proposal, query, termID); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// UpdateSnapshot rewrites a proposal's snapshot after refinement. The run
// number and generation metadata are immutable.
func (r *ProposalRepository) UpdateSnapshot(ctx context.Context, proposal *models.GeneratedClassProposal) error {
	const query = `UPDATE generated_class_proposals
SET proposal_data = $2, optimization_score = $3, conflict_count = $4, manual_overrides = $5
WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		proposal.ID, proposal.ProposalData, proposal.OptimizationScore,
		proposal.ConflictCount, proposal.ManualOverrides)
	if err != nil {
		return fmt.Errorf("update proposal snapshot: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update proposal snapshot: proposal %s not found", proposal.ID)
	}
	return nil
}

// Approve marks one proposal approved and clears any previously approved
// proposal of the same term, in a single transaction with the audit record.
func (r *ProposalRepository) Approve(ctx context.Context, proposalID, termID, approvedBy string, logEntry *models.ClassGenerationLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approval tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const clear = `UPDATE generated_class_proposals
SET is_approved = FALSE, approved_by = NULL, approved_at = NULL
WHERE term_id = $1 AND is_approved = TRUE AND id <> $2`
	if _, err := tx.ExecContext(ctx, clear, termID, proposalID); err != nil {
		return fmt.Errorf("clear previous approval: %w", err)
	}

	const approve = `UPDATE generated_class_proposals
SET is_approved = TRUE, approved_by = $2, approved_at = $3
WHERE id = $1 AND term_id = $4`
	result, err := tx.ExecContext(ctx, approve, proposalID, approvedBy, time.Now().UTC(), termID)
	if err != nil {
		return fmt.Errorf("approve proposal: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("approve proposal: proposal %s not found in term %s", proposalID, termID)
	}

	if logEntry != nil {
		if logEntry.ID == "" {
			logEntry.ID = uuid.NewString()
		}
		if logEntry.PerformedAt.IsZero() {
			logEntry.PerformedAt = time.Now().UTC()
		}
		const insertLog = `INSERT INTO class_generation_logs
	(id, term_id, proposal_id, action_type, action_description, old_data, new_data, performed_by, performed_at)
	VALUES (:id, :term_id, :proposal_id, :action_type, :action_description, :old_data, :new_data, :performed_by, :performed_at)`
		if _, err := tx.NamedExecContext(ctx, insertLog, logEntry); err != nil {
			return fmt.Errorf("log approval: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approval tx: %w", err)
	}
	return nil
}
