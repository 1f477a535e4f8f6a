package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// GeneratedClassProposal is one generation run's complete candidate roster.
// The full class/conflict/violation/metrics snapshot lives in ProposalData;
// refinements rewrite the snapshot but never the run number.
type GeneratedClassProposal struct {
	ID                   string         `db:"id" json:"id"`
	TermID               string         `db:"term_id" json:"term_id"`
	GenerationRun        int            `db:"generation_run" json:"generation_run"`
	ProposalData         types.JSONText `db:"proposal_data" json:"proposal_data"`
	OptimizationScore    float64        `db:"optimization_score" json:"optimization_score"`
	ConflictCount        int            `db:"conflict_count" json:"conflict_count"`
	ManualOverrides      types.JSONText `db:"manual_overrides" json:"manual_overrides,omitempty"`
	GenerationParameters types.JSONText `db:"generation_parameters" json:"generation_parameters"`
	GeneratedBy          string         `db:"generated_by" json:"generated_by"`
	GeneratedAt          time.Time      `db:"generated_at" json:"generated_at"`
	IsApproved           bool           `db:"is_approved" json:"is_approved"`
	ApprovedBy           *string        `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt           *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
}

// ProposalOrder selects list ordering for proposals of a term.
type ProposalOrder string

const (
	ProposalOrderByRun   ProposalOrder = "run"
	ProposalOrderByScore ProposalOrder = "score"
)
