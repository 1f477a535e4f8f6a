package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// GenerationAction enumerates auditable engine actions.
type GenerationAction string

const (
	ActionGeneration GenerationAction = "GENERATION"
	ActionRefinement GenerationAction = "REFINEMENT"
	ActionApproval   GenerationAction = "APPROVAL"
)

// ClassGenerationLog is an append-only audit record of engine activity.
type ClassGenerationLog struct {
	ID          string           `db:"id" json:"id"`
	TermID      string           `db:"term_id" json:"term_id"`
	ProposalID  *string          `db:"proposal_id" json:"proposal_id,omitempty"`
	Action      GenerationAction `db:"action_type" json:"action_type"`
	Description string           `db:"action_description" json:"action_description"`
	OldData     types.JSONText   `db:"old_data" json:"old_data,omitempty"`
	NewData     types.JSONText   `db:"new_data" json:"new_data,omitempty"`
	PerformedBy string           `db:"performed_by" json:"performed_by"`
	PerformedAt time.Time        `db:"performed_at" json:"performed_at"`
}

// GenerationLogFilter narrows audit queries.
type GenerationLogFilter struct {
	TermID      string
	ProposalID  string
	PerformedBy string
	Action      GenerationAction
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
}
