package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/sahabatquran/classgen-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestProposalRepositoryCreateClaimsNextRun(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO generated_class_proposals")).
		WillReturnRows(sqlmock.NewRows([]string{"generation_run"}).AddRow(3))

	proposal := &models.GeneratedClassProposal{
		TermID:               "term-1",
		ProposalData:         types.JSONText(`{"classes":[]}`),
		GenerationParameters: types.JSONText(`{}`),
		GeneratedBy:          "admin-1",
	}
	require.NoError(t, repo.Create(context.Background(), proposal))
	require.NotEmpty(t, proposal.ID)
	require.Equal(t, 3, proposal.GenerationRun)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryCreateLostRaceReturnsRunConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO generated_class_proposals")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.GeneratedClassProposal{TermID: "term-1"})
	require.ErrorIs(t, err, ErrRunConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	rows := sqlmock.NewRows([]string{
		"id", "term_id", "generation_run", "proposal_data", "optimization_score", "conflict_count",
		"manual_overrides", "generation_parameters", "generated_by", "generated_at", "is_approved",
		"approved_by", "approved_at",
	}).AddRow("prop-1", "term-1", 2, `{"classes":[]}`, 87.5, 1, `[]`, `{}`, "admin-1", time.Now(), false, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, term_id, generation_run")).
		WithArgs("prop-1").
		WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), "prop-1")
	require.NoError(t, err)
	require.Equal(t, 2, found.GenerationRun)
	require.Equal(t, 87.5, found.OptimizationScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryApproveSwapsInOneTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET is_approved = FALSE")).
		WithArgs("term-1", "prop-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET is_approved = TRUE")).
		WithArgs("prop-2", "mgmt-1", sqlmock.AnyArg(), "term-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_generation_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	proposalID := "prop-2"
	entry := &models.ClassGenerationLog{
		TermID:      "term-1",
		ProposalID:  &proposalID,
		Action:      models.ActionApproval,
		Description: "approved run 2",
		PerformedBy: "mgmt-1",
	}
	require.NoError(t, repo.Approve(context.Background(), "prop-2", "term-1", "mgmt-1", entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryApproveUnknownProposalRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET is_approved = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SET is_approved = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), "missing", "term-1", "mgmt-1", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryUpdateSnapshot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE generated_class_proposals")).
		WithArgs("prop-1", sqlmock.AnyArg(), 91.0, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	proposal := &models.GeneratedClassProposal{
		ID:                "prop-1",
		ProposalData:      types.JSONText(`{"classes":[]}`),
		OptimizationScore: 91.0,
		ManualOverrides:   types.JSONText(`[{"type":"MOVE_STUDENT"}]`),
	}
	require.NoError(t, repo.UpdateSnapshot(context.Background(), proposal))
	require.NoError(t, mock.ExpectationsWereMet())
}
