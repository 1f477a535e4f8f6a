package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/sahabatquran/classgen-api/internal/dto"
	"github.com/sahabatquran/classgen-api/internal/engine"
	"github.com/sahabatquran/classgen-api/internal/models"
	"github.com/sahabatquran/classgen-api/pkg/config"
	appErrors "github.com/sahabatquran/classgen-api/pkg/errors"
)

type refinementProposalStore interface {
	FindByID(ctx context.Context, id string) (*models.GeneratedClassProposal, error)
	UpdateSnapshot(ctx context.Context, proposal *models.GeneratedClassProposal) error
}

// RefinementService applies manual edits to proposals and re-scores them.
// Edits to the same proposal are serialized; concurrent batches on one
// proposal would otherwise validate against stale snapshots.
type RefinementService struct {
	proposals    refinementProposalStore
	availability readinessAvailabilityReader
	levels       readinessLevelReader
	logs         generationLogStore
	metrics      *MetricsService
	cfg          config.GenerationConfig
	validator    *validator.Validate
	logger       *zap.Logger

	proposalLocks sync.Map
}

// NewRefinementService constructs the service.
func NewRefinementService(
	proposals refinementProposalStore,
	availability readinessAvailabilityReader,
	levels readinessLevelReader,
	logs generationLogStore,
	metrics *MetricsService,
	cfg config.GenerationConfig,
	logger *zap.Logger,
) *RefinementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefinementService{
		proposals:    proposals,
		availability: availability,
		levels:       levels,
		logs:         logs,
		metrics:      metrics,
		cfg:          cfg,
		validator:    validator.New(),
		logger:       logger,
	}
}

func (s *RefinementService) proposalLock(proposalID string) *sync.Mutex {
	lock, _ := s.proposalLocks.LoadOrStore(proposalID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Constraints returns the refinement bounds derived from configuration.
func (s *RefinementService) Constraints() dto.RefinementConstraints {
	return dto.RefinementConstraints{
		MaxStudentMovesPerRun:          s.cfg.MaxStudentMovesPerRun,
		AllowTeacherReassignment:       true,
		AllowTimeSlotChanges:           true,
		MaintainStudentCategoryBalance: true,
		CategoryBalanceTolerance:       s.cfg.CategoryBalanceTolerance,
		MaxNewStudentRatio:             s.cfg.NewStudentRatio,
	}
}

// Refine applies an edit batch, re-runs detection and scoring, and persists
// the refined snapshot under the same run number.
func (s *RefinementService) Refine(ctx context.Context, proposalID, userID string, req dto.RefineRequest) (*dto.RefineResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refinement request")
	}

	lock := s.proposalLock(proposalID)
	lock.Lock()
	defer lock.Unlock()

	proposal, err := s.proposals.FindByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load proposal")
	}
	if proposal.IsApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "approved proposals are immutable, generate a new run instead")
	}

	snapshot, err := decodeSnapshot(proposal.ProposalData)
	if err != nil {
		return nil, err
	}
	params, err := decodeParameters(proposal.GenerationParameters)
	if err != nil {
		return nil, err
	}

	slots, err := s.loadSlots(ctx, proposal.TermID)
	if err != nil {
		return nil, err
	}

	oldData := proposal.ProposalData
	refined, results := engine.ApplyEdits(*snapshot, req.Edits, s.Constraints(), slots)

	refined.Conflicts = engine.DetectConflicts(refined.Classes, slots)
	refined.SizeViolations = engine.DetectSizeViolations(refined.Classes, params.AllowUndersizedClasses)
	pool := &engine.Pool{Slots: slots}
	score, metrics := engine.Score(refined, pool, params)
	refined.Metrics = metrics

	applied, rejected := 0, 0
	appliedEdits := make([]dto.RefinementEdit, 0, len(results))
	for _, r := range results {
		if r.Applied {
			applied++
			appliedEdits = append(appliedEdits, r.Edit)
		} else {
			rejected++
		}
	}

	if applied > 0 {
		if err := s.persistRefinement(ctx, proposal, &refined, score, appliedEdits, oldData, userID); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveRefinement(applied, rejected)
	}
	s.logger.Sugar().Infow("proposal refined",
		"proposal_id", proposal.ID,
		"applied", applied,
		"rejected", rejected,
		"score", proposal.OptimizationScore)

	resp, err := s.toResponse(proposal)
	if err != nil {
		return nil, err
	}
	return &dto.RefineResponse{
		Proposal:      *resp,
		Results:       results,
		AppliedCount:  applied,
		RejectedCount: rejected,
	}, nil
}

func (s *RefinementService) persistRefinement(
	ctx context.Context,
	proposal *models.GeneratedClassProposal,
	refined *dto.ProposalSnapshot,
	score float64,
	appliedEdits []dto.RefinementEdit,
	oldData types.JSONText,
	userID string,
) error {
	data, err := json.Marshal(refined)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "marshal refined snapshot")
	}

	var overrides []dto.RefinementEdit
	if len(proposal.ManualOverrides) > 0 {
		if err := json.Unmarshal(proposal.ManualOverrides, &overrides); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode manual overrides")
		}
	}
	overrides = append(overrides, appliedEdits...)
	overridesJSON, err := json.Marshal(overrides)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "marshal manual overrides")
	}

	proposal.ProposalData = types.JSONText(data)
	proposal.OptimizationScore = score
	proposal.ConflictCount = len(refined.Conflicts)
	proposal.ManualOverrides = types.JSONText(overridesJSON)

	if err := s.proposals.UpdateSnapshot(ctx, proposal); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "persist refined snapshot")
	}

	entry := &models.ClassGenerationLog{
		TermID:      proposal.TermID,
		ProposalID:  &proposal.ID,
		Action:      models.ActionRefinement,
		Description: fmt.Sprintf("applied %d manual edits, score now %.1f", len(appliedEdits), score),
		OldData:     oldData,
		NewData:     proposal.ProposalData,
		PerformedBy: userID,
	}
	if err := s.logs.Insert(ctx, entry); err != nil {
		s.logger.Sugar().Errorw("log refinement", "proposal_id", proposal.ID, "error", err)
	}
	return nil
}

// loadSlots rebuilds the teacher slot model for edit validation.
func (s *RefinementService) loadSlots(ctx context.Context, termID string) ([]engine.TeacherSlot, error) {
	windows, err := s.availability.ListByTerm(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list availability")
	}
	assignments, err := s.levels.ListByTerm(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list level assignments")
	}
	pool, err := engine.BuildPool(nil, windows, assignments, nil, dto.GenerationParameters{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDataIncomplete.Code, appErrors.ErrDataIncomplete.Status, "inconsistent teacher data")
	}
	return pool.Slots, nil
}

func (s *RefinementService) toResponse(proposal *models.GeneratedClassProposal) (*dto.ProposalResponse, error) {
	snapshot, err := decodeSnapshot(proposal.ProposalData)
	if err != nil {
		return nil, err
	}
	return &dto.ProposalResponse{
		ProposalID:        proposal.ID,
		TermID:            proposal.TermID,
		GenerationRun:     proposal.GenerationRun,
		OptimizationScore: proposal.OptimizationScore,
		ConflictCount:     proposal.ConflictCount,
		Snapshot:          *snapshot,
		GeneratedBy:       proposal.GeneratedBy,
		GeneratedAt:       proposal.GeneratedAt,
		IsApproved:        proposal.IsApproved,
		CanApprove:        approvalBlocker(snapshot) == "",
		ApprovedBy:        proposal.ApprovedBy,
		ApprovedAt:        proposal.ApprovedAt,
	}, nil
}

func decodeParameters(data types.JSONText) (dto.GenerationParameters, error) {
	params := dto.GenerationParameters{}
	if len(data) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return params, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode generation parameters")
	}
	return params, nil
}
