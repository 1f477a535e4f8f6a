package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/sahabatquran/classgen-api/internal/dto"
	"github.com/sahabatquran/classgen-api/internal/engine"
	"github.com/sahabatquran/classgen-api/internal/models"
	"github.com/sahabatquran/classgen-api/internal/repository"
	"github.com/sahabatquran/classgen-api/pkg/config"
	appErrors "github.com/sahabatquran/classgen-api/pkg/errors"
	"github.com/sahabatquran/classgen-api/pkg/jobs"
)

type sizeConfigReader interface {
	List(ctx context.Context) ([]models.SizeConfiguration, error)
}

type proposalStore interface {
	Create(ctx context.Context, proposal *models.GeneratedClassProposal) error
	FindByID(ctx context.Context, id string) (*models.GeneratedClassProposal, error)
	ListByTerm(ctx context.Context, termID string, order models.ProposalOrder, limit, offset int) ([]models.GeneratedClassProposal, error)
	CountByTerm(ctx context.Context, termID string) (int, error)
	Approve(ctx context.Context, proposalID, termID, approvedBy string, logEntry *models.ClassGenerationLog) error
}

type generationLogStore interface {
	Insert(ctx context.Context, entry *models.ClassGenerationLog) error
	List(ctx context.Context, filter models.GenerationLogFilter) ([]models.ClassGenerationLog, error)
	Count(ctx context.Context, filter models.GenerationLogFilter) (int, error)
}

type readinessChecker interface {
	Ensure(ctx context.Context, termID string) (*dto.GenerationReadiness, error)
	RecommendedParameters() dto.GenerationParameters
	InvalidateCache(ctx context.Context, termID string)
}

// Async job lifecycle states.
const (
	JobStatusQueued    = "QUEUED"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// GenerationService orchestrates proposal generation, listing and approval.
// Generations for the same term are serialized so run numbers stay
// monotonic; different terms proceed in parallel.
type GenerationService struct {
	readiness    readinessChecker
	assessments  readinessAssessmentReader
	availability readinessAvailabilityReader
	levels       readinessLevelReader
	sizes        sizeConfigReader
	proposals    proposalStore
	logs         generationLogStore
	metrics      *MetricsService
	cfg          config.GenerationConfig
	validator    *validator.Validate
	logger       *zap.Logger

	termLocks sync.Map

	queue      *jobs.Queue
	jobsMu     sync.RWMutex
	jobStatus  map[string]*dto.AsyncGenerationStatus
	queueSetup sync.Once
}

// NewGenerationService constructs the service.
func NewGenerationService(
	readiness readinessChecker,
	assessments readinessAssessmentReader,
	availability readinessAvailabilityReader,
	levels readinessLevelReader,
	sizes sizeConfigReader,
	proposals proposalStore,
	logs generationLogStore,
	metrics *MetricsService,
	cfg config.GenerationConfig,
	logger *zap.Logger,
) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		readiness:    readiness,
		assessments:  assessments,
		availability: availability,
		levels:       levels,
		sizes:        sizes,
		proposals:    proposals,
		logs:         logs,
		metrics:      metrics,
		cfg:          cfg,
		validator:    validator.New(),
		logger:       logger,
		jobStatus:    make(map[string]*dto.AsyncGenerationStatus),
	}
}

func (s *GenerationService) termLock(termID string) *sync.Mutex {
	lock, _ := s.termLocks.LoadOrStore(termID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Generate runs the full pipeline synchronously and persists the proposal.
func (s *GenerationService) Generate(ctx context.Context, termID, userID string, req dto.GenerateRequest) (*dto.ProposalResponse, error) {
	params := s.mergeParameters(req.Parameters)
	if err := s.validator.Struct(params); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation parameters")
	}
	if params.DefaultMinClassSize > params.DefaultMaxClassSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, "minimum class size exceeds maximum")
	}

	lock := s.termLock(termID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.readiness.Ensure(ctx, termID); err != nil {
		return nil, err
	}

	started := time.Now()
	snapshot, pool, err := s.run(ctx, termID, params)
	if err != nil {
		return nil, err
	}
	score, metrics := engine.Score(*snapshot, pool, params)
	snapshot.Metrics = metrics

	proposal, err := s.persist(ctx, termID, userID, snapshot, score, params)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveGeneration(time.Since(started), score, len(snapshot.Conflicts))
	}
	s.logger.Sugar().Infow("proposal generated",
		"term_id", termID,
		"run", proposal.GenerationRun,
		"score", score,
		"classes", metrics.TotalClasses,
		"conflicts", len(snapshot.Conflicts),
		"duration_ms", time.Since(started).Milliseconds())

	return s.toResponse(proposal)
}

// run builds the pool and solves it. The readiness gate already passed, but
// data may have changed between the check and now, so pool construction
// failures map to DATA_INCOMPLETE rather than an internal error.
func (s *GenerationService) run(ctx context.Context, termID string, params dto.GenerationParameters) (*dto.ProposalSnapshot, *engine.Pool, error) {
	assessments, err := s.assessments.ListValidatedByTerm(ctx, termID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list assessments")
	}
	if len(assessments) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrDataIncomplete, "no validated assessments to place")
	}
	windows, err := s.availability.ListByTerm(ctx, termID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list availability")
	}
	assignments, err := s.levels.ListByTerm(ctx, termID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list level assignments")
	}
	sizes, err := s.sizes.List(ctx)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list size configurations")
	}

	pool, err := engine.BuildPool(assessments, windows, assignments, sizes, params)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrDataIncomplete.Code, appErrors.ErrDataIncomplete.Status, "inconsistent preparation data")
	}

	result := engine.Solve(pool, params)
	snapshot := &dto.ProposalSnapshot{
		Classes:        result.Classes,
		Conflicts:      engine.DetectConflicts(result.Classes, pool.Slots),
		SizeViolations: engine.DetectSizeViolations(result.Classes, params.AllowUndersizedClasses),
		Unassigned:     result.Unassigned,
	}
	return snapshot, pool, nil
}

func (s *GenerationService) persist(ctx context.Context, termID, userID string, snapshot *dto.ProposalSnapshot, score float64, params dto.GenerationParameters) (*models.GeneratedClassProposal, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "marshal snapshot")
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "marshal parameters")
	}

	proposal := &models.GeneratedClassProposal{
		TermID:               termID,
		ProposalData:         types.JSONText(data),
		OptimizationScore:    score,
		ConflictCount:        len(snapshot.Conflicts),
		ManualOverrides:      types.JSONText("[]"),
		GenerationParameters: types.JSONText(paramsJSON),
		GeneratedBy:          userID,
	}
	if err := s.proposals.Create(ctx, proposal); err != nil {
		if errors.Is(err, repository.ErrRunConflict) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "another generation claimed this run, retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "persist proposal")
	}

	entry := &models.ClassGenerationLog{
		TermID:      termID,
		ProposalID:  &proposal.ID,
		Action:      models.ActionGeneration,
		Description: fmt.Sprintf("generated proposal run %d with score %.1f", proposal.GenerationRun, score),
		NewData:     proposal.ProposalData,
		PerformedBy: userID,
	}
	if err := s.logs.Insert(ctx, entry); err != nil {
		s.logger.Sugar().Errorw("log generation", "term_id", termID, "proposal_id", proposal.ID, "error", err)
	}

	s.readiness.InvalidateCache(ctx, termID)
	return proposal, nil
}

// mergeParameters fills unset request fields from configured defaults.
func (s *GenerationService) mergeParameters(params dto.GenerationParameters) dto.GenerationParameters {
	defaults := s.readiness.RecommendedParameters()
	if params.DefaultMinClassSize == 0 {
		params.DefaultMinClassSize = defaults.DefaultMinClassSize
	}
	if params.DefaultMaxClassSize == 0 {
		params.DefaultMaxClassSize = defaults.DefaultMaxClassSize
	}
	if params.NewStudentRatio == 0 {
		params.NewStudentRatio = defaults.NewStudentRatio
	}
	if params.MaxClassesPerTeacher == 0 {
		params.MaxClassesPerTeacher = defaults.MaxClassesPerTeacher
	}
	if params.PriorityStrategy == "" {
		params.PriorityStrategy = defaults.PriorityStrategy
	}
	return params
}

// StartQueue wires the async worker pool. Call once at startup.
func (s *GenerationService) StartQueue(ctx context.Context) {
	s.queueSetup.Do(func() {
		s.queue = jobs.NewQueue("class-generation", s.handleJob, jobs.QueueConfig{
			Workers:    s.cfg.AsyncWorkers,
			BufferSize: s.cfg.AsyncBufferSize,
			Logger:     s.logger,
		})
		s.queue.Start(ctx)
	})
}

// StopQueue drains the async workers.
func (s *GenerationService) StopQueue() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

type generationJobPayload struct {
	TermID string
	UserID string
	Req    dto.GenerateRequest
}

// GenerateAsync queues a generation job and returns immediately.
func (s *GenerationService) GenerateAsync(ctx context.Context, termID, userID string, req dto.GenerateRequest) (*dto.AsyncGenerationAccepted, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "async generation not available")
	}
	if _, err := s.readiness.Ensure(ctx, termID); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	s.setJobStatus(&dto.AsyncGenerationStatus{JobID: jobID, Status: JobStatusQueued})
	err := s.queue.Enqueue(jobs.Job{
		ID:      jobID,
		Type:    "generate",
		Payload: generationJobPayload{TermID: termID, UserID: userID, Req: req},
	})
	if err != nil {
		s.setJobStatus(&dto.AsyncGenerationStatus{JobID: jobID, Status: JobStatusFailed, Error: err.Error()})
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "generation queue is full, retry shortly")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enqueue generation")
	}
	return &dto.AsyncGenerationAccepted{JobID: jobID, TermID: termID, Status: JobStatusQueued}, nil
}

func (s *GenerationService) handleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(generationJobPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	s.setJobStatus(&dto.AsyncGenerationStatus{JobID: job.ID, Status: JobStatusRunning})

	resp, err := s.Generate(ctx, payload.TermID, payload.UserID, payload.Req)
	if err != nil {
		// Domain failures are recorded on the job status, not requeued.
		s.setJobStatus(&dto.AsyncGenerationStatus{JobID: job.ID, Status: JobStatusFailed, Error: err.Error()})
		return nil
	}
	s.setJobStatus(&dto.AsyncGenerationStatus{
		JobID:      job.ID,
		Status:     JobStatusCompleted,
		ProposalID: &resp.ProposalID,
	})
	return nil
}

func (s *GenerationService) setJobStatus(status *dto.AsyncGenerationStatus) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	s.jobStatus[status.JobID] = status
}

// JobStatus reports the state of a queued generation job.
func (s *GenerationService) JobStatus(jobID string) (*dto.AsyncGenerationStatus, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	status, ok := s.jobStatus[jobID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	return status, nil
}

// List returns a term's proposals with pagination.
func (s *GenerationService) List(ctx context.Context, termID string, order models.ProposalOrder, page, pageSize int) ([]dto.ProposalResponse, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	proposals, err := s.proposals.ListByTerm(ctx, termID, order, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list proposals")
	}
	total, err := s.proposals.CountByTerm(ctx, termID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "count proposals")
	}

	responses := make([]dto.ProposalResponse, 0, len(proposals))
	for i := range proposals {
		resp, err := s.toResponse(&proposals[i])
		if err != nil {
			return nil, nil, err
		}
		responses = append(responses, *resp)
	}
	return responses, models.NewPagination(page, pageSize, total), nil
}

// Get returns a single proposal with its full snapshot.
func (s *GenerationService) Get(ctx context.Context, proposalID string) (*dto.ProposalResponse, error) {
	proposal, err := s.proposals.FindByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load proposal")
	}
	return s.toResponse(proposal)
}

// Approve marks a proposal as the term's approved plan. At most one proposal
// per term is approved; approving another swaps atomically.
func (s *GenerationService) Approve(ctx context.Context, proposalID, userID string) (*dto.ProposalResponse, error) {
	proposal, err := s.proposals.FindByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load proposal")
	}
	if proposal.IsApproved {
		return s.toResponse(proposal)
	}

	snapshot, err := decodeSnapshot(proposal.ProposalData)
	if err != nil {
		return nil, err
	}
	if reason := approvalBlocker(snapshot); reason != "" {
		return nil, appErrors.Clone(appErrors.ErrConflict, reason)
	}

	entry := &models.ClassGenerationLog{
		TermID:      proposal.TermID,
		ProposalID:  &proposal.ID,
		Action:      models.ActionApproval,
		Description: fmt.Sprintf("approved proposal run %d", proposal.GenerationRun),
		NewData:     types.JSONText(fmt.Sprintf(`{"proposalId":%q,"generationRun":%d}`, proposal.ID, proposal.GenerationRun)),
		PerformedBy: userID,
	}
	if err := s.proposals.Approve(ctx, proposal.ID, proposal.TermID, userID, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "approve proposal")
	}

	s.logger.Sugar().Infow("proposal approved", "term_id", proposal.TermID, "proposal_id", proposal.ID, "run", proposal.GenerationRun, "by", userID)
	return s.Get(ctx, proposal.ID)
}

// History returns the audit trail for a term.
func (s *GenerationService) History(ctx context.Context, filter models.GenerationLogFilter) ([]models.ClassGenerationLog, *models.Pagination, error) {
	entries, err := s.logs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list generation logs")
	}
	total, err := s.logs.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "count generation logs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return entries, models.NewPagination(page, filter.PageSize, total), nil
}

func (s *GenerationService) toResponse(proposal *models.GeneratedClassProposal) (*dto.ProposalResponse, error) {
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

func decodeSnapshot(data types.JSONText) (*dto.ProposalSnapshot, error) {
	snapshot := &dto.ProposalSnapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode proposal snapshot")
	}
	return snapshot, nil
}

// approvalBlocker names the first finding that prevents approval, or "".
func approvalBlocker(snapshot *dto.ProposalSnapshot) string {
	for _, c := range snapshot.Conflicts {
		if c.Severity == dto.SeverityHigh && !c.IsResolved {
			return fmt.Sprintf("unresolved %s conflict: %s", c.Severity, c.Description)
		}
	}
	for _, v := range snapshot.SizeViolations {
		if v.RequiresApproval && !v.IsApproved {
			return fmt.Sprintf("size violation on %s requires explicit approval", v.ClassName)
		}
	}
	return ""
}
