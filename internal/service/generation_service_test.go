package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahabatquran/classgen-api/internal/dto"
	"github.com/sahabatquran/classgen-api/internal/models"
	appErrors "github.com/sahabatquran/classgen-api/pkg/errors"
)

type fakeSizeRepo struct {
	configs []models.SizeConfiguration
}

func (f *fakeSizeRepo) List(_ context.Context) ([]models.SizeConfiguration, error) {
	return f.configs, nil
}

type fakeProposalStore struct {
	mu        sync.Mutex
	proposals map[string]*models.GeneratedClassProposal
	logs      []*models.ClassGenerationLog
}

func newFakeProposalStore() *fakeProposalStore {
	return &fakeProposalStore{proposals: make(map[string]*models.GeneratedClassProposal)}
}

func (f *fakeProposalStore) Create(_ context.Context, proposal *models.GeneratedClassProposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if proposal.ID == "" {
		proposal.ID = "prop-" + proposal.TermID + "-" + string(rune('a'+len(f.proposals)))
	}
	maxRun := 0
	for _, p := range f.proposals {
		if p.TermID == proposal.TermID && p.GenerationRun > maxRun {
			maxRun = p.GenerationRun
		}
	}
	proposal.GenerationRun = maxRun + 1
	clone := *proposal
	f.proposals[proposal.ID] = &clone
	return nil
}

func (f *fakeProposalStore) FindByID(_ context.Context, id string) (*models.GeneratedClassProposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (f *fakeProposalStore) ListByTerm(_ context.Context, termID string, _ models.ProposalOrder, _, _ int) ([]models.GeneratedClassProposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.GeneratedClassProposal
	for _, p := range f.proposals {
		if p.TermID == termID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProposalStore) CountByTerm(_ context.Context, termID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, p := range f.proposals {
		if p.TermID == termID {
			count++
		}
	}
	return count, nil
}

func (f *fakeProposalStore) Approve(_ context.Context, proposalID, termID, approvedBy string, logEntry *models.ClassGenerationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.proposals[proposalID]
	if !ok || target.TermID != termID {
		return sql.ErrNoRows
	}
	for _, p := range f.proposals {
		if p.TermID == termID {
			p.IsApproved = false
			p.ApprovedBy = nil
		}
	}
	target.IsApproved = true
	target.ApprovedBy = &approvedBy
	if logEntry != nil {
		f.logs = append(f.logs, logEntry)
	}
	return nil
}

func (f *fakeProposalStore) UpdateSnapshot(_ context.Context, proposal *models.GeneratedClassProposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.proposals[proposal.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.ProposalData = proposal.ProposalData
	stored.OptimizationScore = proposal.OptimizationScore
	stored.ConflictCount = proposal.ConflictCount
	stored.ManualOverrides = proposal.ManualOverrides
	return nil
}

type fakeLogStore struct {
	mu      sync.Mutex
	entries []models.ClassGenerationLog
}

func (f *fakeLogStore) Insert(_ context.Context, entry *models.ClassGenerationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeLogStore) List(_ context.Context, filter models.GenerationLogFilter) ([]models.ClassGenerationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClassGenerationLog
	for _, e := range f.entries {
		if filter.TermID != "" && e.TermID != filter.TermID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeLogStore) Count(ctx context.Context, filter models.GenerationLogFilter) (int, error) {
	entries, _ := f.List(ctx, filter)
	return len(entries), nil
}

type fakeReadiness struct {
	ensureErr error
	params    dto.GenerationParameters
}

func (f *fakeReadiness) Ensure(_ context.Context, _ string) (*dto.GenerationReadiness, error) {
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return &dto.GenerationReadiness{CanGenerate: true}, nil
}

func (f *fakeReadiness) RecommendedParameters() dto.GenerationParameters { return f.params }

func (f *fakeReadiness) InvalidateCache(_ context.Context, _ string) {}

type generationFixture struct {
	service   *GenerationService
	proposals *fakeProposalStore
	logs      *fakeLogStore
}

func newGenerationFixture(t *testing.T, readiness *fakeReadiness) *generationFixture {
	t.Helper()
	if readiness == nil {
		readiness = &fakeReadiness{params: dto.GenerationParameters{
			DefaultMinClassSize:  7,
			DefaultMaxClassSize:  10,
			NewStudentRatio:      0.4,
			MaxClassesPerTeacher: 6,
			PriorityStrategy:     dto.StrategyBalance,
		}}
	}

	assessments := make([]models.StudentAssessment, 0, 20)
	for i := 0; i < 20; i++ {
		a := readyAssessment("s" + string(rune('a'+i)))
		if i < 8 {
			a.Category = models.CategoryNew
		}
		assessments = append(assessments, a)
	}
	windows := []models.TeacherAvailability{readyWindow("t1"), readyWindow("t2")}
	windows[1].DayOfWeek = "TUESDAY"
	moreT1 := readyWindow("t1")
	moreT1.DayOfWeek = "WEDNESDAY"
	windows = append(windows, moreT1)
	assignments := []models.TeacherLevelAssignment{readyAssignment("t1"), readyAssignment("t2")}

	proposals := newFakeProposalStore()
	logs := &fakeLogStore{}
	svc := NewGenerationService(
		readiness,
		&fakeAssessmentRepo{assessments: assessments, total: 20, validated: 20},
		&fakeAvailabilityRepo{windows: windows, submitted: 2},
		&fakeLevelRepo{assignments: assignments, assigned: 2},
		&fakeSizeRepo{},
		proposals,
		logs,
		NewMetricsService(),
		generationTestConfig(),
		nil,
	)
	return &generationFixture{service: svc, proposals: proposals, logs: logs}
}

func TestGenerationServiceGenerateProducesScoredProposal(t *testing.T) {
	fx := newGenerationFixture(t, nil)

	resp, err := fx.service.Generate(context.Background(), "term-1", "admin-1", dto.GenerateRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.GenerationRun)
	assert.Equal(t, "term-1", resp.TermID)
	assert.Len(t, resp.Snapshot.Classes, 2)
	assert.Empty(t, resp.Snapshot.Unassigned)
	assert.Greater(t, resp.OptimizationScore, 0.0)
	assert.False(t, resp.IsApproved)
	assert.True(t, resp.CanApprove)

	require.Len(t, fx.logs.entries, 1)
	assert.Equal(t, models.ActionGeneration, fx.logs.entries[0].Action)
}

func TestGenerationServiceAsyncJobCompletes(t *testing.T) {
	fx := newGenerationFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.service.StartQueue(ctx)
	defer fx.service.StopQueue()

	accepted, err := fx.service.GenerateAsync(ctx, "term-1", "admin-1", dto.GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, accepted.Status)

	require.Eventually(t, func() bool {
		status, err := fx.service.JobStatus(accepted.JobID)
		return err == nil && status.Status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	status, err := fx.service.JobStatus(accepted.JobID)
	require.NoError(t, err)
	require.NotNil(t, status.ProposalID)

	proposal, err := fx.service.Get(ctx, *status.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, 1, proposal.GenerationRun)
}

func TestGenerationServiceRunNumbersAreMonotonic(t *testing.T) {
	fx := newGenerationFixture(t, nil)

	first, err := fx.service.Generate(context.Background(), "term-1", "admin-1", dto.GenerateRequest{})
	require.NoError(t, err)
	second, err := fx.service.Generate(context.Background(), "term-1", "admin-1", dto.GenerateRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, first.GenerationRun)
	assert.Equal(t, 2, second.GenerationRun)
}

func TestGenerationServiceGenerateBlockedWhenNotReady(t *testing.T) {
	notReady := &fakeReadiness{
		ensureErr: appErrors.Clone(appErrors.ErrNotReady, "generation blocked: 2 assessments not validated"),
		params:    dto.GenerationParameters{DefaultMinClassSize: 7, DefaultMaxClassSize: 10, NewStudentRatio: 0.4},
	}
	fx := newGenerationFixture(t, notReady)

	_, err := fx.service.Generate(context.Background(), "term-1", "admin-1", dto.GenerateRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotReady.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.proposals.proposals)
}

func TestGenerationServiceRejectsInvertedSizeBounds(t *testing.T) {
	fx := newGenerationFixture(t, nil)

	_, err := fx.service.Generate(context.Background(), "term-1", "admin-1", dto.GenerateRequest{
		Parameters: dto.GenerationParameters{DefaultMinClassSize: 12, DefaultMaxClassSize: 10},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceApproveSwapsApproval(t *testing.T) {
	fx := newGenerationFixture(t, nil)

	first, err := fx.service.Generate(context.Background(), "term-1", "admin-1", dto.GenerateRequest{})
	require.NoError(t, err)
	second, err := fx.service.Generate(context.Background(), "term-1", "admin-1", dto.GenerateRequest{})
	require.NoError(t, err)

	approved, err := fx.service.Approve(context.Background(), first.ProposalID, "mgmt-1")
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)

	swapped, err := fx.service.Approve(context.Background(), second.ProposalID, "mgmt-1")
	require.NoError(t, err)
	assert.True(t, swapped.IsApproved)

	count := 0
	for _, p := range fx.proposals.proposals {
		if p.IsApproved {
			count++
		}
	}
	assert.Equal(t, 1, count)

	former, err := fx.service.Get(context.Background(), first.ProposalID)
	require.NoError(t, err)
	assert.False(t, former.IsApproved)
}

func TestGenerationServiceApproveBlockedByHighConflict(t *testing.T) {
	fx := newGenerationFixture(t, nil)
	resp, err := fx.service.Generate(context.Background(), "term-1", "admin-1", dto.GenerateRequest{})
	require.NoError(t, err)

	stored := fx.proposals.proposals[resp.ProposalID]
	snapshot, err := decodeSnapshot(stored.ProposalData)
	require.NoError(t, err)
	snapshot.Conflicts = append(snapshot.Conflicts, dto.Conflict{
		Type: dto.ConflictTeacherDoubleBooking, Severity: dto.SeverityHigh,
		Description: "Teacher t1 double booked",
	})
	raw, err := json.Marshal(snapshot)
	require.NoError(t, err)
	stored.ProposalData = types.JSONText(raw)

	_, err = fx.service.Approve(context.Background(), resp.ProposalID, "mgmt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceGetUnknownProposal(t *testing.T) {
	fx := newGenerationFixture(t, nil)

	_, err := fx.service.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceHistoryFiltersByAction(t *testing.T) {
	fx := newGenerationFixture(t, nil)
	_, err := fx.service.Generate(context.Background(), "term-1", "admin-1", dto.GenerateRequest{})
	require.NoError(t, err)

	entries, pagination, err := fx.service.History(context.Background(), models.GenerationLogFilter{
		TermID: "term-1",
		Action: models.ActionGeneration,
		Page:   1, PageSize: 20,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, pagination.TotalItems)

	entries, _, err = fx.service.History(context.Background(), models.GenerationLogFilter{
		TermID: "term-1",
		Action: models.ActionApproval,
	})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
