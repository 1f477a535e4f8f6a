package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahabatquran/classgen-api/internal/dto"
	"github.com/sahabatquran/classgen-api/internal/models"
	appErrors "github.com/sahabatquran/classgen-api/pkg/errors"
)

func seededProposal(t *testing.T, store *fakeProposalStore, approved bool) *models.GeneratedClassProposal {
	t.Helper()
	t1 := "t1"
	t2 := "t2"
	snapshot := dto.ProposalSnapshot{
		Classes: []dto.GeneratedClass{
			{
				ClassID: "c1", ClassName: "Tahsin 1 - A", LevelID: "tahsin-1", LevelName: "Tahsin 1",
				TeacherID: &t1, TeacherName: "Teacher t1", DayOfWeek: "MONDAY", Session: models.SessionMorning,
				Students: []dto.AssignedStudent{
					{StudentID: "s1", StudentName: "Student s1", Category: models.CategoryNew, CanReassign: true},
					{StudentID: "s2", StudentName: "Student s2", Category: models.CategoryExisting, CanReassign: true},
				},
				CurrentSize: 2, MinSize: 1, MaxSize: 10, ClassType: dto.ClassTypeMixed,
			},
			{
				ClassID: "c2", ClassName: "Tahsin 1 - B", LevelID: "tahsin-1", LevelName: "Tahsin 1",
				TeacherID: &t2, TeacherName: "Teacher t2", DayOfWeek: "TUESDAY", Session: models.SessionMorning,
				Students: []dto.AssignedStudent{
					{StudentID: "s3", StudentName: "Student s3", Category: models.CategoryExisting, CanReassign: true},
				},
				CurrentSize: 1, MinSize: 1, MaxSize: 10, ClassType: dto.ClassTypeExistingOnly,
			},
		},
		Conflicts:      []dto.Conflict{},
		SizeViolations: []dto.SizeViolation{},
		Unassigned:     []dto.UnassignedStudent{},
	}
	data, err := json.Marshal(snapshot)
	require.NoError(t, err)
	params, err := json.Marshal(dto.GenerationParameters{
		DefaultMinClassSize: 1, DefaultMaxClassSize: 10, NewStudentRatio: 0.4,
	})
	require.NoError(t, err)

	proposal := &models.GeneratedClassProposal{
		ID:                   "prop-1",
		TermID:               "term-1",
		ProposalData:         types.JSONText(data),
		OptimizationScore:    95,
		ManualOverrides:      types.JSONText("[]"),
		GenerationParameters: types.JSONText(params),
		GeneratedBy:          "admin-1",
		GeneratedAt:          time.Now(),
		IsApproved:           approved,
	}
	store.mu.Lock()
	clone := *proposal
	clone.GenerationRun = 1
	store.proposals[proposal.ID] = &clone
	store.mu.Unlock()
	return proposal
}

func newRefinementFixture(t *testing.T, approved bool) (*RefinementService, *fakeProposalStore, *fakeLogStore) {
	t.Helper()
	store := newFakeProposalStore()
	seededProposal(t, store, approved)

	windows := []models.TeacherAvailability{readyWindow("t1"), readyWindow("t2"), readyWindow("t3")}
	windows[1].DayOfWeek = "TUESDAY"
	extra := readyWindow("t1")
	extra.DayOfWeek = "FRIDAY"
	windows = append(windows, extra)
	assignments := []models.TeacherLevelAssignment{
		readyAssignment("t1"), readyAssignment("t2"), readyAssignment("t3"),
	}

	logs := &fakeLogStore{}
	svc := NewRefinementService(
		store,
		&fakeAvailabilityRepo{windows: windows, submitted: 3},
		&fakeLevelRepo{assignments: assignments, assigned: 3},
		logs,
		NewMetricsService(),
		generationTestConfig(),
		nil,
	)
	return svc, store, logs
}

func TestRefinementServiceAppliesMoveAndRescores(t *testing.T) {
	svc, store, logs := newRefinementFixture(t, false)

	resp, err := svc.Refine(context.Background(), "prop-1", "admin-1", dto.RefineRequest{
		Edits: []dto.RefinementEdit{
			{Type: dto.EditMoveStudent, StudentID: "s2", FromClassID: "c1", ToClassID: "c2"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.AppliedCount)
	assert.Equal(t, 0, resp.RejectedCount)
	assert.Equal(t, 1, resp.Proposal.GenerationRun)

	stored := store.proposals["prop-1"]
	snapshot, err := decodeSnapshot(stored.ProposalData)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Classes[0].CurrentSize)
	assert.Equal(t, 2, snapshot.Classes[1].CurrentSize)

	var overrides []dto.RefinementEdit
	require.NoError(t, json.Unmarshal(stored.ManualOverrides, &overrides))
	require.Len(t, overrides, 1)
	assert.Equal(t, "s2", overrides[0].StudentID)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.ActionRefinement, logs.entries[0].Action)
	assert.NotEmpty(t, logs.entries[0].OldData)
}

func TestRefinementServiceRejectsApprovedProposal(t *testing.T) {
	svc, store, _ := newRefinementFixture(t, true)

	_, err := svc.Refine(context.Background(), "prop-1", "admin-1", dto.RefineRequest{
		Edits: []dto.RefinementEdit{
			{Type: dto.EditMoveStudent, StudentID: "s2", FromClassID: "c1", ToClassID: "c2"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	stored := store.proposals["prop-1"]
	snapshot, err := decodeSnapshot(stored.ProposalData)
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Classes[0].CurrentSize)
}

func TestRefinementServiceRejectedBatchLeavesSnapshotUntouched(t *testing.T) {
	svc, store, logs := newRefinementFixture(t, false)

	resp, err := svc.Refine(context.Background(), "prop-1", "admin-1", dto.RefineRequest{
		Edits: []dto.RefinementEdit{
			{Type: dto.EditMoveStudent, StudentID: "s9", FromClassID: "c1", ToClassID: "c2"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.AppliedCount)
	assert.Equal(t, 1, resp.RejectedCount)
	assert.NotEmpty(t, resp.Results[0].Reason)

	stored := store.proposals["prop-1"]
	snapshot, err := decodeSnapshot(stored.ProposalData)
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Classes[0].CurrentSize)
	assert.Empty(t, logs.entries)
}

func TestRefinementServiceMixedBatchAppliesValidEdits(t *testing.T) {
	svc, store, _ := newRefinementFixture(t, false)

	resp, err := svc.Refine(context.Background(), "prop-1", "admin-1", dto.RefineRequest{
		Edits: []dto.RefinementEdit{
			{Type: dto.EditMoveStudent, StudentID: "s2", FromClassID: "c1", ToClassID: "c2"},
			{Type: dto.EditMoveStudent, StudentID: "missing", FromClassID: "c1", ToClassID: "c2"},
			{Type: dto.EditReassignTeacher, ClassID: "c1", NewTeacherID: "t3"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.AppliedCount)
	assert.Equal(t, 1, resp.RejectedCount)

	stored := store.proposals["prop-1"]
	snapshot, err := decodeSnapshot(stored.ProposalData)
	require.NoError(t, err)
	require.NotNil(t, snapshot.Classes[0].TeacherID)
	assert.Equal(t, "t3", *snapshot.Classes[0].TeacherID)
}

func TestRefinementServiceUnknownProposal(t *testing.T) {
	svc, _, _ := newRefinementFixture(t, false)

	_, err := svc.Refine(context.Background(), "ghost", "admin-1", dto.RefineRequest{
		Edits: []dto.RefinementEdit{
			{Type: dto.EditMoveStudent, StudentID: "s2", FromClassID: "c1", ToClassID: "c2"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
