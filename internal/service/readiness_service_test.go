package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahabatquran/classgen-api/internal/models"
	"github.com/sahabatquran/classgen-api/pkg/config"
	appErrors "github.com/sahabatquran/classgen-api/pkg/errors"
)

type fakeTermRepo struct {
	term *models.Term
	err  error
}

func (f *fakeTermRepo) FindByID(_ context.Context, _ string) (*models.Term, error) {
	return f.term, f.err
}

type fakeAssessmentRepo struct {
	assessments []models.StudentAssessment
	total       int
	validated   int
}

func (f *fakeAssessmentRepo) ListValidatedByTerm(_ context.Context, _ string) ([]models.StudentAssessment, error) {
	return f.assessments, nil
}

func (f *fakeAssessmentRepo) CountByTerm(_ context.Context, _ string) (int, int, error) {
	return f.total, f.validated, nil
}

type fakeAvailabilityRepo struct {
	windows   []models.TeacherAvailability
	submitted int
}

func (f *fakeAvailabilityRepo) ListByTerm(_ context.Context, _ string) ([]models.TeacherAvailability, error) {
	return f.windows, nil
}

func (f *fakeAvailabilityRepo) CountSubmittedTeachers(_ context.Context, _ string) (int, error) {
	return f.submitted, nil
}

type fakeLevelRepo struct {
	assignments []models.TeacherLevelAssignment
	assigned    int
}

func (f *fakeLevelRepo) ListByTerm(_ context.Context, _ string) ([]models.TeacherLevelAssignment, error) {
	return f.assignments, nil
}

func (f *fakeLevelRepo) CountAssignedTeachers(_ context.Context, _ string) (int, error) {
	return f.assigned, nil
}

func generationTestConfig() config.GenerationConfig {
	return config.GenerationConfig{
		DefaultMinClassSize:      7,
		DefaultMaxClassSize:      10,
		NewStudentRatio:          0.4,
		MaxClassesPerTeacher:     6,
		MaxStudentMovesPerRun:    5,
		CategoryBalanceTolerance: 0.2,
		ReadinessCacheTTL:        time.Minute,
	}
}

func planningTerm() *models.Term {
	return &models.Term{ID: "term-1", Name: "Semester 1", Status: models.TermStatusPlanning}
}

func readyAssessment(studentID string) models.StudentAssessment {
	return models.StudentAssessment{
		ID: "a-" + studentID, StudentID: studentID, StudentName: "Student " + studentID,
		TermID: "term-1", Category: models.CategoryExisting,
		DeterminedLevelID: "tahsin-1", LevelName: "Tahsin 1",
		Score: 75, Grade: "B", IsValidated: true,
	}
}

func readyWindow(teacherID string) models.TeacherAvailability {
	now := time.Now()
	return models.TeacherAvailability{
		TeacherID: teacherID, TeacherName: "Teacher " + teacherID, TermID: "term-1",
		DayOfWeek: "MONDAY", Session: models.SessionMorning,
		IsAvailable: true, MaxClassesPerWeek: 6, SubmittedAt: &now,
	}
}

func readyAssignment(teacherID string) models.TeacherLevelAssignment {
	return models.TeacherLevelAssignment{
		TeacherID: teacherID, TeacherName: "Teacher " + teacherID,
		LevelID: "tahsin-1", LevelName: "Tahsin 1", TermID: "term-1",
		Competency: models.CompetencySenior,
	}
}

func TestReadinessCheckAllCompleteCanGenerate(t *testing.T) {
	svc := NewReadinessService(
		&fakeTermRepo{term: planningTerm()},
		&fakeAssessmentRepo{
			assessments: []models.StudentAssessment{readyAssessment("s1"), readyAssessment("s2")},
			total:       2, validated: 2,
		},
		&fakeAvailabilityRepo{windows: []models.TeacherAvailability{readyWindow("t1")}, submitted: 1},
		&fakeLevelRepo{assignments: []models.TeacherLevelAssignment{readyAssignment("t1")}, assigned: 1},
		nil, generationTestConfig(), nil,
	)

	readiness, err := svc.Check(context.Background(), "term-1")
	require.NoError(t, err)
	assert.True(t, readiness.CanGenerate)
	assert.Equal(t, 100.0, readiness.StudentDataCompleteness)
	assert.Equal(t, 100.0, readiness.TeacherAvailabilityCompleteness)
	assert.Equal(t, 100.0, readiness.LevelAssignmentCompleteness)
	assert.Empty(t, readiness.BlockingIssues)
	assert.Equal(t, 7, readiness.RecommendedParameters.DefaultMinClassSize)
	assert.Equal(t, 10, readiness.RecommendedParameters.DefaultMaxClassSize)
}

func TestReadinessCheckUnvalidatedAssessmentsBlock(t *testing.T) {
	svc := NewReadinessService(
		&fakeTermRepo{term: planningTerm()},
		&fakeAssessmentRepo{
			assessments: []models.StudentAssessment{readyAssessment("s1")},
			total:       4, validated: 3,
		},
		&fakeAvailabilityRepo{windows: []models.TeacherAvailability{readyWindow("t1")}, submitted: 1},
		&fakeLevelRepo{assignments: []models.TeacherLevelAssignment{readyAssignment("t1")}, assigned: 1},
		nil, generationTestConfig(), nil,
	)

	readiness, err := svc.Check(context.Background(), "term-1")
	require.NoError(t, err)
	assert.False(t, readiness.CanGenerate)
	assert.Equal(t, 75.0, readiness.StudentDataCompleteness)
	require.NotEmpty(t, readiness.BlockingIssues)
	assert.Contains(t, readiness.BlockingIssues[0], "not validated")
}

func TestReadinessCheckUncoveredLevelBlocks(t *testing.T) {
	orphan := readyAssessment("s9")
	orphan.DeterminedLevelID = "tahfidz-1"
	orphan.LevelName = "Tahfidz 1"

	svc := NewReadinessService(
		&fakeTermRepo{term: planningTerm()},
		&fakeAssessmentRepo{
			assessments: []models.StudentAssessment{readyAssessment("s1"), orphan},
			total:       2, validated: 2,
		},
		&fakeAvailabilityRepo{windows: []models.TeacherAvailability{readyWindow("t1")}, submitted: 1},
		&fakeLevelRepo{assignments: []models.TeacherLevelAssignment{readyAssignment("t1")}, assigned: 1},
		nil, generationTestConfig(), nil,
	)

	readiness, err := svc.Check(context.Background(), "term-1")
	require.NoError(t, err)
	assert.False(t, readiness.CanGenerate)
	assert.Equal(t, 50.0, readiness.LevelAssignmentCompleteness)

	found := false
	for _, issue := range readiness.BlockingIssues {
		if strings.Contains(issue, "Tahfidz 1") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestReadinessEnsureReturnsNotReady(t *testing.T) {
	svc := NewReadinessService(
		&fakeTermRepo{term: planningTerm()},
		&fakeAssessmentRepo{total: 0, validated: 0},
		&fakeAvailabilityRepo{},
		&fakeLevelRepo{},
		nil, generationTestConfig(), nil,
	)

	_, err := svc.Ensure(context.Background(), "term-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotReady.Code, appErr.Code)
	assert.Equal(t, 422, appErr.Status)
}

func TestReadinessCheckMissingAvailabilityBlocks(t *testing.T) {
	svc := NewReadinessService(
		&fakeTermRepo{term: planningTerm()},
		&fakeAssessmentRepo{
			assessments: []models.StudentAssessment{readyAssessment("s1")},
			total:       1, validated: 1,
		},
		&fakeAvailabilityRepo{windows: []models.TeacherAvailability{readyWindow("t1")}, submitted: 4},
		&fakeLevelRepo{assignments: []models.TeacherLevelAssignment{readyAssignment("t1")}, assigned: 5},
		nil, generationTestConfig(), nil,
	)

	readiness, err := svc.Check(context.Background(), "term-1")
	require.NoError(t, err)
	assert.False(t, readiness.CanGenerate)
	assert.Equal(t, 80.0, readiness.TeacherAvailabilityCompleteness)

	found := false
	for _, issue := range readiness.BlockingIssues {
		if strings.Contains(issue, "have not submitted availability") {
			found = true
			assert.Contains(t, issue, "1 of 5")
		}
	}
	assert.True(t, found)
}

func TestReadinessCheckNonPlanningTermBlocks(t *testing.T) {
	term := planningTerm()
	term.Status = models.TermStatusActive

	svc := NewReadinessService(
		&fakeTermRepo{term: term},
		&fakeAssessmentRepo{
			assessments: []models.StudentAssessment{readyAssessment("s1")},
			total:       1, validated: 1,
		},
		&fakeAvailabilityRepo{windows: []models.TeacherAvailability{readyWindow("t1")}, submitted: 1},
		&fakeLevelRepo{assignments: []models.TeacherLevelAssignment{readyAssignment("t1")}, assigned: 1},
		nil, generationTestConfig(), nil,
	)

	readiness, err := svc.Check(context.Background(), "term-1")
	require.NoError(t, err)
	assert.False(t, readiness.CanGenerate)
}
