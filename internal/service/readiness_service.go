package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sahabatquran/classgen-api/internal/dto"
	"github.com/sahabatquran/classgen-api/internal/models"
	"github.com/sahabatquran/classgen-api/pkg/config"
	appErrors "github.com/sahabatquran/classgen-api/pkg/errors"
)

type readinessTermReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type readinessAssessmentReader interface {
	ListValidatedByTerm(ctx context.Context, termID string) ([]models.StudentAssessment, error)
	CountByTerm(ctx context.Context, termID string) (total int, validated int, err error)
}

type readinessAvailabilityReader interface {
	ListByTerm(ctx context.Context, termID string) ([]models.TeacherAvailability, error)
	CountSubmittedTeachers(ctx context.Context, termID string) (int, error)
}

type readinessLevelReader interface {
	ListByTerm(ctx context.Context, termID string) ([]models.TeacherLevelAssignment, error)
	CountAssignedTeachers(ctx context.Context, termID string) (int, error)
}

type readinessCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ReadinessService evaluates whether a term's preparation data is complete
// enough to run class generation.
type ReadinessService struct {
	terms        readinessTermReader
	assessments  readinessAssessmentReader
	availability readinessAvailabilityReader
	levels       readinessLevelReader
	cache        readinessCache
	cfg          config.GenerationConfig
	logger       *zap.Logger
}

// NewReadinessService constructs the service.
func NewReadinessService(
	terms readinessTermReader,
	assessments readinessAssessmentReader,
	availability readinessAvailabilityReader,
	levels readinessLevelReader,
	cache readinessCache,
	cfg config.GenerationConfig,
	logger *zap.Logger,
) *ReadinessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadinessService{
		terms:        terms,
		assessments:  assessments,
		availability: availability,
		levels:       levels,
		cache:        cache,
		cfg:          cfg,
		logger:       logger,
	}
}

func readinessCacheKey(termID string) string {
	return "classgen:readiness:" + termID
}

// Check computes the readiness summary for a term. Results are cached
// briefly; InvalidateCache drops the entry after data-changing operations.
func (s *ReadinessService) Check(ctx context.Context, termID string) (*dto.GenerationReadiness, error) {
	term, err := s.terms.FindByID(ctx, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load term")
	}

	if s.cache != nil {
		cached := &dto.GenerationReadiness{}
		if err := s.cache.Get(ctx, readinessCacheKey(termID), cached); err == nil {
			return cached, nil
		}
	}

	readiness, err := s.evaluate(ctx, term)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, readinessCacheKey(termID), readiness, s.cfg.ReadinessCacheTTL); err != nil {
			s.logger.Sugar().Warnw("cache readiness", "term_id", termID, "error", err)
		}
	}
	return readiness, nil
}

// InvalidateCache drops the cached readiness summary for a term.
func (s *ReadinessService) InvalidateCache(ctx context.Context, termID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, readinessCacheKey(termID)); err != nil {
		s.logger.Sugar().Warnw("invalidate readiness cache", "term_id", termID, "error", err)
	}
}

// Ensure returns ErrNotReady carrying the blocking issues when the term is
// not ready for generation.
func (s *ReadinessService) Ensure(ctx context.Context, termID string) (*dto.GenerationReadiness, error) {
	readiness, err := s.Check(ctx, termID)
	if err != nil {
		return nil, err
	}
	if !readiness.CanGenerate {
		return readiness, appErrors.Clone(appErrors.ErrNotReady,
			"generation blocked: "+strings.Join(readiness.BlockingIssues, "; "))
	}
	return readiness, nil
}

func (s *ReadinessService) evaluate(ctx context.Context, term *models.Term) (*dto.GenerationReadiness, error) {
	readiness := &dto.GenerationReadiness{
		BlockingIssues:        []string{},
		Warnings:              []string{},
		RecommendedParameters: s.RecommendedParameters(),
	}

	if term.Status != models.TermStatusPlanning {
		readiness.BlockingIssues = append(readiness.BlockingIssues,
			fmt.Sprintf("term is %s, class generation only runs during planning", term.Status))
	}
	if term.PreparationDeadline != nil && time.Now().After(*term.PreparationDeadline) {
		readiness.Warnings = append(readiness.Warnings, "preparation deadline has passed")
	}

	total, validated, err := s.assessments.CountByTerm(ctx, term.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "count assessments")
	}
	if total == 0 {
		readiness.BlockingIssues = append(readiness.BlockingIssues, "no student assessments recorded for this term")
	} else {
		readiness.StudentDataCompleteness = percentage(validated, total)
		if validated < total {
			readiness.BlockingIssues = append(readiness.BlockingIssues,
				fmt.Sprintf("%d of %d student assessments are not validated", total-validated, total))
		}
	}

	assignedTeachers, err := s.levels.CountAssignedTeachers(ctx, term.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "count assigned teachers")
	}
	submittedTeachers, err := s.availability.CountSubmittedTeachers(ctx, term.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "count submitted teachers")
	}
	if assignedTeachers == 0 {
		readiness.BlockingIssues = append(readiness.BlockingIssues, "no teachers hold level assignments for this term")
	} else {
		readiness.TeacherAvailabilityCompleteness = percentage(min(submittedTeachers, assignedTeachers), assignedTeachers)
		if submittedTeachers < assignedTeachers {
			readiness.BlockingIssues = append(readiness.BlockingIssues,
				fmt.Sprintf("%d of %d assigned teachers have not submitted availability", assignedTeachers-submittedTeachers, assignedTeachers))
		}
	}

	if err := s.evaluateLevelCoverage(ctx, term.ID, readiness); err != nil {
		return nil, err
	}

	readiness.CanGenerate = len(readiness.BlockingIssues) == 0
	return readiness, nil
}

// evaluateLevelCoverage verifies every level demanded by validated
// assessments has at least one qualified teacher with an available window.
func (s *ReadinessService) evaluateLevelCoverage(ctx context.Context, termID string, readiness *dto.GenerationReadiness) error {
	assessments, err := s.assessments.ListValidatedByTerm(ctx, termID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list validated assessments")
	}
	assignments, err := s.levels.ListByTerm(ctx, termID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list level assignments")
	}
	windows, err := s.availability.ListByTerm(ctx, termID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list availability")
	}

	availableTeachers := make(map[string]int)
	for _, w := range windows {
		if w.IsAvailable {
			availableTeachers[w.TeacherID]++
		}
	}
	coveredLevels := make(map[string]bool)
	for _, a := range assignments {
		if availableTeachers[a.TeacherID] > 0 {
			coveredLevels[a.LevelID] = true
		}
	}

	demanded := make(map[string]string)
	demandCount := make(map[string]int)
	for _, a := range assessments {
		demanded[a.DeterminedLevelID] = a.LevelName
		demandCount[a.DeterminedLevelID]++
	}
	if len(demanded) == 0 {
		return nil
	}

	covered := 0
	for levelID, levelName := range demanded {
		if coveredLevels[levelID] {
			covered++
			continue
		}
		readiness.BlockingIssues = append(readiness.BlockingIssues,
			fmt.Sprintf("no available qualified teacher for level %s (%d students)", levelName, demandCount[levelID]))
	}
	readiness.LevelAssignmentCompleteness = percentage(covered, len(demanded))

	totalSlots := 0
	for _, n := range availableTeachers {
		totalSlots += n
	}
	estimatedClasses := 0
	for _, n := range demandCount {
		if s.cfg.DefaultMaxClassSize > 0 {
			estimatedClasses += (n + s.cfg.DefaultMaxClassSize - 1) / s.cfg.DefaultMaxClassSize
		}
	}
	if totalSlots > 0 && estimatedClasses > totalSlots {
		readiness.Warnings = append(readiness.Warnings,
			fmt.Sprintf("roughly %d classes needed but only %d teacher slots available", estimatedClasses, totalSlots))
	}
	return nil
}

// RecommendedParameters returns the configured defaults as a starting point
// for the admin.
func (s *ReadinessService) RecommendedParameters() dto.GenerationParameters {
	return dto.GenerationParameters{
		DefaultMinClassSize:  s.cfg.DefaultMinClassSize,
		DefaultMaxClassSize:  s.cfg.DefaultMaxClassSize,
		NewStudentRatio:      s.cfg.NewStudentRatio,
		MaxClassesPerTeacher: s.cfg.MaxClassesPerTeacher,
		PriorityStrategy:     dto.StrategyBalance,
	}
}

func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
