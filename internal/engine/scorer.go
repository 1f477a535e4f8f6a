package engine

import (
	"math"

	"github.com/sahabatquran/classgen-api/internal/dto"
)

// Penalty weights applied to a perfect score of 100.
const (
	penaltyHighConflict   = 10.0
	penaltyMediumConflict = 4.0
	penaltyLowConflict    = 1.0
	penaltyUnassigned     = 2.0
	penaltySizeViolation  = 3.0
	bonusWorkloadBalance  = 5.0
)

// Score rates a proposal on a 0..100 scale and computes its summary metrics.
// Higher is better. The score is comparative within a term, not an absolute
// quality grade.
func Score(snapshot dto.ProposalSnapshot, pool *Pool, params dto.GenerationParameters) (float64, dto.GenerationMetrics) {
	metrics := computeMetrics(snapshot, pool)

	score := 100.0
	for _, c := range snapshot.Conflicts {
		if c.IsResolved {
			continue
		}
		switch c.Severity {
		case dto.SeverityHigh:
			score -= penaltyHighConflict
		case dto.SeverityMedium:
			score -= penaltyMediumConflict
		default:
			score -= penaltyLowConflict
		}
	}
	score -= penaltyUnassigned * float64(len(snapshot.Unassigned))
	for _, v := range snapshot.SizeViolations {
		if v.IsApproved {
			continue
		}
		score -= penaltySizeViolation
	}

	if params.OptimizeForTeacherWorkload || params.PriorityStrategy == dto.StrategyBalance || params.PriorityStrategy == "" {
		score += bonusWorkloadBalance * metrics.WorkloadBalance
	}
	if params.PriorityStrategy == dto.StrategyMaximizeUtilization {
		score += bonusWorkloadBalance * metrics.TeacherUtilizationRate / 100
	}

	score = math.Max(0, math.Min(100, score))
	return round1(score), metrics
}

func computeMetrics(snapshot dto.ProposalSnapshot, pool *Pool) dto.GenerationMetrics {
	metrics := dto.GenerationMetrics{
		TotalClasses:          len(snapshot.Classes),
		UnassignedStudents:    len(snapshot.Unassigned),
		ClassTypeDistribution: map[string]int{},
	}

	totalSize := 0
	teacherLoads := make(map[string]int)
	for _, cls := range snapshot.Classes {
		metrics.TotalStudentsAssigned += cls.CurrentSize
		totalSize += cls.CurrentSize
		metrics.ClassTypeDistribution[cls.ClassType]++
		if cls.TeacherID != nil {
			teacherLoads[*cls.TeacherID]++
		}
	}
	if metrics.TotalClasses > 0 {
		metrics.AverageClassSize = round1(float64(totalSize) / float64(metrics.TotalClasses))
	}
	metrics.TeachersUtilized = len(teacherLoads)

	qualified := make(map[string]bool)
	for _, slot := range pool.Slots {
		if !slot.Available || len(slot.Levels) == 0 {
			continue
		}
		qualified[slot.TeacherID] = true
		metrics.TotalTeacherSlots++
	}
	metrics.TotalQualifiedTeachers = len(qualified)
	if metrics.TotalQualifiedTeachers > 0 {
		metrics.TeacherUtilizationRate = round1(float64(metrics.TeachersUtilized) * 100 / float64(metrics.TotalQualifiedTeachers))
	}
	metrics.WorkloadBalance = workloadBalance(teacherLoads)
	return metrics
}

// workloadBalance maps the spread of per-teacher class counts to 0..1, where
// 1 means every utilized teacher carries the same load. Computed from the
// population standard deviation normalized by the mean.
func workloadBalance(loads map[string]int) float64 {
	if len(loads) == 0 {
		return 0
	}
	sum := 0.0
	for _, n := range loads {
		sum += float64(n)
	}
	mean := sum / float64(len(loads))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, n := range loads {
		d := float64(n) - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(loads)))
	balance := 1 - stddev/mean
	if balance < 0 {
		balance = 0
	}
	return round1(balance*10) / 10
}
