package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/sahabatquran/classgen-api/internal/dto"
	"github.com/sahabatquran/classgen-api/internal/models"
)

// SolveResult carries the roster produced by one solver pass. Conflicts and
// size violations are not computed here; the detector regenerates them from
// the class list every run.
type SolveResult struct {
	Classes    []dto.GeneratedClass
	Unassigned []dto.UnassignedStudent
}

// Solve assigns students to level-homogeneous classes and a qualified,
// available teacher slot to each class. Pure: inputs are never mutated.
// Levels are processed most-constrained-first (fewest qualified available
// slots relative to demand) so scarce teacher supply is claimed before the
// easy levels consume it. This ordering is a placement-quality heuristic,
// not a correctness requirement.
func Solve(pool *Pool, params dto.GenerationParameters) SolveResult {
	ledger := newSlotLedger()
	result := SolveResult{
		Classes:    make([]dto.GeneratedClass, 0),
		Unassigned: make([]dto.UnassignedStudent, 0),
	}

	demandByLevel := make(map[string]LevelDemand, len(pool.Demands))
	for _, d := range pool.Demands {
		demandByLevel[d.LevelID] = d
	}

	for _, s := range pool.Students {
		if _, ok := demandByLevel[s.LevelID]; !ok {
			result.Unassigned = append(result.Unassigned, unassigned(s, "no class generated for level"))
		}
	}

	for _, demand := range orderLevels(pool, params.PriorityStrategy) {
		levelStudents := studentsForLevel(pool.Students, demand.LevelID)
		if len(levelStudents) == 0 {
			continue
		}
		classes := buildLevelClasses(demand, levelStudents, params)
		for i := range classes {
			assignTeacher(&classes[i], demand.LevelID, pool.Slots, ledger, params)
		}
		result.Classes = append(result.Classes, classes...)
	}

	sort.Slice(result.Classes, func(i, j int) bool {
		if result.Classes[i].LevelName != result.Classes[j].LevelName {
			return result.Classes[i].LevelName < result.Classes[j].LevelName
		}
		return result.Classes[i].ClassName < result.Classes[j].ClassName
	})
	return result
}

// orderLevels ranks levels by the chosen priority strategy.
func orderLevels(pool *Pool, strategy string) []LevelDemand {
	ordered := make([]LevelDemand, len(pool.Demands))
	copy(ordered, pool.Demands)

	qualified := make(map[string]int, len(ordered))
	for _, d := range ordered {
		for _, slot := range pool.Slots {
			if !slot.Available {
				continue
			}
			if _, ok := slot.Levels[d.LevelID]; ok {
				qualified[d.LevelID]++
			}
		}
	}

	switch strategy {
	case dto.StrategyMaximizeUtilization:
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].Total() != ordered[j].Total() {
				return ordered[i].Total() > ordered[j].Total()
			}
			return ordered[i].LevelID < ordered[j].LevelID
		})
	case dto.StrategyMinimizeConflicts:
		sort.Slice(ordered, func(i, j int) bool {
			if qualified[ordered[i].LevelID] != qualified[ordered[j].LevelID] {
				return qualified[ordered[i].LevelID] < qualified[ordered[j].LevelID]
			}
			return ordered[i].LevelID < ordered[j].LevelID
		})
	default: // BALANCE: fewest qualified slots per demanded class first
		ratio := func(d LevelDemand) float64 {
			if d.RecommendedClasses == 0 {
				return math.MaxFloat64
			}
			return float64(qualified[d.LevelID]) / float64(d.RecommendedClasses)
		}
		sort.Slice(ordered, func(i, j int) bool {
			ri, rj := ratio(ordered[i]), ratio(ordered[j])
			if ri != rj {
				return ri < rj
			}
			return ordered[i].LevelID < ordered[j].LevelID
		})
	}
	return ordered
}

func studentsForLevel(students []Student, levelID string) []Student {
	var out []Student
	for _, s := range students {
		if s.LevelID == levelID {
			out = append(out, s)
		}
	}
	return out
}

// buildLevelClasses partitions students into NEW/EXISTING buckets, decides the
// class count, and interleaves buckets toward the target category ratio.
// Special-needs students go first within their bucket so support continuity
// wins over ratio exactness. Capacities sum to the full student count, so
// every student lands in a class; out-of-bound sizes surface later as size
// violations instead of unassigned students.
func buildLevelClasses(demand LevelDemand, students []Student, params dto.GenerationParameters) []dto.GeneratedClass {
	var newBucket, existingBucket []Student
	for _, s := range students {
		if s.Category == models.CategoryNew {
			newBucket = append(newBucket, s)
		} else {
			existingBucket = append(existingBucket, s)
		}
	}
	sortBucket(newBucket)
	sortBucket(existingBucket)

	total := len(students)
	classCount := demand.RecommendedClasses
	if classCount < 1 {
		classCount = 1
	}
	// Shrink the class count while splitting would push classes below the
	// minimum; a single undersized class is still formed and flagged rather
	// than dropping students.
	for classCount > 1 && total/classCount < demand.MinSize {
		classCount--
	}

	capacities := make([]int, classCount)
	base, rem := total/classCount, total%classCount
	for i := range capacities {
		capacities[i] = base
		if i < rem {
			capacities[i]++
		}
	}

	classes := make([]dto.GeneratedClass, 0, classCount)
	for i := 0; i < classCount; i++ {
		var members []Student
		members, newBucket, existingBucket = fillClass(capacities[i], newBucket, existingBucket, params.NewStudentRatio)
		classes = append(classes, newClass(demand, i, members))
	}

	return classes
}

func sortBucket(bucket []Student) {
	sort.Slice(bucket, func(i, j int) bool {
		si, sj := bucket[i].SpecialNeeds != nil, bucket[j].SpecialNeeds != nil
		if si != sj {
			return si
		}
		if bucket[i].Score != bucket[j].Score {
			return bucket[i].Score > bucket[j].Score
		}
		return bucket[i].ID < bucket[j].ID
	})
}

// fillClass draws students seat by seat, taking from the NEW bucket whenever
// the class's new-student share trails the target ratio.
func fillClass(capacity int, newBucket, existingBucket []Student, ratio float64) ([]Student, []Student, []Student) {
	members := make([]Student, 0, capacity)
	newTaken := 0
	for seat := 0; seat < capacity; seat++ {
		takeNew := false
		switch {
		case len(newBucket) == 0:
			takeNew = false
		case len(existingBucket) == 0:
			takeNew = true
		default:
			takeNew = float64(newTaken) < ratio*float64(seat+1)
		}
		if takeNew {
			members = append(members, newBucket[0])
			newBucket = newBucket[1:]
			newTaken++
		} else if len(existingBucket) > 0 {
			members = append(members, existingBucket[0])
			existingBucket = existingBucket[1:]
		} else {
			break
		}
	}
	return members, newBucket, existingBucket
}

func newClass(demand LevelDemand, index int, members []Student) dto.GeneratedClass {
	students := make([]dto.AssignedStudent, 0, len(members))
	var notes []string
	newCount := 0
	for _, m := range members {
		students = append(students, dto.AssignedStudent{
			StudentID:       m.ID,
			StudentName:     m.Name,
			Category:        m.Category,
			AssessmentScore: m.Score,
			AssessmentGrade: m.Grade,
			SpecialNeeds:    m.SpecialNeeds,
			CanReassign:     m.CanReassign,
		})
		if m.Category == models.CategoryNew {
			newCount++
		}
		if m.SpecialNeeds != nil && *m.SpecialNeeds != "" {
			notes = append(notes, fmt.Sprintf("%s: %s", m.Name, *m.SpecialNeeds))
		}
	}

	cls := dto.GeneratedClass{
		ClassID:      uuid.NewString(),
		ClassName:    fmt.Sprintf("%s - %s", demand.LevelName, classSuffix(index)),
		LevelID:      demand.LevelID,
		LevelName:    demand.LevelName,
		Students:     students,
		CurrentSize:  len(students),
		MinSize:      demand.MinSize,
		MaxSize:      demand.MaxSize,
		SpecialNotes: notes,
	}
	cls.ClassType = classType(newCount, len(members))
	cls.NewStudentPercentage = newPercentage(newCount, len(members))
	return cls
}

func classSuffix(index int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	if index < len(letters) {
		return string(letters[index])
	}
	return fmt.Sprintf("%c%d", letters[index%len(letters)], index/len(letters)+1)
}

func classType(newCount, total int) string {
	switch {
	case total == 0 || newCount == 0:
		return dto.ClassTypeExistingOnly
	case newCount == total:
		return dto.ClassTypeNewOnly
	default:
		return dto.ClassTypeMixed
	}
}

func newPercentage(newCount, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(newCount) * 100 / float64(total))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// assignTeacher greedily picks, among qualified available slots not yet
// consumed this run, the teacher with the lowest committed class count, then
// the highest competency tier. No candidate leaves the class unassigned; the
// detector flags it instead of aborting the run.
func assignTeacher(cls *dto.GeneratedClass, levelID string, slots []TeacherSlot, ledger *slotLedger, params dto.GenerationParameters) {
	best := -1
	for i, slot := range slots {
		if !slot.Available || ledger.slotUsed(slot) {
			continue
		}
		comp, ok := slot.Levels[levelID]
		if !ok {
			continue
		}
		if comp.MaxClasses > 0 && ledger.teacherLevelCount(slot.TeacherID, levelID) >= comp.MaxClasses {
			continue
		}
		if params.MaxClassesPerTeacher > 0 && ledger.teacherCount(slot.TeacherID) >= params.MaxClassesPerTeacher {
			continue
		}
		if slot.MaxClassesPerWeek > 0 && ledger.teacherCount(slot.TeacherID) >= slot.MaxClassesPerWeek {
			continue
		}
		if best == -1 || betterSlot(slots[i], slots[best], levelID, ledger) {
			best = i
		}
	}
	if best == -1 {
		return
	}

	slot := slots[best]
	teacherID := slot.TeacherID
	cls.TeacherID = &teacherID
	cls.TeacherName = slot.TeacherName
	cls.DayOfWeek = slot.DayOfWeek
	cls.Session = slot.Session
	ledger.consume(slot, levelID)
}

func betterSlot(a, b TeacherSlot, levelID string, ledger *slotLedger) bool {
	ca, cb := ledger.teacherCount(a.TeacherID), ledger.teacherCount(b.TeacherID)
	if ca != cb {
		return ca < cb
	}
	ta, tb := tierRank(a.Levels[levelID].Tier), tierRank(b.Levels[levelID].Tier)
	if ta != tb {
		return ta > tb
	}
	if a.TeacherID != b.TeacherID {
		return a.TeacherID < b.TeacherID
	}
	if dayRank(a.DayOfWeek) != dayRank(b.DayOfWeek) {
		return dayRank(a.DayOfWeek) < dayRank(b.DayOfWeek)
	}
	return sessionRank(a.Session) < sessionRank(b.Session)
}

func unassigned(s Student, reason string) dto.UnassignedStudent {
	return dto.UnassignedStudent{
		StudentID:           s.ID,
		StudentName:         s.Name,
		Category:            s.Category,
		DeterminedLevelID:   s.LevelID,
		DeterminedLevelName: s.LevelName,
		AssessmentScore:     s.Score,
		Reason:              reason,
	}
}

// slotLedger records teacher-slot consumption within one run so later levels
// cannot double-book a window already claimed.
type slotLedger struct {
	used            map[string]bool
	perTeacher      map[string]int
	perTeacherLevel map[string]int
}

func newSlotLedger() *slotLedger {
	return &slotLedger{
		used:            make(map[string]bool),
		perTeacher:      make(map[string]int),
		perTeacherLevel: make(map[string]int),
	}
}

func slotKey(teacherID, day, session string) string {
	return teacherID + "|" + day + "|" + session
}

func (l *slotLedger) slotUsed(slot TeacherSlot) bool {
	return l.used[slotKey(slot.TeacherID, slot.DayOfWeek, slot.Session)]
}

func (l *slotLedger) teacherCount(teacherID string) int {
	return l.perTeacher[teacherID]
}

func (l *slotLedger) teacherLevelCount(teacherID, levelID string) int {
	return l.perTeacherLevel[teacherID+"|"+levelID]
}

func (l *slotLedger) consume(slot TeacherSlot, levelID string) {
	l.used[slotKey(slot.TeacherID, slot.DayOfWeek, slot.Session)] = true
	l.perTeacher[slot.TeacherID]++
	l.perTeacherLevel[slot.TeacherID+"|"+levelID]++
}
