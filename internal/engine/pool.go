package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sahabatquran/classgen-api/internal/dto"
	"github.com/sahabatquran/classgen-api/internal/models"
)

// Per-level size override keys in the size configuration table.
const (
	sizeKeyLevelMin = "level.min"
	sizeKeyLevelMax = "level.max"
)

// Competency describes one level a teacher is qualified for.
type Competency struct {
	LevelID    string
	LevelName  string
	Tier       models.CompetencyTier
	MaxClasses int
}

// Student is a placement candidate. Immutable for the duration of a run.
type Student struct {
	ID           string
	Name         string
	Category     models.StudentCategory
	LevelID      string
	LevelName    string
	Score        float64
	Grade        string
	SpecialNeeds *string
	CanReassign  bool
}

// TeacherSlot is one available (day, session) window for a teacher, carrying
// the teacher's level competencies so the solver can match in one pass.
type TeacherSlot struct {
	TeacherID         string
	TeacherName       string
	DayOfWeek         string
	Session           string
	Available         bool
	MaxClassesPerWeek int
	Levels            map[string]Competency
}

// LevelDemand summarises placement demand for one level.
type LevelDemand struct {
	LevelID            string
	LevelName          string
	NewCount           int
	ExistingCount      int
	MinSize            int
	MaxSize            int
	RecommendedClasses int
}

// Total returns the number of students requiring placement at this level.
func (d LevelDemand) Total() int {
	return d.NewCount + d.ExistingCount
}

// Pool is the typed in-memory model the solver operates on.
type Pool struct {
	Students []Student
	Slots    []TeacherSlot
	Demands  []LevelDemand
}

// BuildPool transforms raw rows into the solver's typed model. Deterministic:
// the same inputs always produce the same pool, sorted on stable keys.
func BuildPool(
	assessments []models.StudentAssessment,
	availability []models.TeacherAvailability,
	assignments []models.TeacherLevelAssignment,
	sizes []models.SizeConfiguration,
	params dto.GenerationParameters,
) (*Pool, error) {
	students := make([]Student, 0, len(assessments))
	for _, a := range assessments {
		if !a.IsValidated {
			return nil, fmt.Errorf("assessment %s for student %s is not validated", a.ID, a.StudentID)
		}
		if a.DeterminedLevelID == "" {
			return nil, fmt.Errorf("assessment %s for student %s has no determined level", a.ID, a.StudentID)
		}
		students = append(students, Student{
			ID:           a.StudentID,
			Name:         a.StudentName,
			Category:     a.Category,
			LevelID:      a.DeterminedLevelID,
			LevelName:    a.LevelName,
			Score:        a.Score,
			Grade:        a.Grade,
			SpecialNeeds: a.SpecialNeeds,
			CanReassign:  true,
		})
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })

	competencies := make(map[string]map[string]Competency)
	for _, la := range assignments {
		if competencies[la.TeacherID] == nil {
			competencies[la.TeacherID] = make(map[string]Competency)
		}
		competencies[la.TeacherID][la.LevelID] = Competency{
			LevelID:    la.LevelID,
			LevelName:  la.LevelName,
			Tier:       la.Competency,
			MaxClasses: la.MaxClassesForLevel,
		}
	}

	slots := make([]TeacherSlot, 0, len(availability))
	for _, av := range availability {
		levels := competencies[av.TeacherID]
		if levels == nil {
			levels = map[string]Competency{}
		}
		slots = append(slots, TeacherSlot{
			TeacherID:         av.TeacherID,
			TeacherName:       av.TeacherName,
			DayOfWeek:         strings.ToUpper(av.DayOfWeek),
			Session:           strings.ToUpper(av.Session),
			Available:         av.IsAvailable,
			MaxClassesPerWeek: av.MaxClassesPerWeek,
			Levels:            levels,
		})
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].TeacherID != slots[j].TeacherID {
			return slots[i].TeacherID < slots[j].TeacherID
		}
		if dayRank(slots[i].DayOfWeek) != dayRank(slots[j].DayOfWeek) {
			return dayRank(slots[i].DayOfWeek) < dayRank(slots[j].DayOfWeek)
		}
		return sessionRank(slots[i].Session) < sessionRank(slots[j].Session)
	})

	demands := buildDemands(students, sizes, params)

	return &Pool{Students: students, Slots: slots, Demands: demands}, nil
}

func buildDemands(students []Student, sizes []models.SizeConfiguration, params dto.GenerationParameters) []LevelDemand {
	type bounds struct{ min, max int }
	overrides := make(map[string]bounds)
	for _, cfg := range sizes {
		if cfg.LevelID == nil {
			continue
		}
		b := overrides[*cfg.LevelID]
		switch cfg.ConfigKey {
		case sizeKeyLevelMin:
			b.min = cfg.ConfigValue
		case sizeKeyLevelMax:
			b.max = cfg.ConfigValue
		}
		overrides[*cfg.LevelID] = b
	}

	byLevel := make(map[string]*LevelDemand)
	var order []string
	for _, s := range students {
		d, ok := byLevel[s.LevelID]
		if !ok {
			d = &LevelDemand{LevelID: s.LevelID, LevelName: s.LevelName}
			byLevel[s.LevelID] = d
			order = append(order, s.LevelID)
		}
		if s.Category == models.CategoryNew {
			d.NewCount++
		} else {
			d.ExistingCount++
		}
	}
	sort.Strings(order)

	demands := make([]LevelDemand, 0, len(order))
	for _, levelID := range order {
		d := byLevel[levelID]
		d.MinSize = params.DefaultMinClassSize
		d.MaxSize = params.DefaultMaxClassSize
		if b, ok := overrides[levelID]; ok {
			if b.min > 0 {
				d.MinSize = b.min
			}
			if b.max > 0 {
				d.MaxSize = b.max
			}
		}
		if r, ok := params.LevelSizeOverrides[levelID]; ok {
			if r.Min > 0 {
				d.MinSize = r.Min
			}
			if r.Max > 0 {
				d.MaxSize = r.Max
			}
		}
		if d.MaxSize > 0 {
			d.RecommendedClasses = int(math.Ceil(float64(d.Total()) / float64(d.MaxSize)))
		}
		demands = append(demands, *d)
	}
	return demands
}

var dayRanks = map[string]int{
	"MONDAY":    1,
	"TUESDAY":   2,
	"WEDNESDAY": 3,
	"THURSDAY":  4,
	"FRIDAY":    5,
	"SATURDAY":  6,
	"SUNDAY":    7,
}

var sessionRanks = map[string]int{
	models.SessionMorning:   1,
	models.SessionAfternoon: 2,
	models.SessionEvening:   3,
}

func dayRank(day string) int {
	if r, ok := dayRanks[day]; ok {
		return r
	}
	return 8
}

func sessionRank(session string) int {
	if r, ok := sessionRanks[session]; ok {
		return r
	}
	return 4
}

var tierRanks = map[models.CompetencyTier]int{
	models.CompetencyJunior: 1,
	models.CompetencySenior: 2,
	models.CompetencyExpert: 3,
}

func tierRank(tier models.CompetencyTier) int {
	return tierRanks[tier]
}
