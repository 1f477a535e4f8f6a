package models

import "time"

// CompetencyTier ranks how qualified a teacher is for a level.
type CompetencyTier string

const (
	CompetencyJunior CompetencyTier = "JUNIOR"
	CompetencySenior CompetencyTier = "SENIOR"
	CompetencyExpert CompetencyTier = "EXPERT"
)

// TeacherLevelAssignment links a teacher to a level they may teach in a term.
type TeacherLevelAssignment struct {
	ID                 string         `db:"id" json:"id"`
	TeacherID          string         `db:"teacher_id" json:"teacher_id"`
	TeacherName        string         `db:"teacher_name" json:"teacher_name"`
	LevelID            string         `db:"level_id" json:"level_id"`
	LevelName          string         `db:"level_name" json:"level_name"`
	TermID             string         `db:"term_id" json:"term_id"`
	Competency         CompetencyTier `db:"competency_level" json:"competency_level"`
	MaxClassesForLevel int            `db:"max_classes_for_level" json:"max_classes_for_level"`
	Specialization     string         `db:"specialization" json:"specialization"`
	AssignedAt         time.Time      `db:"assigned_at" json:"assigned_at"`
}
