package models

import "time"

// StudentCategory distinguishes first-term students from continuing ones.
type StudentCategory string

const (
	CategoryNew      StudentCategory = "NEW"
	CategoryExisting StudentCategory = "EXISTING"
)

// StudentAssessment is a validated placement result for one student in a term.
// The engine only consumes rows where IsValidated is true.
type StudentAssessment struct {
	ID                string          `db:"id" json:"id"`
	StudentID         string          `db:"student_id" json:"student_id"`
	StudentName       string          `db:"student_name" json:"student_name"`
	TermID            string          `db:"term_id" json:"term_id"`
	Category          StudentCategory `db:"student_category" json:"student_category"`
	DeterminedLevelID string          `db:"determined_level_id" json:"determined_level_id"`
	LevelName         string          `db:"level_name" json:"level_name"`
	Score             float64         `db:"assessment_score" json:"assessment_score"`
	Grade             string          `db:"assessment_grade" json:"assessment_grade"`
	SpecialNeeds      *string         `db:"special_needs" json:"special_needs,omitempty"`
	IsValidated       bool            `db:"is_validated" json:"is_validated"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
