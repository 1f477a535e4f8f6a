package models

import "time"

// Session names the daily teaching windows.
const (
	SessionMorning   = "MORNING"
	SessionAfternoon = "AFTERNOON"
	SessionEvening   = "EVENING"
)

// TeacherAvailability is one (day, session) window a teacher submitted for a term.
type TeacherAvailability struct {
	ID                string     `db:"id" json:"id"`
	TeacherID         string     `db:"teacher_id" json:"teacher_id"`
	TeacherName       string     `db:"teacher_name" json:"teacher_name"`
	TermID            string     `db:"term_id" json:"term_id"`
	DayOfWeek         string     `db:"day_of_week" json:"day_of_week"`
	Session           string     `db:"session" json:"session"`
	IsAvailable       bool       `db:"is_available" json:"is_available"`
	MaxClassesPerWeek int        `db:"max_classes_per_week" json:"max_classes_per_week"`
	SubmittedAt       *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}
