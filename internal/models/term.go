package models

import "time"

// TermStatus represents the lifecycle of an academic term.
type TermStatus string

const (
	TermStatusPlanning  TermStatus = "PLANNING"
	TermStatusActive    TermStatus = "ACTIVE"
	TermStatusCompleted TermStatus = "COMPLETED"
)

// Term models an academic term within the institution calendar.
type Term struct {
	ID                  string     `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	Status              TermStatus `db:"status" json:"status"`
	PreparationDeadline *time.Time `db:"preparation_deadline" json:"preparation_deadline,omitempty"`
	StartDate           time.Time  `db:"start_date" json:"start_date"`
	EndDate             time.Time  `db:"end_date" json:"end_date"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}
